package service

import (
	"fmt"

	"fleet-track/internal/fleet/model"
)

// MaskID redacts an identifier for non-administrator viewers, keeping only
// the first and last four characters. Administrators see identifiers
// unchanged. Applies to identifiers only, never to coordinates or fuel
// levels.
func MaskID(id string, role model.Role) string {
	if role == model.RoleAdmin {
		return id
	}
	first, last := id, id
	if len(id) > 4 {
		first = id[:4]
		last = id[len(id)-4:]
	}
	return fmt.Sprintf("LOC-%s-****-%s", first, last)
}

func MaskSample(s model.LocationSample, role model.Role) model.LocationSample {
	s.ID = MaskID(s.ID, role)
	s.VehicleID = MaskID(s.VehicleID, role)
	return s
}

// MaskRow returns a copy of the row with every identifier field redacted
// for the viewer's role. The input row is left untouched.
func MaskRow(row model.FleetViewRow, role model.Role) model.FleetViewRow {
	if role == model.RoleAdmin {
		return row
	}
	if row.Vehicle != nil {
		v := *row.Vehicle
		v.ID = MaskID(v.ID, role)
		row.Vehicle = &v
	}
	if row.Location != nil {
		loc := MaskSample(*row.Location, role)
		row.Location = &loc
	}
	return row
}

func MaskRows(rows []model.FleetViewRow, role model.Role) []model.FleetViewRow {
	if role == model.RoleAdmin {
		return rows
	}
	masked := make([]model.FleetViewRow, len(rows))
	for i, row := range rows {
		masked[i] = MaskRow(row, role)
	}
	return masked
}
