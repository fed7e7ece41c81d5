package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"fleet-track/internal/fleet/model"
)

// ErrNotAuthorized rejects a fleet view request whose subject is missing or
// is not an administrator.
var ErrNotAuthorized = errors.New("subject is not an administrator")

// Below this fuel percentage a vehicle gets a predictive alert. 15% is one
// hour of ideal autonomy, extrapolated linearly.
const fuelAlertThreshold = 15.0

// Aggregator joins driver, user, vehicle and telemetry records into one
// administrator's fleet view and derives status, priority and fuel alerts.
type Aggregator struct {
	users         UserStore
	drivers       DriverStore
	vehicles      VehicleStore
	locations     LocationStore
	notifications NotificationStore
	log           zerolog.Logger
}

func NewAggregator(users UserStore, drivers DriverStore, vehicles VehicleStore, locations LocationStore, notifications NotificationStore, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		users:         users,
		drivers:       drivers,
		vehicles:      vehicles,
		locations:     locations,
		notifications: notifications,
		log:           log,
	}
}

// BuildFleetView returns one row per driver of the administrator, in
// storage order. An admin with no drivers gets an empty sequence, not an
// error. Rows are built concurrently; each lookup is read-only and
// order-independent, and results are slotted by index.
func (a *Aggregator) BuildFleetView(ctx context.Context, adminID string) ([]model.FleetViewRow, error) {
	admin, err := a.users.FindUserByID(ctx, adminID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotAuthorized
		}
		return nil, fmt.Errorf("resolve admin %s: %w", adminID, err)
	}
	if admin.Role != model.RoleAdmin {
		return nil, ErrNotAuthorized
	}

	drivers, err := a.drivers.FindDriversByAdmin(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("list drivers for admin %s: %w", adminID, err)
	}

	rows := make([]model.FleetViewRow, len(drivers))
	if len(drivers) == 0 {
		return rows, nil
	}

	samples, err := a.locations.ListLocationsForAdmin(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("list locations for admin %s: %w", adminID, err)
	}
	latest := make(map[string]model.LocationSample, len(samples))
	for _, s := range samples {
		if _, ok := latest[s.VehicleID]; !ok {
			latest[s.VehicleID] = s
		}
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i := range drivers {
		wg.Add(1)
		go func(i int, d model.Driver) {
			defer wg.Done()
			row, err := a.buildRow(ctx, d, latest)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			rows[i] = row
		}(i, drivers[i])
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	// Unassigned drivers leave a deduplicated notification behind. The
	// upsert is atomic at the storage layer; a failure is cosmetic and must
	// not fail the view.
	for _, row := range rows {
		if row.Vehicle != nil {
			continue
		}
		if _, err := a.notifications.FindOrCreateNotification(ctx, row.DriverID); err != nil {
			a.log.Warn().Err(err).Str("driver_id", row.DriverID).Msg("unassigned notification upsert failed")
		}
	}

	return rows, nil
}

func (a *Aggregator) buildRow(ctx context.Context, d model.Driver, latest map[string]model.LocationSample) (model.FleetViewRow, error) {
	row := model.FleetViewRow{
		DriverID:      d.ID,
		LicenseNumber: d.LicenseNumber,
		Status:        model.StatusUnassigned,
		Priority:      model.PriorityHigh,
	}

	user, err := a.users.FindUserByID(ctx, d.UserID)
	switch {
	case err == nil:
		name, email := user.Name, user.Email
		row.Name = &name
		row.Email = &email
	case errors.Is(err, ErrNotFound):
		// tolerated: profile fields stay null
	default:
		return row, fmt.Errorf("resolve user %s for driver %s: %w", d.UserID, d.ID, err)
	}

	vehicle, err := a.vehicles.FindVehicleByAssignedDriver(ctx, d.ID)
	switch {
	case err == nil:
		row.Vehicle = &model.VehicleView{
			ID:         vehicle.ID,
			Model:      vehicle.Model,
			Plate:      vehicle.Plate,
			FuelLevel:  vehicle.FuelLevel,
			Latitude:   vehicle.Latitude,
			Longitude:  vehicle.Longitude,
			LastUpdate: vehicle.LastUpdate,
		}
		row.Status = model.StatusOperational
		row.Priority = model.PriorityNormal
		if vehicle.FuelLevel < fuelAlertThreshold {
			hours := vehicle.FuelLevel / fuelAlertThreshold
			alert := fmt.Sprintf("critical: %.2f hours remaining", hours)
			row.FuelAlert = &alert
			row.FuelHoursRemaining = &hours
			row.Priority = model.PriorityCritical
		}
		if s, ok := latest[vehicle.ID]; ok {
			sample := s
			row.Location = &sample
		}
	case errors.Is(err, ErrNotFound):
		// no vehicle: row stays unassigned / HIGH
	default:
		return row, fmt.Errorf("resolve vehicle for driver %s: %w", d.ID, err)
	}

	return row, nil
}
