package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-track/internal/fleet/model"
	"fleet-track/internal/fleet/service"
)

type VehicleRepository struct {
	pool *pgxpool.Pool
}

func NewVehicleRepository(pool *pgxpool.Pool) *VehicleRepository {
	return &VehicleRepository{pool: pool}
}

// FindVehicleByAssignedDriver expects at most one match (enforced by a
// partial unique index); ORDER BY id keeps the result deterministic if
// legacy data violates that.
func (r *VehicleRepository) FindVehicleByAssignedDriver(ctx context.Context, driverID string) (model.Vehicle, error) {
	const query = `
		SELECT id, model, plate, fuel_level, assigned_driver_id, latitude, longitude, last_update
		FROM vehicles
		WHERE assigned_driver_id = $1
		ORDER BY id
		LIMIT 1
	`

	var v model.Vehicle
	err := r.pool.QueryRow(ctx, query, driverID).Scan(
		&v.ID,
		&v.Model,
		&v.Plate,
		&v.FuelLevel,
		&v.AssignedDriverID,
		&v.Latitude,
		&v.Longitude,
		&v.LastUpdate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Vehicle{}, fmt.Errorf("vehicle for driver %s: %w", driverID, service.ErrNotFound)
		}
		return model.Vehicle{}, fmt.Errorf("find vehicle for driver %s: %w", driverID, err)
	}
	return v, nil
}

func (r *VehicleRepository) UpdateVehiclePosition(ctx context.Context, vehicleID string, lat, lon float64, at time.Time) error {
	const query = `
		UPDATE vehicles
		SET latitude = $2, longitude = $3, last_update = $4
		WHERE id = $1
	`

	cmd, err := r.pool.Exec(ctx, query, vehicleID, lat, lon, at)
	if err != nil {
		return fmt.Errorf("update vehicle %s position: %w", vehicleID, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("vehicle %s: %w", vehicleID, service.ErrNotFound)
	}
	return nil
}
