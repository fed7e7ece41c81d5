package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-track/internal/fleet/model"
)

type LocationRepository struct {
	pool *pgxpool.Pool
}

func NewLocationRepository(pool *pgxpool.Pool) *LocationRepository {
	return &LocationRepository{pool: pool}
}

// CreateLocationSample appends one telemetry sample. Samples are never
// updated from the gateway side.
func (r *LocationRepository) CreateLocationSample(ctx context.Context, sample model.LocationSample) (model.LocationSample, error) {
	const query = `
		INSERT INTO locations (id, vehicle_id, latitude, longitude, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		sample.ID,
		sample.VehicleID,
		sample.Latitude,
		sample.Longitude,
		sample.Timestamp,
	)
	if err != nil {
		return model.LocationSample{}, fmt.Errorf("insert location sample: %w", err)
	}
	return sample, nil
}

// ListLocationsForAdmin returns the latest sample per vehicle across the
// administrator's fleet, newest first.
func (r *LocationRepository) ListLocationsForAdmin(ctx context.Context, adminID string) ([]model.LocationSample, error) {
	const query = `
		SELECT id, vehicle_id, latitude, longitude, recorded_at
		FROM (
			SELECT DISTINCT ON (l.vehicle_id)
				l.id, l.vehicle_id, l.latitude, l.longitude, l.recorded_at
			FROM locations l
			JOIN vehicles v ON v.id = l.vehicle_id
			JOIN drivers d ON d.id = v.assigned_driver_id
			WHERE d.admin_id = $1
			ORDER BY l.vehicle_id, l.recorded_at DESC
		) latest
		ORDER BY recorded_at DESC
	`

	rows, err := r.pool.Query(ctx, query, adminID)
	if err != nil {
		return nil, fmt.Errorf("list locations for admin %s: %w", adminID, err)
	}
	defer rows.Close()

	var samples []model.LocationSample
	for rows.Next() {
		var s model.LocationSample
		if err := rows.Scan(&s.ID, &s.VehicleID, &s.Latitude, &s.Longitude, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("scan location sample: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list locations for admin %s: %w", adminID, err)
	}
	return samples, nil
}
