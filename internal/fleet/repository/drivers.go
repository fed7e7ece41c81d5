package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-track/internal/fleet/model"
	"fleet-track/internal/fleet/service"
)

type DriverRepository struct {
	pool *pgxpool.Pool
}

func NewDriverRepository(pool *pgxpool.Pool) *DriverRepository {
	return &DriverRepository{pool: pool}
}

const driverColumns = `id, license_number, user_id, admin_id, assigned_vehicle_id, created_at, updated_at`

func (r *DriverRepository) FindDriverByID(ctx context.Context, id string) (model.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1`

	var d model.Driver
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID,
		&d.LicenseNumber,
		&d.UserID,
		&d.AdminID,
		&d.AssignedVehicleID,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Driver{}, fmt.Errorf("driver %s: %w", id, service.ErrNotFound)
		}
		return model.Driver{}, fmt.Errorf("find driver %s: %w", id, err)
	}
	return d, nil
}

func (r *DriverRepository) FindDriversByAdmin(ctx context.Context, adminID string) ([]model.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE admin_id = $1 ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, adminID)
	if err != nil {
		return nil, fmt.Errorf("list drivers for admin %s: %w", adminID, err)
	}
	defer rows.Close()

	var drivers []model.Driver
	for rows.Next() {
		var d model.Driver
		if err := rows.Scan(
			&d.ID,
			&d.LicenseNumber,
			&d.UserID,
			&d.AdminID,
			&d.AssignedVehicleID,
			&d.CreatedAt,
			&d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		drivers = append(drivers, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list drivers for admin %s: %w", adminID, err)
	}
	return drivers, nil
}
