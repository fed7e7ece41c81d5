package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-track/internal/fleet/model"
)

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// FindOrCreateNotification is a single atomic upsert keyed by driver id, so
// concurrent aggregation runs for the same driver cannot race a
// check-then-insert into duplicates.
func (r *NotificationRepository) FindOrCreateNotification(ctx context.Context, driverID string) (model.Notification, error) {
	const query = `
		WITH ins AS (
			INSERT INTO notifications (id, driver_id, status)
			VALUES ($1, $2, $3)
			ON CONFLICT (driver_id) DO NOTHING
			RETURNING id, driver_id, status, created_at
		)
		SELECT id, driver_id, status, created_at FROM ins
		UNION ALL
		SELECT id, driver_id, status, created_at FROM notifications WHERE driver_id = $2
		LIMIT 1
	`

	var n model.Notification
	err := r.pool.QueryRow(ctx, query, uuid.NewString(), driverID, model.NotificationUnassigned).Scan(
		&n.ID,
		&n.DriverID,
		&n.Status,
		&n.CreatedAt,
	)
	if err != nil {
		return model.Notification{}, fmt.Errorf("upsert notification for driver %s: %w", driverID, err)
	}
	return n, nil
}
