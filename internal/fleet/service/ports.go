package service

import (
	"context"
	"errors"
	"time"

	"fleet-track/internal/fleet/model"
)

// ErrNotFound is the contract every store honors for an absent entity.
// The aggregator relies on it to distinguish "tolerable absence" from a
// store failure.
var ErrNotFound = errors.New("not found")

type UserStore interface {
	FindUserByID(ctx context.Context, id string) (model.User, error)
}

type DriverStore interface {
	FindDriverByID(ctx context.Context, id string) (model.Driver, error)
	FindDriversByAdmin(ctx context.Context, adminID string) ([]model.Driver, error)
}

type VehicleStore interface {
	// FindVehicleByAssignedDriver returns the vehicle claimed by the driver.
	// Storage enforces at most one; if legacy rows violate that, the first
	// by id is returned deterministically.
	FindVehicleByAssignedDriver(ctx context.Context, driverID string) (model.Vehicle, error)
	UpdateVehiclePosition(ctx context.Context, vehicleID string, lat, lon float64, at time.Time) error
}

type LocationStore interface {
	CreateLocationSample(ctx context.Context, sample model.LocationSample) (model.LocationSample, error)
	// ListLocationsForAdmin returns the latest sample per vehicle across the
	// administrator's fleet, newest first.
	ListLocationsForAdmin(ctx context.Context, adminID string) ([]model.LocationSample, error)
}

type NotificationStore interface {
	// FindOrCreateNotification is an atomic upsert keyed by driver id.
	FindOrCreateNotification(ctx context.Context, driverID string) (model.Notification, error)
}
