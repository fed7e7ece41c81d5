package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fleet-track/internal/fleet/model"
)

var (
	// ErrNotDriver rejects telemetry from any non-driver session.
	ErrNotDriver = errors.New("only drivers may submit telemetry")
	// ErrInvalidSample marks a malformed telemetry payload.
	ErrInvalidSample = errors.New("invalid telemetry sample")
)

// TelemetryInput is the raw sendLocation payload. Coordinates are pointers
// so a missing field is distinguishable from zero.
type TelemetryInput struct {
	VehicleID string   `json:"vehicleId"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Ingestor validates and persists one telemetry sample from a driver
// connection. Samples are timestamped at ingestion; client timestamps are
// not trusted.
type Ingestor struct {
	locations LocationStore
	vehicles  VehicleStore
	log       zerolog.Logger
	now       func() time.Time
}

func NewIngestor(locations LocationStore, vehicles VehicleStore, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		locations: locations,
		vehicles:  vehicles,
		log:       log,
		now:       time.Now,
	}
}

func (ing *Ingestor) Ingest(ctx context.Context, role model.Role, in TelemetryInput) (model.LocationSample, error) {
	if role != model.RoleDriver {
		return model.LocationSample{}, ErrNotDriver
	}

	if in.VehicleID == "" || in.Latitude == nil || in.Longitude == nil {
		return model.LocationSample{}, fmt.Errorf("%w: vehicleId, latitude y longitude son requeridos", ErrInvalidSample)
	}
	lat, lon := *in.Latitude, *in.Longitude
	if lat < -90 || lat > 90 {
		return model.LocationSample{}, fmt.Errorf("%w: latitude %v fuera de rango", ErrInvalidSample, lat)
	}
	if lon < -180 || lon > 180 {
		return model.LocationSample{}, fmt.Errorf("%w: longitude %v fuera de rango", ErrInvalidSample, lon)
	}

	sample := model.LocationSample{
		ID:        uuid.NewString(),
		VehicleID: in.VehicleID,
		Latitude:  lat,
		Longitude: lon,
		Timestamp: ing.now().UTC(),
	}

	saved, err := ing.locations.CreateLocationSample(ctx, sample)
	if err != nil {
		return model.LocationSample{}, fmt.Errorf("create location sample: %w", err)
	}

	// Keep the vehicle's integrated last-known position current. The sample
	// itself is already persisted, so a miss here only degrades the fleet
	// view until the next update.
	if err := ing.vehicles.UpdateVehiclePosition(ctx, saved.VehicleID, lat, lon, saved.Timestamp); err != nil && !errors.Is(err, ErrNotFound) {
		ing.log.Warn().Err(err).Str("vehicle_id", saved.VehicleID).Msg("vehicle position update failed")
	}

	return saved, nil
}
