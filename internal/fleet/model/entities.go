package model

import (
	"fmt"
	"time"
)

// Role is a closed enumeration. Tokens or user rows carrying anything else
// are rejected at the trust boundary instead of being passed through as
// free-form strings.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDriver Role = "driver"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleDriver:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
}

// Driver belongs to exactly one administrator. AdminID must reference a
// user whose role is admin; the aggregator treats a violation as an
// authorization failure, never as data to tolerate.
type Driver struct {
	ID                string
	LicenseNumber     string
	UserID            string
	AdminID           string
	AssignedVehicleID *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Vehicle struct {
	ID               string
	Model            string
	Plate            string
	FuelLevel        float64
	AssignedDriverID *string
	Latitude         *float64
	Longitude        *float64
	LastUpdate       *time.Time
}

// LocationSample is append-only from the gateway's perspective: the
// timestamp is assigned at ingestion, never taken from the client.
type LocationSample struct {
	ID        string    `json:"id"`
	VehicleID string    `json:"vehicleId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// Notification records an unassigned-driver alert. One row per driver,
// upserted atomically.
type Notification struct {
	ID        string
	DriverID  string
	Status    string
	CreatedAt time.Time
}

const NotificationUnassigned = "unassigned"

// VehicleView is the vehicle slice of a fleet view row.
type VehicleView struct {
	ID         string     `json:"id"`
	Model      string     `json:"model"`
	Plate      string     `json:"plate"`
	FuelLevel  float64    `json:"fuelLevel"`
	Latitude   *float64   `json:"latitude"`
	Longitude  *float64   `json:"longitude"`
	LastUpdate *time.Time `json:"lastUpdate"`
}

// FleetViewRow joins one driver of an administrator with its user profile,
// vehicle and latest telemetry sample, plus the derived alert fields. Keys
// are always present; absent data is null so consumers never branch on
// missing keys.
type FleetViewRow struct {
	DriverID           string          `json:"driverId"`
	LicenseNumber      string          `json:"licenseNumber"`
	Name               *string         `json:"name"`
	Email              *string         `json:"email"`
	Vehicle            *VehicleView    `json:"vehicle"`
	Location           *LocationSample `json:"location"`
	Status             string          `json:"status"`
	Priority           string          `json:"priority"`
	FuelAlert          *string         `json:"fuelAlert"`
	FuelHoursRemaining *float64        `json:"fuelHoursRemaining"`
}

const (
	StatusUnassigned  = "unassigned"
	StatusOperational = "operational"

	PriorityHigh     = "HIGH"
	PriorityCritical = "CRITICAL"
	PriorityNormal   = "NORMAL"
)
