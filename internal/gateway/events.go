package gateway

import (
	"encoding/json"

	"fleet-track/internal/fleet/model"
)

// Named events carried over the persistent channel.
const (
	// client → server
	eventSendLocation     = "sendLocation"
	eventRequestLocations = "requestLocations"

	// server → client
	eventNewLocation  = "newLocation"
	eventAllLocations = "allLocations"
	eventLocationSent = "locationSent"
	eventError        = "error"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type locationSentPayload struct {
	Message string               `json:"message"`
	Data    model.LocationSample `json:"data"`
}

func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
