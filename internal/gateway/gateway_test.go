package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fleet-track/internal/auth"
	"fleet-track/internal/fleet/model"
	"fleet-track/internal/fleet/service"
)

const testSecret = "gateway-test-secret"

// memStore backs the gateway with in-memory fleet data for connection tests.
type memStore struct {
	mu            sync.Mutex
	users         map[string]model.User
	drivers       []model.Driver
	vehicles      []model.Vehicle
	samples       []model.LocationSample
	notifications map[string]model.Notification
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[string]model.User),
		notifications: make(map[string]model.Notification),
	}
}

func (m *memStore) FindUserByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", id, service.ErrNotFound)
	}
	return u, nil
}

func (m *memStore) FindDriverByID(_ context.Context, id string) (model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.drivers {
		if d.ID == id {
			return d, nil
		}
	}
	return model.Driver{}, fmt.Errorf("driver %s: %w", id, service.ErrNotFound)
}

func (m *memStore) FindDriversByAdmin(_ context.Context, adminID string) ([]model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Driver
	for _, d := range m.drivers {
		if d.AdminID == adminID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) FindVehicleByAssignedDriver(_ context.Context, driverID string) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var match *model.Vehicle
	for i := range m.vehicles {
		v := &m.vehicles[i]
		if v.AssignedDriverID != nil && *v.AssignedDriverID == driverID {
			if match == nil || v.ID < match.ID {
				match = v
			}
		}
	}
	if match == nil {
		return model.Vehicle{}, fmt.Errorf("vehicle for driver %s: %w", driverID, service.ErrNotFound)
	}
	return *match, nil
}

func (m *memStore) UpdateVehiclePosition(_ context.Context, vehicleID string, lat, lon float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.vehicles {
		if m.vehicles[i].ID == vehicleID {
			m.vehicles[i].Latitude = &lat
			m.vehicles[i].Longitude = &lon
			m.vehicles[i].LastUpdate = &at
			return nil
		}
	}
	return fmt.Errorf("vehicle %s: %w", vehicleID, service.ErrNotFound)
}

func (m *memStore) CreateLocationSample(_ context.Context, sample model.LocationSample) (model.LocationSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, sample)
	return sample, nil
}

func (m *memStore) ListLocationsForAdmin(_ context.Context, adminID string) ([]model.LocationSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fleet := make(map[string]bool)
	for _, d := range m.drivers {
		if d.AdminID != adminID {
			continue
		}
		for _, v := range m.vehicles {
			if v.AssignedDriverID != nil && *v.AssignedDriverID == d.ID {
				fleet[v.ID] = true
			}
		}
	}
	seen := make(map[string]bool)
	var out []model.LocationSample
	for i := len(m.samples) - 1; i >= 0; i-- {
		s := m.samples[i]
		if !fleet[s.VehicleID] || seen[s.VehicleID] {
			continue
		}
		seen[s.VehicleID] = true
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) FindOrCreateNotification(_ context.Context, driverID string) (model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.notifications[driverID]; ok {
		return n, nil
	}
	n := model.Notification{
		ID:        fmt.Sprintf("ntf-%d", len(m.notifications)+1),
		DriverID:  driverID,
		Status:    model.NotificationUnassigned,
		CreatedAt: time.Now(),
	}
	m.notifications[driverID] = n
	return n, nil
}

func (m *memStore) vehicle(t *testing.T, id string) model.Vehicle {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.vehicles {
		if v.ID == id {
			return v
		}
	}
	t.Fatalf("vehicle %s not in store", id)
	return model.Vehicle{}
}

type spyPublisher struct {
	mu      sync.Mutex
	samples []model.LocationSample
}

func (s *spyPublisher) PublishLocationUpdate(_ context.Context, sample model.LocationSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	return nil
}

func (s *spyPublisher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

func newTestGateway(t *testing.T, store *memStore, pub LocationPublisher) (*Gateway, *httptest.Server) {
	t.Helper()
	logger := zerolog.Nop()
	verifier, err := auth.NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	ingestor := service.NewIngestor(store, store, logger)
	fleet := service.NewAggregator(store, store, store, store, store, logger)
	g := New(verifier, ingestor, fleet, pub, logger, "production", 10*time.Second)

	srv := httptest.NewServer(http.HandlerFunc(g.HandleWS))
	t.Cleanup(srv.Close)
	return g, srv
}

func mintToken(t *testing.T, userID string, role model.Role) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, userID, role, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	msg, err := encodeEvent(event, data)
	if err != nil {
		t.Fatalf("encode %s: %v", event, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func seedFleet(store *memStore) {
	store.users["admin-1"] = model.User{ID: "admin-1", Name: "Marta", Email: "marta@fleet.test", Role: model.RoleAdmin}
	store.users["user-d1"] = model.User{ID: "user-d1", Name: "Pedro", Email: "pedro@fleet.test", Role: model.RoleDriver}
	store.drivers = append(store.drivers, model.Driver{
		ID: "drv-1", LicenseNumber: "LIC-001", UserID: "user-d1", AdminID: "admin-1",
	})
	drv := "drv-1"
	store.vehicles = append(store.vehicles, model.Vehicle{
		ID: "veh-1", Model: "Kenworth T680", Plate: "XYZ-123", FuelLevel: 52, AssignedDriverID: &drv,
	})
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	_, srv := newTestGateway(t, newMemStore(), nil)

	for _, token := range []string{"", "not.a.token", "aaa.bbb"} {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			conn.Close()
			t.Fatalf("token %q: handshake unexpectedly accepted", token)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("token %q: expected 401 response, got %+v", token, resp)
		}
	}
}

func TestHandshakeAcceptsAuthorizationHeader(t *testing.T) {
	store := newMemStore()
	seedFleet(store)
	_, srv := newTestGateway(t, store, nil)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Authorization": []string{"Bearer " + mintToken(t, "admin-1", model.RoleAdmin)}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial with header: %v", err)
	}
	defer conn.Close()

	env := readEvent(t, conn)
	if env.Event != eventAllLocations {
		t.Fatalf("expected %s, got %s", eventAllLocations, env.Event)
	}
}

func TestDriverSendLocationFlow(t *testing.T) {
	store := newMemStore()
	seedFleet(store)
	pub := &spyPublisher{}
	_, srv := newTestGateway(t, store, pub)

	conn := dialWS(t, srv, mintToken(t, "user-d1", model.RoleDriver))
	sendEnvelope(t, conn, eventSendLocation, map[string]any{
		"vehicleId": "veh-1",
		"latitude":  4.624335,
		"longitude": -74.063644,
	})

	ack := readEvent(t, conn)
	if ack.Event != eventLocationSent {
		t.Fatalf("expected %s first, got %s", eventLocationSent, ack.Event)
	}
	var sent locationSentPayload
	if err := json.Unmarshal(ack.Data, &sent); err != nil {
		t.Fatalf("decode locationSent: %v", err)
	}
	if sent.Message != "Ubicación enviada exitosamente" {
		t.Errorf("ack message = %q", sent.Message)
	}
	if sent.Data.VehicleID != "veh-1" {
		t.Errorf("ack carries vehicle %q, want the raw id", sent.Data.VehicleID)
	}
	if sent.Data.ID == "" || sent.Data.Timestamp.IsZero() {
		t.Errorf("ack sample missing server-assigned fields: %+v", sent.Data)
	}

	fanout := readEvent(t, conn)
	if fanout.Event != eventNewLocation {
		t.Fatalf("expected %s second, got %s", eventNewLocation, fanout.Event)
	}
	var masked model.LocationSample
	if err := json.Unmarshal(fanout.Data, &masked); err != nil {
		t.Fatalf("decode newLocation: %v", err)
	}
	if !strings.HasPrefix(masked.VehicleID, "LOC-") {
		t.Errorf("driver recipient saw unmasked vehicle id %q", masked.VehicleID)
	}
	if !strings.HasPrefix(masked.ID, "LOC-") {
		t.Errorf("driver recipient saw unmasked sample id %q", masked.ID)
	}
	if masked.Latitude != 4.624335 || masked.Longitude != -74.063644 {
		t.Errorf("coordinates must survive masking, got (%v, %v)", masked.Latitude, masked.Longitude)
	}

	v := store.vehicle(t, "veh-1")
	if v.Latitude == nil || *v.Latitude != 4.624335 {
		t.Errorf("vehicle position not updated: %+v", v)
	}

	deadline := time.Now().Add(2 * time.Second)
	for pub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if pub.count() != 1 {
		t.Errorf("publisher calls = %d, want 1", pub.count())
	}
}

func TestAdminCannotSendLocation(t *testing.T) {
	store := newMemStore()
	seedFleet(store)
	_, srv := newTestGateway(t, store, nil)

	conn := dialWS(t, srv, mintToken(t, "admin-1", model.RoleAdmin))

	// drain the connect-time fleet push first
	if env := readEvent(t, conn); env.Event != eventAllLocations {
		t.Fatalf("expected %s on connect, got %s", eventAllLocations, env.Event)
	}

	sendEnvelope(t, conn, eventSendLocation, map[string]any{
		"vehicleId": "veh-1", "latitude": 1.0, "longitude": 1.0,
	})

	env := readEvent(t, conn)
	if env.Event != eventError {
		t.Fatalf("expected %s, got %s", eventError, env.Event)
	}
	var payload errorPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Message != "Solo drivers pueden enviar ubicaciones" {
		t.Errorf("message = %q", payload.Message)
	}
	if len(store.samples) != 0 {
		t.Errorf("rejected send must persist nothing, found %d samples", len(store.samples))
	}
}

func TestDriverCannotRequestLocations(t *testing.T) {
	store := newMemStore()
	seedFleet(store)
	_, srv := newTestGateway(t, store, nil)

	conn := dialWS(t, srv, mintToken(t, "user-d1", model.RoleDriver))
	sendEnvelope(t, conn, eventRequestLocations, nil)

	env := readEvent(t, conn)
	if env.Event != eventError {
		t.Fatalf("expected %s, got %s", eventError, env.Event)
	}
	var payload errorPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Message != "Rol no autorizado para solicitar ubicaciones" {
		t.Errorf("message = %q", payload.Message)
	}
	if payload.Details != "" {
		t.Errorf("details must stay hidden outside development, got %q", payload.Details)
	}
}

func TestAdminFleetViewOnRequest(t *testing.T) {
	store := newMemStore()
	seedFleet(store)
	store.samples = append(store.samples, model.LocationSample{
		ID: "smp-1", VehicleID: "veh-1", Latitude: 4.6, Longitude: -74.0, Timestamp: time.Now().UTC(),
	})
	_, srv := newTestGateway(t, store, nil)

	conn := dialWS(t, srv, mintToken(t, "admin-1", model.RoleAdmin))
	readEvent(t, conn) // connect-time push

	sendEnvelope(t, conn, eventRequestLocations, nil)
	env := readEvent(t, conn)
	if env.Event != eventAllLocations {
		t.Fatalf("expected %s, got %s", eventAllLocations, env.Event)
	}

	var rows []model.FleetViewRow
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.DriverID != "drv-1" {
		t.Errorf("admin must see raw ids, got driver %q", row.DriverID)
	}
	if row.Vehicle == nil || row.Vehicle.ID != "veh-1" {
		t.Errorf("vehicle missing or masked for admin: %+v", row.Vehicle)
	}
	if row.Location == nil || row.Location.ID != "smp-1" {
		t.Errorf("latest sample missing or masked for admin: %+v", row.Location)
	}
	if row.Status != model.StatusOperational || row.Priority != model.PriorityNormal {
		t.Errorf("status/priority = %s/%s", row.Status, row.Priority)
	}
}

func TestBroadcastDeliversToAdmins(t *testing.T) {
	store := newMemStore()
	seedFleet(store)
	g, srv := newTestGateway(t, store, nil)

	admin := dialWS(t, srv, mintToken(t, "admin-1", model.RoleAdmin))
	driver := dialWS(t, srv, mintToken(t, "user-d1", model.RoleDriver))
	readEvent(t, admin) // connect-time push

	g.broadcastFleetViews()

	env := readEvent(t, admin)
	if env.Event != eventAllLocations {
		t.Fatalf("expected %s from broadcast, got %s", eventAllLocations, env.Event)
	}

	driver.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := driver.ReadMessage(); err == nil {
		t.Fatal("broadcast must not reach driver connections")
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	store := newMemStore()
	seedFleet(store)
	_, srv := newTestGateway(t, store, nil)

	conn := dialWS(t, srv, mintToken(t, "user-d1", model.RoleDriver))
	sendEnvelope(t, conn, "subscribeWeather", nil)

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("unknown event must produce no reply")
	}
}
