package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"fleet-track/internal/auth"
	"fleet-track/internal/fleet/model"
	"fleet-track/internal/fleet/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	sendBufferSize = 256
)

// LocationPublisher fans accepted samples out to downstream consumers.
type LocationPublisher interface {
	PublishLocationUpdate(ctx context.Context, sample model.LocationSample) error
}

// Gateway authenticates persistent connections, routes their events and
// owns the periodic fleet broadcast.
type Gateway struct {
	hub         *Hub
	verifier    *auth.Verifier
	ingestor    *service.Ingestor
	fleet       *service.Aggregator
	publisher   LocationPublisher
	log         zerolog.Logger
	showDetails bool
	interval    time.Duration
	cron        *cron.Cron
	upgrader    websocket.Upgrader
}

func New(verifier *auth.Verifier, ingestor *service.Ingestor, fleet *service.Aggregator, publisher LocationPublisher, log zerolog.Logger, environment string, interval time.Duration) *Gateway {
	return &Gateway{
		hub:         NewHub(),
		verifier:    verifier,
		ingestor:    ingestor,
		fleet:       fleet,
		publisher:   publisher,
		log:         log,
		showDetails: environment == "development",
		interval:    interval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS authenticates the handshake and runs the connection. The token
// travels out-of-band (Authorization header or token query parameter); a
// missing or invalid one terminates the attempt before any event flows.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	claims, err := g.verifier.Verify(handshakeToken(r))
	if err != nil {
		g.log.Warn().Err(err).Msg("connection rejected")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		Session: Session{
			ConnectionID: uuid.NewString(),
			UserID:       claims.Subject,
			Role:         claims.Role,
			LastSeen:     time.Now(),
		},
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	g.hub.Add(client)
	g.log.Info().
		Str("connection_id", client.Session.ConnectionID).
		Str("user_id", client.Session.UserID).
		Str("role", string(client.Session.Role)).
		Msg("client connected")

	go g.writePump(client)

	// admins see their fleet immediately, not at the next tick
	if client.Session.Role == model.RoleAdmin {
		go g.pushFleetView(context.Background(), client)
	}

	g.readPump(client)
}

func (g *Gateway) readPump(client *Client) {
	defer func() {
		g.hub.Remove(client.Session.ConnectionID)
		client.conn.Close()
		g.log.Info().
			Str("connection_id", client.Session.ConnectionID).
			Msg("client disconnected")
	}()

	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		client.Session.LastSeen = time.Now()

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			g.sendError(client, "Mensaje inválido", err)
			continue
		}
		g.dispatch(client, env)
	}
}

func (g *Gateway) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) dispatch(client *Client, env Envelope) {
	switch env.Event {
	case eventSendLocation:
		g.handleSendLocation(client, env.Data)
	case eventRequestLocations:
		g.handleRequestLocations(client)
	default:
		g.log.Debug().Str("event", env.Event).Msg("unhandled event")
	}
}

func (g *Gateway) handleSendLocation(client *Client, data json.RawMessage) {
	ctx := context.Background()

	var in service.TelemetryInput
	if err := json.Unmarshal(data, &in); err != nil {
		g.sendError(client, "Error al procesar la ubicación", err)
		return
	}

	sample, err := g.ingestor.Ingest(ctx, client.Session.Role, in)
	switch {
	case errors.Is(err, service.ErrNotDriver):
		g.sendError(client, "Solo drivers pueden enviar ubicaciones", nil)
		return
	case err != nil:
		g.sendError(client, "Error al procesar la ubicación", err)
		return
	}

	g.sendEvent(client, eventLocationSent, locationSentPayload{
		Message: "Ubicación enviada exitosamente",
		Data:    sample,
	})

	g.broadcastNewLocation(sample)

	if g.publisher != nil {
		if err := g.publisher.PublishLocationUpdate(ctx, sample); err != nil {
			g.log.Warn().Err(err).Str("sample_id", sample.ID).Msg("location fanout publish failed")
		}
	}

	// fresh telemetry moves the fleet view; push without waiting for the tick
	g.broadcastFleetViews()
}

func (g *Gateway) handleRequestLocations(client *Client) {
	if client.Session.Role != model.RoleAdmin {
		g.sendError(client, "Rol no autorizado para solicitar ubicaciones", nil)
		return
	}
	g.pushFleetView(context.Background(), client)
}

// pushFleetView recomputes one administrator's fleet view and unicasts it.
// Every failure path ends at this connection only.
func (g *Gateway) pushFleetView(ctx context.Context, client *Client) {
	rows, err := g.fleet.BuildFleetView(ctx, client.Session.UserID)
	switch {
	case errors.Is(err, service.ErrNotAuthorized):
		g.sendError(client, "Rol no autorizado para solicitar ubicaciones", nil)
		return
	case err != nil:
		g.log.Error().Err(err).Str("admin_id", client.Session.UserID).Msg("fleet view build failed")
		g.sendError(client, "Error al obtener ubicaciones", err)
		return
	}

	g.sendEvent(client, eventAllLocations, service.MaskRows(rows, client.Session.Role))
}

// broadcastNewLocation delivers the sample to every connection, masked for
// the recipient's role.
func (g *Gateway) broadcastNewLocation(sample model.LocationSample) {
	variants := make(map[model.Role][]byte, 2)
	for _, role := range []model.Role{model.RoleAdmin, model.RoleDriver} {
		msg, err := encodeEvent(eventNewLocation, service.MaskSample(sample, role))
		if err != nil {
			g.log.Error().Err(err).Msg("encode newLocation")
			return
		}
		variants[role] = msg
	}

	g.hub.Each(func(c *Client) {
		if msg, ok := variants[c.Session.Role]; ok && !c.enqueue(msg) {
			g.log.Warn().Str("connection_id", c.Session.ConnectionID).Msg("send buffer full, frame dropped")
		}
	})
}

func (g *Gateway) sendEvent(client *Client, event string, data any) {
	msg, err := encodeEvent(event, data)
	if err != nil {
		g.log.Error().Err(err).Str("event", event).Msg("encode event")
		return
	}
	if !client.enqueue(msg) {
		g.log.Warn().Str("connection_id", client.Session.ConnectionID).Msg("send buffer full, frame dropped")
	}
}

func (g *Gateway) sendError(client *Client, message string, cause error) {
	payload := errorPayload{Message: message}
	if cause != nil && g.showDetails {
		payload.Details = cause.Error()
	}
	g.sendEvent(client, eventError, payload)
}

func handshakeToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
