package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"

	natsadapter "github.com/samirrijal/fleetmap/internal/adapters/nats"
	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/usecases"
	"github.com/samirrijal/fleetmap/internal/core/viewport"
	"github.com/samirrijal/fleetmap/internal/pkg/metrics"
	"github.com/samirrijal/fleetmap/internal/pkg/telemetry"
)

const pingInterval = 30 * time.Second

// frameWriter is the write half of a WebSocket connection.
type frameWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// cameraCommand is sent to the client whenever the viewport moves its camera.
type cameraCommand struct {
	Type    string             `json:"type"` // fly_to | set_view | fit_bounds | set_zoom
	Center  *domain.Point      `json:"center,omitempty"`
	Zoom    int                `json:"zoom,omitempty"`
	Bounds  *domain.Bounds     `json:"bounds,omitempty"`
	Options *domain.FitOptions `json:"options,omitempty"`
	Animate bool               `json:"animate"`
}

// SocketCamera implements ports.CameraControl by writing JSON commands to a
// WebSocket. Writes are serialised; the connection allows one writer at a time.
type SocketCamera struct {
	mu   sync.Mutex
	conn frameWriter
}

// NewSocketCamera wraps the write half of a connection.
func NewSocketCamera(conn frameWriter) *SocketCamera {
	return &SocketCamera{conn: conn}
}

func (s *SocketCamera) FlyTo(ctx context.Context, center domain.Point, zoom int) error {
	return s.command(cameraCommand{Type: "fly_to", Center: &center, Zoom: zoom, Animate: true})
}

func (s *SocketCamera) SetView(ctx context.Context, center domain.Point, zoom int) error {
	return s.command(cameraCommand{Type: "set_view", Center: &center, Zoom: zoom})
}

func (s *SocketCamera) FitBounds(ctx context.Context, bounds domain.Bounds, opts domain.FitOptions) error {
	return s.command(cameraCommand{Type: "fit_bounds", Bounds: &bounds, Options: &opts, Animate: opts.Animate})
}

func (s *SocketCamera) SetZoom(ctx context.Context, zoom int, animate bool) error {
	return s.command(cameraCommand{Type: "set_zoom", Zoom: zoom, Animate: animate})
}

func (s *SocketCamera) command(cmd cameraCommand) error {
	metrics.CameraCommands.WithLabelValues(cmd.Type).Inc()
	return s.writeJSON(cmd)
}

func (s *SocketCamera) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *SocketCamera) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

// clientMessage is sent by the map surface. Type selects the fields that apply:
//
//	moved, zoomed   center, zoom, bounds, programmatic
//	center          center or entity_id, zoom, animate
//	fit             bounds, options
//	zoom            zoom, animate
//	follow          entity_id, position (optional)
//	center_all      entities or kind
//	route           path
//	reset, state
type clientMessage struct {
	Type         string             `json:"type"`
	Center       *domain.Point      `json:"center,omitempty"`
	Zoom         int                `json:"zoom,omitempty"`
	Bounds       *domain.Bounds     `json:"bounds,omitempty"`
	Options      *domain.FitOptions `json:"options,omitempty"`
	Animate      bool               `json:"animate,omitempty"`
	Programmatic bool               `json:"programmatic,omitempty"`
	EntityID     string             `json:"entity_id,omitempty"`
	Position     *domain.Point      `json:"position,omitempty"`
	Kind         string             `json:"kind,omitempty"`
	Entities     []domain.Entity    `json:"entities,omitempty"`
	Path         []domain.Point     `json:"path,omitempty"`
}

type stateMessage struct {
	Type      string               `json:"type"`
	SessionID string               `json:"session_id"`
	Mode      string               `json:"mode"`
	State     domain.ViewportState `json:"state"`
}

type errorMessage struct {
	Type     string `json:"type"`
	Request  string `json:"request,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
	Error    string `json:"error"`
}

// viewportSession binds one connection to one SessionService session.
type viewportSession struct {
	deps   *Dependencies
	camera *SocketCamera
	sess   *usecases.Session
}

func newViewportSession(deps *Dependencies, w frameWriter) *viewportSession {
	cam := NewSocketCamera(w)
	return &viewportSession{
		deps:   deps,
		camera: cam,
		sess:   deps.Sessions.Open(cam),
	}
}

func (v *viewportSession) close() {
	v.deps.Sessions.Close(v.sess.ID)
}

func (v *viewportSession) sendState() error {
	ctrl := v.sess.Controller
	return v.camera.writeJSON(stateMessage{
		Type:      "state",
		SessionID: v.sess.ID,
		Mode:      ctrl.Mode().String(),
		State:     ctrl.State(),
	})
}

// handle processes one client frame. A returned error means the connection
// can no longer be written to.
func (v *viewportSession) handle(ctx context.Context, data []byte) error {
	var m clientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return v.camera.writeJSON(errorMessage{Type: "error", Error: "invalid JSON"})
	}

	ctrl := v.sess.Controller
	before := ctrl.Mode()
	if err := v.dispatch(ctx, m); err != nil {
		if errors.Is(err, domain.ErrUnsupportedCapability) {
			return v.camera.writeJSON(errorMessage{Type: "follow_unavailable", Request: m.Type, EntityID: m.EntityID, Error: err.Error()})
		}
		return v.camera.writeJSON(errorMessage{Type: "error", Request: m.Type, Error: err.Error()})
	}

	after := ctrl.Mode()
	if before == viewport.Following && after == viewport.Idle {
		ctrl.Untrack()
	}
	// camera reports are frequent, answer them only when they changed the mode
	if (m.Type == "moved" || m.Type == "zoomed") && before == after {
		return nil
	}
	return v.sendState()
}

func (v *viewportSession) dispatch(ctx context.Context, m clientMessage) error {
	ctrl := v.sess.Controller
	switch m.Type {
	case "moved", "zoomed":
		ev := domain.CameraEvent{Zoom: m.Zoom, Bounds: m.Bounds, Programmatic: m.Programmatic}
		if m.Center != nil {
			ev.Center = *m.Center
		}
		if m.Type == "moved" {
			if m.Center == nil {
				return fmt.Errorf("moved requires center: %w", domain.ErrInvalidArgument)
			}
			return ctrl.HandleCameraMoved(ev)
		}
		return ctrl.HandleCameraZoomed(ev)

	case "center":
		if m.EntityID != "" {
			if v.deps.Map == nil {
				return errors.New("entity lookup not configured")
			}
			ent, err := v.deps.Map.Entity(ctx, m.EntityID)
			if err != nil {
				return err
			}
			return ctrl.CenterOnEntity(ctx, *ent, m.Zoom)
		}
		if m.Center == nil {
			return fmt.Errorf("center requires center or entity_id: %w", domain.ErrInvalidArgument)
		}
		return ctrl.CenterOn(ctx, *m.Center, m.Zoom, m.Animate)

	case "fit":
		if m.Bounds == nil {
			return fmt.Errorf("fit requires bounds: %w", domain.ErrInvalidArgument)
		}
		var opts domain.FitOptions
		if m.Options != nil {
			opts = *m.Options
		}
		return ctrl.FitBounds(ctx, *m.Bounds, opts)

	case "zoom":
		return ctrl.ZoomTo(ctx, m.Zoom, m.Animate)

	case "follow":
		_, err := v.deps.Sessions.Follow(ctx, v.sess.ID, m.EntityID, m.Position)
		return err

	case "center_all":
		entities := m.Entities
		if len(entities) == 0 && v.deps.Map != nil {
			var err error
			entities, err = v.deps.Map.Entities(ctx, m.Kind, nil, 0)
			if err != nil {
				return err
			}
		}
		ctrl.Observe(entities)
		return ctrl.CenterOnAll(ctx, entities)

	case "route":
		return ctrl.CenterOnRoute(ctx, m.Path)

	case "reset":
		return ctrl.Reset(ctx)

	case "state":
		return nil
	}
	return fmt.Errorf("unknown message type %q: %w", m.Type, domain.ErrInvalidArgument)
}

// ViewportSocketHandler runs a viewport session per connection. The client
// receives its initial state, then camera commands and state updates.
func ViewportSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		vs := newViewportSession(deps, c)
		defer vs.close()

		ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanFollowSession)
		span.SetAttributes(attribute.String("fleetmap.session_id", vs.sess.ID))
		defer span.End()

		logger := slog.Default().With("session_id", vs.sess.ID, "remote", c.RemoteAddr().String())
		logger.Info("viewport session opened")

		done := make(chan struct{})
		defer close(done)
		go keepAlive(vs.camera, done)

		if err := vs.sendState(); err != nil {
			return
		}
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			if err := vs.handle(ctx, msg); err != nil {
				logger.Debug("viewport session write failed", "error", err)
				break
			}
		}
		logger.Info("viewport session closed")
	}
}

func keepAlive(cam *SocketCamera, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := cam.ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// relayMessage subscribes a relay client to entity positions.
type relayMessage struct {
	Action   string `json:"action"`    // "subscribe" | "unsubscribe"
	EntityID string `json:"entity_id"` // "" = every entity
}

// PositionRelayHandler relays accepted positions from NATS to a client.
// Clients send {"action":"subscribe","entity_id":"car-7"}; an empty entity_id
// means every entity. New connections start subscribed to everything.
func PositionRelayHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		out := NewSocketCamera(c)
		if nc == nil {
			_ = out.writeJSON(errorMessage{Type: "error", Error: "position relay not configured"})
			return
		}
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		subs := make(map[string]*nats.Subscription) // subject -> subscription
		defer func() {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
		}()

		relay := func(msg *nats.Msg) {
			_ = out.writeJSON(json.RawMessage(msg.Data))
		}
		all := natsadapter.SubjectPositionPrefix + ">"
		sub, err := nc.Subscribe(all, relay)
		if err != nil {
			slog.Warn("relay subscribe failed", "error", err)
			return
		}
		subs[all] = sub

		done := make(chan struct{})
		defer close(done)
		go keepAlive(out, done)

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var m relayMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = out.writeJSON(errorMessage{Type: "error", Error: "invalid JSON"})
				continue
			}

			subject := all
			if m.EntityID != "" {
				subject = natsadapter.PositionSubject(m.EntityID)
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[subject]; exists {
					_ = out.writeJSON(relayStatus("already subscribed", subject))
					continue
				}
				s, err := nc.Subscribe(subject, relay)
				if err != nil {
					_ = out.writeJSON(errorMessage{Type: "error", Error: "subscribe failed: " + err.Error()})
					continue
				}
				subs[subject] = s
				_ = out.writeJSON(relayStatus("subscribed", subject))

			case "unsubscribe":
				if s, exists := subs[subject]; exists {
					_ = s.Unsubscribe()
					delete(subs, subject)
					_ = out.writeJSON(relayStatus("unsubscribed", subject))
				} else {
					_ = out.writeJSON(errorMessage{Type: "error", Error: "not subscribed to " + subject})
				}

			default:
				_ = out.writeJSON(errorMessage{Type: "error", Error: "unknown action: " + m.Action})
			}
		}
	}
}

func relayStatus(status, subject string) map[string]string {
	return map[string]string{"type": "status", "status": status, "subject": subject}
}
