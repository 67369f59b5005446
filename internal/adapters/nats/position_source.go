package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/ports"
)

// PositionSource streams live positions of one entity from fleet.position.<entity>.
type PositionSource struct {
	conn     *nats.Conn
	entityID string
	buffer   int
}

// NewPositionSource creates a source. conn may be nil, in which case Watch
// reports domain.ErrUnsupportedCapability.
func NewPositionSource(conn *nats.Conn, entityID string) *PositionSource {
	return &PositionSource{conn: conn, entityID: entityID, buffer: 16}
}

// SourceFactory returns a constructor bound to conn, for session services.
func SourceFactory(conn *nats.Conn) func(entityID string) ports.PositionSource {
	return func(entityID string) ports.PositionSource {
		return NewPositionSource(conn, entityID)
	}
}

// Watch subscribes until ctx ends. Messages that do not decode, or that carry
// another entity's ID, are skipped.
func (s *PositionSource) Watch(ctx context.Context) (<-chan domain.PositionUpdate, error) {
	if s.conn == nil || !s.conn.IsConnected() {
		return nil, fmt.Errorf("nats not connected: %w", domain.ErrUnsupportedCapability)
	}

	msgs := make(chan *nats.Msg, s.buffer)
	sub, err := s.conn.ChanSubscribe(PositionSubject(s.entityID), msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", s.entityID, err)
	}

	out := make(chan domain.PositionUpdate, s.buffer)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				u, ok := decodePosition(msg.Data, s.entityID)
				if !ok {
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func decodePosition(data []byte, entityID string) (domain.PositionUpdate, bool) {
	var u domain.PositionUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		slog.Debug("skipping undecodable position", "entity_id", entityID, "error", err)
		return u, false
	}
	if u.EntityID != entityID {
		return u, false
	}
	return u, true
}
