package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/fleetmap/internal/core/domain"
)

// Subjects.
const (
	SubjectPositionPrefix = "fleet.position."
	SubjectReportPrefix   = "fleet.report."
	SubjectSnapshot       = "fleet.entities.snapshot"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			// raw reports waiting for validation and storage
			Name:      "FLEET_REPORTS",
			Subjects:  []string{SubjectReportPrefix + ">"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			// accepted positions, replayable for late subscribers
			Name:      "FLEET_POSITIONS",
			Subjects:  []string{SubjectPositionPrefix + ">"},
			Retention: nats.LimitsPolicy,
			MaxAge:    15 * time.Minute,
			Storage:   nats.MemoryStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishPosition publishes an accepted position on fleet.position.<entity>.
func (p *Publisher) PublishPosition(ctx context.Context, u *domain.PositionUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(PositionSubject(u.EntityID), data, nats.Context(ctx))
	return err
}

// SubmitPosition queues a raw report on fleet.report.<entity> for the ingestor.
func (p *Publisher) SubmitPosition(ctx context.Context, u *domain.PositionUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectReportPrefix+subjectToken(u.EntityID), data, nats.Context(ctx))
	return err
}

func (p *Publisher) PublishBroadcast(ctx context.Context, data []byte) error {
	return p.conn.Publish(SubjectSnapshot, data)
}

// Conn returns the underlying connection.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

// PositionSubject returns the live subject of one entity.
func PositionSubject(entityID string) string {
	return SubjectPositionPrefix + subjectToken(entityID)
}

// subjectToken makes an entity ID safe to use as a single subject token.
func subjectToken(id string) string {
	if id == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, id)
}
