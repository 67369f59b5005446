package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/ports"
	"github.com/samirrijal/fleetmap/internal/core/viewport"
	"github.com/samirrijal/fleetmap/internal/pkg/metrics"
)

// ErrSessionNotFound is returned for unknown or closed session IDs.
var ErrSessionNotFound = errors.New("viewport session not found")

// PositionSourceFactory returns the live position source for one entity.
type PositionSourceFactory func(entityID string) ports.PositionSource

// Session is one open map surface with its own viewport controller.
type Session struct {
	ID         string
	OpenedAt   time.Time
	Controller *viewport.Controller

	ctx    context.Context
	cancel context.CancelFunc
}

// SessionService owns the viewport sessions of connected map surfaces.
type SessionService struct {
	cfg      viewport.Config
	entities ports.EntityRepository
	sources  PositionSourceFactory
	clock    clock.Clock

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionService creates a SessionService. sources may be nil, in which
// case follow requests fail with domain.ErrUnsupportedCapability.
func NewSessionService(cfg viewport.Config, entities ports.EntityRepository, sources PositionSourceFactory) *SessionService {
	return &SessionService{
		cfg:      cfg,
		entities: entities,
		sources:  sources,
		clock:    clock.New(),
		sessions: make(map[string]*Session),
	}
}

// WithClock replaces the clock handed to new controllers.
func (s *SessionService) WithClock(c clock.Clock) *SessionService {
	s.clock = c
	return s
}

// Open starts a session whose camera commands go to camera.
func (s *SessionService) Open(camera ports.CameraControl) *Session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:       id,
		OpenedAt: time.Now().UTC(),
		Controller: viewport.New(camera, s.cfg,
			viewport.WithClock(s.clock),
			viewport.WithLogger(slog.Default().With("session_id", id)),
		),
		ctx:    ctx,
		cancel: cancel,
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	metrics.ActiveSessions.Inc()
	return sess
}

// Get returns an open session.
func (s *SessionService) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Follow toggles follow mode on entityID. When it starts following it
// subscribes the controller to the entity's live positions; a missing source
// reverts to Idle and returns domain.ErrUnsupportedCapability.
// position may be nil, in which case the entity is loaded from the repository.
func (s *SessionService) Follow(ctx context.Context, sessionID, entityID string, position *domain.Point) (bool, error) {
	sess, err := s.Get(sessionID)
	if err != nil {
		return false, err
	}
	if entityID == "" {
		return false, fmt.Errorf("entity id is required: %w", domain.ErrInvalidArgument)
	}

	ent := domain.Entity{ID: entityID}
	if position != nil {
		ent.Position = *position
	} else {
		stored, err := s.entities.GetByID(ctx, entityID)
		if err != nil {
			return false, fmt.Errorf("load entity %s: %w", entityID, err)
		}
		ent = *stored
	}

	ctrl := sess.Controller
	following, err := ctrl.ToggleFollow(ctx, ent)
	if err != nil {
		if following {
			return s.revertFollow(ctx, ctrl, ent, err)
		}
		return false, err
	}
	if !following {
		ctrl.Untrack()
		return false, nil
	}

	if s.sources == nil {
		return s.revertFollow(ctx, ctrl, ent, domain.ErrUnsupportedCapability)
	}
	if err := ctrl.Track(sess.ctx, s.sources(entityID)); err != nil {
		return s.revertFollow(ctx, ctrl, ent, err)
	}
	return true, nil
}

func (s *SessionService) revertFollow(ctx context.Context, ctrl *viewport.Controller, ent domain.Entity, cause error) (bool, error) {
	if _, err := ctrl.ToggleFollow(ctx, ent); err != nil {
		slog.Warn("revert follow failed", "entity_id", ent.ID, "error", err)
	}
	return false, fmt.Errorf("follow %s: %w", ent.ID, cause)
}

// Close tears down a session and its controller. Unknown IDs are ignored.
func (s *SessionService) Close(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	sess.cancel()
	sess.Controller.Close()
	metrics.ActiveSessions.Dec()
}

// CloseAll tears down every session, for shutdown.
func (s *SessionService) CloseAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.Close(id)
	}
}

// Active returns the number of open sessions.
func (s *SessionService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
