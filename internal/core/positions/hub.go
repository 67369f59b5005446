package positions

import (
	"context"
	"fmt"
	"sync"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/ports"
)

// Hub keeps one Feed per entity. It stands in for the broker when the API
// runs as a single process: accepted positions go straight to the sessions
// following that entity.
type Hub struct {
	buffer int

	mu     sync.Mutex
	feeds  map[string]*Feed
	closed bool
}

// NewHub creates a Hub whose feeds buffer up to buffer updates per watcher.
func NewHub(buffer int) *Hub {
	return &Hub{buffer: buffer, feeds: make(map[string]*Feed)}
}

// Source returns the live position source of one entity. The entity's feed
// exists only while someone watches it.
func (h *Hub) Source(entityID string) ports.PositionSource {
	return hubSource{hub: h, entityID: entityID}
}

type hubSource struct {
	hub      *Hub
	entityID string
}

func (s hubSource) Watch(ctx context.Context) (<-chan domain.PositionUpdate, error) {
	return s.hub.watch(ctx, s.entityID)
}

func (h *Hub) watch(ctx context.Context, entityID string) (<-chan domain.PositionUpdate, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("position hub closed: %w", domain.ErrUnsupportedCapability)
	}
	f, ok := h.feeds[entityID]
	if !ok {
		f = NewFeed(h.buffer)
		f.idle = func() { h.release(entityID, f) }
		h.feeds[entityID] = f
	}
	return f.Watch(ctx)
}

// release forgets f once its last watcher has gone.
func (h *Hub) release(entityID string, f *Feed) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.feeds[entityID] == f && f.Watchers() == 0 {
		delete(h.feeds, entityID)
	}
}

// PublishPosition delivers u to the entity's watchers, if any.
func (h *Hub) PublishPosition(ctx context.Context, u *domain.PositionUpdate) error {
	h.mu.Lock()
	f := h.feeds[u.EntityID]
	h.mu.Unlock()
	if f != nil {
		f.Publish(*u)
	}
	return nil
}

// SubmitPosition is not available without a broker.
func (h *Hub) SubmitPosition(ctx context.Context, u *domain.PositionUpdate) error {
	return fmt.Errorf("no report queue in single-process mode: %w", domain.ErrUnsupportedCapability)
}

// PublishBroadcast has no listeners in single-process mode.
func (h *Hub) PublishBroadcast(ctx context.Context, data []byte) error {
	return nil
}

// Watchers returns the total number of subscriptions across entities.
func (h *Hub) Watchers() int {
	h.mu.Lock()
	feeds := make([]*Feed, 0, len(h.feeds))
	for _, f := range h.feeds {
		feeds = append(feeds, f)
	}
	h.mu.Unlock()

	n := 0
	for _, f := range feeds {
		n += f.Watchers()
	}
	return n
}

// Entities returns how many entities currently have watchers.
func (h *Hub) Entities() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.feeds)
}

// Close ends every feed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, f := range h.feeds {
		f.Close()
		delete(h.feeds, id)
	}
}
