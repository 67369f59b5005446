package usecases_test

import (
	"context"
	"sync"
	"time"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/ports"
)

// --- Mock EntityRepository ---

type mockEntityRepo struct {
	upsertPositionFn func(ctx context.Context, u *domain.PositionUpdate) error
	getByIDFn        func(ctx context.Context, id string) (*domain.Entity, error)
	listFn           func(ctx context.Context, f domain.EntityFilter) ([]domain.Entity, error)
}

func (m *mockEntityRepo) Upsert(ctx context.Context, e *domain.Entity) error { return nil }

func (m *mockEntityRepo) UpsertPosition(ctx context.Context, u *domain.PositionUpdate) error {
	if m.upsertPositionFn != nil {
		return m.upsertPositionFn(ctx, u)
	}
	return nil
}

func (m *mockEntityRepo) GetByID(ctx context.Context, id string) (*domain.Entity, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockEntityRepo) List(ctx context.Context, f domain.EntityFilter) ([]domain.Entity, error) {
	if m.listFn != nil {
		return m.listFn(ctx, f)
	}
	return nil, nil
}

// --- Mock PositionRepository ---

type mockPositionRepo struct {
	insertFn      func(ctx context.Context, u *domain.PositionUpdate) error
	insertBatchFn func(ctx context.Context, us []domain.PositionUpdate) error
	trailFn       func(ctx context.Context, id string, from, to time.Time) ([]domain.TrailPoint, error)
}

func (m *mockPositionRepo) Insert(ctx context.Context, u *domain.PositionUpdate) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, u)
	}
	return nil
}

func (m *mockPositionRepo) InsertBatch(ctx context.Context, us []domain.PositionUpdate) error {
	if m.insertBatchFn != nil {
		return m.insertBatchFn(ctx, us)
	}
	return nil
}

func (m *mockPositionRepo) Trail(ctx context.Context, id string, from, to time.Time) ([]domain.TrailPoint, error) {
	if m.trailFn != nil {
		return m.trailFn(ctx, id, from, to)
	}
	return nil, nil
}

// --- Mock TrailRepository ---

type mockTrailRepo struct {
	getFn  func(ctx context.Context, id string, from, to time.Time) (*domain.Trail, error)
	saveFn func(ctx context.Context, t *domain.Trail) error
}

func (m *mockTrailRepo) SaveSimplified(ctx context.Context, t *domain.Trail) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, t)
	}
	return nil
}

func (m *mockTrailRepo) GetSimplified(ctx context.Context, id string, from, to time.Time) (*domain.Trail, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id, from, to)
	}
	return nil, domain.ErrNotFound
}

// --- In-memory CacheService ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte), ttls: make(map[string]int)}
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, ports.ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu        sync.Mutex
	published []domain.PositionUpdate
	err       error
}

func (m *mockPublisher) PublishPosition(ctx context.Context, u *domain.PositionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, *u)
	return nil
}

func (m *mockPublisher) SubmitPosition(ctx context.Context, u *domain.PositionUpdate) error {
	return nil
}

func (m *mockPublisher) PublishBroadcast(ctx context.Context, data []byte) error { return nil }

// --- No-op CameraControl ---

type nopCamera struct{}

func (nopCamera) FlyTo(context.Context, domain.Point, int) error                    { return nil }
func (nopCamera) SetView(context.Context, domain.Point, int) error                  { return nil }
func (nopCamera) FitBounds(context.Context, domain.Bounds, domain.FitOptions) error { return nil }
func (nopCamera) SetZoom(context.Context, int, bool) error                          { return nil }

type brokenCamera struct {
	nopCamera
	err error
}

func (c brokenCamera) FlyTo(context.Context, domain.Point, int) error   { return c.err }
func (c brokenCamera) SetView(context.Context, domain.Point, int) error { return c.err }
