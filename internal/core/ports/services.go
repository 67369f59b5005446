package ports

import (
	"context"
	"errors"

	"github.com/samirrijal/fleetmap/internal/core/domain"
)

// ErrCacheMiss is returned by CacheService.Get for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	// PublishPosition fans an accepted position out to live subscribers.
	PublishPosition(ctx context.Context, update *domain.PositionUpdate) error
	// SubmitPosition queues a raw report for ingestion.
	SubmitPosition(ctx context.Context, update *domain.PositionUpdate) error
	PublishBroadcast(ctx context.Context, data []byte) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribePositionReports(ctx context.Context, handler func(ctx context.Context, update *domain.PositionUpdate) error) error
}

// PositionSource streams live position updates. The channel is closed when ctx ends.
// Watch returns domain.ErrUnsupportedCapability when the source cannot be used.
type PositionSource interface {
	Watch(ctx context.Context) (<-chan domain.PositionUpdate, error)
}

// CameraControl is the command boundary to a rendering surface.
type CameraControl interface {
	FlyTo(ctx context.Context, center domain.Point, zoom int) error
	SetView(ctx context.Context, center domain.Point, zoom int) error
	FitBounds(ctx context.Context, bounds domain.Bounds, opts domain.FitOptions) error
	SetZoom(ctx context.Context, zoom int, animate bool) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
