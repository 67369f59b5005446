package ports

import (
	"context"
	"time"

	"github.com/samirrijal/fleetmap/internal/core/domain"
)

// EntityRepository persists map entities and their latest position.
type EntityRepository interface {
	Upsert(ctx context.Context, entity *domain.Entity) error
	UpsertPosition(ctx context.Context, update *domain.PositionUpdate) error
	GetByID(ctx context.Context, id string) (*domain.Entity, error)
	List(ctx context.Context, filter domain.EntityFilter) ([]domain.Entity, error)
}

// PositionRepository persists the position history of entities.
type PositionRepository interface {
	Insert(ctx context.Context, update *domain.PositionUpdate) error
	InsertBatch(ctx context.Context, updates []domain.PositionUpdate) error
	Trail(ctx context.Context, entityID string, from, to time.Time) ([]domain.TrailPoint, error)
}

// TrailRepository persists compacted (simplified) trails.
type TrailRepository interface {
	SaveSimplified(ctx context.Context, trail *domain.Trail) error
	GetSimplified(ctx context.Context, entityID string, from, to time.Time) (*domain.Trail, error)
}
