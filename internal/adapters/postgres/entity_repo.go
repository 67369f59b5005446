package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/samirrijal/fleetmap/internal/core/domain"
)

// EntityRepo implements ports.EntityRepository with pgx and PostGIS.
type EntityRepo struct {
	db *DB
}

// NewEntityRepo creates a new EntityRepo.
func NewEntityRepo(db *DB) *EntityRepo {
	return &EntityRepo{db: db}
}

// Upsert inserts or replaces an entity.
func (r *EntityRepo) Upsert(ctx context.Context, e *domain.Entity) error {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO entities (id, kind, location, metadata, updated_at)
		VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET kind = EXCLUDED.kind, location = EXCLUDED.location,
		    metadata = EXCLUDED.metadata, updated_at = EXCLUDED.updated_at
	`, e.ID, e.Kind, e.Position.Lng, e.Position.Lat, metadata, e.UpdatedAt)
	return err
}

// UpsertPosition moves an entity to the reported position, creating it if needed.
// Older reports never overwrite a newer position.
func (r *EntityRepo) UpsertPosition(ctx context.Context, u *domain.PositionUpdate) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO entities (id, kind, location, metadata, updated_at)
		VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography,
		        jsonb_build_object('speed', $5::float8, 'heading', $6::float8), $7)
		ON CONFLICT (id) DO UPDATE
		SET kind = COALESCE(NULLIF(EXCLUDED.kind, ''), entities.kind),
		    location = EXCLUDED.location,
		    metadata = entities.metadata || EXCLUDED.metadata,
		    updated_at = EXCLUDED.updated_at
		WHERE entities.updated_at <= EXCLUDED.updated_at
	`, u.EntityID, u.Kind, u.Lng, u.Lat, u.Speed, u.Heading, u.Timestamp)
	return err
}

// GetByID returns an entity or domain.ErrNotFound.
func (r *EntityRepo) GetByID(ctx context.Context, id string) (*domain.Entity, error) {
	var e domain.Entity
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, kind,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lng,
		       COALESCE(metadata, '{}'), updated_at
		FROM entities WHERE id = $1
	`, id).Scan(&e.ID, &e.Kind, &e.Position.Lat, &e.Position.Lng, &e.Metadata, &e.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// List returns entities matching the filter, most recently updated first.
func (r *EntityRepo) List(ctx context.Context, f domain.EntityFilter) ([]domain.Entity, error) {
	query, args := buildListQuery(f)
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		var e domain.Entity
		if err := rows.Scan(&e.ID, &e.Kind, &e.Position.Lat, &e.Position.Lng, &e.Metadata, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func buildListQuery(f domain.EntityFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		args = append(args, f.Kind)
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.Bounds != nil {
		b := f.Bounds
		args = append(args, b.West, b.South, b.East, b.North)
		n := len(args)
		where = append(where, fmt.Sprintf(
			"ST_Intersects(location, ST_MakeEnvelope($%d, $%d, $%d, $%d, 4326)::geography)",
			n-3, n-2, n-1, n))
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, kind,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lng,
		       COALESCE(metadata, '{}'), updated_at
		FROM entities`)
	if len(where) > 0 {
		sb.WriteString("\n\t\tWHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString("\n\t\tORDER BY updated_at DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&sb, "\n\t\tLIMIT $%d", len(args))
	}
	return sb.String(), args
}
