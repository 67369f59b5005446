package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/fleetmap/internal/core/domain"
)

const insertPositionSQL = `
	INSERT INTO positions (time, entity_id, location, accuracy, speed, heading)
	VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5, $6, $7)
	ON CONFLICT (entity_id, time) DO NOTHING`

// PositionRepo implements ports.PositionRepository.
type PositionRepo struct {
	db *DB
}

func NewPositionRepo(db *DB) *PositionRepo {
	return &PositionRepo{db: db}
}

func (r *PositionRepo) Insert(ctx context.Context, u *domain.PositionUpdate) error {
	_, err := r.db.Pool.Exec(ctx, insertPositionSQL,
		u.Timestamp, u.EntityID, u.Lng, u.Lat, u.Accuracy, u.Speed, u.Heading)
	return err
}

// InsertBatch inserts many positions using pgx.Batch. Duplicate readings are skipped.
func (r *PositionRepo) InsertBatch(ctx context.Context, updates []domain.PositionUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(insertPositionSQL,
			u.Timestamp, u.EntityID, u.Lng, u.Lat, u.Accuracy, u.Speed, u.Heading)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range updates {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// Trail returns the positions of entityID in [from, to), oldest first.
func (r *PositionRepo) Trail(ctx context.Context, entityID string, from, to time.Time) ([]domain.TrailPoint, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT time,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lng,
		       speed, heading
		FROM positions
		WHERE entity_id = $1 AND time >= $2 AND time < $3
		ORDER BY time
	`, entityID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []domain.TrailPoint
	for rows.Next() {
		var tp domain.TrailPoint
		if err := rows.Scan(&tp.Time, &tp.Position.Lat, &tp.Position.Lng, &tp.Speed, &tp.Heading); err != nil {
			return nil, err
		}
		points = append(points, tp)
	}
	return points, rows.Err()
}

// EntitiesWithPositions returns the IDs of entities that reported in [from, to).
func (r *PositionRepo) EntitiesWithPositions(ctx context.Context, from, to time.Time) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT DISTINCT entity_id FROM positions
		WHERE time >= $1 AND time < $2
		ORDER BY entity_id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteBefore removes raw positions older than cutoff and returns how many were deleted.
func (r *PositionRepo) DeleteBefore(ctx context.Context, entityID string, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM positions WHERE entity_id = $1 AND time < $2`, entityID, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
