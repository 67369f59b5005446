package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/pkg/geospatial"
)

// TrailRepo implements ports.TrailRepository. Paths are stored both as a
// PostGIS LineString and as the exact point list.
type TrailRepo struct {
	db *DB
}

func NewTrailRepo(db *DB) *TrailRepo {
	return &TrailRepo{db: db}
}

// SaveSimplified stores or replaces the compacted trail of one window.
func (r *TrailRepo) SaveSimplified(ctx context.Context, t *domain.Trail) error {
	points, err := json.Marshal(t.Points)
	if err != nil {
		return fmt.Errorf("encode points: %w", err)
	}
	path, err := lineStringGeoJSON(t.Points)
	if err != nil {
		return err
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO simplified_trails (entity_id, from_time, to_time, tolerance, points, path, original_count, length_m)
		VALUES ($1, $2, $3, $4, $5, ST_GeomFromGeoJSON($6::text)::geography, $7, $8)
		ON CONFLICT (entity_id, from_time, to_time) DO UPDATE
		SET tolerance = EXCLUDED.tolerance, points = EXCLUDED.points, path = EXCLUDED.path,
		    original_count = EXCLUDED.original_count, length_m = EXCLUDED.length_m,
		    created_at = now()
	`, t.EntityID, t.From, t.To, t.Tolerance, points, path, t.OriginalCount, t.LengthMeters)
	return err
}

// GetSimplified returns the compacted trail stored for exactly [from, to),
// or domain.ErrNotFound.
func (r *TrailRepo) GetSimplified(ctx context.Context, entityID string, from, to time.Time) (*domain.Trail, error) {
	t := domain.Trail{EntityID: entityID}
	var points []byte
	var bounds struct{ south, west, north, east *float64 }
	err := r.db.Pool.QueryRow(ctx, `
		SELECT from_time, to_time, tolerance, points, original_count, length_m,
		       ST_YMin(path::geometry), ST_XMin(path::geometry),
		       ST_YMax(path::geometry), ST_XMax(path::geometry)
		FROM simplified_trails
		WHERE entity_id = $1 AND from_time = $2 AND to_time = $3
	`, entityID, from, to).Scan(
		&t.From, &t.To, &t.Tolerance, &points, &t.OriginalCount, &t.LengthMeters,
		&bounds.south, &bounds.west, &bounds.north, &bounds.east,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(points, &t.Points); err != nil {
		return nil, fmt.Errorf("decode points: %w", err)
	}
	if bounds.south != nil && bounds.west != nil && bounds.north != nil && bounds.east != nil {
		t.Bounds = &domain.Bounds{North: *bounds.north, South: *bounds.south, East: *bounds.east, West: *bounds.west}
	}
	return &t, nil
}

// lineStringGeoJSON encodes points as a GeoJSON LineString, or returns nil
// when there are fewer than two points.
func lineStringGeoJSON(points []domain.Point) (*string, error) {
	if len(points) < 2 {
		return nil, nil
	}
	data, err := json.Marshal(geojson.NewGeometry(geospatial.LineString(points)))
	if err != nil {
		return nil, fmt.Errorf("encode path: %w", err)
	}
	s := string(data)
	return &s, nil
}
