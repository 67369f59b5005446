package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/fleetmap/internal/core/clustering"
	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/ports"
	"github.com/samirrijal/fleetmap/internal/pkg/geospatial"
	"github.com/samirrijal/fleetmap/internal/pkg/metrics"
	"github.com/samirrijal/fleetmap/internal/pkg/telemetry"
)

const (
	clustersCacheTTL = 15 // seconds
	maxZoom          = 22
	maxEntityLimit   = 5000
)

// ClusterQuery selects the entities to cluster and the camera they are viewed with.
type ClusterQuery struct {
	Zoom   int
	Center *domain.Point  // reference point; defaults to the view center
	View   *domain.Bounds // only entities inside are clustered
	Kind   string
}

func (q ClusterQuery) cacheKey() string {
	key := fmt.Sprintf("fleetmap:clusters:%d:%s", q.Zoom, q.Kind)
	if q.View != nil {
		key += fmt.Sprintf(":%.4f:%.4f:%.4f:%.4f", q.View.North, q.View.South, q.View.East, q.View.West)
	}
	if q.Center != nil {
		key += fmt.Sprintf(":c%.4f:%.4f", q.Center.Lat, q.Center.Lng)
	}
	return key
}

// MapService serves clustered markers and entity listings.
type MapService struct {
	entities ports.EntityRepository
	cache    ports.CacheService
	engine   *clustering.Engine
	tracer   trace.Tracer
}

// NewMapService creates a new MapService. cache may be nil.
func NewMapService(entities ports.EntityRepository, cache ports.CacheService, engine *clustering.Engine) *MapService {
	return &MapService{
		entities: entities,
		cache:    cache,
		engine:   engine,
		tracer:   telemetry.Tracer(),
	}
}

// Engine returns the clustering engine the service uses.
func (s *MapService) Engine() *clustering.Engine {
	return s.engine
}

// Clusters loads entities and clusters them for the query's zoom.
func (s *MapService) Clusters(ctx context.Context, q ClusterQuery) (*clustering.Result, error) {
	if q.Zoom < 0 || q.Zoom > maxZoom {
		return nil, fmt.Errorf("zoom %d out of range 0-%d: %w", q.Zoom, maxZoom, domain.ErrInvalidArgument)
	}
	if q.View != nil && !q.View.Valid() {
		return nil, domain.ErrInvalidBounds
	}
	if q.Center != nil && !q.Center.Valid() {
		return nil, domain.ErrInvalidCoordinate
	}

	ctx, span := s.tracer.Start(ctx, telemetry.SpanClusters,
		trace.WithAttributes(telemetry.AttrZoom.Int(q.Zoom)))
	defer span.End()

	cacheKey := q.cacheKey()
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var res clustering.Result
			if err := json.Unmarshal(data, &res); err == nil {
				metrics.ClusterPasses.WithLabelValues("cache").Inc()
				span.SetAttributes(telemetry.AttrCacheHit.Bool(true))
				return &res, nil
			}
		}
	}

	entities, err := s.entities.List(ctx, domain.EntityFilter{Kind: q.Kind, Bounds: q.View, Limit: maxEntityLimit})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list entities: %w", err)
	}

	start := time.Now()
	var res clustering.Result
	switch {
	case q.View != nil && q.Center == nil:
		res = s.engine.ClusterInView(entities, *q.View, q.Zoom)
	case q.Center != nil:
		res = s.engine.Cluster(entities, *q.Center, q.Zoom)
	default:
		res = s.engine.Cluster(entities, extentCenter(entities), q.Zoom)
	}
	metrics.ClusterDuration.Observe(time.Since(start).Seconds())
	metrics.ClusterPasses.WithLabelValues("computed").Inc()
	if len(res.Rejected) > 0 {
		metrics.EntitiesRejected.WithLabelValues("cluster").Add(float64(len(res.Rejected)))
	}
	span.SetAttributes(
		telemetry.AttrCacheHit.Bool(false),
		telemetry.AttrEntities.Int(len(entities)),
		telemetry.AttrMarkers.Int(len(res.Markers)),
	)

	if s.cache != nil {
		if data, err := json.Marshal(res); err == nil {
			if err := s.cache.Set(ctx, cacheKey, data, clustersCacheTTL); err != nil {
				slog.Debug("cluster cache write failed", "key", cacheKey, "error", err)
			}
		}
	}

	return &res, nil
}

// Entities lists entities of kind inside view. Both filters are optional.
func (s *MapService) Entities(ctx context.Context, kind string, view *domain.Bounds, limit int) ([]domain.Entity, error) {
	if view != nil && !view.Valid() {
		return nil, domain.ErrInvalidBounds
	}
	if limit <= 0 || limit > maxEntityLimit {
		limit = 500
	}

	ctx, span := s.tracer.Start(ctx, telemetry.SpanEntities)
	defer span.End()

	return s.entities.List(ctx, domain.EntityFilter{Kind: kind, Bounds: view, Limit: limit})
}

// Entity returns a single entity.
func (s *MapService) Entity(ctx context.Context, id string) (*domain.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("entity id is required: %w", domain.ErrInvalidArgument)
	}
	return s.entities.GetByID(ctx, id)
}

// extentCenter returns the center of the entities' bounding box, or the zero
// point when none is valid.
func extentCenter(entities []domain.Entity) domain.Point {
	points := make([]domain.Point, 0, len(entities))
	for _, e := range entities {
		points = append(points, e.Position)
	}
	b, ok := geospatial.BoundsOf(points)
	if !ok {
		return domain.Point{}
	}
	return b.Center()
}
