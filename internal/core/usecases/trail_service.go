package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/facebookgo/clock"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/ports"
	"github.com/samirrijal/fleetmap/internal/pkg/geospatial"
	"github.com/samirrijal/fleetmap/internal/pkg/metrics"
	"github.com/samirrijal/fleetmap/internal/pkg/telemetry"
)

const (
	// DefaultTolerance is the simplification tolerance in degrees (~11 m).
	DefaultTolerance = 0.0001

	trailCacheTTL  = 60 * time.Second
	maxTrailWindow = 7 * 24 * time.Hour
	maxTolerance   = 1.0
)

// TrailService builds simplified travelled paths from position history.
type TrailService struct {
	positions ports.PositionRepository
	trails    ports.TrailRepository
	cache     ports.CacheService
	tolerance float64
	tracer    trace.Tracer
	clock     clock.Clock
}

// NewTrailService creates a new TrailService. trails and cache may be nil.
// A tolerance <= 0 uses DefaultTolerance.
func NewTrailService(positions ports.PositionRepository, trails ports.TrailRepository, cache ports.CacheService, tolerance float64) *TrailService {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &TrailService{
		positions: positions,
		trails:    trails,
		cache:     cache,
		tolerance: tolerance,
		tracer:    telemetry.Tracer(),
		clock:     clock.New(),
	}
}

// WithClock replaces the clock that resolves open-ended windows.
func (s *TrailService) WithClock(c clock.Clock) *TrailService {
	s.clock = c
	return s
}

// Tolerance returns the default tolerance used when callers pass zero.
func (s *TrailService) Tolerance() float64 {
	return s.tolerance
}

// Trail returns the simplified path of entityID between from and to.
// A zero to means now, rounded up to the cache TTL so repeated open-ended
// requests share a cache entry; a zero from means 24 hours before to.
// A compacted trail with the same tolerance is preferred over raw history.
func (s *TrailService) Trail(ctx context.Context, entityID string, from, to time.Time, tolerance float64) (*domain.Trail, error) {
	if entityID == "" {
		return nil, fmt.Errorf("entity id is required: %w", domain.ErrInvalidArgument)
	}
	if to.IsZero() {
		to = s.clock.Now().UTC().Truncate(trailCacheTTL).Add(trailCacheTTL)
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("from must be before to: %w", domain.ErrInvalidArgument)
	}
	if to.Sub(from) > maxTrailWindow {
		return nil, fmt.Errorf("trail window exceeds %s: %w", maxTrailWindow, domain.ErrInvalidArgument)
	}
	tolerance, err := s.resolveTolerance(tolerance)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, telemetry.SpanTrail,
		trace.WithAttributes(telemetry.AttrEntityID.String(entityID)))
	defer span.End()

	cacheKey := fmt.Sprintf("fleetmap:trail:%s:%d:%d:%g", entityID, from.Unix(), to.Unix(), tolerance)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var trail domain.Trail
			if err := json.Unmarshal(data, &trail); err == nil {
				span.SetAttributes(telemetry.AttrCacheHit.Bool(true))
				return &trail, nil
			}
		}
	}

	if s.trails != nil {
		stored, err := s.trails.GetSimplified(ctx, entityID, from, to)
		switch {
		case err == nil && stored != nil && stored.Tolerance == tolerance:
			s.store(ctx, cacheKey, stored)
			return stored, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			slog.Warn("simplified trail lookup failed", "entity_id", entityID, "error", err)
		}
	}

	history, err := s.positions.Trail(ctx, entityID, from, to)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load trail: %w", err)
	}

	trail := BuildTrail(entityID, from, to, history, tolerance)
	span.SetAttributes(
		telemetry.AttrCacheHit.Bool(false),
		telemetry.AttrPointsIn.Int(trail.OriginalCount),
		telemetry.AttrPointsOut.Int(len(trail.Points)),
	)
	s.store(ctx, cacheKey, trail)
	return trail, nil
}

// Simplify runs Douglas–Peucker over an ad-hoc path. Invalid points are
// dropped and reported with their input index.
func (s *TrailService) Simplify(ctx context.Context, points []domain.Point, tolerance float64) ([]domain.Point, []domain.Rejection, error) {
	tolerance, err := s.resolveTolerance(tolerance)
	if err != nil {
		return nil, nil, err
	}

	_, span := s.tracer.Start(ctx, telemetry.SpanSimplify,
		trace.WithAttributes(telemetry.AttrPointsIn.Int(len(points))))
	defer span.End()

	out, dropped := geospatial.SimplifyValid(points, tolerance)
	rejected := make([]domain.Rejection, 0, len(dropped))
	for _, idx := range dropped {
		rejected = append(rejected, domain.Rejection{Index: idx, Reason: domain.ErrInvalidCoordinate.Error()})
	}
	recordSimplify(len(points), len(out), len(dropped))
	span.SetAttributes(telemetry.AttrPointsOut.Int(len(out)))
	return out, rejected, nil
}

// BuildTrail simplifies history into a Trail. It is shared with the
// compaction workflow so stored and on-demand trails agree.
func BuildTrail(entityID string, from, to time.Time, history []domain.TrailPoint, tolerance float64) *domain.Trail {
	raw := make([]domain.Point, len(history))
	for i, tp := range history {
		raw[i] = tp.Position
	}
	points, dropped := geospatial.SimplifyValid(raw, tolerance)

	trail := &domain.Trail{
		EntityID:      entityID,
		From:          from,
		To:            to,
		Tolerance:     tolerance,
		Points:        points,
		OriginalCount: len(history),
		LengthMeters:  geospatial.PathLength(points),
	}
	if b, ok := geospatial.BoundsOf(points); ok {
		trail.Bounds = &b
	}
	for _, idx := range dropped {
		trail.Rejected = append(trail.Rejected, domain.Rejection{
			EntityID: entityID,
			Index:    idx,
			Reason:   domain.ErrInvalidCoordinate.Error(),
		})
	}
	recordSimplify(len(raw), len(points), len(dropped))
	return trail
}

func recordSimplify(in, out, rejected int) {
	metrics.PathPointsIn.Add(float64(in))
	metrics.PathPointsOut.Add(float64(out))
	if rejected > 0 {
		metrics.EntitiesRejected.WithLabelValues("simplify").Add(float64(rejected))
	}
}

func (s *TrailService) resolveTolerance(tolerance float64) (float64, error) {
	switch {
	case tolerance == 0:
		return s.tolerance, nil
	case tolerance < 0 || tolerance > maxTolerance:
		return 0, fmt.Errorf("tolerance %g out of range (0, %g]: %w", tolerance, maxTolerance, domain.ErrInvalidArgument)
	}
	return tolerance, nil
}

func (s *TrailService) store(ctx context.Context, key string, trail *domain.Trail) {
	if s.cache == nil {
		return
	}
	if data, err := json.Marshal(trail); err == nil {
		_ = s.cache.Set(ctx, key, data, int(trailCacheTTL.Seconds()))
	}
}
