package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/ports"
	"github.com/samirrijal/fleetmap/internal/core/usecases"
)

// PositionHistory is the raw position store the activities read and prune.
type PositionHistory interface {
	Trail(ctx context.Context, entityID string, from, to time.Time) ([]domain.TrailPoint, error)
	EntitiesWithPositions(ctx context.Context, from, to time.Time) ([]string, error)
	DeleteBefore(ctx context.Context, entityID string, cutoff time.Time) (int64, error)
}

// ListRequest selects entities with positions in [From, To).
type ListRequest struct {
	From time.Time
	To   time.Time
}

// CompactRequest asks for one entity's window to be simplified and stored.
type CompactRequest struct {
	EntityID  string
	From      time.Time
	To        time.Time
	Tolerance float64
}

// CompactSummary reports what CompactTrail did.
type CompactSummary struct {
	EntityID  string
	PointsIn  int
	PointsOut int
	Skipped   bool
}

// PruneRequest removes raw positions of an entity older than Before.
type PruneRequest struct {
	EntityID string
	Before   time.Time
}

// TrailActivities holds the activity implementations for the compaction workflow.
type TrailActivities struct {
	Positions PositionHistory
	Trails    ports.TrailRepository
	// DefaultTolerance applies when a request carries none.
	DefaultTolerance float64
	Logger           *slog.Logger
}

func (a *TrailActivities) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// ListEntities returns the IDs of entities that reported in the window.
func (a *TrailActivities) ListEntities(ctx context.Context, req ListRequest) ([]string, error) {
	ids, err := a.Positions.EntitiesWithPositions(ctx, req.From, req.To)
	if err != nil {
		return nil, fmt.Errorf("list entities with positions: %w", err)
	}
	return ids, nil
}

// CompactTrail simplifies an entity's raw positions for the window and stores the trail.
func (a *TrailActivities) CompactTrail(ctx context.Context, req CompactRequest) (*CompactSummary, error) {
	tolerance := req.Tolerance
	if tolerance <= 0 {
		tolerance = a.DefaultTolerance
	}
	if tolerance <= 0 {
		tolerance = usecases.DefaultTolerance
	}

	history, err := a.Positions.Trail(ctx, req.EntityID, req.From, req.To)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", req.EntityID, err)
	}
	sum := &CompactSummary{EntityID: req.EntityID, PointsIn: len(history)}
	if len(history) == 0 {
		sum.Skipped = true
		return sum, nil
	}

	trail := usecases.BuildTrail(req.EntityID, req.From, req.To, history, tolerance)
	if err := a.Trails.SaveSimplified(ctx, trail); err != nil {
		return nil, fmt.Errorf("save trail %s: %w", req.EntityID, err)
	}
	sum.PointsOut = len(trail.Points)

	a.logger().Info("trail compacted",
		"entity", req.EntityID, "points_in", sum.PointsIn, "points_out", sum.PointsOut,
		"length_m", trail.LengthMeters)
	return sum, nil
}

// PruneRaw deletes raw positions of an already compacted entity.
func (a *TrailActivities) PruneRaw(ctx context.Context, req PruneRequest) (int64, error) {
	n, err := a.Positions.DeleteBefore(ctx, req.EntityID, req.Before)
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", req.EntityID, err)
	}
	return n, nil
}
