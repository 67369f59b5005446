package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/ports"
	"github.com/samirrijal/fleetmap/internal/pkg/metrics"
	"github.com/samirrijal/fleetmap/internal/pkg/telemetry"
)

// maxClockSkew bounds how far in the future a reported timestamp may be.
const maxClockSkew = 5 * time.Minute

// IngestService validates incoming position reports, stores them and fans
// them out to live subscribers.
type IngestService struct {
	entities  ports.EntityRepository
	positions ports.PositionRepository
	publisher ports.EventPublisher
	now       func() time.Time
	tracer    trace.Tracer
}

// NewIngestService creates a new IngestService. publisher may be nil.
func NewIngestService(entities ports.EntityRepository, positions ports.PositionRepository, publisher ports.EventPublisher) *IngestService {
	return &IngestService{
		entities:  entities,
		positions: positions,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
		tracer:    telemetry.Tracer(),
	}
}

// Validate normalises u in place and rejects unusable reports.
// A missing timestamp is set to now.
func (s *IngestService) Validate(u *domain.PositionUpdate) error {
	if u.EntityID == "" {
		return fmt.Errorf("entity id is required: %w", domain.ErrInvalidArgument)
	}
	if !u.Point().Valid() {
		return fmt.Errorf("entity %s at (%v, %v): %w", u.EntityID, u.Lat, u.Lng, domain.ErrInvalidCoordinate)
	}
	now := s.now()
	if u.Timestamp.IsZero() {
		u.Timestamp = now
	}
	if u.Timestamp.After(now.Add(maxClockSkew)) {
		return fmt.Errorf("entity %s timestamp %s is in the future: %w", u.EntityID, u.Timestamp.Format(time.RFC3339), domain.ErrInvalidArgument)
	}
	if u.Speed < 0 {
		u.Speed = 0
	}
	return nil
}

// Process stores one report in the entity's history and as its latest position,
// then publishes it. Publishing is best-effort.
func (s *IngestService) Process(ctx context.Context, u *domain.PositionUpdate, source string) error {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanIngest)
	defer span.End()

	if err := s.Validate(u); err != nil {
		metrics.EntitiesRejected.WithLabelValues("ingest").Inc()
		return err
	}
	span.SetAttributes(telemetry.AttrEntityID.String(u.EntityID))

	if err := s.positions.Insert(ctx, u); err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert position: %w", err)
	}
	if err := s.entities.UpsertPosition(ctx, u); err != nil {
		span.RecordError(err)
		return fmt.Errorf("upsert entity position: %w", err)
	}
	metrics.PositionsIngested.WithLabelValues(source).Inc()

	s.publish(ctx, u)
	return nil
}

// ProcessBatch validates every report, stores the valid ones in one batch and
// returns how many were accepted plus a rejection per invalid report.
func (s *IngestService) ProcessBatch(ctx context.Context, updates []domain.PositionUpdate, source string) (int, []domain.Rejection, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanIngest,
		trace.WithAttributes(telemetry.AttrEntities.Int(len(updates))))
	defer span.End()

	valid := make([]domain.PositionUpdate, 0, len(updates))
	var rejected []domain.Rejection
	for i := range updates {
		u := updates[i]
		if err := s.Validate(&u); err != nil {
			rejected = append(rejected, domain.Rejection{EntityID: u.EntityID, Index: i, Reason: err.Error()})
			continue
		}
		valid = append(valid, u)
	}
	if len(rejected) > 0 {
		metrics.EntitiesRejected.WithLabelValues("ingest").Add(float64(len(rejected)))
	}
	if len(valid) == 0 {
		return 0, rejected, nil
	}

	// History goes first so a failed write never leaves an entity ahead of its trail.
	if err := s.positions.InsertBatch(ctx, valid); err != nil {
		span.RecordError(err)
		return 0, rejected, fmt.Errorf("insert positions: %w", err)
	}
	for i := range valid {
		if err := s.entities.UpsertPosition(ctx, &valid[i]); err != nil {
			span.RecordError(err)
			return 0, rejected, fmt.Errorf("upsert entity position %s: %w", valid[i].EntityID, err)
		}
	}
	metrics.PositionsIngested.WithLabelValues(source).Add(float64(len(valid)))

	for i := range valid {
		s.publish(ctx, &valid[i])
	}
	return len(valid), rejected, nil
}

func (s *IngestService) publish(ctx context.Context, u *domain.PositionUpdate) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPosition(ctx, u); err != nil {
		slog.Warn("publish position failed", "entity_id", u.EntityID, "error", err)
	}
}
