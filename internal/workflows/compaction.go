package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// maxParallelCompactions bounds how many CompactTrail activities run at once.
const maxParallelCompactions = 20

// CompactionInput is the input for the trail compaction workflow.
type CompactionInput struct {
	// Day is any instant of the UTC day to compact. Zero means yesterday.
	Day time.Time
	// Tolerance is the Douglas-Peucker tolerance in degrees; 0 uses the server default.
	Tolerance float64
	// RetainDays prunes raw positions older than this many days before Day.
	// Zero keeps all raw positions.
	RetainDays int
}

// CompactionResult summarises one workflow run.
type CompactionResult struct {
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Entities  int       `json:"entities"`
	Compacted int       `json:"compacted"`
	Skipped   int       `json:"skipped"`
	Failed    []string  `json:"failed,omitempty"`
	PointsIn  int       `json:"points_in"`
	PointsOut int       `json:"points_out"`
	Pruned    int64     `json:"pruned"`
}

// dayWindow returns the [start, end) UTC day containing t.
func dayWindow(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// TrailCompactionWorkflow simplifies one day of raw positions for every entity
// that reported during it and stores the results as simplified trails.
// A failing entity is recorded and skipped; it never fails the whole run.
func TrailCompactionWorkflow(ctx workflow.Context, input CompactionInput) (*CompactionResult, error) {
	logger := workflow.GetLogger(ctx)

	day := input.Day
	if day.IsZero() {
		day = workflow.Now(ctx).Add(-24 * time.Hour)
	}
	from, to := dayWindow(day)
	res := &CompactionResult{From: from, To: to}
	logger.Info("Starting trail compaction", "from", from, "to", to)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	})

	var ids []string
	if err := workflow.ExecuteActivity(ctx, "ListEntities", ListRequest{From: from, To: to}).Get(ctx, &ids); err != nil {
		return nil, err
	}
	res.Entities = len(ids)

	var compacted []string
	for start := 0; start < len(ids); start += maxParallelCompactions {
		end := min(start+maxParallelCompactions, len(ids))
		futures := make([]workflow.Future, 0, end-start)
		for _, id := range ids[start:end] {
			futures = append(futures, workflow.ExecuteActivity(ctx, "CompactTrail", CompactRequest{
				EntityID:  id,
				From:      from,
				To:        to,
				Tolerance: input.Tolerance,
			}))
		}
		for i, f := range futures {
			id := ids[start+i]
			var sum CompactSummary
			if err := f.Get(ctx, &sum); err != nil {
				logger.Warn("compaction failed", "entity", id, "error", err)
				res.Failed = append(res.Failed, id)
				continue
			}
			if sum.Skipped {
				res.Skipped++
				continue
			}
			res.Compacted++
			res.PointsIn += sum.PointsIn
			res.PointsOut += sum.PointsOut
			compacted = append(compacted, id)
		}
	}

	if input.RetainDays > 0 {
		cutoff := from.Add(-time.Duration(input.RetainDays) * 24 * time.Hour)
		for _, id := range compacted {
			var n int64
			err := workflow.ExecuteActivity(ctx, "PruneRaw", PruneRequest{EntityID: id, Before: cutoff}).Get(ctx, &n)
			if err != nil {
				logger.Warn("prune failed", "entity", id, "error", err)
				continue
			}
			res.Pruned += n
		}
	}

	logger.Info("Trail compaction finished",
		"entities", res.Entities, "compacted", res.Compacted, "failed", len(res.Failed))
	return res, nil
}
