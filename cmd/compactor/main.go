package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/fleetmap/internal/adapters/postgres"
	"github.com/samirrijal/fleetmap/internal/pkg/config"
	"github.com/samirrijal/fleetmap/internal/pkg/logging"
	"github.com/samirrijal/fleetmap/internal/workflows"
)

const scheduleID = "fleetmap-trail-compaction"

func main() {
	once := flag.String("once", "", "start a compaction of one UTC day (YYYY-MM-DD) on a running worker and wait for it")
	retainDays := flag.Int("retain-days", 0, "prune raw positions older than this many days after compaction (0 keeps them)")
	cron := flag.String("cron", "15 0 * * *", "schedule for the nightly compaction of the previous day")
	flag.Parse()

	cfg, err := config.Load("fleetmap-compactor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    slog.Default(),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	input := workflows.CompactionInput{Tolerance: cfg.Map.PathTolerance, RetainDays: *retainDays}

	if *once != "" {
		day, err := time.Parse(time.DateOnly, *once)
		if err != nil {
			log.Fatalf("-once: %v", err)
		}
		input.Day = day
		runOnce(ctx, c, cfg.Temporal.TaskQueue, input)
		return
	}

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.TrailCompactionWorkflow)
	w.RegisterActivity(&workflows.TrailActivities{
		Positions:        postgres.NewPositionRepo(db),
		Trails:           postgres.NewTrailRepo(db),
		DefaultTolerance: cfg.Map.PathTolerance,
		Logger:           slog.Default(),
	})

	ensureSchedule(ctx, c, cfg.Temporal.TaskQueue, *cron, input)

	slog.Info("compactor worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

// ensureSchedule creates the nightly schedule; an existing one is left as is.
func ensureSchedule(ctx context.Context, c client.Client, queue, cron string, input workflows.CompactionInput) {
	_, err := c.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: scheduleID,
		Spec: client.ScheduleSpec{
			CronExpressions: []string{cron},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        scheduleID + "-run",
			Workflow:  workflows.TrailCompactionWorkflow,
			Args:      []interface{}{input},
			TaskQueue: queue,
		},
	})
	if err != nil {
		slog.Warn("compaction schedule not created", "schedule", scheduleID, "error", err)
		return
	}
	slog.Info("compaction schedule created", "schedule", scheduleID, "cron", cron)
}

// runOnce starts one workflow run and waits for its result.
func runOnce(ctx context.Context, c client.Client, queue string, input workflows.CompactionInput) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        scheduleID + "-" + input.Day.Format(time.DateOnly),
		TaskQueue: queue,
	}, workflows.TrailCompactionWorkflow, input)
	if err != nil {
		log.Fatalf("start workflow: %v", err)
	}

	var res workflows.CompactionResult
	if err := run.Get(ctx, &res); err != nil {
		log.Fatalf("workflow %s: %v", run.GetID(), err)
	}
	slog.Info("compaction finished",
		"day", input.Day.Format(time.DateOnly),
		"entities", res.Entities,
		"compacted", res.Compacted,
		"skipped", res.Skipped,
		"failed", len(res.Failed),
		"points_in", res.PointsIn,
		"points_out", res.PointsOut,
		"pruned", res.Pruned,
	)
}
