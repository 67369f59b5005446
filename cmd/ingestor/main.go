package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/samirrijal/fleetmap/internal/adapters/gpximport"
	natsadapter "github.com/samirrijal/fleetmap/internal/adapters/nats"
	"github.com/samirrijal/fleetmap/internal/adapters/postgres"
	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/ports"
	"github.com/samirrijal/fleetmap/internal/core/usecases"
	"github.com/samirrijal/fleetmap/internal/pkg/config"
	"github.com/samirrijal/fleetmap/internal/pkg/geospatial"
	"github.com/samirrijal/fleetmap/internal/pkg/logging"
)

const batchSize = 1000

func main() {
	entityID := flag.String("entity", "", "entity ID the tracks belong to (required)")
	kind := flag.String("kind", "", "entity kind")
	tolerance := flag.Float64("tolerance", usecases.DefaultTolerance, "Douglas-Peucker tolerance in degrees for the report")
	dryRun := flag.Bool("dry-run", false, "parse and report without writing")
	queue := flag.Bool("queue", false, "queue reports on NATS for the poller instead of writing to the database")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: ingestor -entity ID [-kind K] [-tolerance T] [-dry-run | -queue] track.gpx...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if *entityID == "" || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load("fleetmap-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	var sink reportSink
	switch {
	case *dryRun:
	case *queue:
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		defer pub.Close()
		sink = queueSink{pub: pub}
	default:
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer db.Close()

		var publisher ports.EventPublisher
		if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
			slog.Warn("nats unavailable, imported positions will not be fanned out", "error", err)
		} else {
			defer pub.Close()
			publisher = pub
		}
		sink = usecases.NewIngestService(postgres.NewEntityRepo(db), postgres.NewPositionRepo(db), publisher)
	}

	slog.Info("FleetMap GPX ingestor", "entity", *entityID, "files", flag.NArg(), "dry_run", *dryRun, "queue", *queue)

	failed := 0
	for _, path := range flag.Args() {
		if err := importFile(ctx, sink, path, gpximport.Options{EntityID: *entityID, Kind: *kind}, *tolerance); err != nil {
			slog.Error("import failed", "file", path, "error", err)
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// reportSink receives parsed track points: the database directly or the report queue.
type reportSink interface {
	ProcessBatch(ctx context.Context, updates []domain.PositionUpdate, source string) (int, []domain.Rejection, error)
}

// queueSink submits reports to the ingestion work queue.
type queueSink struct {
	pub ports.EventPublisher
}

func (q queueSink) ProcessBatch(ctx context.Context, updates []domain.PositionUpdate, source string) (int, []domain.Rejection, error) {
	for i := range updates {
		if err := q.pub.SubmitPosition(ctx, &updates[i]); err != nil {
			return i, nil, err
		}
	}
	return len(updates), nil, nil
}

// importFile ingests one GPX file in batches and reports how far it would simplify.
func importFile(ctx context.Context, sink reportSink, path string, opts gpximport.Options, tolerance float64) error {
	start := time.Now()
	updates, err := gpximport.ParseFile(path, opts)
	if err != nil {
		return err
	}

	accepted, rejected := 0, 0
	if sink != nil {
		for i := 0; i < len(updates); i += batchSize {
			batch := updates[i:min(i+batchSize, len(updates))]
			n, rej, err := sink.ProcessBatch(ctx, batch, "gpx")
			if err != nil {
				return fmt.Errorf("batch at %d: %w", i, err)
			}
			accepted += n
			rejected += len(rej)
		}
	}

	raw := make([]domain.Point, len(updates))
	for i, u := range updates {
		raw[i] = u.Point()
	}
	simplified, dropped := geospatial.SimplifyValid(raw, tolerance)

	slog.Info("imported track",
		"file", path,
		"points", len(updates),
		"accepted", accepted,
		"rejected", rejected,
		"invalid", len(dropped),
		"simplified", len(simplified),
		"length", geospatial.FormatDistance(geospatial.PathLength(simplified)),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return nil
}
