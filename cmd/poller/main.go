package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/samirrijal/fleetmap/internal/adapters/feed"
	natsadapter "github.com/samirrijal/fleetmap/internal/adapters/nats"
	"github.com/samirrijal/fleetmap/internal/adapters/postgres"
	"github.com/samirrijal/fleetmap/internal/core/domain"
	"github.com/samirrijal/fleetmap/internal/core/ports"
	"github.com/samirrijal/fleetmap/internal/core/usecases"
	"github.com/samirrijal/fleetmap/internal/pkg/config"
	"github.com/samirrijal/fleetmap/internal/pkg/logging"
)

// maxConcurrentFeeds bounds parallel feed downloads.
const maxConcurrentFeeds = 8

// pollSnapshot is broadcast after every poll round.
type pollSnapshot struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	Feeds    int       `json:"feeds"`
	Accepted int       `json:"accepted"`
	Rejected int       `json:"rejected"`
}

func main() {
	cfg, err := config.Load("fleetmap-poller")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, positions will not be fanned out", "error", err)
		pub = nil
	} else {
		defer pub.Close()
		publisher = pub
	}

	ingest := usecases.NewIngestService(postgres.NewEntityRepo(db), postgres.NewPositionRepo(db), publisher)

	// Reports queued on the broker by other producers
	if pub != nil {
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("report subscriber unavailable", "error", err)
		} else {
			defer sub.Close()
			err := sub.SubscribePositionReports(ctx, func(ctx context.Context, u *domain.PositionUpdate) error {
				err := ingest.Process(ctx, u, "nats")
				if errors.Is(err, domain.ErrInvalidCoordinate) {
					// redelivery cannot fix a bad report
					slog.Warn("rejected queued report", "entity", u.EntityID, "error", err)
					return nil
				}
				return err
			})
			if err != nil {
				slog.Warn("subscribe position reports", "error", err)
			}
		}
	}

	urls := feedURLs(cfg.Poller.FeedURL)
	if len(urls) == 0 {
		slog.Info("no poller.feed_url configured, only consuming queued reports")
	}

	client := feed.NewClient(30 * time.Second).WithFormat(feed.Format(cfg.Poller.FeedFormat))
	interval := cfg.Poller.Interval()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("FleetMap poller started", "feeds", len(urls), "interval", interval.String())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Run once immediately
	pollAll(ctx, client, ingest, pub, urls)

	for {
		select {
		case <-ticker.C:
			pollAll(ctx, client, ingest, pub, urls)
		case <-ctx.Done():
			return
		case sig := <-quit:
			slog.Info("shutting down poller", "signal", sig.String())
			cancel()
			return
		}
	}
}

func feedURLs(raw string) []string {
	var urls []string
	for _, u := range strings.Split(raw, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

type pollResult struct {
	accepted int
	rejected int
}

// pollAll fetches every feed concurrently and ingests the positions.
func pollAll(ctx context.Context, client *feed.Client, ingest *usecases.IngestService, pub *natsadapter.Publisher, urls []string) {
	if len(urls) == 0 {
		return
	}

	p := pool.NewWithResults[pollResult]().WithContext(ctx).WithMaxGoroutines(maxConcurrentFeeds)
	for _, url := range urls {
		p.Go(func(ctx context.Context) (pollResult, error) {
			updates, err := client.Fetch(ctx, url)
			if err != nil {
				slog.Warn("fetch feed", "url", url, "error", err)
				return pollResult{}, nil
			}
			accepted, rejected, err := ingest.ProcessBatch(ctx, updates, "poller")
			if err != nil {
				slog.Error("ingest feed", "url", url, "error", err)
				return pollResult{}, nil
			}
			if accepted > 0 || len(rejected) > 0 {
				slog.Info("feed polled", "url", url, "accepted", accepted, "rejected", len(rejected))
			}
			return pollResult{accepted: accepted, rejected: len(rejected)}, nil
		})
	}

	results, _ := p.Wait()

	snap := pollSnapshot{ID: uuid.NewString(), At: time.Now().UTC(), Feeds: len(urls)}
	for _, r := range results {
		snap.Accepted += r.accepted
		snap.Rejected += r.rejected
	}
	if pub == nil {
		return
	}
	if data, err := json.Marshal(snap); err == nil {
		if err := pub.PublishBroadcast(ctx, data); err != nil {
			slog.Warn("publish poll snapshot", "error", err)
		}
	}
}
