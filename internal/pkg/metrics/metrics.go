package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fleetmap",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fleetmap",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Map metrics
	ClusterPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "map",
		Name:      "cluster_passes_total",
		Help:      "Total clustering passes, by whether the result came from cache",
	}, []string{"source"})

	ClusterDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fleetmap",
		Subsystem: "map",
		Name:      "cluster_duration_seconds",
		Help:      "Duration of a clustering pass",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	EntitiesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "map",
		Name:      "entities_rejected_total",
		Help:      "Entities or updates skipped for invalid coordinates",
	}, []string{"stage"})

	PathPointsIn = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "path",
		Name:      "points_in_total",
		Help:      "Points passed to path simplification",
	})

	PathPointsOut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "path",
		Name:      "points_out_total",
		Help:      "Points kept by path simplification",
	})

	CameraCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "viewport",
		Name:      "camera_commands_total",
		Help:      "Camera commands sent to rendering surfaces",
	}, []string{"type"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetmap",
		Subsystem: "viewport",
		Name:      "active_sessions",
		Help:      "Current number of open viewport sessions",
	})

	PositionsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "ingest",
		Name:      "positions_total",
		Help:      "Total position updates accepted, by source",
	}, []string{"source"})

	FeedPollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fleetmap",
		Subsystem: "ingest",
		Name:      "feed_poll_duration_seconds",
		Help:      "Duration of position feed polling",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	FeedPollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "ingest",
		Name:      "feed_poll_errors_total",
		Help:      "Total position feed poll errors",
	})

	FollowRecenters = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "viewport",
		Name:      "follow_recenters_total",
		Help:      "Camera recenters issued while following an entity",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetmap",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetmap",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetmap",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetmap",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}

// PoolStat is the subset of pgxpool.Stat the pool gauges read.
type PoolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
}

// UpdateDBPoolMetrics copies pool stats into the db gauges.
func UpdateDBPoolMetrics(s PoolStat) {
	DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
	DBPoolConnsIdle.Set(float64(s.IdleConns()))
	DBPoolConnsOpen.Set(float64(s.TotalConns()))
}
