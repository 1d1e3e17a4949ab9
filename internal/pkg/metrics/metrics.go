package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sarpipe",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sarpipe",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// Pipeline metrics
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sarpipe",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   []float64{0.1, 1, 5, 15, 60, 300, 900, 1800, 3600},
	}, []string{"stage"})

	ProductsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sarpipe",
		Subsystem: "pipeline",
		Name:      "products_total",
		Help:      "Products reaching a terminal state",
	}, []string{"state"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sarpipe",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Finished pipeline runs by outcome",
	}, []string{"outcome"})

	DEMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sarpipe",
		Subsystem: "dem",
		Name:      "requests_total",
		Help:      "DEM acquisitions by source",
	}, []string{"source"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sarpipe",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sarpipe",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})
)

// ObserveStage records the time elapsed since start for stage and returns it in seconds.
func ObserveStage(stage string, start time.Time) float64 {
	secs := time.Since(start).Seconds()
	StageDuration.WithLabelValues(stage).Observe(secs)
	return secs
}

// Push sends the default registry to a Prometheus Pushgateway under job.
func Push(ctx context.Context, url, job, instance string) error {
	p := push.New(url, job).Gatherer(prometheus.DefaultGatherer)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	return p.PushContext(ctx)
}

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

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}
