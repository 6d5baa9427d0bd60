package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vitalpredict"

var (
	httpRequestsDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "The latency of the HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	httpRequestsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Number of the HTTP requests.",
	}, []string{"method", "route", "code"})

	signupsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signups_total",
		Help:      "Email signup attempts by result.",
	}, []string{"result"})

	checkoutsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkouts_total",
		Help:      "Checkout session creations by result.",
	}, []string{"result"})

	webhookEventsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Payment provider webhook deliveries by event type and outcome.",
	}, []string{"type", "outcome"})

	maintenanceRunsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "maintenance_runs_total",
		Help:      "Backup and maintenance runs by operation and status.",
	}, []string{"operation", "status"})
)

// Middleware records request latency and count per route template.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		chainErr := c.Next()

		route := c.Route().Path
		if route == "" || route == "/" && c.Path() != "/" {
			route = "unmatched"
		}
		code := c.Response().StatusCode()
		if chainErr != nil {
			if fe, ok := chainErr.(*fiber.Error); ok {
				code = fe.Code
			}
		}

		httpRequestsDuration.With(prometheus.Labels{"method": c.Method(), "route": route}).Observe(time.Since(start).Seconds())
		httpRequestsCount.With(prometheus.Labels{
			"method": c.Method(),
			"route":  route,
			"code":   strconv.Itoa(code),
		}).Inc()
		return chainErr
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(
		prometheus.DefaultGatherer,
		promhttp.HandlerOpts{},
	))
}

func Signup(result string) {
	signupsCount.WithLabelValues(result).Inc()
}

func Checkout(result string) {
	checkoutsCount.WithLabelValues(result).Inc()
}

func WebhookEvent(eventType, outcome string) {
	if eventType == "" {
		eventType = "unknown"
	}
	webhookEventsCount.WithLabelValues(eventType, outcome).Inc()
}

func MaintenanceRun(operation, status string) {
	maintenanceRunsCount.WithLabelValues(operation, status).Inc()
}
