package metrics

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SettlementEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coursefox",
		Subsystem: "billing",
		Name:      "settlement_events_total",
		Help:      "Payment events handled by the settlement engine by kind and outcome.",
	}, []string{"kind", "outcome"})

	IntentsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coursefox",
		Subsystem: "billing",
		Name:      "intents_total",
		Help:      "Checkout attempts by result.",
	}, []string{"result"})

	AggregateFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coursefox",
		Subsystem: "aggregate",
		Name:      "recompute_failures_total",
		Help:      "Failed derived field recomputations by field.",
	}, []string{"field"})

	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coursefox",
		Subsystem: "jobqueue",
		Name:      "jobs_total",
		Help:      "Background jobs by type and final status.",
	}, []string{"type", "status"})

	Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coursefox",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "status"})

	LatencyMS = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "coursefox",
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(SettlementEvents, IntentsCreated, AggregateFailures, JobsProcessed, Requests, LatencyMS)
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency per matched route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		Requests.WithLabelValues(route, statusClass(status)).Inc()
		LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
		return err
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	}
	return "2xx"
}
