// Package metrics exposes Prometheus collectors for the scrapper service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapesTotal           *prometheus.CounterVec
	scrapeDurationSeconds  prometheus.Histogram
	sessionsAcquiredTotal  *prometheus.CounterVec
	sessionAttachFailures  prometheus.Counter
	batchMessagesTotal     *prometheus.CounterVec
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDurationSec *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		scrapesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapper_scrapes_total",
				Help: "Total scrape attempts, labeled by mode and outcome stage.",
			},
			[]string{"mode", "outcome"},
		)

		scrapeDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scrapper_scrape_duration_seconds",
				Help:    "End-to-end duration of successful scrape attempts.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45},
			},
		)

		sessionsAcquiredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapper_sessions_acquired_total",
				Help: "Browser sessions acquired, labeled by source (reused or provisioned).",
			},
			[]string{"source"},
		)

		sessionAttachFailures = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scrapper_session_attach_failures_total",
				Help: "Attach attempts lost to another holder or a dead session.",
			},
		)

		batchMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapper_batch_messages_total",
				Help: "Queued scrape messages processed, labeled by result (acked or nacked).",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSec = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 45},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScrape increments the scrape counter for the given mode and outcome.
func ObserveScrape(mode, outcome string) {
	if scrapesTotal == nil {
		return
	}
	scrapesTotal.WithLabelValues(mode, outcome).Inc()
}

// ObserveScrapeDuration records the duration of a successful scrape.
func ObserveScrapeDuration(d time.Duration) {
	if scrapeDurationSeconds == nil {
		return
	}
	scrapeDurationSeconds.Observe(d.Seconds())
}

// ObserveSessionAcquired increments the session acquisition counter.
func ObserveSessionAcquired(source string) {
	if sessionsAcquiredTotal == nil {
		return
	}
	sessionsAcquiredTotal.WithLabelValues(source).Inc()
}

// ObserveSessionAttachFailure increments the attach failure counter.
func ObserveSessionAttachFailure() {
	if sessionAttachFailures == nil {
		return
	}
	sessionAttachFailures.Inc()
}

// ObserveBatchMessage increments the batch message counter.
func ObserveBatchMessage(result string) {
	if batchMessagesTotal == nil {
		return
	}
	batchMessagesTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSec.WithLabelValues(method, route).Observe(duration.Seconds())
}
