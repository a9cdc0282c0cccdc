// Package metrics exposes Prometheus collectors for the snapshot bot.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	archiveOutcomesTotal       *prometheus.CounterVec
	postsTotal                 *prometheus.CounterVec
	cyclesTotal                prometheus.Counter
	activePosts                prometheus.Gauge
	throttleDelaySeconds       *prometheus.HistogramVec
	feedRequestsTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		archiveOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshill_archive_outcomes_total",
				Help: "Archive submissions, labeled by backend and outcome.",
			},
			[]string{"backend", "outcome"},
		)

		postsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshill_posts_total",
				Help: "Posts handled, labeled by result.",
			},
			[]string{"result"},
		)

		cyclesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "snapshill_cycles_total",
				Help: "Completed polling cycles.",
			},
		)

		activePosts = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "snapshill_active_posts",
				Help: "Posts currently being processed.",
			},
		)

		throttleDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snapshill_throttle_delay_seconds",
				Help:    "Histogram of per-host throttle wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		feedRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshill_feed_requests_total",
				Help: "Feed API calls, labeled by operation and status code.",
			},
			[]string{"operation", "code"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveArchive counts one backend outcome.
func ObserveArchive(backend, outcome string) {
	Init()
	archiveOutcomesTotal.WithLabelValues(backend, outcome).Inc()
}

// ObservePost counts one handled post.
func ObservePost(result string) {
	Init()
	postsTotal.WithLabelValues(result).Inc()
}

// ObserveCycle counts one completed polling cycle.
func ObserveCycle() {
	Init()
	cyclesTotal.Inc()
}

// IncActivePosts increments the in-flight posts gauge.
func IncActivePosts() {
	Init()
	activePosts.Inc()
}

// DecActivePosts decrements the in-flight posts gauge.
func DecActivePosts() {
	Init()
	activePosts.Dec()
}

// ObserveThrottleDelay records the duration of a throttle wait.
func ObserveThrottleDelay(host string, duration time.Duration) {
	Init()
	throttleDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveFeedRequest counts one call against the feed API.
func ObserveFeedRequest(operation string, code int) {
	Init()
	feedRequestsTotal.WithLabelValues(operation, strconv.Itoa(code)).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
