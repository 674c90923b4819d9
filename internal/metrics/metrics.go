package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syndicate_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syndicate_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	oauthConnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syndicate_oauth_connects_total",
			Help: "Successful OAuth account connections by platform",
		},
		[]string{"platform"},
	)

	tokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syndicate_token_refreshes_total",
			Help: "Token refresh attempts by platform and outcome",
		},
		[]string{"platform", "outcome"},
	)

	stateFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "syndicate_oauth_state_failures_total",
			Help: "OAuth callbacks rejected for unknown, reused, or expired state",
		},
	)

	publishAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syndicate_publish_attempts_total",
			Help: "Terminal publish attempt outcomes by platform",
		},
		[]string{"platform", "outcome"},
	)

	publishRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syndicate_publish_retries_total",
			Help: "Publish retries scheduled after transient failures",
		},
		[]string{"platform"},
	)

	postsTerminal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syndicate_posts_terminal_total",
			Help: "Posts reaching a terminal status",
		},
		[]string{"status"},
	)

	publishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syndicate_publish_latency_seconds",
			Help:    "Latency of successful platform publish calls",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 30},
		},
		[]string{"platform"},
	)

	dispatchInflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "syndicate_dispatch_inflight",
			Help: "Publish attempts currently in flight",
		},
	)

	idempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "syndicate_idempotency_hits_total",
			Help: "Post-create requests served from the idempotency cache",
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syndicate_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"key"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordConnect records a successful account connection
func RecordConnect(platform string) {
	oauthConnects.WithLabelValues(platform).Inc()
}

// RecordRefresh records a token refresh outcome ("success" or "failure")
func RecordRefresh(platform, outcome string) {
	tokenRefreshes.WithLabelValues(platform, outcome).Inc()
}

// RecordStateFailure records a rejected OAuth callback state
func RecordStateFailure() {
	stateFailures.Inc()
}

// RecordPublishAttempt records a terminal attempt outcome ("published" or "failed")
func RecordPublishAttempt(platform, outcome string) {
	publishAttempts.WithLabelValues(platform, outcome).Inc()
}

// RecordPublishRetry records one scheduled retry
func RecordPublishRetry(platform string) {
	publishRetries.WithLabelValues(platform).Inc()
}

// RecordPostTerminal records a post reaching a terminal status
func RecordPostTerminal(status string) {
	postsTerminal.WithLabelValues(status).Inc()
}

// RecordPublishLatency records the duration of a successful publish call
func RecordPublishLatency(platform string, latency time.Duration) {
	publishLatency.WithLabelValues(platform).Observe(latency.Seconds())
}

// DispatchStarted increments the in-flight attempt gauge
func DispatchStarted() {
	dispatchInflight.Inc()
}

// DispatchFinished decrements the in-flight attempt gauge
func DispatchFinished() {
	dispatchInflight.Dec()
}

// RecordIdempotencyHit records a cache hit for idempotency
func RecordIdempotencyHit() {
	idempotencyHits.Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(key string) {
	rateLimitRejections.WithLabelValues(key).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
