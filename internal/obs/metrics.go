package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	registrationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "accounts_registrations_total",
		Help: "Identities registered.",
	})

	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_logins_total",
			Help: "Login attempts by result.",
		},
		[]string{"result"},
	)

	authRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_auth_rejections_total",
			Help: "Bearer token rejections by reason.",
		},
		[]string{"reason"},
	)
)

// Init registers metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			registrationsTotal, loginsTotal, authRejectionsTotal,
		)
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRegistration counts a successful registration.
func RecordRegistration() { registrationsTotal.Inc() }

// RecordLogin counts a login attempt; result is "success" or "failure".
func RecordLogin(result string) { loginsTotal.WithLabelValues(result).Inc() }

// RecordAuthRejection counts a rejected bearer token.
func RecordAuthRejection(reason string) { authRejectionsTotal.WithLabelValues(reason).Inc() }

// Instrument measures request count, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// OtherPath labels every request that matches no known route.
const OtherPath = "other"

var knownPaths = map[string]struct{}{
	"/":                    {},
	"/healthz":             {},
	"/readyz":              {},
	"/metrics":             {},
	"/api":                 {},
	"/api/users":           {},
	"/api/users/me":        {},
	"/api/users/login":     {},
	"/api/users/logout":    {},
	"/api/users/logoutAll": {},
}

// CanonicalPath maps a request path onto a fixed label set: known routes keep
// their path, identity lookups collapse to /api/users/:id, anything else is
// OtherPath.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if _, ok := knownPaths[p]; ok {
		return p
	}
	if rest, ok := strings.CutPrefix(p, "/api/users/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/api/users/:id"
	}
	return OtherPath
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
