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

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Access decisions by scope, privilege and outcome.",
		},
		[]string{"scope", "privilege", "outcome"},
	)

	unmappedRolesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_unmapped_role_errors_total",
			Help: "Credential lookups that hit a role without a credential mapping.",
		},
		[]string{"role"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "authz_ready",
		Help: "1 when the role definition source is reachable.",
	})
)

// Decision outcomes.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// Init registers the collectors with the default registry. Safe to call more
// than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight,
			httpRequestsTotal,
			httpRequestDuration,
			decisionsTotal,
			unmappedRolesTotal,
			ready,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecision counts one access decision.
func ObserveDecision(scope, privilege, outcome string) {
	decisionsTotal.WithLabelValues(scope, privilege, outcome).Inc()
}

// ObserveUnmappedRole counts a role that failed credential mapping.
func ObserveUnmappedRole(role string) {
	unmappedRolesTotal.WithLabelValues(role).Inc()
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Instrument records in-flight count, latency and status per route.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// PathOther labels requests to routes the service does not serve.
const PathOther = "other"

var knownPaths = map[string]struct{}{
	"/":                      {},
	"/healthz":               {},
	"/readyz":                {},
	"/metrics":               {},
	"/v1/info":               {},
	"/v1/access/credentials": {},
	"/v1/access/check":       {},
	"/v1/auth/token":         {},
}

// CanonicalPath maps a request path onto a registered route template.
// Anything else is PathOther, so the label set stays bounded.
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
	parts := strings.Split(strings.Trim(p, "/"), "/")
	// /v1/scopes/{scope}/roles/{role}/privileges[/{privilege}]
	if len(parts) >= 6 && len(parts) <= 7 &&
		parts[0] == "v1" && parts[1] == "scopes" && parts[3] == "roles" && parts[5] == "privileges" {
		out := "/v1/scopes/:scope/roles/:role/privileges"
		if len(parts) == 7 {
			out += "/:privilege"
		}
		return out
	}
	return PathOther
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
