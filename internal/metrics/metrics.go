package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UpstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_requests_total",
		Help: "Upstream API requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})
	CacheHit = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hit_total",
		Help: "Cache hits.",
	}, []string{"kind"})
	CacheMiss = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_miss_total",
		Help: "Cache misses.",
	}, []string{"kind"})
	CacheClears = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_clear_total",
		Help: "Manual cache invalidations.",
	}, []string{"kind"})
	EventsAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_appended_total",
		Help: "Event log rows appended by stream.",
	}, []string{"stream"})
	EventWriteErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "event_write_errors_total",
		Help: "Failed event log appends by stream.",
	}, []string{"stream"})
	Logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logins_total",
		Help: "Login attempts by role and outcome.",
	}, []string{"role", "outcome"})
)

func init() {
	prometheus.MustRegister(UpstreamRequests, CacheHit, CacheMiss, CacheClears, EventsAppended, EventWriteErrors, Logins)
}

func Handler(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}
