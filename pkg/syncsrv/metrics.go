package syncsrv

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements Metrics by exporting the session and
// conduit counters named in SPEC_FULL.md's domain-stack table: a
// per-sync-type, per-final-state session counter, a session duration
// histogram, and a per-conduit failure counter. Used by cmd/hotsyncd's
// serve --metrics, which registers it on prometheus.DefaultRegisterer.
type PrometheusMetrics struct {
	sessions        *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	conduitFailures *prometheus.CounterVec
}

// NewPrometheusMetrics registers its collectors on reg and returns a
// Metrics implementation backed by them. Passing prometheus.NewRegistry()
// keeps a daemon's metrics isolated from the global default registry,
// matching the pattern the teacher's cmd/tcgdiskstat uses for its own
// collector set.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotsync",
			Name:      "sessions_total",
			Help:      "Completed HotSync sessions by sync type and final state.",
		}, []string{"sync_type", "state"}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hotsync",
			Name:      "session_duration_seconds",
			Help:      "Wall-clock duration of a HotSync session from CONFIGURED to CLOSED.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"sync_type"}),
		conduitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotsync",
			Name:      "conduit_failures_total",
			Help:      "Conduit executions that returned an error, by conduit name.",
		}, []string{"conduit"}),
	}
	reg.MustRegister(m.sessions, m.sessionDuration, m.conduitFailures)
	return m
}

func (m *PrometheusMetrics) ObserveSession(syncType SyncType, state State, duration time.Duration) {
	m.sessions.WithLabelValues(syncType.String(), state.String()).Inc()
	m.sessionDuration.WithLabelValues(syncType.String()).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) ObserveConduitError(conduitName string) {
	m.conduitFailures.WithLabelValues(conduitName).Inc()
}

var _ Metrics = (*PrometheusMetrics)(nil)
