package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/campaigndesk/campaigndesk/internal/guard"
)

const namespace = "campaigndesk"

// Metrics holds every collector of the service.
type Metrics struct {
	// Logins by outcome: granted_admin, granted_viewer, denied, locked
	LoginAttemptsTotal *prometheus.CounterVec
	LockoutsTotal      prometheus.Counter
	// Heartbeat writes by result: ok, error
	HeartbeatWritesTotal *prometheus.CounterVec

	// Per-row writes of an aggregate edit
	RedistributionWritesTotal *prometheus.CounterVec
	RedistributionDrift       *prometheus.HistogramVec

	ChangeEventsTotal        *prometheus.CounterVec
	ChangeEventsDroppedTotal prometheus.Counter
	ChangeMirrorErrorsTotal  prometheus.Counter

	HTTPRequestDuration *prometheus.HistogramVec
}

var _ guard.Observer = (*Metrics)(nil)

// NewMetrics registers the collectors with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LoginAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
		LockoutsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lockouts_total",
			Help:      "Lockout windows started by a wrong secret",
		}),
		HeartbeatWritesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_writes_total",
			Help:      "Session heartbeat writes by result",
		}, []string{"result"}),
		RedistributionWritesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redistribution_writes_total",
			Help:      "Per-ad writes of aggregate edits by metric and result",
		}, []string{"metric", "result"}),
		RedistributionDrift: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "redistribution_drift",
			Help:      "Absolute difference between requested and written totals",
			Buckets:   []float64{0, 1, 2, 5, 10, 50},
		}, []string{"metric"}),
		ChangeEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_events_total",
			Help:      "Change events published by table",
		}, []string{"table"}),
		ChangeEventsDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_events_dropped_total",
			Help:      "Change events dropped for slow subscribers",
		}),
		ChangeMirrorErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_mirror_errors_total",
			Help:      "Change events that could not be mirrored to Kafka",
		}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) LoginGranted(role guard.Role, _ guard.DeviceInfo) {
	m.LoginAttemptsTotal.WithLabelValues("granted_" + string(role)).Inc()
}

func (m *Metrics) LoginDenied(guard.DeviceInfo, time.Time) {
	m.LoginAttemptsTotal.WithLabelValues("denied").Inc()
	m.LockoutsTotal.Inc()
}

func (m *Metrics) LoginRejectedLocked() {
	m.LoginAttemptsTotal.WithLabelValues("locked").Inc()
}

func (m *Metrics) Heartbeat(err error) {
	m.HeartbeatWritesTotal.WithLabelValues(result(err == nil)).Inc()
}

func (m *Metrics) RecordRedistributionWrite(metric string, ok bool) {
	m.RedistributionWritesTotal.WithLabelValues(metric, result(ok)).Inc()
}

func (m *Metrics) RecordRedistributionDrift(metric string, drift float64) {
	m.RedistributionDrift.WithLabelValues(metric).Observe(drift)
}

func (m *Metrics) RecordChange(table string) {
	m.ChangeEventsTotal.WithLabelValues(table).Inc()
}

func (m *Metrics) RecordDropped() {
	m.ChangeEventsDroppedTotal.Inc()
}

func (m *Metrics) RecordMirrorError() {
	m.ChangeMirrorErrorsTotal.Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
