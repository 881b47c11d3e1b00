// Package metrics exposes Prometheus collectors for the caches, the auth gate
// and the HTTP boundary. All methods are nil-safe: calls on a nil *Metrics
// are no-ops.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/isometry/ldap-gate/internal/ldap"
)

const namespace = "ldap_gate"

var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics holds every collector.
type Metrics struct {
	// RefreshTotal counts full cache refreshes by cache and result ("success", "failure").
	RefreshTotal *prometheus.CounterVec

	// RefreshDuration observes full refresh latency by cache.
	RefreshDuration *prometheus.HistogramVec

	// CacheEntries tracks the entry count after each refresh.
	CacheEntries *prometheus.GaugeVec

	// AuthTotal counts sign-in and gate outcomes.
	AuthTotal *prometheus.CounterVec

	// RequestTotal counts HTTP requests by method, route and status.
	RequestTotal *prometheus.CounterVec

	// RequestDuration observes HTTP handler latency.
	RequestDuration *prometheus.HistogramVec
}

var _ ldap.RefreshObserver = (*Metrics)(nil)

// New creates the collectors and registers them with reg. If reg is nil the
// collectors are created but not registered. Collectors already present in
// reg are reused.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "refresh_total",
			Help:      "Total number of full cache refreshes",
		}, []string{"cache", "result"}),
		RefreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "refresh_duration_seconds",
			Help:      "Latency of full cache refreshes",
			Buckets:   durationBuckets,
		}, []string{"cache"}),
		CacheEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Number of cached entries",
		}, []string{"cache"}),
		AuthTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Sign-in and token check outcomes",
		}, []string{"operation", "outcome"}),
		RequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   durationBuckets,
		}, []string{"method", "route", "status"}),
	}

	if reg != nil {
		m.RefreshTotal = registerOrReuse(reg, m.RefreshTotal).(*prometheus.CounterVec)
		m.RefreshDuration = registerOrReuse(reg, m.RefreshDuration).(*prometheus.HistogramVec)
		m.CacheEntries = registerOrReuse(reg, m.CacheEntries).(*prometheus.GaugeVec)
		m.AuthTotal = registerOrReuse(reg, m.AuthTotal).(*prometheus.CounterVec)
		m.RequestTotal = registerOrReuse(reg, m.RequestTotal).(*prometheus.CounterVec)
		m.RequestDuration = registerOrReuse(reg, m.RequestDuration).(*prometheus.HistogramVec)
	}

	return m
}

// ObserveRefresh records one full refresh of cache.
func (m *Metrics) ObserveRefresh(cache string, entries int, duration time.Duration, err error) {
	if m == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "failure"
	}

	m.RefreshTotal.WithLabelValues(cache, result).Inc()
	m.RefreshDuration.WithLabelValues(cache).Observe(duration.Seconds())
	if err == nil {
		m.CacheEntries.WithLabelValues(cache).Set(float64(entries))
	}
}

// ObserveAuth records an auth outcome.
func (m *Metrics) ObserveAuth(operation, outcome string) {
	if m == nil {
		return
	}
	m.AuthTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	code := strconv.Itoa(status)
	m.RequestTotal.WithLabelValues(method, route, code).Inc()
	m.RequestDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
}

// RegisterSessionStats exports the directory client's session counters.
func RegisterSessionStats(reg prometheus.Registerer, stats func() ldap.SessionStats) error {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ldap",
			Name:      "sessions_opened_total",
			Help:      "Directory sessions successfully established",
		}, func() float64 { return float64(stats().Opened) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ldap",
			Name:      "sessions_failed_total",
			Help:      "Directory sessions that failed to dial or bind",
		}, func() float64 { return float64(stats().Failed) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ldap",
			Name:      "sessions_active",
			Help:      "Directory sessions currently open",
		}, func() float64 { return float64(stats().Active) }),
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// registerOrReuse registers c with reg, returning the existing collector when
// an identical one is already registered. Panics on any other failure.
func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}
