// Package metrics holds the Prometheus collectors of the gateway.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "routegate"

// NoRoute labels requests that matched no route.
const NoRoute = "none"

// Metrics records gateway traffic. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec   // route, method, status
	requestDuration  *prometheus.HistogramVec // route
	upstreamDuration *prometheus.HistogramVec // route
	upstreamErrors   *prometheus.CounterVec   // route, kind
	filterErrors     *prometheus.CounterVec   // route, filter
	inFlight         prometheus.Gauge
	routesLoaded     prometheus.Gauge
	reloadsTotal     *prometheus.CounterVec // result
}

// New creates the collectors on a dedicated registry that also exposes the
// Go runtime and process collectors.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled by the gateway",
		}, []string{"route", "method", "status"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "duration_seconds",
			Help:      "Time until the upstream returned response headers",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Failed upstream calls",
		}, []string{"route", "kind"}), // kind: unavailable, timeout, client_closed

		filterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "errors_total",
			Help:      "Filter failures",
		}, []string{"route", "filter"}),

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Requests currently being handled",
		}),

		routesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "routes_loaded",
			Help:      "Routes in the active route table",
		}),

		reloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_reloads_total",
			Help:      "Route file reload attempts",
		}, []string{"result"}), // result: success, failure
	}

	for _, c := range []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.upstreamDuration,
		m.upstreamErrors,
		m.filterErrors,
		m.inFlight,
		m.routesLoaded,
		m.reloadsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RequestStarted increments the in-flight gauge and returns a function
// that decrements it.
func (m *Metrics) RequestStarted() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

// ObserveRequest records a finished request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = NoRoute
	}
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveUpstream records the latency of a successful upstream call.
func (m *Metrics) ObserveUpstream(route string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// UpstreamError counts a failed upstream call.
func (m *Metrics) UpstreamError(route, kind string) {
	if m == nil {
		return
	}
	m.upstreamErrors.WithLabelValues(route, kind).Inc()
}

// FilterError counts a filter failure.
func (m *Metrics) FilterError(route, filter string) {
	if m == nil {
		return
	}
	m.filterErrors.WithLabelValues(route, filter).Inc()
}

// SetRoutes records the size of the active route table.
func (m *Metrics) SetRoutes(n int) {
	if m == nil {
		return
	}
	m.routesLoaded.Set(float64(n))
}

// Reloaded counts a route file reload attempt.
func (m *Metrics) Reloaded(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.reloadsTotal.WithLabelValues(result).Inc()
}
