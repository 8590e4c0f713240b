package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, m *Metrics, name string) []*dto.Metric {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()
		}
	}
	return nil
}

func labels(metric *dto.Metric) map[string]string {
	out := make(map[string]string)
	for _, lp := range metric.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestMetrics_ObserveRequest(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.ObserveRequest("getRoute", "GET", 200, 10*time.Millisecond)
	m.ObserveRequest("getRoute", "GET", 200, 20*time.Millisecond)
	m.ObserveRequest("", "GET", 404, time.Millisecond)

	got := gather(t, m, "routegate_requests_total")
	require.Len(t, got, 2)

	counts := make(map[string]float64)
	for _, metric := range got {
		l := labels(metric)
		counts[l["route"]+" "+l["status"]] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, 2.0, counts["getRoute 200"])
	assert.Equal(t, 1.0, counts[NoRoute+" 404"])

	hist := gather(t, m, "routegate_request_duration_seconds")
	require.NotEmpty(t, hist)
}

func TestMetrics_InFlight(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	done := m.RequestStarted()
	got := gather(t, m, "routegate_requests_in_flight")
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].GetGauge().GetValue())

	done()
	got = gather(t, m, "routegate_requests_in_flight")
	assert.Equal(t, 0.0, got[0].GetGauge().GetValue())
}

func TestMetrics_Errors(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.UpstreamError("getUsers", "timeout")
	m.FilterError("getRoute", "modify_response_body")
	m.Reloaded(false)
	m.SetRoutes(3)

	up := gather(t, m, "routegate_upstream_errors_total")
	require.Len(t, up, 1)
	assert.Equal(t, "timeout", labels(up[0])["kind"])

	routes := gather(t, m, "routegate_routes_loaded")
	require.Len(t, routes, 1)
	assert.Equal(t, 3.0, routes[0].GetGauge().GetValue())

	reloads := gather(t, m, "routegate_route_reloads_total")
	require.Len(t, reloads, 1)
	assert.Equal(t, "failure", labels(reloads[0])["result"])
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RequestStarted()()
		m.ObserveRequest("r", "GET", 200, time.Second)
		m.ObserveUpstream("r", time.Second)
		m.UpstreamError("r", "timeout")
		m.FilterError("r", "f")
		m.SetRoutes(1)
		m.Reloaded(true)
	})
	assert.Nil(t, m.Registry())
}
