package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/dgnsrekt/flow_shell/internal/events"
	"github.com/dgnsrekt/flow_shell/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gather flattens the registry into "name{label=value,...}" -> value for
// counters and gauges.
func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			key := mf.GetName()
			for i, lp := range metric.GetLabel() {
				sep := ","
				if i == 0 {
					sep = "{"
				}
				key += sep + lp.GetName() + "=" + lp.GetValue()
			}
			if len(metric.GetLabel()) > 0 {
				key += "}"
			}
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				out[key+"_count"] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, func() Counts { return Counts{Windows: 2, Spaces: 3, Tabs: 7, Groups: 1} })

	m.ObserveEvent(events.Event{Feed: events.FeedTab, Type: "created"})
	m.ObserveEvent(events.Event{Feed: events.FeedTab, Type: "created"})
	m.SaveFinished(10*time.Millisecond, nil)
	m.SaveFinished(10*time.Millisecond, errors.New("disk full"))
	m.RestoreFinished(time.Second, session.RestorePartiallyFailed)
	m.ObserveHTTP("GET", 200, time.Millisecond)

	got := gather(t, reg)
	assert.Equal(t, 2.0, got["flowshell_topology_events_total{feed=tab,type=created}"])
	assert.Equal(t, 1.0, got["flowshell_session_saves_total{result=ok}"])
	assert.Equal(t, 1.0, got["flowshell_session_saves_total{result=failed}"])
	assert.Equal(t, 1.0, got["flowshell_session_restores_total{state=partially_failed}"])
	assert.Equal(t, 2.0, got["flowshell_session_save_duration_seconds_count"])
	assert.Equal(t, 1.0, got["flowshell_http_requests_total{method=GET,status=200}"])
	assert.Equal(t, 2.0, got["flowshell_windows"])
	assert.Equal(t, 3.0, got["flowshell_spaces"])
	assert.Equal(t, 7.0, got["flowshell_tabs"])
	assert.Equal(t, 1.0, got["flowshell_tab_groups"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveEvent(events.Event{})
	m.SaveFinished(0, nil)
	m.RestoreFinished(0, session.RestoreDone)
	m.ObserveHTTP("GET", 200, 0)
}
