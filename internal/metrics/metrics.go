// Package metrics exposes prometheus collectors for the topology, the
// session manager and the control API.
package metrics

import (
	"strconv"
	"time"

	"github.com/dgnsrekt/flow_shell/internal/events"
	"github.com/dgnsrekt/flow_shell/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flowshell"

// Counts is a point-in-time size of the topology.
type Counts struct {
	Windows int
	Spaces  int
	Tabs    int
	Groups  int
}

// Metrics holds every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	TopologyEvents  *prometheus.CounterVec
	SessionSaves    *prometheus.CounterVec
	SessionRestores *prometheus.CounterVec
	SaveDuration    prometheus.Histogram
	RestoreDuration prometheus.Histogram
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// New registers the collectors with reg. When counts is non-nil the
// topology size is sampled from it on every scrape.
func New(reg prometheus.Registerer, counts func() Counts) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		TopologyEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "topology_events_total",
				Help:      "Topology events published, by feed and type",
			},
			[]string{"feed", "type"},
		),
		SessionSaves: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_saves_total",
				Help:      "Session saves by result",
			},
			[]string{"result"},
		),
		SessionRestores: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_restores_total",
				Help:      "Session restores by final state",
			},
			[]string{"state"},
		),
		SaveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_save_duration_seconds",
			Help:      "Time to capture and persist a session",
			Buckets:   prometheus.DefBuckets,
		}),
		RestoreDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_restore_duration_seconds",
			Help:      "Time to replay a session",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Control API requests by method and status",
			},
			[]string{"method", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Control API request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}

	if counts != nil {
		gauge := func(name, help string, pick func(Counts) int) {
			f.NewGaugeFunc(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
				func() float64 { return float64(pick(counts())) })
		}
		gauge("windows", "Open windows", func(c Counts) int { return c.Windows })
		gauge("spaces", "Live spaces", func(c Counts) int { return c.Spaces })
		gauge("tabs", "Live tabs", func(c Counts) int { return c.Tabs })
		gauge("tab_groups", "Live tab groups", func(c Counts) int { return c.Groups })
	}
	return m
}

// ObserveEvent counts one topology event. It is meant for Broker.Consume.
func (m *Metrics) ObserveEvent(evt events.Event) {
	if m == nil {
		return
	}
	m.TopologyEvents.WithLabelValues(evt.Feed, evt.Type).Inc()
}

// SaveFinished implements session.Recorder.
func (m *Metrics) SaveFinished(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.SessionSaves.WithLabelValues(result).Inc()
	m.SaveDuration.Observe(d.Seconds())
}

// RestoreFinished implements session.Recorder.
func (m *Metrics) RestoreFinished(d time.Duration, state session.RestoreState) {
	if m == nil {
		return
	}
	m.SessionRestores.WithLabelValues(string(state)).Inc()
	m.RestoreDuration.Observe(d.Seconds())
}

// ObserveHTTP records one control API request.
func (m *Metrics) ObserveHTTP(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(d.Seconds())
}

var _ session.Recorder = (*Metrics)(nil)
