package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/suhasHere/moqbridge/status"
)

// Metrics are the bridge's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	eventsDispatched  *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	boundary          prometheus.Counter
	tracksPublished   prometheus.Gauge
	statusTransitions *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		eventsDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "moqbridge_events_dispatched_total",
			Help: "Engine callbacks queued for a client, by kind.",
		}, []string{"kind"}),
		eventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "moqbridge_events_dropped_total",
			Help: "Engine callbacks discarded because the client stopped consuming, by kind.",
		}, []string{"kind"}),
		boundary: f.NewCounter(prometheus.CounterOpts{
			Name: "moqbridge_boundary_violations_total",
			Help: "Engine callbacks rejected for a stale token or an unknown status code.",
		}),
		tracksPublished: f.NewGauge(prometheus.GaugeOpts{
			Name: "moqbridge_tracks_published",
			Help: "Tracks currently registered with an engine.",
		}),
		statusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "moqbridge_status_transitions_total",
			Help: "Statuses applied to client models, by status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) eventDispatched(kind string) {
	if m == nil {
		return
	}
	m.eventsDispatched.WithLabelValues(kind).Inc()
}

func (m *Metrics) eventDropped(kind string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(kind).Inc()
}

func (m *Metrics) boundaryViolation() {
	if m == nil {
		return
	}
	m.boundary.Inc()
}

func (m *Metrics) trackPublished() {
	if m == nil {
		return
	}
	m.tracksPublished.Inc()
}

func (m *Metrics) trackUnpublished() {
	if m == nil {
		return
	}
	m.tracksPublished.Dec()
}

func (m *Metrics) statusApplied(s status.Status) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(s.String()).Inc()
}
