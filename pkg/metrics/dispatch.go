package metrics

import "github.com/prometheus/client_golang/prometheus"

// DispatchMetrics tracks callout lifecycle outcomes across the API surface.
type DispatchMetrics struct {
	broadcasts  *prometheus.CounterVec
	selections  *prometheus.CounterVec
	settlements prometheus.Counter
}

// NewDispatchMetrics registers the dispatch counters on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	broadcasts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "callout_broadcasts_total",
		Help: "Callout broadcasts partitioned by incident type.",
	}, []string{"incident_type"})
	selections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "callout_selections_total",
		Help: "Partner selection attempts partitioned by outcome.",
	}, []string{"outcome"})
	settlements := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "callout_settlements_total",
		Help: "Settled callouts.",
	})
	reg.MustRegister(broadcasts, selections, settlements)
	return &DispatchMetrics{
		broadcasts:  broadcasts,
		selections:  selections,
		settlements: settlements,
	}
}

// IncBroadcast counts a broadcast for the given incident type.
func (d *DispatchMetrics) IncBroadcast(incidentType string) {
	if d == nil || d.broadcasts == nil {
		return
	}
	d.broadcasts.WithLabelValues(jobLabel(incidentType)).Inc()
}

// IncSelection counts a selection attempt with its outcome label.
func (d *DispatchMetrics) IncSelection(outcome string) {
	if d == nil || d.selections == nil {
		return
	}
	d.selections.WithLabelValues(jobLabel(outcome)).Inc()
}

// IncSettlement counts a completed settlement.
func (d *DispatchMetrics) IncSettlement() {
	if d == nil || d.settlements == nil {
		return
	}
	d.settlements.Inc()
}
