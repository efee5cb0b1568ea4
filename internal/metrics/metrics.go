package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set holds the engine's counters. Fired's stage label is the gate that
// short-circuited a message, or "allowed".
type Set struct {
	Processed prometheus.Counter
	decisions *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Set {
	s := &Set{
		Processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatguard_messages_processed_total",
			Help: "Inbound messages entering the pipeline.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatguard_decisions_total",
			Help: "Pipeline outcomes by stage.",
		}, []string{"stage"}),
	}
	if reg != nil {
		reg.MustRegister(s.Processed, s.decisions)
	}
	return s
}

func (s *Set) Fired(stage string) {
	s.decisions.WithLabelValues(stage).Inc()
}
