package search

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts loop activity. A nil *Metrics records nothing.
type Metrics struct {
	Attempts  prometheus.Counter
	Matches   prometheus.Counter
	Exhausted prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "distmagic",
			Name:      "candidates_hashed_total",
			Help:      "Candidate messages digested by this process.",
		}),
		Matches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "distmagic",
			Name:      "matches_total",
			Help:      "Magic digests found by this process.",
		}),
		Exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "distmagic",
			Name:      "exhausted_total",
			Help:      "Searches that ran out of candidates in their slice.",
		}),
	}
	reg.MustRegister(m.Attempts, m.Matches, m.Exhausted)
	return m
}

func (m *Metrics) addAttempts(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.Attempts.Add(float64(n))
}

func (m *Metrics) match() {
	if m != nil {
		m.Matches.Inc()
	}
}

func (m *Metrics) exhausted() {
	if m != nil {
		m.Exhausted.Inc()
	}
}
