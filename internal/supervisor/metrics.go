package supervisor

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics are boring counters only. Every value must be explainable by
// reading the session log.
type metrics struct {
	starts        prometheus.Counter
	exits         *prometheus.CounterVec
	up            prometheus.Gauge
	finalizations prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		starts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mevsup_worker_starts_total",
			Help: "Worker start attempts, including spawn failures",
		}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mevsup_worker_exits_total",
			Help: "Worker exits by reason",
		}, []string{"reason"}),
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mevsup_worker_up",
			Help: "1 while a worker process is running",
		}),
		finalizations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mevsup_session_finalizations_total",
			Help: "Sessions finalized",
		}),
	}

	for _, c := range []prometheus.Collector{m.starts, m.exits, m.up, m.finalizations} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register supervisor metric: %w", err)
		}
	}
	return m, nil
}
