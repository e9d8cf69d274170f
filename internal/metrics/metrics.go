package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

var (
	once   sync.Once
	global *Metrics
)

// New builds a fresh set of collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soonpsy",
			Subsystem: "adapter",
			Name:      "requests_total",
			Help:      "Chat adapter calls by transport and outcome",
		}, []string{"transport", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "soonpsy",
			Subsystem: "adapter",
			Name:      "request_duration_seconds",
			Help:      "Wall time of a single chat adapter call",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"transport"}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.RequestDuration)
	}
	return m
}

func Global() *Metrics {
	once.Do(func() {
		global = New(prometheus.DefaultRegisterer)
	})
	return global
}
