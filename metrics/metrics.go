// Package metrics exposes Prometheus collectors for the rate limiter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the limiter's collectors.
type Metrics struct {
	Hits           prometheus.Counter
	Rejected       prometheus.Counter
	Expired        prometheus.Counter
	Evicted        prometheus.Counter
	TrackedClients prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hitledger_hits_total",
			Help: "Total hits recorded against client keys",
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hitledger_rejected_total",
			Help: "Total hits from clients that were blocked at the time",
		}),
		Expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hitledger_expired_total",
			Help: "Total clients forgotten because their hits fully decayed",
		}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hitledger_evicted_total",
			Help: "Total clients dropped to stay under the tracked client cap",
		}),
		TrackedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hitledger_tracked_clients",
			Help: "Number of clients currently tracked",
		}),
	}

	reg.MustRegister(m.Hits, m.Rejected, m.Expired, m.Evicted, m.TrackedClients)
	return m
}

// ObserveHit records the outcome of a single hit.
func (m *Metrics) ObserveHit(rejected bool, expired, evicted, tracked int) {
	m.Hits.Inc()
	if rejected {
		m.Rejected.Inc()
	}
	m.Expired.Add(float64(expired))
	m.Evicted.Add(float64(evicted))
	m.TrackedClients.Set(float64(tracked))
}
