package refresher

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Refresh engine Prometheus metrics. Defined in one place so the scheduler
// stays free of registration concerns.
var (
	refreshesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_refreshes_total",
		Help: "Completed refresh attempts by provider and outcome",
	}, []string{"provider", "outcome"})

	refreshDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "connection_refresh_duration_seconds",
		Help:    "Latency of one refresh attempt, token call plus persistence",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"provider"})

	refreshesInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "connection_refreshes_inflight",
		Help: "Refresh calls currently in flight",
	})

	ticksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_refresh_ticks_total",
		Help: "Poll ticks by result (ok or aborted on systemic failure)",
	}, []string{"result"})
)

// RegisterMetrics registers the refresh metrics on the given registry (or
// default if nil).
func RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{refreshesTotal, refreshDuration, refreshesInflight, ticksTotal} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
