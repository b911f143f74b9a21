package keeper

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports keeper activity. A nil *Metrics records nothing.
type Metrics struct {
	ticks          prometheus.Counter
	upkeeps        *prometheus.CounterVec
	failures       *prometheus.CounterVec
	oracleFailures prometheus.Counter
	rate           prometheus.Gauge
	lastUpkeep     prometheus.Gauge
}

// NewMetrics builds the keeper collectors and registers them with reg when
// it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "epool",
			Subsystem: "keeper",
			Name:      "ticks_total",
			Help:      "Keeper loop iterations.",
		}),
		upkeeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epool",
			Subsystem: "keeper",
			Name:      "upkeeps_total",
			Help:      "Successful flash swap rebalances by pool.",
		}, []string{"epool"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epool",
			Subsystem: "keeper",
			Name:      "upkeep_failures_total",
			Help:      "Failed upkeeps by error kind.",
		}, []string{"kind"}),
		oracleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "epool",
			Subsystem: "keeper",
			Name:      "oracle_refresh_failures_total",
			Help:      "Oracle refreshes that exhausted their retries.",
		}),
		rate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "epool",
			Subsystem: "keeper",
			Name:      "oracle_answer",
			Help:      "Last oracle answer scaled to 1e18, as a float.",
		}),
		lastUpkeep: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "epool",
			Subsystem: "keeper",
			Name:      "last_upkeep_timestamp_seconds",
			Help:      "Block time of the last successful upkeep.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ticks, m.upkeeps, m.failures, m.oracleFailures, m.rate, m.lastUpkeep)
	}
	return m
}

func (m *Metrics) ObserveTick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) ObserveUpkeep(pool string, at uint64) {
	if m == nil {
		return
	}
	m.upkeeps.WithLabelValues(pool).Inc()
	m.lastUpkeep.Set(float64(at))
}

func (m *Metrics) ObserveFailure(kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveOracleFailure() {
	if m == nil {
		return
	}
	m.oracleFailures.Inc()
}

func (m *Metrics) SetRate(rate float64) {
	if m == nil {
		return
	}
	m.rate.Set(rate)
}
