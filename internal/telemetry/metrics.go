// Package telemetry – Prometheus metrics for the Sentinel core.
//
// Adapted from the teacher's metrics.go (Prometheus counters/gauges
// registered in init(), served at /metrics by promhttp). The metric
// names change from the single-instrument bot's buy/sell/equity
// vocabulary to the hedge-engine's Intent/Trade/rebalance/risk
// vocabulary, but the registration shape is unchanged.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	IntentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_intents_total",
			Help: "Intents emitted, by kind and terminal state",
		},
		[]string{"kind", "state"},
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_trades_total",
			Help: "Trades recorded, by pair and result",
		},
		[]string{"pair", "result"}, // result: win|loss
	)

	RebalanceActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_rebalance_actions_total",
			Help: "Rebalancer actions, by venue and trigger",
		},
		[]string{"venue", "trigger"},
	)

	VacuumCapturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_vacuum_captures_total",
			Help: "VACUUM_OPEN intents emitted, by pair",
		},
		[]string{"pair"},
	)

	NAVGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_nav_usd",
			Help: "Current portfolio NAV in USD",
		},
	)

	DeltaGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_delta_fraction",
			Help: "Signed directional exposure as a fraction of NAV",
		},
	)

	DrawdownGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_drawdown_pct",
			Help: "Current daily drawdown percentage",
		},
	)

	SafeModeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_safe_mode",
			Help: "1 if the Risk Guardian has entered SAFE_MODE, else 0",
		},
	)

	DroppedSnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_dropped_book_snapshots_total",
			Help: "Paired book snapshots rejected by the statistics engine (stale, crossed or empty), by pair",
		},
		[]string{"pair"},
	)
)

func init() {
	prometheus.MustRegister(
		IntentsTotal, TradesTotal, RebalanceActionsTotal, VacuumCapturesTotal,
		NAVGauge, DeltaGauge, DrawdownGauge, SafeModeGauge, DroppedSnapshotsTotal,
	)
}

func SafeModeValue(on bool) float64 {
	if on {
		return 1
	}
	return 0
}
