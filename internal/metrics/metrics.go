// Package metrics registers and serves the engine's Prometheus
// observability surface at /metrics (Prometheus text exposition format).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RiskInFlight tracks concurrent admission-time RPC probes, for
	// watching the riskInFlight <= MAX_RISK_CONCURRENCY invariant.
	RiskInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sniper_risk_inflight",
		Help: "Concurrent risk-assessment probes currently in flight.",
	})

	// TokensTracked is the live count of actively tracked mints.
	TokensTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sniper_tokens_tracked",
		Help: "Number of mints currently tracked by the strategy engine.",
	})

	// SignalsTotal counts emitted BUY/SELL signals by action and, for
	// SELL, reason.
	SignalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sniper_signals_total",
		Help: "Trade signals emitted, split by action and reason.",
	}, []string{"action", "reason"})

	// ProfitSol is the cumulative realized PnL gauge.
	ProfitSol = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sniper_profit_sol",
		Help: "Cumulative realized PnL in SOL.",
	})

	// AdmissionRejectionsTotal counts pool events rejected at admission,
	// split by the gate that rejected them.
	AdmissionRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sniper_admission_rejections_total",
		Help: "Pool events rejected at admission, split by rejection reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(RiskInFlight, TokensTracked, SignalsTotal, ProfitSol, AdmissionRejectionsTotal)
}

// Handler returns the Prometheus scrape handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
