// Package rolling maintains the fixed time-window trade/wallet
// aggregation that feeds tps, volume, and unique-wallet-count features.
package rolling

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/curvesniper/internal/types"
)

// tradeObs is one trade retained inside the window.
type tradeObs struct {
	ts  time.Time
	sol decimal.Decimal
}

// walletObs is one wallet observation retained inside the window.
type walletObs struct {
	ts   time.Time
	addr types.WalletId
}

// Window aggregates trades and wallet observations over a trailing
// duration W (tps_window_ms). It is not safe for concurrent use; callers
// must serialize access (the strategy engine owns one per token and
// drives it from its single event-loop goroutine).
type Window struct {
	w       time.Duration
	trades  []tradeObs
	wallets []walletObs
}

// New creates a RollingWindow of width w.
func New(w time.Duration) *Window {
	return &Window{w: w}
}

// Observe records a trade at ts and prunes anything older than w.
func (r *Window) Observe(ts time.Time, sol decimal.Decimal, wallet types.WalletId) {
	r.trades = append(r.trades, tradeObs{ts: ts, sol: sol})
	r.wallets = append(r.wallets, walletObs{ts: ts, addr: wallet})
	r.prune(ts)
}

// prune drops entries older than w relative to ts.
func (r *Window) prune(ts time.Time) {
	cut := ts.Add(-r.w)

	i := 0
	for i < len(r.trades) && r.trades[i].ts.Before(cut) {
		i++
	}
	if i > 0 {
		r.trades = append(r.trades[:0], r.trades[i:]...)
	}

	j := 0
	for j < len(r.wallets) && r.wallets[j].ts.Before(cut) {
		j++
	}
	if j > 0 {
		r.wallets = append(r.wallets[:0], r.wallets[j:]...)
	}
}

// TradeCount returns the number of trades currently retained.
func (r *Window) TradeCount() int { return len(r.trades) }

// TPS returns trades per second over the window width.
func (r *Window) TPS() float64 {
	return float64(len(r.trades)) / r.w.Seconds()
}

// Volume returns the summed trade notional currently retained.
func (r *Window) Volume() decimal.Decimal {
	total := decimal.Zero
	for _, t := range r.trades {
		total = total.Add(t.sol)
	}
	return total
}

// AvgSol returns average notional per trade, guarding divide-by-zero.
func (r *Window) AvgSol() decimal.Decimal {
	n := len(r.trades)
	if n == 0 {
		n = 1
	}
	return r.Volume().Div(decimal.NewFromInt(int64(n)))
}

// UniqueWallets returns the count of distinct wallet addresses retained.
func (r *Window) UniqueWallets() int {
	seen := make(map[types.WalletId]struct{}, len(r.wallets))
	for _, w := range r.wallets {
		seen[w.addr] = struct{}{}
	}
	return len(seen)
}

// Width reports the configured window duration.
func (r *Window) Width() time.Duration { return r.w }
