// Package indicators computes the adaptive EMA pair and ATR used by the
// strategy engine's momentum and volatility gates.
package indicators

import "math"

// EMAPair tracks the short/long exponential moving averages. Unlike a
// fixed-period EMA, the smoothing constant is recomputed on every
// observation from the estimated mean inter-trade gap, so the pair stays
// meaningful whether the token is trading at 1 tps or 50 tps.
type EMAPair struct {
	Short *float64
	Long  *float64

	shortMs float64
	longMs  float64
}

// NewEMAPair creates a pair with the given horizons in milliseconds.
func NewEMAPair(shortMs, longMs float64) *EMAPair {
	return &EMAPair{shortMs: shortMs, longMs: longMs}
}

// Update feeds one price observation. dtEffMs is the mean inter-trade gap
// estimate (W / max(1, tradeCount), in milliseconds).
func (e *EMAPair) Update(price, dtEffMs float64) {
	if e.Short == nil {
		v := price
		e.Short = &v
	} else {
		alpha := 2 / (e.shortMs/dtEffMs + 1)
		v := alpha*price + (1-alpha)*(*e.Short)
		e.Short = &v
	}

	if e.Long == nil {
		v := price
		e.Long = &v
	} else {
		alpha := 2 / (e.longMs/dtEffMs + 1)
		v := alpha*price + (1-alpha)*(*e.Long)
		e.Long = &v
	}
}

// Gap returns (short-long)/price, or 0 if either EMA is undefined.
func (e *EMAPair) Gap(price float64) float64 {
	if e.Short == nil || e.Long == nil || price == 0 {
		return 0
	}
	return (*e.Short - *e.Long) / price
}

// ATR smooths the absolute price change (true range; a single trade-price
// series has no high/low/close distinct from the trade price itself) with
// a fixed time-constant smoothing factor.
type ATR struct {
	value     *float64
	lastPrice *float64
	windowSec float64
}

// NewATR creates an ATR smoother with the given window in seconds.
func NewATR(windowSec float64) *ATR {
	return &ATR{windowSec: windowSec}
}

// Update feeds one price observation and returns the updated ATR value
// (0 if not yet defined).
func (a *ATR) Update(price float64) float64 {
	if a.lastPrice != nil {
		tr := math.Abs(price - *a.lastPrice)
		alpha := 2 / (a.windowSec + 1)
		if a.value == nil {
			v := tr
			a.value = &v
		} else {
			v := alpha*tr + (1-alpha)*(*a.value)
			a.value = &v
		}
	}
	p := price
	a.lastPrice = &p
	if a.value == nil {
		return 0
	}
	return *a.value
}

// Value returns the current ATR, or 0 if undefined.
func (a *ATR) Value() float64 {
	if a.value == nil {
		return 0
	}
	return *a.value
}

// Defined reports whether at least one true-range sample has been folded in.
func (a *ATR) Defined() bool { return a.value != nil }

// Sigmoid is the logistic function used by the GBM predictor.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// MeanInterTradeGapMs estimates dt_eff from the rolling window width (ms)
// and the current trade count.
func MeanInterTradeGapMs(windowMs float64, tradeCount int) float64 {
	n := tradeCount
	if n < 1 {
		n = 1
	}
	return windowMs / float64(n)
}
