package engine

import (
	"math"
	"time"

	"github.com/web3guy0/curvesniper/internal/gbm"
)

// buildFeatures computes the 10-entry feature vector consumed by both the
// GBM predictors and the feature log.
func (e *StrategyEngine) buildFeatures(ts *TokenState, price, liquidity float64, now time.Time) gbm.FeatureVector {
	var feats gbm.FeatureVector

	feats[0] = math.Log(price + 1e-12)
	feats[1] = math.Log(liquidity + 1)
	feats[2] = ts.Window.TPS() / 10

	if !math.IsInf(ts.LowestPrice, 1) && ts.LowestPrice > 0 {
		feats[3] = price/ts.LowestPrice - 1
	}

	feats[4] = float64(ts.Window.UniqueWallets()) / 10
	feats[5] = ts.EMA.Gap(price)

	if ts.ATR.Defined() && price != 0 {
		feats[6] = ts.ATR.Value() / price
	}

	ageMinutes := now.Sub(ts.CreatedAt).Minutes()
	feats[7] = ageMinutes / 60

	if ts.HasBought && ts.PeakSinceEntry != nil && price != 0 {
		feats[8] = *ts.PeakSinceEntry/price - 1
	}

	if ts.HasBought && ts.EntryPrice != nil {
		feats[9] = price/(*ts.EntryPrice) - 1
	}

	return feats
}
