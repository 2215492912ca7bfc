package engine

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/curvesniper/internal/featurestore"
	"github.com/web3guy0/curvesniper/internal/gbm"
	"github.com/web3guy0/curvesniper/internal/indicators"
	"github.com/web3guy0/curvesniper/internal/metrics"
	"github.com/web3guy0/curvesniper/internal/persist"
	"github.com/web3guy0/curvesniper/internal/types"
)

// tpsCollapseGainThreshold is the fixed gain threshold in the adaptive
// exit's tps-collapse branch, distinct from the configurable
// DisableEMATPSGainPct used in the branch above it.
const tpsCollapseGainThreshold = 0.3

// handlePriceEvent runs the full per-trade pipeline against a tracked
// mint: curve bookkeeping, liquidity floor, dev-exit tracking, rolling
// update, feature vector, entry gates, ML entry, feature logging, rug
// detection, extrema update, heuristic entry, ML exit, migration-fill
// exit, adaptive trailing-stop exit.
func (e *StrategyEngine) handlePriceEvent(ctx context.Context, ev types.PriceEvent) {
	ts, ok := e.state.States[ev.Mint]
	if !ok {
		return
	}

	now := ev.Timestamp
	price := ev.Price.InexactFloat64()

	// (a) first-seen curve size.
	if ts.InitialTokens == nil && ev.TokensCurve.GreaterThan(decimal.Zero) {
		v := ev.TokensCurve.InexactFloat64()
		ts.InitialTokens = &v
	}

	// (b) liquidity floor.
	liquidity := ev.Liquidity.InexactFloat64()
	if liquidity < e.cfg.MinRuntimeMcapSol.InexactFloat64() {
		log.Debug().Str("mint", string(ev.Mint)).Msg("engine: untrack, liquidity below runtime floor")
		e.untrack(ev.Mint)
		return
	}
	ts.Liquidity = liquidity
	if liquidity > ts.PeakLiquidity {
		ts.PeakLiquidity = liquidity
	}

	// (c) dev exit tracking.
	if ev.Wallet == ts.DevWallet && ev.Side == types.SideSell {
		e.maybeProbeDevExit(ctx, ts, now)
	}

	// (d) rolling window + adaptive indicators.
	ts.VolumeSol += math.Abs(ev.Sol.InexactFloat64())
	ts.Window.Observe(now, ev.Sol, ev.Wallet)
	dtEff := indicatorsMeanGap(e.cfg.TPSWindow, ts.Window.TradeCount())
	ts.EMA.Update(price, dtEff)
	ts.ATR.Update(price)

	// (e) feature vector — computed against the extrema as they stood
	// before this event (extrema update happens at step (j), below).
	feats := e.buildFeatures(ts, price, liquidity, now)

	// (f) pre-entry gates (short-circuit, in order).
	gateSkipEntry := false
	if !ts.RiskChecked {
		gateSkipEntry = true
	} else if e.cfg.SkipDevFirstToken && ts.DevFirstToken {
		log.Debug().Str("mint", string(ev.Mint)).Msg("engine: untrack, dev's first token")
		e.untrack(ev.Mint)
		return
	} else if e.cfg.RequireDevSold && !ts.DevSold {
		gateSkipEntry = true
	}

	// (g) ML entry.
	if e.buyModel != nil && !ts.HasBought && !gateSkipEntry {
		score := e.buyModel.Predict(feats)
		acted := score >= e.cfg.LGBMThresholdBuy
		e.logPrediction(ev.Mint, now, "buy", score, e.cfg.LGBMThresholdBuy, acted)
		if acted {
			e.openPosition(ts, ev.Mint, ev.Symbol, price, now, feats, false)
			return
		}
	}

	// (h) feature logging.
	e.logFeatures(ts, ev.Mint, now, feats)

	// (i) rug detection (post-buy): a liquidity collapse exits at the
	// current trade price with reason=SL, same as the adaptive trail.
	if ts.HasBought && liquidity < ts.PeakLiquidity*(1-e.cfg.RugLiquidityDropPct) {
		e.sellAndSettle(ts, ev.Mint, ev.Symbol, price, now, types.ReasonSL)
		return
	}

	// (j) extrema update.
	if price > ts.HighestPrice {
		ts.HighestPrice = price
	}
	if price < ts.LowestPrice {
		ts.LowestPrice = price
	}

	// (k) heuristic entry.
	if !ts.HasBought && !e.cfg.PureML && !gateSkipEntry {
		if e.heuristicEntry(ts, ev, price, now, feats) {
			return
		}
	}

	// (l) ML exit.
	if ts.HasBought && e.sellModel != nil {
		score := e.sellModel.Predict(feats)
		acted := score >= e.cfg.LGBMThresholdSell
		e.logPrediction(ev.Mint, now, "sell", score, e.cfg.LGBMThresholdSell, acted)
		if acted {
			e.sellAndSettle(ts, ev.Mint, ev.Symbol, price, now, types.ReasonTP)
			return
		}
	}

	// (m) migration-fill exit.
	if ts.HasBought && ts.InitialTokens != nil && *ts.InitialTokens > 0 && ev.TokensCurve.IsPositive() {
		fill := 1 - ev.TokensCurve.InexactFloat64()/(*ts.InitialTokens)
		if fill >= e.cfg.MigrateFillPct {
			e.sellAndSettle(ts, ev.Mint, ev.Symbol, price, now, types.ReasonTP)
			return
		}
	}

	// (n) adaptive trailing-stop exit.
	if ts.HasBought && !e.cfg.PureML {
		if e.adaptiveExit(ts, ev.Mint, ev.Symbol, price, now) {
			return
		}
	}
}

// maybeProbeDevExit kicks off an async devexit probe, enforcing at most
// one in-flight probe per token and a 15s minimum gap between probes.
func (e *StrategyEngine) maybeProbeDevExit(ctx context.Context, ts *TokenState, now time.Time) {
	if ts.DevSold || ts.DevProbeInFlight || e.devProber == nil {
		return
	}
	if ts.NextDevCheck != nil && now.Before(*ts.NextDevCheck) {
		return
	}

	next := now.Add(15 * time.Second)
	ts.NextDevCheck = &next
	ts.DevProbeInFlight = true

	mint, dev := ts.Mint, ts.DevWallet
	go func() {
		exited := e.devProber.HasExited(ctx, mint, dev)
		select {
		case e.devResultCh <- devProbeCompletion{mint: mint, exited: exited}:
		case <-ctx.Done():
		}
	}()
}

// heuristicEntry implements step (k): age check, liquidity/volume floor,
// dev-blacklist check, momentum-floor check, and the exceptional-momentum
// breakout. Returns true if a position was opened (and the event's
// processing should stop).
func (e *StrategyEngine) heuristicEntry(ts *TokenState, ev types.PriceEvent, price float64, now time.Time, feats gbm.FeatureVector) bool {
	if now.Sub(ts.CreatedAt) > e.cfg.TokenMaxAge {
		log.Debug().Str("mint", string(ev.Mint)).Msg("engine: untrack, aged out before entry")
		e.untrack(ev.Mint)
		return true
	}

	if ts.Liquidity < e.cfg.MinLiquiditySol.InexactFloat64() || ts.VolumeSol < e.cfg.MinVolumeSol.InexactFloat64() {
		return false
	}

	if expiry, blacklisted := e.state.DevBlacklist[ts.DevWallet]; blacklisted && now.Before(expiry) {
		return false
	}

	tps := ts.Window.TPS()
	uniqueWallets := ts.Window.UniqueWallets()
	avgSol := ts.Window.AvgSol().InexactFloat64()
	if tps < e.cfg.MinTPS || uniqueWallets < e.cfg.MinUniqueWallets || avgSol > e.cfg.MaxAvgSolPerTx.InexactFloat64() {
		return false
	}

	if math.IsInf(ts.LowestPrice, 1) || ts.LowestPrice <= 0 {
		return false
	}
	rise := price/ts.LowestPrice - 1
	if rise >= e.cfg.ExceptionalMomentumPct {
		e.openPosition(ts, ev.Mint, ev.Symbol, price, now, feats, true)
		return true
	}
	return false
}

// adaptiveExit implements step (n)'s three SELL branches in order.
// Returns true if the position was settled.
func (e *StrategyEngine) adaptiveExit(ts *TokenState, mint types.TokenId, symbol string, price float64, now time.Time) bool {
	entry := *ts.EntryPrice
	if price > *ts.PeakSinceEntry {
		*ts.PeakSinceEntry = price
	}
	peak := *ts.PeakSinceEntry

	pnl := price/entry - 1
	if e.cfg.TakeProfit != nil && pnl >= *e.cfg.TakeProfit {
		e.sellAndSettle(ts, mint, symbol, price, now, types.ReasonTP)
		return true
	}

	gainPct := peak/entry - 1
	tps := ts.Window.TPS()

	extraTrail := clamp((tps/e.cfg.MinTPS-1)*e.cfg.TPSTrailScale, 0, 0.3)
	gainTrail := math.Min(0.5, 0.1+gainPct*0.1)
	dynTrail := e.cfg.BaseTrailDD + extraTrail + gainTrail
	if ts.IsExceptional {
		dynTrail += 0.1
	}

	absTrail := ts.ATR.Value() * e.cfg.ATRMult
	allowedDrop := math.Max(absTrail, peak*dynTrail)

	emaShort, emaLong := 0.0, 0.0
	if ts.EMA.Short != nil {
		emaShort = *ts.EMA.Short
	}
	if ts.EMA.Long != nil {
		emaLong = *ts.EMA.Long
	}

	switch {
	case gainPct < e.cfg.DisableEMATPSGainPct && emaShort < emaLong:
		e.sellAndSettle(ts, mint, symbol, price, now, types.ReasonSL)
		return true
	case gainPct < tpsCollapseGainThreshold && tps < e.cfg.ExitTPS:
		e.sellAndSettle(ts, mint, symbol, price, now, types.ReasonSL)
		return true
	case price <= peak-allowedDrop:
		e.sellAndSettle(ts, mint, symbol, price, now, types.ReasonSL)
		return true
	}
	return false
}

// openPosition implements §4.8's open path: set entry bookkeeping,
// cancel the no-buy timer, blacklist the dev wallet, and emit BUY.
func (e *StrategyEngine) openPosition(ts *TokenState, mint types.TokenId, symbol string, price float64, now time.Time, feats gbm.FeatureVector, exceptional bool) {
	entryPrice := price
	entrySol := e.cfg.TradeSizeSol.InexactFloat64()
	ts.EntryPrice = &entryPrice
	ts.EntrySol = &entrySol
	peak := price
	ts.PeakSinceEntry = &peak
	featsCopy := feats
	ts.EntryFeatures = &featsCopy
	ts.HasBought = true
	ts.IsExceptional = exceptional
	ts.cancelNoBuyTimer()

	e.state.InvestedSol += entrySol
	e.state.TotalInvestedSol += entrySol
	e.state.DevBlacklist[ts.DevWallet] = now.Add(e.cfg.DevBlacklistSec)
	e.persistDevHistory(ts.DevWallet)

	sig := types.TradeSignal{Mint: mint, Action: types.ActionBuy, Symbol: symbol, Price: decimal.NewFromFloat(price), Time: now}
	e.emitSignal(sig)

	log.Info().Str("mint", string(mint)).Float64("price", price).Bool("exceptional", exceptional).Msg("engine: BUY")
}

// sellAndSettle implements §4.8's settle path: compute realized PnL,
// update running scalars, persist the ledger row, emit SELL and a PnL
// update, then untrack.
func (e *StrategyEngine) sellAndSettle(ts *TokenState, mint types.TokenId, symbol string, exitPrice float64, now time.Time, reason types.Reason) {
	entryPrice := *ts.EntryPrice
	entrySol := *ts.EntrySol
	pnlSol := entrySol * (exitPrice - entryPrice) / entryPrice

	e.state.ProfitSol += pnlSol
	e.state.InvestedSol -= entrySol
	if e.state.InvestedSol < 0 {
		e.state.InvestedSol = 0
	}
	metrics.ProfitSol.Set(e.state.ProfitSol)

	sig := types.TradeSignal{Mint: mint, Action: types.ActionSell, Reason: reason, Symbol: symbol, Price: decimal.NewFromFloat(exitPrice), Time: now}
	e.emitSignal(sig)

	if e.pnl != nil {
		e.pnl.Publish(types.PnLUpdate{
			Mint:      mint,
			PnLSol:    decimal.NewFromFloat(pnlSol),
			ProfitSol: decimal.NewFromFloat(e.state.ProfitSol),
			Time:      now,
		})
	}

	if e.persistence != nil {
		_ = e.persistence.RecordSettlement(persist.Settlement{
			Mint:       string(mint),
			EntrySol:   decimal.NewFromFloat(entrySol),
			EntryPrice: decimal.NewFromFloat(entryPrice),
			ExitPrice:  decimal.NewFromFloat(exitPrice),
			PnLSol:     decimal.NewFromFloat(pnlSol),
			Reason:     string(reason),
			SettledAt:  now,
		})
	}

	log.Info().Str("mint", string(mint)).Str("reason", string(reason)).Float64("pnl_sol", pnlSol).Msg("engine: SELL")

	e.untrack(mint)
}

// emitSignal forwards a signal to the configured sink, logging and
// tolerating a submission error rather than blocking the event loop.
func (e *StrategyEngine) emitSignal(sig types.TradeSignal) {
	if e.signals == nil {
		return
	}
	sig.SignalID = uuid.NewString()
	if err := e.signals.Submit(sig); err != nil {
		log.Error().Err(err).Str("mint", string(sig.Mint)).Msg("engine: signal submission failed")
	}
	metrics.SignalsTotal.WithLabelValues(string(sig.Action), string(sig.Reason)).Inc()
}

// logFeatures appends a feature-log line if feature logging is enabled.
func (e *StrategyEngine) logFeatures(ts *TokenState, mint types.TokenId, now time.Time, feats gbm.FeatureVector) {
	if e.features == nil || !e.cfg.FeatureLogging {
		return
	}
	e.features.AppendFeature(featurestore.FeatureRecord{
		Ts:             now,
		Mint:           mint,
		Features:       feats,
		HasBought:      ts.HasBought,
		RiskChecked:    ts.RiskChecked,
		IsBundler:      ts.IsBundler,
		TransferFeeBps: ts.TransferFeeBps,
	})
}

// logPrediction appends a prediction-log line if prediction logging is
// enabled.
func (e *StrategyEngine) logPrediction(mint types.TokenId, now time.Time, stage string, score, threshold float64, acted bool) {
	if e.predictions == nil || !e.cfg.PredLogging {
		return
	}
	e.predictions.AppendPrediction(featurestore.PredictionRecord{
		Ts:        now,
		Mint:      mint,
		Stage:     stage,
		Score:     score,
		Threshold: threshold,
		Acted:     acted,
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func indicatorsMeanGap(window time.Duration, tradeCount int) float64 {
	return indicators.MeanInterTradeGapMs(float64(window.Milliseconds()), tradeCount)
}
