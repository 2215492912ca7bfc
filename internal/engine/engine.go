// Package engine is the strategy engine: a single-goroutine event loop
// that admits newly created bonding-curve tokens, tracks their rolling
// momentum features, and emits BUY/SELL trade signals.
//
// ═══════════════════════════════════════════════════════════════════════
// ENGINE - admission → feature update → entry/exit → settle
// ═══════════════════════════════════════════════════════════════════════
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/curvesniper/internal/config"
	"github.com/web3guy0/curvesniper/internal/devexit"
	"github.com/web3guy0/curvesniper/internal/featurestore"
	"github.com/web3guy0/curvesniper/internal/gbm"
	"github.com/web3guy0/curvesniper/internal/indicators"
	"github.com/web3guy0/curvesniper/internal/metrics"
	"github.com/web3guy0/curvesniper/internal/persist"
	"github.com/web3guy0/curvesniper/internal/risk"
	"github.com/web3guy0/curvesniper/internal/rolling"
	"github.com/web3guy0/curvesniper/internal/types"
)

// SignalSink receives emitted trade signals. A real adapter forwards them
// to an execution venue; tests can swap in a recording fake.
type SignalSink interface {
	Submit(types.TradeSignal) error
}

// PnLSink receives realized PnL updates after every settle.
type PnLSink interface {
	Publish(types.PnLUpdate)
}

// PriceSubscriber lets the engine narrow the upstream price-event stream
// down to admitted mints, so the ingest source doesn't have to fan out
// every trade on the chain. Wiring this is optional; a nil PriceSubscriber
// leaves the price source to decide its own subscription scope.
type PriceSubscriber interface {
	Subscribe(mint types.TokenId)
	Unsubscribe(mint types.TokenId)
}

// riskCompletion is how an async Assessor.Assess call re-enters the loop.
type riskCompletion struct {
	mint   types.TokenId
	result risk.Result
}

// devProbeCompletion is how an async devexit.HasExited call re-enters.
type devProbeCompletion struct {
	mint   types.TokenId
	exited bool
}

// timerFire is how the no-buy auto-untrack timer re-enters the loop.
type timerFire struct {
	mint types.TokenId
}

// StrategyEngine is the central orchestrator. All of its state (the
// EngineState map, dev-wallet bookkeeping, running PnL scalars) is
// touched only from the goroutine running Run; everything else
// communicates with it exclusively through channels.
type StrategyEngine struct {
	cfg config.SnipeConfig

	state *EngineState

	riskAssessor *risk.Assessor
	devProber    *devexit.Prober
	buyModel     *gbm.Model
	sellModel    *gbm.Model
	features     *featurestore.Store
	predictions  *featurestore.Store
	persistence  *persist.Store

	signals SignalSink
	pnl     PnLSink

	// PriceSubscriber is optional; set it after New returns, before Run is
	// started, to narrow the upstream price stream to admitted mints.
	PriceSubscriber PriceSubscriber

	poolCh  <-chan types.PoolEvent
	priceCh <-chan types.PriceEvent

	riskResultCh chan riskCompletion
	devResultCh  chan devProbeCompletion
	timerCh      chan timerFire

	// checkpointTicker periodically persists the running PnL scalars; nil
	// when persistence is nil.
	checkpointTicker *time.Ticker

	// Clock returns "now" at pool-admission time. Defaults to time.Now;
	// overridden in tests. Price-event-relative logic instead uses the
	// event's own Timestamp field, matching a live feed where the event
	// arriving IS "now".
	Clock func() time.Time
}

// checkpointInterval is how often Run persists profitSol/investedSol so a
// restart resumes close to where it left off.
const checkpointInterval = 30 * time.Second

// New builds a StrategyEngine. buyModel/sellModel may be nil (heuristic
// only). The pool/price channels are owned by the caller's ingest
// adapters; StrategyEngine only ever reads from them.
func New(
	cfg config.SnipeConfig,
	riskAssessor *risk.Assessor,
	devProber *devexit.Prober,
	buyModel, sellModel *gbm.Model,
	features, predictions *featurestore.Store,
	persistence *persist.Store,
	signals SignalSink,
	pnl PnLSink,
	poolCh <-chan types.PoolEvent,
	priceCh <-chan types.PriceEvent,
) *StrategyEngine {
	e := &StrategyEngine{
		cfg:          cfg,
		state:        newEngineState(),
		riskAssessor: riskAssessor,
		devProber:    devProber,
		buyModel:     buyModel,
		sellModel:    sellModel,
		features:     features,
		predictions:  predictions,
		persistence:  persistence,
		signals:      signals,
		pnl:          pnl,
		poolCh:       poolCh,
		priceCh:      priceCh,
		riskResultCh: make(chan riskCompletion, 64),
		devResultCh:  make(chan devProbeCompletion, 64),
		timerCh:      make(chan timerFire, 64),
		Clock:        time.Now,
	}
	if persistence != nil {
		e.checkpointTicker = time.NewTicker(checkpointInterval)
		e.rehydrate()
	}
	return e
}

// rehydrate loads dev history and the last PnL checkpoint from persistence
// so a restart doesn't re-admit every dev wallet at zero history or zero
// out the running scalars.
func (e *StrategyEngine) rehydrate() {
	histories, err := e.persistence.LoadDevHistories()
	if err != nil {
		log.Error().Err(err).Msg("engine: failed to load dev history, starting cold")
	} else {
		for _, h := range histories {
			wallet := types.WalletId(h.Wallet)
			e.state.DevTokenCount[wallet] = h.TokenCount
			if h.LastTicker != "" {
				e.state.DevLastTicker[wallet] = h.LastTicker
			}
			if h.BlacklistExpiry != nil {
				e.state.DevBlacklist[wallet] = *h.BlacklistExpiry
			}
		}
		log.Info().Int("count", len(histories)).Msg("engine: rehydrated dev history")
	}

	snap, err := e.persistence.LatestSnapshot()
	if err != nil {
		log.Error().Err(err).Msg("engine: failed to load latest snapshot, starting cold")
		return
	}
	if snap != nil {
		e.state.ProfitSol = snap.ProfitSol.InexactFloat64()
		e.state.InvestedSol = snap.InvestedSol.InexactFloat64()
		e.state.TotalInvestedSol = snap.TotalInvestedSol.InexactFloat64()
		log.Info().Float64("profit_sol", e.state.ProfitSol).Msg("engine: rehydrated PnL scalars")
	}
}

// persistDevHistory write-throughs the current view of wallet's history.
// Called after every mutation of DevTokenCount/DevLastTicker/DevBlacklist.
func (e *StrategyEngine) persistDevHistory(wallet types.WalletId) {
	if e.persistence == nil {
		return
	}
	h := persist.DevHistory{
		Wallet:     string(wallet),
		TokenCount: e.state.DevTokenCount[wallet],
		LastTicker: e.state.DevLastTicker[wallet],
	}
	if expiry, ok := e.state.DevBlacklist[wallet]; ok {
		h.BlacklistExpiry = &expiry
	}
	if err := e.persistence.UpsertDevHistory(h); err != nil {
		log.Error().Err(err).Str("dev", string(wallet)).Msg("engine: dev history write-through failed")
	}
}

// checkpoint persists the current running PnL scalars.
func (e *StrategyEngine) checkpoint() {
	if e.persistence == nil {
		return
	}
	snap := persist.EngineSnapshot{
		ProfitSol:        decimal.NewFromFloat(e.state.ProfitSol),
		InvestedSol:      decimal.NewFromFloat(e.state.InvestedSol),
		TotalInvestedSol: decimal.NewFromFloat(e.state.TotalInvestedSol),
		TakenAt:          e.Clock(),
	}
	if err := e.persistence.Checkpoint(snap); err != nil {
		log.Error().Err(err).Msg("engine: checkpoint failed")
	}
}

// Snapshot returns a read view of the running scalars, safe to call from
// another goroutine only AFTER Run has returned (e.g. for a final report);
// during a live run, prefer the periodic checkpoints persistence writes.
func (e *StrategyEngine) Snapshot() (profitSol, investedSol, totalInvestedSol decimal.Decimal) {
	return decimal.NewFromFloat(e.state.ProfitSol), decimal.NewFromFloat(e.state.InvestedSol), decimal.NewFromFloat(e.state.TotalInvestedSol)
}

// TrackedCount reports the number of actively tracked tokens.
func (e *StrategyEngine) TrackedCount() int { return len(e.state.States) }

// Run drives the single-threaded event loop until ctx is cancelled.
func (e *StrategyEngine) Run(ctx context.Context) {
	log.Info().Msg("engine: started")

	var checkpointCh <-chan time.Time
	if e.checkpointTicker != nil {
		checkpointCh = e.checkpointTicker.C
		defer e.checkpointTicker.Stop()
	}

	// handle runs one event handler, recovering and logging a panic so a
	// single bad event cannot stop the loop.
	handle := func(kind string, f func()) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("event", kind).Msg("engine: recovered from panic in event handler")
			}
		}()
		f()
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("engine: stopped")
			return

		case <-checkpointCh:
			e.checkpoint()

		case ev, ok := <-e.poolCh:
			if !ok {
				e.poolCh = nil
				continue
			}
			handle("pool", func() { e.handlePoolEvent(ctx, ev) })

		case ev, ok := <-e.priceCh:
			if !ok {
				e.priceCh = nil
				continue
			}
			handle("price", func() { e.handlePriceEvent(ctx, ev) })

		case rc := <-e.riskResultCh:
			handle("risk", func() { e.handleRiskResult(rc) })

		case dc := <-e.devResultCh:
			handle("devexit", func() { e.handleDevProbeResult(dc) })

		case tf := <-e.timerCh:
			handle("timer", func() { e.handleTimer(ctx, tf) })
		}
	}
}

// handlePoolEvent implements admission.
func (e *StrategyEngine) handlePoolEvent(ctx context.Context, ev types.PoolEvent) {
	now := e.Clock()

	prevTicker := e.state.DevLastTicker[ev.DevWallet]
	tickerMatch := e.cfg.SkipDevSameTicker && prevTicker != "" && strings.EqualFold(prevTicker, ev.Symbol)
	e.state.DevLastTicker[ev.DevWallet] = ev.Symbol
	e.persistDevHistory(ev.DevWallet)
	if tickerMatch {
		log.Debug().Str("mint", string(ev.Mint)).Str("dev", string(ev.DevWallet)).Msg("engine: reject, same ticker as dev's prior launch")
		metrics.AdmissionRejectionsTotal.WithLabelValues("same_ticker").Inc()
		return
	}

	if now.Sub(ev.CreatedAt) > e.cfg.TokenMaxAge {
		log.Debug().Str("mint", string(ev.Mint)).Msg("engine: reject, already past max age at admission")
		metrics.AdmissionRejectionsTotal.WithLabelValues("max_age").Inc()
		return
	}

	if ev.InitialMcap.LessThan(e.cfg.MinInitialMcap) {
		log.Debug().Str("mint", string(ev.Mint)).Msg("engine: reject, initial mcap below floor")
		metrics.AdmissionRejectionsTotal.WithLabelValues("mcap_floor").Inc()
		return
	}
	if e.cfg.MaxInitialLiquiditySol != nil && ev.InitialMcap.GreaterThan(*e.cfg.MaxInitialLiquiditySol) {
		log.Debug().Str("mint", string(ev.Mint)).Msg("engine: reject, initial mcap above ceiling")
		metrics.AdmissionRejectionsTotal.WithLabelValues("mcap_ceiling").Inc()
		return
	}

	if _, already := e.state.States[ev.Mint]; already {
		return
	}

	devFirstToken := e.state.DevTokenCount[ev.DevWallet] == 0
	e.state.DevTokenCount[ev.DevWallet]++
	e.persistDevHistory(ev.DevWallet)

	window := rolling.New(e.cfg.TPSWindow)
	ema := indicators.NewEMAPair(float64(e.cfg.EMAShort.Milliseconds()), float64(e.cfg.EMALong.Milliseconds()))
	atr := indicators.NewATR(e.cfg.ATRWindow.Seconds())
	ts := newTokenState(ev, devFirstToken, window, ema, atr)
	e.state.States[ev.Mint] = ts
	metrics.TokensTracked.Set(float64(len(e.state.States)))

	if e.PriceSubscriber != nil {
		e.PriceSubscriber.Subscribe(ev.Mint)
	}

	ts.NoBuyTimer = time.AfterFunc(e.cfg.NoTradeTimeoutSec, func() {
		select {
		case e.timerCh <- timerFire{mint: ev.Mint}:
		case <-ctx.Done():
		}
	})

	if !e.cfg.EnableTaxBundlerFilter {
		ts.RiskChecked = true
	} else if e.riskAssessor != nil {
		mint, createTx := ev.Mint, ev.Signature
		go func() {
			result := e.riskAssessor.Assess(ctx, mint, createTx)
			metrics.RiskInFlight.Set(float64(e.riskAssessor.InFlight()))
			select {
			case e.riskResultCh <- riskCompletion{mint: mint, result: result}:
			case <-ctx.Done():
			}
		}()
	} else {
		ts.RiskChecked = true
	}

	log.Info().Str("mint", string(ev.Mint)).Str("symbol", ev.Symbol).Msg("engine: admitted")
}

// handleRiskResult folds an async Assess() outcome into its TokenState.
func (e *StrategyEngine) handleRiskResult(rc riskCompletion) {
	ts, ok := e.state.States[rc.mint]
	if !ok {
		return
	}

	ts.TransferFeeBps = rc.result.FeeBps
	ts.IsBundler = rc.result.Bundler
	ts.RiskChecked = true

	feeBps := 0
	if rc.result.FeeBps != nil {
		feeBps = *rc.result.FeeBps
	}
	if feeBps > e.cfg.MaxTransferFeeBps || (rc.result.Bundler && !e.cfg.AllowBundler) {
		log.Info().Str("mint", string(rc.mint)).Int("fee_bps", feeBps).Bool("bundler", rc.result.Bundler).Msg("engine: untrack, risk probe rejected")
		e.untrack(rc.mint)
	}
}

// handleDevProbeResult folds an async HasExited() outcome into its
// TokenState, allowing the next probe after the cooldown elapses.
func (e *StrategyEngine) handleDevProbeResult(dc devProbeCompletion) {
	ts, ok := e.state.States[dc.mint]
	if !ok {
		return
	}
	ts.DevProbeInFlight = false
	if dc.exited {
		ts.DevSold = true
	}
}

// handleTimer fires the no-buy auto-untrack timeout.
func (e *StrategyEngine) handleTimer(_ context.Context, tf timerFire) {
	ts, ok := e.state.States[tf.mint]
	if !ok {
		return
	}
	if !ts.HasBought {
		log.Debug().Str("mint", string(tf.mint)).Msg("engine: untrack, no-buy timeout")
		e.untrack(tf.mint)
	}
}

// untrack removes a token from active tracking and cancels its timer.
func (e *StrategyEngine) untrack(mint types.TokenId) {
	ts, ok := e.state.States[mint]
	if !ok {
		return
	}
	ts.cancelNoBuyTimer()
	delete(e.state.States, mint)
	metrics.TokensTracked.Set(float64(len(e.state.States)))
	if e.PriceSubscriber != nil {
		e.PriceSubscriber.Unsubscribe(mint)
	}
}

// TrackMint is the external control surface to force-admit a mint outside
// the normal pool-event flow (operator override); currently unused by the
// default wiring but kept for the execution console.
func (e *StrategyEngine) TrackMint(ev types.PoolEvent) {
	e.handlePoolEvent(context.Background(), ev)
}

// UntrackMint is the external control surface to force-drop a mint.
func (e *StrategyEngine) UntrackMint(mint types.TokenId) {
	e.untrack(mint)
}
