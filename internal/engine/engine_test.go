package engine

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/curvesniper/internal/config"
	"github.com/web3guy0/curvesniper/internal/gbm"
	"github.com/web3guy0/curvesniper/internal/risk"
	"github.com/web3guy0/curvesniper/internal/types"
)

// loadConstantModel builds a one-leaf tree dump on disk so Predict returns
// score for any feature vector, without needing to reach into gbm's
// unexported node type.
func loadConstantModel(t *testing.T, score float64) *gbm.Model {
	t.Helper()
	initScore := math.Log(score / (1 - score))
	dump := map[string]any{
		"init_score": initScore,
		"num_trees":  1,
		"tree_info": []map[string]any{
			{"tree_structure": map[string]any{"leaf_value": 0.0}},
		},
	}
	raw, err := json.Marshal(dump)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	m, err := gbm.Load(path)
	require.NoError(t, err)
	return m
}

type fakeSink struct {
	sigs []types.TradeSignal
}

func (f *fakeSink) Submit(sig types.TradeSignal) error {
	f.sigs = append(f.sigs, sig)
	return nil
}

func (f *fakeSink) buys() int {
	n := 0
	for _, s := range f.sigs {
		if s.Action == types.ActionBuy {
			n++
		}
	}
	return n
}

func (f *fakeSink) sells() int {
	n := 0
	for _, s := range f.sigs {
		if s.Action == types.ActionSell {
			n++
		}
	}
	return n
}

type fakePnL struct {
	updates []types.PnLUpdate
}

func (f *fakePnL) Publish(u types.PnLUpdate) { f.updates = append(f.updates, u) }

func baseCfg() config.SnipeConfig {
	c := config.Default()
	c.EMAShort = 30 * time.Second
	c.EMALong = 120 * time.Second
	c.RequireDevSold = false         // isolated from the async dev-probe subsystem in these tests
	c.MinRuntimeMcapSol = decimal.Zero // test fixtures use small, mcap-scale liquidity numbers
	return c
}

func newTestEngine(cfg config.SnipeConfig) (*StrategyEngine, *fakeSink, *fakePnL) {
	sink := &fakeSink{}
	pnl := &fakePnL{}
	e := New(cfg, nil, nil, nil, nil, nil, nil, nil, sink, pnl, nil, nil)
	return e, sink, pnl
}

func poolEvent(mint types.TokenId, dev types.WalletId, symbol string, createdAt time.Time, mcap float64) types.PoolEvent {
	return types.PoolEvent{
		Mint:        mint,
		CreatedAt:   createdAt,
		InitialMcap: decimal.NewFromFloat(mcap),
		Symbol:      symbol,
		DevWallet:   dev,
	}
}

func priceEvent(mint types.TokenId, price, liquidity, sol float64, wallet types.WalletId, side types.Side, ts time.Time) types.PriceEvent {
	return types.PriceEvent{
		Mint:      mint,
		Price:     decimal.NewFromFloat(price),
		Liquidity: decimal.NewFromFloat(liquidity),
		Sol:       decimal.NewFromFloat(sol),
		Wallet:    wallet,
		Side:      side,
		Timestamp: ts,
	}
}

// TestAdmission_PropertiesOnAdmit covers testable property 1.
func TestAdmission_PropertiesOnAdmit(t *testing.T) {
	cfg := baseCfg()
	e, _, _ := newTestEngine(cfg)
	now := time.Unix(0, 0)
	e.Clock = func() time.Time { return now }

	ev := poolEvent("MINT1", "DEV1", "AAA", now, 10)
	e.handlePoolEvent(context.Background(), ev)

	ts, ok := e.state.States["MINT1"]
	require.True(t, ok)
	require.True(t, ts.CreatedAt.Equal(now))
	require.InDelta(t, 10, ts.Liquidity, 1e-9)
	require.True(t, math.IsInf(ts.LowestPrice, 1))
	require.False(t, ts.HasBought)
}

// TestAdmission_Idempotent covers testable property 9.
func TestAdmission_Idempotent(t *testing.T) {
	cfg := baseCfg()
	e, _, _ := newTestEngine(cfg)
	now := time.Unix(0, 0)
	e.Clock = func() time.Time { return now }

	ev := poolEvent("MINT1", "DEV1", "AAA", now, 10)
	e.handlePoolEvent(context.Background(), ev)
	first := e.state.States["MINT1"]

	e.handlePoolEvent(context.Background(), ev)
	require.Len(t, e.state.States, 1)
	require.Same(t, first, e.state.States["MINT1"])
}

// TestScenario_S1_HeuristicBuyThenTakeProfit covers spec scenario S1.
func TestScenario_S1_HeuristicBuyThenTakeProfit(t *testing.T) {
	cfg := baseCfg()
	tp := 0.9
	cfg.TakeProfit = &tp
	cfg.ExceptionalMomentumPct = 2.0
	cfg.TradeSizeSol = decimal.NewFromFloat(0.5)

	e, sink, pnl := newTestEngine(cfg)
	base := time.Unix(0, 0)
	e.Clock = func() time.Time { return base }

	dev := types.WalletId("DEV1")
	e.state.DevTokenCount[dev] = 1 // devFirstToken = false

	pool := poolEvent("MINT1", dev, "AAA", base, 10)
	e.handlePoolEvent(context.Background(), pool)
	ts := e.state.States["MINT1"]
	ts.RiskChecked = true

	ctx := context.Background()

	// p=1 @ t=5 establishes lowestPrice.
	e.handlePriceEvent(ctx, priceEvent("MINT1", 1, 50, 0.01, "w0", types.SideBuy, base.Add(5*time.Second)))

	// Burst of trades between t=5.2s and t=8.8s to push tps above the floor.
	start := base.Add(5200 * time.Millisecond)
	for i := 0; i < 25; i++ {
		ets := start.Add(time.Duration(i) * 150 * time.Millisecond)
		wallet := types.WalletId("burst")
		e.handlePriceEvent(ctx, priceEvent("MINT1", 1, 50, 0.01, wallet, types.SideBuy, ets))
	}

	// p=3.5 @ t=9: rise = 3.5/1 - 1 = 2.5 >= 2.0 -> exceptional heuristic BUY.
	e.handlePriceEvent(ctx, priceEvent("MINT1", 3.5, 50, 0.01, "w1", types.SideBuy, base.Add(9*time.Second)))
	require.Equal(t, 1, sink.buys())
	require.True(t, e.state.States["MINT1"].HasBought)
	require.InDelta(t, 3.5, *e.state.States["MINT1"].EntryPrice, 1e-9)

	// p=6.65 @ t=20: pnl = 6.65/3.5 - 1 = 0.9 -> TP.
	e.handlePriceEvent(ctx, priceEvent("MINT1", 6.65, 50, 0.01, "w2", types.SideBuy, base.Add(20*time.Second)))

	require.Equal(t, 1, sink.sells())
	require.Equal(t, types.ReasonTP, sink.sigs[len(sink.sigs)-1].Reason)
	_, tracked := e.state.States["MINT1"]
	require.False(t, tracked) // property 3: SELL always untracks

	profit, _, _ := e.Snapshot()
	require.InDelta(t, 0.45, profit.InexactFloat64(), 1e-6) // property 5
	require.Len(t, pnl.updates, 1)
}

// TestScenario_S2_RugSL covers spec scenario S2.
func TestScenario_S2_RugSL(t *testing.T) {
	cfg := baseCfg()
	cfg.ExceptionalMomentumPct = 2.0

	e, sink, _ := newTestEngine(cfg)
	base := time.Unix(0, 0)
	e.Clock = func() time.Time { return base }

	dev := types.WalletId("DEV1")
	e.state.DevTokenCount[dev] = 1

	pool := poolEvent("MINT1", dev, "AAA", base, 10)
	e.handlePoolEvent(context.Background(), pool)
	ts := e.state.States["MINT1"]
	ts.RiskChecked = true

	ctx := context.Background()
	e.handlePriceEvent(ctx, priceEvent("MINT1", 1, 10, 0.01, "w0", types.SideBuy, base.Add(5*time.Second)))

	start := base.Add(5200 * time.Millisecond)
	for i := 0; i < 25; i++ {
		ets := start.Add(time.Duration(i) * 150 * time.Millisecond)
		e.handlePriceEvent(ctx, priceEvent("MINT1", 1, 10, 0.01, types.WalletId("burst"), types.SideBuy, ets))
	}
	e.handlePriceEvent(ctx, priceEvent("MINT1", 3.5, 10, 0.01, "w1", types.SideBuy, base.Add(9*time.Second)))
	require.True(t, e.state.States["MINT1"].HasBought)
	require.InDelta(t, 10, e.state.States["MINT1"].PeakLiquidity, 1e-9)

	// liquidity=5.9 < peakLiquidity(10)*0.6=6 -> rug SL at the trade's price.
	e.handlePriceEvent(ctx, priceEvent("MINT1", 3.5, 5.9, 0.01, "w2", types.SideBuy, base.Add(10*time.Second)))

	require.Equal(t, 1, sink.sells())
	last := sink.sigs[len(sink.sigs)-1]
	require.Equal(t, types.ReasonSL, last.Reason)
	require.InDelta(t, 3.5, last.Price.InexactFloat64(), 1e-9)
	_, tracked := e.state.States["MINT1"]
	require.False(t, tracked)
}

// TestScenario_S3_RiskRejectionByFee covers spec scenario S3.
func TestScenario_S3_RiskRejectionByFee(t *testing.T) {
	cfg := baseCfg()
	cfg.MaxTransferFeeBps = 0
	cfg.EnableTaxBundlerFilter = true

	e, sink, _ := newTestEngine(cfg)
	base := time.Unix(0, 0)
	e.Clock = func() time.Time { return base }

	ev := poolEvent("MINT1", "DEV1", "AAA", base, 10)
	e.handlePoolEvent(context.Background(), ev)
	_, ok := e.state.States["MINT1"]
	require.True(t, ok)

	fee := 100
	e.handleRiskResult(riskCompletion{mint: "MINT1", result: risk.Result{FeeBps: &fee, Bundler: false}})

	_, stillTracked := e.state.States["MINT1"]
	require.False(t, stillTracked)
	require.Equal(t, 0, sink.buys())
}

// TestScenario_S4_NoBuyTimeout covers spec scenario S4.
func TestScenario_S4_NoBuyTimeout(t *testing.T) {
	cfg := baseCfg()
	e, sink, _ := newTestEngine(cfg)
	base := time.Unix(0, 0)
	e.Clock = func() time.Time { return base }

	ev := poolEvent("MINT1", "DEV1", "AAA", base, 10)
	e.handlePoolEvent(context.Background(), ev)
	ts := e.state.States["MINT1"]
	ts.cancelNoBuyTimer() // avoid a live 60s timer firing into a closed test process

	e.handleTimer(context.Background(), timerFire{mint: "MINT1"})

	_, tracked := e.state.States["MINT1"]
	require.False(t, tracked)
	require.Equal(t, 0, len(sink.sigs))
}

// TestScenario_S5_MigrationExit covers spec scenario S5.
func TestScenario_S5_MigrationExit(t *testing.T) {
	cfg := baseCfg()
	e, sink, _ := newTestEngine(cfg)
	base := time.Unix(0, 0)
	e.Clock = func() time.Time { return base }
	e.state.DevTokenCount["DEV1"] = 1 // devFirstToken = false

	ev := poolEvent("MINT1", "DEV1", "AAA", base, 10)
	e.handlePoolEvent(context.Background(), ev)
	ts := e.state.States["MINT1"]
	ts.RiskChecked = true

	entryPrice := 1.0
	entrySol := 0.5
	ts.HasBought = true
	ts.EntryPrice = &entryPrice
	ts.EntrySol = &entrySol
	peak := 1.0
	ts.PeakSinceEntry = &peak
	initTokens := 1_000_000.0
	ts.InitialTokens = &initTokens

	ctx := context.Background()
	pe := priceEvent("MINT1", 1.0, 50, 0.01, "w1", types.SideBuy, base.Add(1*time.Second))
	pe.TokensCurve = decimal.NewFromFloat(20_000)
	e.handlePriceEvent(ctx, pe)

	require.Equal(t, 1, sink.sells())
	require.Equal(t, types.ReasonTP, sink.sigs[len(sink.sigs)-1].Reason)
}

// TestScenario_S6_PureMLReplacesHeuristic covers spec scenario S6.
func TestScenario_S6_PureMLReplacesHeuristic(t *testing.T) {
	cfg := baseCfg()
	cfg.LGBMEnabled = true
	cfg.PureML = true
	cfg.LGBMThresholdBuy = 0.5
	cfg.LGBMThresholdSell = 0.5

	e, sink, _ := newTestEngine(cfg)
	e.buyModel = loadConstantModel(t, 0.8)
	e.sellModel = loadConstantModel(t, 0.9)

	base := time.Unix(0, 0)
	e.Clock = func() time.Time { return base }
	e.state.DevTokenCount["DEV1"] = 1 // devFirstToken = false

	ev := poolEvent("MINT1", "DEV1", "AAA", base, 10)
	e.handlePoolEvent(context.Background(), ev)
	ts := e.state.States["MINT1"]
	ts.RiskChecked = true

	ctx := context.Background()
	e.handlePriceEvent(ctx, priceEvent("MINT1", 1, 50, 0.01, "w0", types.SideBuy, base.Add(1*time.Second)))
	require.Equal(t, 1, sink.buys())
	require.True(t, e.state.States["MINT1"].HasBought)

	e.handlePriceEvent(ctx, priceEvent("MINT1", 1.1, 50, 0.01, "w1", types.SideBuy, base.Add(2*time.Second)))
	require.Equal(t, 1, sink.sells())
	require.Equal(t, types.ReasonTP, sink.sigs[len(sink.sigs)-1].Reason)
}

// TestExtrema_NonDecreasingNonIncreasing covers testable property 4.
func TestExtrema_NonDecreasingNonIncreasing(t *testing.T) {
	cfg := baseCfg()
	e, _, _ := newTestEngine(cfg)
	base := time.Unix(0, 0)
	e.Clock = func() time.Time { return base }
	e.state.DevTokenCount["DEV1"] = 1 // devFirstToken = false, avoids the unrelated skip-first-token gate

	ev := poolEvent("MINT1", "DEV1", "AAA", base, 10)
	e.handlePoolEvent(context.Background(), ev)
	ts := e.state.States["MINT1"]
	ts.RiskChecked = true

	ctx := context.Background()
	prices := []float64{1, 2, 1.5, 3, 0.5, 4}
	var lastHigh, lastLow float64
	lastLow = math.Inf(1)
	for i, p := range prices {
		e.handlePriceEvent(ctx, priceEvent("MINT1", p, 50, 0.01, types.WalletId("w"), types.SideBuy, base.Add(time.Duration(i)*time.Second)))
		cur, ok := e.state.States["MINT1"]
		require.True(t, ok)
		require.GreaterOrEqual(t, cur.HighestPrice, lastHigh)
		require.LessOrEqual(t, cur.LowestPrice, lastLow)
		lastHigh = cur.HighestPrice
		lastLow = cur.LowestPrice
	}
}
