package engine

import (
	"math"
	"time"

	"github.com/web3guy0/curvesniper/internal/gbm"
	"github.com/web3guy0/curvesniper/internal/indicators"
	"github.com/web3guy0/curvesniper/internal/rolling"
	"github.com/web3guy0/curvesniper/internal/types"
)

// TokenState is the per-mint mutable record the engine keeps for every
// admitted token. A TokenState's presence in EngineState.States is, by
// definition, the engine's notion of "actively tracked".
type TokenState struct {
	Mint          types.TokenId
	Symbol        string
	DevWallet     types.WalletId
	CreatedAt     time.Time
	DevFirstToken bool

	RiskChecked    bool
	IsBundler      bool
	TransferFeeBps *int
	DevSold        bool
	HasBought      bool
	IsExceptional  bool

	HighestPrice   float64
	LowestPrice    float64
	PeakSinceEntry *float64

	Liquidity     float64
	PeakLiquidity float64

	VolumeSol float64

	Window *rolling.Window
	EMA    *indicators.EMAPair
	ATR    *indicators.ATR

	EntryPrice    *float64
	EntrySol      *float64
	EntryFeatures *gbm.FeatureVector

	InitialTokens *float64

	NoBuyTimer       *time.Timer
	NextDevCheck     *time.Time
	DevProbeInFlight bool
}

// newTokenState builds a fresh record for an admitted pool event.
func newTokenState(ev types.PoolEvent, devFirstToken bool, window *rolling.Window, ema *indicators.EMAPair, atr *indicators.ATR) *TokenState {
	return &TokenState{
		Mint:          ev.Mint,
		Symbol:        ev.Symbol,
		DevWallet:     ev.DevWallet,
		CreatedAt:     ev.CreatedAt,
		DevFirstToken: devFirstToken,
		HighestPrice:  0,
		LowestPrice:   math.Inf(1),
		Liquidity:     ev.InitialMcap.InexactFloat64(),
		PeakLiquidity: ev.InitialMcap.InexactFloat64(),
		Window:        window,
		EMA:           ema,
		ATR:           atr,
	}
}

// cancelNoBuyTimer stops the scheduled auto-untrack timer, if any.
func (t *TokenState) cancelNoBuyTimer() {
	if t.NoBuyTimer != nil {
		t.NoBuyTimer.Stop()
		t.NoBuyTimer = nil
	}
}

// EngineState is the singleton bookkeeping record: per-token states plus
// dev-wallet history and running PnL scalars. All mutation happens on the
// StrategyEngine's single event-loop goroutine.
type EngineState struct {
	States        map[types.TokenId]*TokenState
	DevTokenCount map[types.WalletId]int
	DevLastTicker map[types.WalletId]string
	DevBlacklist  map[types.WalletId]time.Time

	ProfitSol        float64
	InvestedSol      float64
	TotalInvestedSol float64
}

// newEngineState returns an empty EngineState.
func newEngineState() *EngineState {
	return &EngineState{
		States:        make(map[types.TokenId]*TokenState),
		DevTokenCount: make(map[types.WalletId]int),
		DevLastTicker: make(map[types.WalletId]string),
		DevBlacklist:  make(map[types.WalletId]time.Time),
	}
}
