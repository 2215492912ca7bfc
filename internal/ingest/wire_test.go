package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/web3guy0/curvesniper/internal/types"
)

func TestWirePoolEvent_DecodesValidFrame(t *testing.T) {
	w := wirePoolEvent{
		Mint:        "MINT1",
		CreatedAtMs: 1_700_000_000_000,
		InitialMcap: "12.5",
		Symbol:      "AAA",
		DevWallet:   "DEV1",
		Signature:   "SIG1",
	}
	ev, err := w.toPoolEvent()
	require.NoError(t, err)
	require.Equal(t, types.TokenId("MINT1"), ev.Mint)
	require.Equal(t, types.WalletId("DEV1"), ev.DevWallet)
	require.InDelta(t, 12.5, ev.InitialMcap.InexactFloat64(), 1e-9)
	require.True(t, ev.CreatedAt.Equal(time.UnixMilli(1_700_000_000_000)))
}

func TestWirePoolEvent_RejectsMissingMint(t *testing.T) {
	w := wirePoolEvent{InitialMcap: "1"}
	_, err := w.toPoolEvent()
	require.ErrorIs(t, err, types.ErrMalformedEvent)
}

func TestWirePoolEvent_RejectsUnparsableMcap(t *testing.T) {
	w := wirePoolEvent{Mint: "MINT1", InitialMcap: "not-a-number"}
	_, err := w.toPoolEvent()
	require.ErrorIs(t, err, types.ErrMalformedEvent)
}

func TestWirePriceEvent_DecodesValidFrame(t *testing.T) {
	w := wirePriceEvent{
		Mint:      "MINT1",
		Price:     "1.25",
		Liquidity: "40",
		Sol:       "0.1",
		Wallet:    "W1",
		Side:      "sell",
		TsMs:      1_700_000_000_000,
	}
	ev, err := w.toPriceEvent()
	require.NoError(t, err)
	require.Equal(t, types.SideSell, ev.Side)
	require.InDelta(t, 1.25, ev.Price.InexactFloat64(), 1e-9)
	require.InDelta(t, 40, ev.Liquidity.InexactFloat64(), 1e-9)
}

func TestWirePriceEvent_DefaultsSideToBuy(t *testing.T) {
	w := wirePriceEvent{Mint: "MINT1", Price: "1", Liquidity: "1", Sol: "0.1", Side: "bogus"}
	ev, err := w.toPriceEvent()
	require.NoError(t, err)
	require.Equal(t, types.SideBuy, ev.Side)
}

func TestWirePriceEvent_RejectsMalformedPrice(t *testing.T) {
	w := wirePriceEvent{Mint: "MINT1", Price: "abc", Liquidity: "1", Sol: "0.1"}
	_, err := w.toPriceEvent()
	require.ErrorIs(t, err, types.ErrMalformedEvent)
}
