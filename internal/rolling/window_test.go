package rolling

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/curvesniper/internal/types"
)

func TestObserve_PrunesTradesOlderThanWindow(t *testing.T) {
	w := New(2 * time.Second)
	base := time.Unix(0, 0)

	w.Observe(base, decimal.NewFromFloat(1), "w0")
	w.Observe(base.Add(500*time.Millisecond), decimal.NewFromFloat(1), "w1")
	w.Observe(base.Add(3*time.Second), decimal.NewFromFloat(1), "w2")

	require.Equal(t, 1, w.TradeCount())
	require.Equal(t, 1, w.UniqueWallets())
}

func TestObserve_RetainsOnlyTradesWithinWindow(t *testing.T) {
	w := New(4 * time.Second)
	base := time.Unix(0, 0)

	for i := 0; i < 10; i++ {
		w.Observe(base.Add(time.Duration(i)*time.Second), decimal.NewFromFloat(1), types.WalletId("w"))
	}

	last := base.Add(9 * time.Second)
	cut := last.Add(-w.Width())
	require.Equal(t, 5, w.TradeCount()) // ts=5,6,7,8,9 retained; ts=4 pruned (before cut=5)
	for _, tr := range w.trades {
		require.False(t, tr.ts.Before(cut))
	}
}

func TestTPS_ReflectsRetainedCountOverWindowWidth(t *testing.T) {
	w := New(4 * time.Second)
	base := time.Unix(0, 0)

	for i := 0; i < 8; i++ {
		w.Observe(base.Add(time.Duration(i)*500*time.Millisecond), decimal.NewFromFloat(1), types.WalletId("w"))
	}

	require.InDelta(t, float64(w.TradeCount())/4, w.TPS(), 1e-9)
}

func TestUniqueWallets_CountsDistinctAddressesOnly(t *testing.T) {
	w := New(10 * time.Second)
	base := time.Unix(0, 0)

	w.Observe(base, decimal.NewFromFloat(1), "a")
	w.Observe(base.Add(time.Second), decimal.NewFromFloat(1), "b")
	w.Observe(base.Add(2*time.Second), decimal.NewFromFloat(1), "a")

	require.Equal(t, 2, w.UniqueWallets())
	require.Equal(t, 3, w.TradeCount())
}

func TestAvgSol_DividesVolumeByTradeCount(t *testing.T) {
	w := New(10 * time.Second)
	base := time.Unix(0, 0)

	w.Observe(base, decimal.NewFromFloat(1), "a")
	w.Observe(base.Add(time.Second), decimal.NewFromFloat(3), "b")

	require.InDelta(t, 2.0, w.AvgSol().InexactFloat64(), 1e-9)
}

func TestAvgSol_EmptyWindowDoesNotDivideByZero(t *testing.T) {
	w := New(10 * time.Second)
	require.InDelta(t, 0.0, w.AvgSol().InexactFloat64(), 1e-9)
}
