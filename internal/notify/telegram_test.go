package notify

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/curvesniper/internal/types"
)

func TestEnqueue_DropsOldestWhenFull(t *testing.T) {
	s := &TelegramSink{queue: make(chan string, 2)}

	s.enqueue("first")
	s.enqueue("second")
	s.enqueue("third") // queue full: "first" dropped

	require.Equal(t, "second", <-s.queue)
	require.Equal(t, "third", <-s.queue)
}

func TestPublish_FormatsSignAndCumulative(t *testing.T) {
	s := &TelegramSink{queue: make(chan string, 4)}
	s.Publish(types.PnLUpdate{Mint: "MINT1", PnLSol: decimal.NewFromFloat(-0.2), ProfitSol: decimal.NewFromFloat(1.5)})

	msg := <-s.queue
	require.Contains(t, msg, "MINT1")
	require.Contains(t, msg, "-0.2000")
	require.Contains(t, msg, "1.5000")
}
