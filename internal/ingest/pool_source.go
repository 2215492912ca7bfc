package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/curvesniper/internal/types"
)

// wirePoolEvent is the on-the-wire shape of a pool-creation notification.
type wirePoolEvent struct {
	Mint        string `json:"mint"`
	CreatedAtMs int64  `json:"created_at_ms"`
	InitialMcap string `json:"initial_mcap_sol"`
	Symbol      string `json:"symbol"`
	DevWallet   string `json:"dev_wallet"`
	Signature   string `json:"signature"`
}

func (w wirePoolEvent) toPoolEvent() (types.PoolEvent, error) {
	if w.Mint == "" {
		return types.PoolEvent{}, fmt.Errorf("%w: pool event missing mint", types.ErrMalformedEvent)
	}
	mcap, err := decimal.NewFromString(w.InitialMcap)
	if err != nil {
		return types.PoolEvent{}, fmt.Errorf("%w: initial_mcap_sol %q: %v", types.ErrMalformedEvent, w.InitialMcap, err)
	}
	return types.PoolEvent{
		Mint:        types.TokenId(w.Mint),
		CreatedAt:   time.UnixMilli(w.CreatedAtMs),
		InitialMcap: mcap,
		Symbol:      w.Symbol,
		DevWallet:   types.WalletId(w.DevWallet),
		Signature:   types.TxId(w.Signature),
	}, nil
}

// PoolSource streams PoolEvent over a reconnecting WebSocket subscription.
type PoolSource struct {
	url    string
	events chan types.PoolEvent
}

// NewPoolSource builds a PoolSource dialing url once Run is called.
func NewPoolSource(url string) *PoolSource {
	return &PoolSource{url: url, events: make(chan types.PoolEvent, 256)}
}

// Events returns the channel PoolEvents are delivered on. Wire it directly
// into engine.New's poolCh parameter.
func (s *PoolSource) Events() <-chan types.PoolEvent { return s.events }

// Run drives the reconnect loop until ctx is cancelled.
func (s *PoolSource) Run(ctx context.Context) {
	runWSLoop(ctx, s.url, "pool", nil, func(msg []byte) {
		var raw wirePoolEvent
		if err := json.Unmarshal(msg, &raw); err != nil {
			log.Warn().Err(err).Msg("ingest: malformed pool event, dropped")
			return
		}
		ev, err := raw.toPoolEvent()
		if err != nil {
			log.Warn().Err(err).Msg("ingest: invalid pool event, dropped")
			return
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
		}
	})
}
