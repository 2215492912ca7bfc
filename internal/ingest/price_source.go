package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/curvesniper/internal/types"
)

// wirePriceEvent is the on-the-wire shape of a single observed trade.
type wirePriceEvent struct {
	Mint        string `json:"mint"`
	Price       string `json:"price"`
	Liquidity   string `json:"liquidity_sol"`
	Sol         string `json:"sol"`
	Wallet      string `json:"wallet"`
	TokensCurve string `json:"tokens_curve"`
	Side        string `json:"side"`
	TsMs        int64  `json:"ts_ms"`
}

func (w wirePriceEvent) toPriceEvent() (types.PriceEvent, error) {
	if w.Mint == "" {
		return types.PriceEvent{}, fmt.Errorf("%w: price event missing mint", types.ErrMalformedEvent)
	}
	price, err := decimal.NewFromString(w.Price)
	if err != nil {
		return types.PriceEvent{}, fmt.Errorf("%w: price %q: %v", types.ErrMalformedEvent, w.Price, err)
	}
	liquidity, err := decimal.NewFromString(w.Liquidity)
	if err != nil {
		return types.PriceEvent{}, fmt.Errorf("%w: liquidity_sol %q: %v", types.ErrMalformedEvent, w.Liquidity, err)
	}
	sol, err := decimal.NewFromString(w.Sol)
	if err != nil {
		return types.PriceEvent{}, fmt.Errorf("%w: sol %q: %v", types.ErrMalformedEvent, w.Sol, err)
	}
	tokensCurve, _ := decimal.NewFromString(w.TokensCurve) // absent on non-migration trades; zero is fine

	side := types.SideBuy
	if w.Side == string(types.SideSell) {
		side = types.SideSell
	}

	return types.PriceEvent{
		Mint:        types.TokenId(w.Mint),
		Price:       price,
		Liquidity:   liquidity,
		Sol:         sol,
		Wallet:      types.WalletId(w.Wallet),
		TokensCurve: tokensCurve,
		Side:        side,
		Timestamp:   time.UnixMilli(w.TsMs),
	}, nil
}

// subscribeFrame is sent once per admitted mint so the upstream only
// streams trades for tokens the engine is actively tracking.
type subscribeFrame struct {
	Type string `json:"type"`
	Mint string `json:"mint"`
}

// PriceSource streams PriceEvent over a reconnecting WebSocket
// subscription, and implements engine.PriceSubscriber so the strategy
// engine can narrow the stream to admitted mints as it tracks/untracks
// them.
type PriceSource struct {
	url    string
	events chan types.PriceEvent

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[types.TokenId]struct{} // subscribed mints replayed on reconnect
}

// NewPriceSource builds a PriceSource dialing url once Run is called.
func NewPriceSource(url string) *PriceSource {
	return &PriceSource{
		url:     url,
		events:  make(chan types.PriceEvent, 1024),
		pending: make(map[types.TokenId]struct{}),
	}
}

// Events returns the channel PriceEvents are delivered on. Wire it
// directly into engine.New's priceCh parameter.
func (s *PriceSource) Events() <-chan types.PriceEvent { return s.events }

// Subscribe requests trades for mint. Safe to call concurrently with Run.
func (s *PriceSource) Subscribe(mint types.TokenId) {
	s.mu.Lock()
	s.pending[mint] = struct{}{}
	conn := s.conn
	s.mu.Unlock()
	s.send(conn, subscribeFrame{Type: "subscribe", Mint: string(mint)})
}

// Unsubscribe stops requesting trades for mint. Safe to call concurrently
// with Run.
func (s *PriceSource) Unsubscribe(mint types.TokenId) {
	s.mu.Lock()
	delete(s.pending, mint)
	conn := s.conn
	s.mu.Unlock()
	s.send(conn, subscribeFrame{Type: "unsubscribe", Mint: string(mint)})
}

func (s *PriceSource) send(conn *websocket.Conn, frame subscribeFrame) {
	if conn == nil {
		return
	}
	if err := conn.WriteJSON(frame); err != nil {
		log.Warn().Err(err).Str("mint", frame.Mint).Str("type", frame.Type).Msg("ingest: subscribe frame failed")
	}
}

// Run drives the reconnect loop until ctx is cancelled. Every mint
// currently in s.pending is re-subscribed after each reconnect, since the
// upstream has no memory of a dropped connection's subscriptions.
func (s *PriceSource) Run(ctx context.Context) {
	runWSLoop(ctx, s.url, "price", s.resubscribeAll, func(msg []byte) {
		var raw wirePriceEvent
		if err := json.Unmarshal(msg, &raw); err != nil {
			log.Warn().Err(err).Msg("ingest: malformed price event, dropped")
			return
		}
		ev, err := raw.toPriceEvent()
		if err != nil {
			log.Warn().Err(err).Msg("ingest: invalid price event, dropped")
			return
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
		}
	})
}

func (s *PriceSource) resubscribeAll(conn *websocket.Conn) error {
	s.mu.Lock()
	s.conn = conn
	mints := make([]types.TokenId, 0, len(s.pending))
	for m := range s.pending {
		mints = append(mints, m)
	}
	s.mu.Unlock()

	for _, m := range mints {
		if err := conn.WriteJSON(subscribeFrame{Type: "subscribe", Mint: string(m)}); err != nil {
			return err
		}
	}
	return nil
}
