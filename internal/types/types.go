// Package types holds the wire/data model shared across the sniper engine:
// the two inbound event shapes, the outbound trade signal, and the
// identifiers that key them.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenId identifies a bonding-curve mint.
type TokenId string

// WalletId identifies a wallet address (creator, trader, etc).
type WalletId string

// TxId identifies an on-chain transaction signature.
type TxId string

// Side is the direction of a trade observed on the curve.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Action is the direction of an emitted trade signal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Reason qualifies why a SELL signal was emitted.
type Reason string

const (
	ReasonTP     Reason = "TP"
	ReasonSL     Reason = "SL"
	ReasonMigr   Reason = "MIGR"
	ReasonRug    Reason = "RUG"
	ReasonManual Reason = "MANUAL"
)

// PoolEvent notifies that a new bonding-curve market was created.
type PoolEvent struct {
	Mint        TokenId
	CreatedAt   time.Time
	InitialMcap decimal.Decimal
	Symbol      string
	DevWallet   WalletId
	Signature   TxId
}

// PriceEvent is a single trade observed against a tracked curve.
type PriceEvent struct {
	Mint        TokenId
	Price       decimal.Decimal
	Liquidity   decimal.Decimal
	Sol         decimal.Decimal // signed trade notional
	Wallet      WalletId
	TokensCurve decimal.Decimal
	Side        Side
	Timestamp   time.Time
}

// TradeSignal is emitted to the execution adapter and, separately, to the
// dashboard/notify sink.
type TradeSignal struct {
	SignalID string // idempotency key for the execution venue's retry handling
	Mint     TokenId
	Action   Action
	Reason   Reason
	Symbol   string
	Price    decimal.Decimal
	Time     time.Time
}

// PnLUpdate carries the cumulative realized PnL after a settle.
type PnLUpdate struct {
	Mint      TokenId
	PnLSol    decimal.Decimal
	ProfitSol decimal.Decimal
	Time      time.Time
}
