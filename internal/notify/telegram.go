// Package notify broadcasts trade signals and PnL updates to an operator
// dashboard channel. Unlike the execution sink, this path tolerates loss:
// a slow or offline dashboard must never back-pressure the strategy
// engine, so the outbound queue drops the oldest pending message rather
// than blocking.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/curvesniper/internal/types"
)

// queueDepth bounds the pending-message queue; Run drains it at whatever
// rate the Telegram API allows, and enqueue drops the oldest entry if a
// burst of signals outruns that rate.
const queueDepth = 256

// TelegramSink broadcasts TradeSignal and PnLUpdate to a single Telegram
// chat. It implements both engine.SignalSink-shaped notification (via
// NotifySignal, kept distinct from the lossless execution sink) and
// engine.PnLSink (via Publish).
type TelegramSink struct {
	api    *tgbotapi.BotAPI
	chatID int64
	queue  chan string
}

// NewTelegramSink dials the Telegram Bot API with token and targets chatID.
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram init: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("notify: telegram bot initialized")
	return &TelegramSink{
		api:    api,
		chatID: chatID,
		queue:  make(chan string, queueDepth),
	}, nil
}

// Run drains the outbound queue until ctx is cancelled.
func (s *TelegramSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-s.queue:
			s.send(text)
		}
	}
}

// NotifySignal formats and enqueues a BUY/SELL trade signal.
func (s *TelegramSink) NotifySignal(sig types.TradeSignal) error {
	emoji := "✅"
	if sig.Action == types.ActionSell {
		emoji = "📊"
	}
	msg := fmt.Sprintf("%s *%s* %s\nPrice: *%s*\nReason: %s",
		emoji, sig.Action, sig.Symbol, sig.Price.StringFixed(9), reasonLabel(sig.Reason))
	s.enqueue(msg)
	return nil
}

// Publish formats and enqueues a realized-PnL update.
func (s *TelegramSink) Publish(u types.PnLUpdate) {
	emoji := "📈"
	if u.PnLSol.IsNegative() {
		emoji = "📉"
	}
	msg := fmt.Sprintf("%s *trade closed*\n\nMint: %s\nPnL: %s\nCumulative: %s SOL",
		emoji, u.Mint, signed(u.PnLSol), u.ProfitSol.StringFixed(4))
	s.enqueue(msg)
}

func reasonLabel(r types.Reason) string {
	if r == "" {
		return "-"
	}
	return string(r)
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(4) + " SOL"
	}
	return "+" + d.StringFixed(4) + " SOL"
}

// enqueue drops the oldest queued message if the queue is full, per the
// dashboard path's documented drop-oldest semantics.
func (s *TelegramSink) enqueue(text string) {
	select {
	case s.queue <- text:
		return
	default:
	}

	select {
	case <-s.queue:
	default:
	}
	select {
	case s.queue <- text:
	default:
	}
}

func (s *TelegramSink) send(text string) {
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := s.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("notify: telegram send failed")
	}
}
