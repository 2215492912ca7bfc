package main

import (
	"github.com/web3guy0/curvesniper/internal/execution"
	"github.com/web3guy0/curvesniper/internal/notify"
	"github.com/web3guy0/curvesniper/internal/types"
)

// signalFanout satisfies engine.SignalSink by forwarding every emitted
// trade signal to both the lossless execution venue and the best-effort
// dashboard notifier. Only the execution leg's error can fail Submit; a
// dashboard that's offline or behind must never block a trade.
type signalFanout struct {
	execSink  *execution.HTTPSink
	dashboard *notify.TelegramSink
}

func (f *signalFanout) Submit(sig types.TradeSignal) error {
	if f.dashboard != nil {
		_ = f.dashboard.NotifySignal(sig)
	}
	return f.execSink.Submit(sig)
}
