// Package ingest adapts the two out-of-scope upstream collaborators —
// the pool-creation stream and the trade/price stream — into the
// types.PoolEvent / types.PriceEvent channels the strategy engine reads.
// Both sources share one reconnect-with-backoff WebSocket loop.
package ingest

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	reconnectDelay = 3 * time.Second
	pingInterval   = 30 * time.Second
)

// runWSLoop dials url, hands every inbound message to handle, and
// reconnects with a fixed delay on dial failure or read error. It blocks
// until ctx is cancelled. onConnect, if non-nil, runs once per successful
// connection (e.g. to send an initial subscribe frame).
func runWSLoop(ctx context.Context, url, name string, onConnect func(*websocket.Conn) error, handle func([]byte)) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			log.Error().Err(err).Str("source", name).Msg("ingest: dial failed, retrying")
			if !sleepCtx(ctx, reconnectDelay) {
				return
			}
			continue
		}
		log.Info().Str("source", name).Str("url", url).Msg("ingest: connected")

		if onConnect != nil {
			if err := onConnect(conn); err != nil {
				log.Error().Err(err).Str("source", name).Msg("ingest: post-connect subscribe failed")
				conn.Close()
				if !sleepCtx(ctx, reconnectDelay) {
					return
				}
				continue
			}
		}

		stopPing := make(chan struct{})
		go pingLoop(conn, stopPing)

		readUntilDisconnect(ctx, conn, name, handle)
		close(stopPing)
		conn.Close()

		log.Warn().Str("source", name).Msg("ingest: disconnected, reconnecting")
		if !sleepCtx(ctx, reconnectDelay) {
			return
		}
	}
}

// readUntilDisconnect blocks until ctx is cancelled or the connection's
// read loop returns an error.
func readUntilDisconnect(ctx context.Context, conn *websocket.Conn, name string, handle func([]byte)) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Warn().Err(err).Str("source", name).Msg("ingest: read error")
				return
			}
			handle(msg)
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
}

func pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			_ = conn.WriteMessage(websocket.PingMessage, nil)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
