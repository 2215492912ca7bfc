// Package execution adapts the strategy engine's emitted TradeSignal to
// an external execution venue over HTTP. Unlike the dashboard/PnL
// broadcast path, this sink has no queue that drops messages: Submit
// blocks and retries a failed post up to maxAttempts times in total, then
// returns an error and does not try that signal again.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/curvesniper/internal/types"
)

const (
	submitTimeout = 10 * time.Second
	maxAttempts   = 3
	retryBackoff  = 500 * time.Millisecond
)

// HTTPSink posts each TradeSignal as a JSON body to a configured
// execution endpoint. Submit satisfies engine.SignalSink.
type HTTPSink struct {
	url        string
	httpClient *http.Client
	dryRun     bool
}

// NewHTTPSink builds a sink posting to url. DRY_RUN=true logs the signal
// instead of calling out, mirroring the dry-run convention used
// throughout the rest of the ambient stack.
func NewHTTPSink(url string) *HTTPSink {
	return &HTTPSink{
		url:        url,
		httpClient: &http.Client{Timeout: submitTimeout},
		dryRun:     os.Getenv("DRY_RUN") == "true",
	}
}

// Submit posts sig to the execution endpoint, making at most maxAttempts
// attempts; any transport error or HTTP status of 400 or above counts as
// a failed attempt.
func (s *HTTPSink) Submit(sig types.TradeSignal) error {
	if s.dryRun || s.url == "" {
		log.Info().Str("mint", string(sig.Mint)).Str("action", string(sig.Action)).Msg("execution: DRY RUN, signal not sent")
		return nil
	}

	body, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("execution: marshal signal: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.post(body, sig.SignalID); err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Str("mint", string(sig.Mint)).Msg("execution: submit failed, retrying")
			time.Sleep(retryBackoff * time.Duration(attempt))
			continue
		}
		return nil
	}
	return fmt.Errorf("execution: submit failed after %d attempts: %w", maxAttempts, lastErr)
}

// post sends one attempt. signalID is carried as an idempotency key so a
// retry after a timed-out-but-actually-applied prior attempt doesn't
// double-execute on the venue.
func (s *HTTPSink) post(body []byte, signalID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", signalID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
