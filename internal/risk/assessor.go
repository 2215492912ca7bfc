// Package risk implements the admission-time on-chain probe: transfer-fee
// extraction and bundler-program heuristic, bounded to a fixed number of
// concurrent RPC round trips.
package risk

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/web3guy0/curvesniper/internal/types"
)

// extendedTokenProgramID is the owner program whose mint accounts may
// carry a transfer-fee-config extension.
const extendedTokenProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"

// feeBpsOffset / feeBpsAccountMinLen locate the little-endian uint16
// transfer-fee-bps field within an extended mint account's raw data.
const (
	feeBpsOffset        = 133
	feeBpsAccountMinLen = 135
)

// Result is the outcome of one admission-time probe.
type Result struct {
	FeeBps  *int // nil if unknown (non-extended owner yields 0, not nil)
	Bundler bool
}

// Assessor performs bounded-concurrency on-chain account/transaction
// lookups. MAX_RISK_CONCURRENCY concurrent probes are allowed at once;
// beyond that, Assess blocks on the semaphore rather than busy-spinning.
type Assessor struct {
	client          *rpc.Client
	sem             *semaphore.Weighted
	bundlerPrograms map[string]struct{}

	inFlight int64
}

// New dials rpcURL and builds an Assessor bounded to maxConcurrency
// simultaneous probes, flagging any program id in bundlerPrograms as a
// bundler creator.
func New(rpcURL string, maxConcurrency int64, bundlerPrograms []string) (*Assessor, error) {
	client, err := rpc.Dial(rpcURL)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(bundlerPrograms))
	for _, p := range bundlerPrograms {
		set[p] = struct{}{}
	}

	return &Assessor{
		client:          client,
		sem:             semaphore.NewWeighted(maxConcurrency),
		bundlerPrograms: set,
	}, nil
}

// InFlight reports the number of probes currently admitted, for the
// riskInFlight ≤ MAX_RISK_CONCURRENCY invariant.
func (a *Assessor) InFlight() int64 { return atomic.LoadInt64(&a.inFlight) }

// Assess fetches mint account state and, if createTx is non-empty, the
// originating transaction's first instruction program id. Any RPC
// failure leaves the corresponding field at its zero value: admission
// fails open rather than blocking a token on a flaky node.
func (a *Assessor) Assess(ctx context.Context, mint types.TokenId, createTx types.TxId) Result {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return Result{}
	}
	atomic.AddInt64(&a.inFlight, 1)
	defer func() {
		atomic.AddInt64(&a.inFlight, -1)
		a.sem.Release(1)
	}()

	result := Result{FeeBps: intPtr(0)}

	var accResp accountInfoResponse
	if err := a.client.CallContext(ctx, &accResp, "getAccountInfo", string(mint), map[string]string{"encoding": "base64"}); err != nil {
		log.Warn().Err(err).Str("mint", string(mint)).Msg("risk: getAccountInfo failed, fail-open")
		return Result{}
	}

	if accResp.Value == nil {
		return Result{}
	}

	if accResp.Value.Owner == extendedTokenProgramID {
		data, err := decodeAccountData(accResp.Value.Data)
		if err == nil && len(data) >= feeBpsAccountMinLen {
			fee := int(binary.LittleEndian.Uint16(data[feeBpsOffset : feeBpsOffset+2]))
			result.FeeBps = &fee
		} else {
			result.FeeBps = nil
		}
	}

	if createTx != "" {
		var txResp transactionResponse
		if err := a.client.CallContext(ctx, &txResp, "getTransaction", string(createTx), map[string]interface{}{"encoding": "json", "maxSupportedTransactionVersion": 0}); err != nil {
			log.Warn().Err(err).Str("tx", string(createTx)).Msg("risk: getTransaction failed")
		} else if txResp.Transaction != nil {
			if progID := txResp.Transaction.firstInstructionProgramID(); progID != "" {
				if _, ok := a.bundlerPrograms[progID]; ok {
					result.Bundler = true
				}
			}
		}
	}

	return result
}

func intPtr(v int) *int { return &v }

func decodeAccountData(data [2]string) ([]byte, error) {
	if len(data) == 0 || data[0] == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(data[0])
}
