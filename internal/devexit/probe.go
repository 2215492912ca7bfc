// Package devexit implements the periodic on-chain query that tells the
// strategy engine whether a token's creator has fully exited their
// position — the gate behind require_dev_sold.
package devexit

import (
	"context"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/curvesniper/internal/types"
)

// Prober queries token-account balances for a given owner/mint pair.
type Prober struct {
	client *rpc.Client
}

// New dials rpcURL for use by HasExited.
func New(rpcURL string) (*Prober, error) {
	client, err := rpc.Dial(rpcURL)
	if err != nil {
		return nil, err
	}
	return &Prober{client: client}, nil
}

// HasExited enumerates token accounts devWallet holds for mint and
// returns true iff every balance is zero. Any RPC error is treated
// conservatively as "not exited" (false), never as "exited".
func (p *Prober) HasExited(ctx context.Context, mint types.TokenId, devWallet types.WalletId) bool {
	var resp tokenAccountsResponse
	params := map[string]string{"mint": string(mint)}
	opts := map[string]string{"encoding": "jsonParsed"}
	if err := p.client.CallContext(ctx, &resp, "getTokenAccountsByOwner", string(devWallet), params, opts); err != nil {
		log.Warn().Err(err).Str("mint", string(mint)).Str("dev", string(devWallet)).Msg("devexit: rpc failed, conservative false")
		return false
	}

	if len(resp.Value) == 0 {
		// No token accounts at all reads as fully exited (nothing held).
		return true
	}

	for _, acc := range resp.Value {
		if acc.Account.Data.Parsed.Info.TokenAmount.UIAmount != 0 {
			return false
		}
	}
	return true
}
