package types

import "errors"

// Sentinel error kinds of the engine's error-handling policy (reconnect,
// fail-open, downgrade, drop, fatal). ErrMalformedEvent (ingest) and
// ErrConfigInvalid (config) are the ones returned by code in this module;
// the other three name conditions that are handled where they occur and
// are not returned as errors.
var (
	// ErrStreamDisconnect names a dropped upstream pool/price
	// subscription. The ingest sources log it and reconnect internally;
	// TokenState is retained.
	ErrStreamDisconnect = errors.New("sniper: upstream stream disconnected")

	// ErrRpcFailure names a failed on-chain query inside a risk or
	// dev-exit probe. Those probes log the failure and return their
	// fail-open / conservative result instead of this error.
	ErrRpcFailure = errors.New("sniper: rpc query failed")

	// ErrModelLoadFailure names a GBM model dump that failed to load;
	// gbm.Load returns its own wrapped error, and the engine then runs
	// heuristic-only.
	ErrModelLoadFailure = errors.New("sniper: model load failed")

	// ErrMalformedEvent marks an inbound event that failed validation;
	// it is logged and dropped.
	ErrMalformedEvent = errors.New("sniper: malformed event")

	// ErrConfigInvalid is fatal at startup.
	ErrConfigInvalid = errors.New("sniper: invalid configuration")
)
