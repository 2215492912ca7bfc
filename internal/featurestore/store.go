// Package featurestore implements the append-only, line-oriented sink for
// feature and prediction records. Each record is one JSON object per
// line; writer errors are logged and tolerated (a lost log line must
// never interrupt trading).
package featurestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/curvesniper/internal/types"
)

// Store is a single append-only file opened for the engine's lifetime.
type Store struct {
	mu      sync.Mutex
	file    *os.File
	enabled bool
}

// Open creates (or appends to) path. If path is empty the store is a
// no-op sink — AppendFeature/AppendPrediction silently do nothing, matching feature_logging /
// pred_logging being independently toggleable.
func Open(path string) (*Store, error) {
	if path == "" {
		return &Store{enabled: false}, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	return &Store{file: f, enabled: true}, nil
}

// FeatureRecord is one feature-vector log line, written for each price
// event that reaches the engine's logging step, including events on which
// a heuristic entry or an exit then fires. An event that opens a position
// through the ML entry, or that is dropped earlier in the pipeline,
// writes no line.
type FeatureRecord struct {
	Ts             time.Time     `json:"ts"`
	Mint           types.TokenId `json:"mint"`
	Features       [10]float64   `json:"features"`
	HasBought      bool          `json:"has_bought"`
	RiskChecked    bool          `json:"risk_checked"`
	IsBundler      bool          `json:"is_bundler"`
	TransferFeeBps *int          `json:"transfer_fee_bps,omitempty"`
}

// PredictionRecord is one ML buy/sell decision log line.
type PredictionRecord struct {
	Ts         time.Time     `json:"ts"`
	Mint       types.TokenId `json:"mint"`
	Stage      string        `json:"stage"` // "buy" | "sell"
	Score      float64       `json:"score"`
	Threshold  float64       `json:"threshold"`
	Acted      bool          `json:"acted"`
}

// AppendFeature writes one feature record as a JSON line, tolerating and
// logging write failures rather than propagating them.
func (s *Store) AppendFeature(rec FeatureRecord) {
	s.append(rec)
}

// AppendPrediction writes one prediction record as a JSON line.
func (s *Store) AppendPrediction(rec PredictionRecord) {
	s.append(rec)
}

func (s *Store) append(rec any) {
	if !s.enabled {
		return
	}

	line, err := json.Marshal(rec)
	if err != nil {
		log.Error().Err(err).Msg("featurestore: marshal failed, dropping record")
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(line); err != nil {
		log.Error().Err(err).Msg("featurestore: write failed, dropping record")
	}
}

// Close flushes and closes the underlying file, if any.
func (s *Store) Close() error {
	if !s.enabled {
		return nil
	}
	return s.file.Close()
}
