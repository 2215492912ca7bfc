// Package gbm implements a deterministic gradient-boosted decision-tree
// scorer over the engine's fixed 10-element feature vector. It loads a
// plain JSON tree dump (the format LightGBM's dump_model() produces) once
// at startup; prediction itself touches no I/O.
package gbm

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/curvesniper/internal/indicators"
)

// node is one node of a tree: either a leaf (LeafValue set, Left/Right
// nil) or an internal split (SplitFeature/Threshold set).
type node struct {
	SplitFeature *int     `json:"split_feature"`
	Threshold    *float64 `json:"threshold"`
	LeftChild    *node    `json:"left_child"`
	RightChild   *node    `json:"right_child"`
	LeafValue    *float64 `json:"leaf_value"`
}

type treeInfo struct {
	TreeStructure node `json:"tree_structure"`
}

// dump mirrors the on-disk ensemble description.
type dump struct {
	InitScore float64    `json:"init_score"`
	NumTrees  int        `json:"num_trees"`
	TreeInfo  []treeInfo `json:"tree_info"`
}

// Model is a loaded, ready-to-score tree ensemble.
type Model struct {
	initScore float64
	trees     []node
}

// Load reads and parses a tree dump from path. A failure here is an
// ErrModelLoadFailure-class condition; the caller decides whether to
// downgrade to heuristic-only (it does not panic or exit).
func Load(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gbm: read model dump: %w", err)
	}

	var d dump
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("gbm: parse model dump: %w", err)
	}

	trees := make([]node, 0, len(d.TreeInfo))
	for _, t := range d.TreeInfo {
		trees = append(trees, t.TreeStructure)
	}

	log.Info().Str("path", path).Int("trees", len(trees)).Msg("gbm model loaded")

	return &Model{initScore: d.InitScore, trees: trees}, nil
}

// FeatureVector is the fixed 10-entry feature order consumed by the
// momentum model: log price, log liquidity, scaled tps, rise-from-low,
// scaled unique wallets, EMA gap, ATR ratio, scaled token age,
// drawdown-from-peak, and rise-from-entry.
type FeatureVector [10]float64

// Predict sums init_score with every tree's leaf contribution for feats
// and returns sigma(score). Missing/out-of-range feature indices default
// to 0, matching the "missing feature value defaults to 0" rule.
func (m *Model) Predict(feats FeatureVector) float64 {
	score := m.initScore
	for i := range m.trees {
		score += descend(&m.trees[i], feats)
	}
	return indicators.Sigmoid(score)
}

func descend(n *node, feats FeatureVector) float64 {
	for {
		if n.LeafValue != nil {
			return *n.LeafValue
		}
		if n.SplitFeature == nil || n.Threshold == nil || n.LeftChild == nil || n.RightChild == nil {
			// Malformed node: treat as a zero-contribution leaf rather
			// than panicking the strategy engine over a bad dump.
			return 0
		}
		idx := *n.SplitFeature
		var v float64
		if idx >= 0 && idx < len(feats) {
			v = feats[idx]
		}
		if v <= *n.Threshold {
			n = n.LeftChild
		} else {
			n = n.RightChild
		}
	}
}
