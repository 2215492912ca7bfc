package gbm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/web3guy0/curvesniper/internal/indicators"
)

func TestPredict_SingleLeafEqualsSigmoidOfLeafValue(t *testing.T) {
	leaf := 0.73
	m := &Model{
		initScore: 0,
		trees:     []node{{LeafValue: &leaf}},
	}

	got := m.Predict(FeatureVector{})
	want := indicators.Sigmoid(leaf)

	require.InDelta(t, want, got, 1e-12)
}

func TestPredict_SplitRoutesLeftOrRight(t *testing.T) {
	leftLeaf := -1.0
	rightLeaf := 1.0
	feat0 := 0
	thresh := 0.5

	root := node{
		SplitFeature: &feat0,
		Threshold:    &thresh,
		LeftChild:    &node{LeafValue: &leftLeaf},
		RightChild:   &node{LeafValue: &rightLeaf},
	}
	m := &Model{trees: []node{root}}

	require.InDelta(t, indicators.Sigmoid(leftLeaf), m.Predict(FeatureVector{0: 0.2}), 1e-12)
	require.InDelta(t, indicators.Sigmoid(rightLeaf), m.Predict(FeatureVector{0: 0.8}), 1e-12)
}

func TestPredict_MissingFeatureDefaultsToZero(t *testing.T) {
	leftLeaf := -2.0
	rightLeaf := 2.0
	// split_feature out of the populated vector's meaningful range still
	// reads as 0 from the zero-valued array.
	feat9 := 9
	thresh := -0.1

	root := node{
		SplitFeature: &feat9,
		Threshold:    &thresh,
		LeftChild:    &node{LeafValue: &leftLeaf},
		RightChild:   &node{LeafValue: &rightLeaf},
	}
	m := &Model{trees: []node{root}}

	got := m.Predict(FeatureVector{})
	require.InDelta(t, indicators.Sigmoid(rightLeaf), got, 1e-12)
	require.False(t, math.IsNaN(got))
}
