package xgbmerge

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirecl/xgbmerge/internal/testutil"
)

func TestPredict(t *testing.T) {
	e := parseModel(t, testutil.Model{Stumps: []testutil.Stump{
		{Feature: 0, Threshold: 0.5, Left: 1, Right: -1},
		{Feature: 1, Threshold: 2, Left: 0.25, Right: 0.75, DefaultLeft: true},
	}})

	tests := []struct {
		features []float64
		want     float64
	}{
		{[]float64{0, 0}, 1.25},
		{[]float64{0.5, 0}, -0.75},
		{[]float64{1, 3}, -0.25},
		{[]float64{math.NaN(), math.NaN()}, -0.75},
	}
	for _, tt := range tests {
		got, err := e.Predict(tt.features)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-6, "features %v", tt.features)
	}
}

func TestPredictFeatureCount(t *testing.T) {
	e := parseModel(t, testutil.Model{Stumps: []testutil.Stump{{Feature: 1, Threshold: 0.5, Left: 1, Right: 2}}})

	_, err := e.Predict([]float64{0})
	require.ErrorIs(t, err, ErrFeatureCount)
}

func TestPredictGroups(t *testing.T) {
	e := parseModel(t, testutil.Model{
		Stumps:   testutil.Stumps(4, 1),
		NumClass: 2,
		TreeInfo: []int{0, 1, 0, 1},
	})
	p, err := e.Compile()
	require.NoError(t, err)

	// all features below threshold: every tree returns its left value
	got, err := p.PredictGroups([]float64{0, 0})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1 + 3, 2 + 4}, got, 1e-6)

	sum, err := p.Predict([]float64{0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 10, sum, 1e-6)
}

func TestCompileRejectsCategoricalSplits(t *testing.T) {
	doc := mutateDocument(t, testutil.Model{Stumps: testutil.Stumps(1, 1)}.Document(), func(m map[string]interface{}) {
		tree := modelOf(m)["trees"].([]interface{})[0].(map[string]interface{})
		tree["split_type"] = []int{1, 0, 0}
	})
	e, err := Parse(doc)
	require.NoError(t, err)

	_, err = e.Compile()
	require.ErrorIs(t, err, ErrCategoricalSplit)
}

func TestCompileRejectsBrokenArrays(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value []int
	}{
		{name: "length mismatch", field: "right_children", value: []int{2, -1}},
		{name: "negative split index", field: "split_indices", value: []int{-1, 0, 0}},
		{name: "child points to itself", field: "left_children", value: []int{0, -1, -1}},
		{name: "child out of range", field: "left_children", value: []int{5, -1, -1}},
		{name: "child before parent", field: "left_children", value: []int{1, -1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mutateDocument(t, testutil.Model{Stumps: testutil.Stumps(2, 1)}.Document(), func(m map[string]interface{}) {
				tree := modelOf(m)["trees"].([]interface{})[1].(map[string]interface{})
				tree[tt.field] = tt.value
			})
			e, err := Parse(doc)
			require.NoError(t, err)

			_, err = e.Compile()
			require.ErrorIs(t, err, ErrMalformedDocument)
			assert.Contains(t, err.Error(), "1 tree")

			_, err = e.Predict([]float64{0, 0})
			require.ErrorIs(t, err, ErrMalformedDocument)
		})
	}
}

func TestPredictBrokenTopology(t *testing.T) {
	tree := &xgbTree{nodes: []*xgbNode{
		{Yes: 1, No: 2, Missing: 1},
		{Flags: isLeaf, LeafValue: 1},
		nil,
	}}
	_, err := tree.predict([]float64{1})
	require.ErrorIs(t, err, ErrNilNode)

	tree.nodes[0].No = 7
	_, err = tree.predict([]float64{1})
	require.ErrorIs(t, err, ErrNilNode)
}

func TestNodeFlagEncodings(t *testing.T) {
	var flags []nodeFlag
	require.NoError(t, json.Unmarshal([]byte(`[1, 0, true, false]`), &flags))
	assert.Equal(t, []nodeFlag{true, false, true, false}, flags)

	require.Error(t, json.Unmarshal([]byte(`["yes"]`), &flags))
}
