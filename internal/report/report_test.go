package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirecl/xgbmerge"
	"github.com/mirecl/xgbmerge/internal/testutil"
)

const boosterConfigJSON = `{
  "learner": {
    "gradient_booster": {
      "gbtree_model_param": {"num_parallel_tree": "1", "num_trees": "30"},
      "gbtree_train_param": {"process_type": "default", "tree_method": "hist", "updater": "grow_quantile_histmaker"},
      "name": "gbtree",
      "tree_train_param": {"alpha": "0", "colsample_bytree": "0.8", "eta": "0.300000012", "lambda": "1", "max_depth": "6", "subsample": "1"}
    },
    "learner_model_param": {"base_score": "5E-1", "num_class": "0", "num_feature": "12", "num_target": "1"}
  },
  "version": [2, 0, 3]
}`

func TestFromConfig(t *testing.T) {
	s, err := FromConfig([]byte(boosterConfigJSON))
	require.NoError(t, err)
	assert.Equal(t, Summary{
		NumTrees:        "30",
		NumParallelTree: "1",
		MaxDepth:        "6",
		Eta:             "0.300000012",
		ColsampleByTree: "0.8",
		Subsample:       "1",
		Lambda:          "1",
		Alpha:           "0",
		TreeMethod:      "hist",
		NumFeature:      "12",
	}, s)
}

func TestFromConfigMissingSections(t *testing.T) {
	s, err := FromConfig([]byte(`{"learner": {}}`))
	require.NoError(t, err)
	assert.Equal(t, notAvailable, s.NumTrees)
	assert.Equal(t, notAvailable, s.TreeMethod)

	_, err = FromConfig([]byte(`not json`))
	assert.Error(t, err)
}

func TestFromEnsemble(t *testing.T) {
	e, err := xgbmerge.Parse(testutil.Model{Stumps: testutil.Stumps(3, 1), NumFeature: 7}.Document())
	require.NoError(t, err)

	s := FromEnsemble(e)
	assert.Equal(t, "3", s.NumTrees)
	assert.Equal(t, "1", s.NumParallelTree)
	assert.Equal(t, "7", s.NumFeature)
	assert.Equal(t, notAvailable, s.Eta)
}

func TestRender(t *testing.T) {
	s, err := FromConfig([]byte(boosterConfigJSON))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "Global model", s))
	out := buf.String()
	assert.Contains(t, out, "Global model")
	for _, row := range s.Rows() {
		assert.Contains(t, out, row[0])
		assert.Contains(t, out, row[1])
	}
}
