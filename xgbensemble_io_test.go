package xgbmerge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirecl/xgbmerge/internal/testutil"
)

func mutateDocument(t *testing.T, doc []byte, f func(map[string]interface{})) []byte {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(doc, &m))
	f(m)
	out, err := json.Marshal(m)
	require.NoError(t, err)
	return out
}

func boosterOf(m map[string]interface{}) map[string]interface{} {
	return m["learner"].(map[string]interface{})["gradient_booster"].(map[string]interface{})
}

func modelOf(m map[string]interface{}) map[string]interface{} {
	return boosterOf(m)["model"].(map[string]interface{})
}

func modelParamOf(m map[string]interface{}) map[string]interface{} {
	return modelOf(m)["gbtree_model_param"].(map[string]interface{})
}

func TestParse(t *testing.T) {
	e, err := Parse(testutil.Model{
		Stumps:          testutil.Stumps(4, 1),
		NumParallelTree: 2,
		NumFeature:      5,
		NumClass:        0,
		IterationIndptr: []int{0, 2, 4},
	}.Document())
	require.NoError(t, err)

	assert.Equal(t, 4, e.Metadata.NumTrees)
	assert.Equal(t, 2, e.Metadata.NumParallelTree)
	assert.Equal(t, []int{0, 0, 0, 0}, e.Metadata.TreeInfo)
	assert.Equal(t, []int{0, 2, 4}, e.Metadata.IterationIndptr)
	assert.Equal(t, 2, e.Rounds())
	assert.Equal(t, LearnerParams{NumFeature: 5, NumTarget: 1, BaseScore: 0.5}, e.Learner)
	for i, tree := range e.Trees {
		assert.Equal(t, i, tree.ID)
		_, hasID := tree.Payload()["id"]
		assert.False(t, hasID)
		assert.Contains(t, tree.Payload(), "split_conditions")
	}
	assert.NoError(t, e.Validate())
}

func TestParseErrors(t *testing.T) {
	base := testutil.Model{Stumps: testutil.Stumps(2, 1)}.Document()

	tests := []struct {
		name string
		doc  []byte
		kind error
	}{
		{
			name: "invalid json",
			doc:  []byte(`{"learner": `),
			kind: ErrMalformedDocument,
		},
		{
			name: "not an object",
			doc:  []byte(`[1, 2, 3]`),
			kind: ErrMalformedDocument,
		},
		{
			name: "missing version",
			doc: mutateDocument(t, base, func(m map[string]interface{}) {
				delete(m, "version")
			}),
			kind: ErrUnsupportedSchema,
		},
		{
			name: "missing num_trees",
			doc: mutateDocument(t, base, func(m map[string]interface{}) {
				delete(modelParamOf(m), "num_trees")
			}),
			kind: ErrUnsupportedSchema,
		},
		{
			name: "missing num_parallel_tree",
			doc: mutateDocument(t, base, func(m map[string]interface{}) {
				delete(modelParamOf(m), "num_parallel_tree")
			}),
			kind: ErrUnsupportedSchema,
		},
		{
			name: "dart booster",
			doc: mutateDocument(t, base, func(m map[string]interface{}) {
				b := boosterOf(m)
				b["name"] = "dart"
				b["gbtree"] = map[string]interface{}{"model": b["model"]}
				delete(b, "model")
			}),
			kind: ErrUnsupportedSchema,
		},
		{
			name: "missing learner",
			doc: mutateDocument(t, base, func(m map[string]interface{}) {
				delete(m, "learner")
			}),
			kind: ErrMalformedDocument,
		},
		{
			name: "num_trees as number",
			doc: mutateDocument(t, base, func(m map[string]interface{}) {
				modelParamOf(m)["num_trees"] = 2
			}),
			kind: ErrMalformedDocument,
		},
		{
			name: "num_trees not numeric",
			doc: mutateDocument(t, base, func(m map[string]interface{}) {
				modelParamOf(m)["num_trees"] = "two"
			}),
			kind: ErrMalformedDocument,
		},
		{
			name: "trees not an array",
			doc: mutateDocument(t, base, func(m map[string]interface{}) {
				modelOf(m)["trees"] = map[string]interface{}{}
			}),
			kind: ErrMalformedDocument,
		},
		{
			name: "tree without id",
			doc: mutateDocument(t, base, func(m map[string]interface{}) {
				tree := modelOf(m)["trees"].([]interface{})[1].(map[string]interface{})
				delete(tree, "id")
			}),
			kind: ErrMalformedDocument,
		},
		{
			name: "num_trees disagrees with trees",
			doc: mutateDocument(t, base, func(m map[string]interface{}) {
				modelParamOf(m)["num_trees"] = "3"
			}),
			kind: ErrMalformedDocument,
		},
		{
			name: "tree_info of strings",
			doc: mutateDocument(t, base, func(m map[string]interface{}) {
				modelOf(m)["tree_info"] = []string{"0", "0"}
			}),
			kind: ErrMalformedDocument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Parse(tt.doc)
			require.Error(t, err)
			assert.Nil(t, e)
			assert.ErrorIs(t, err, tt.kind)

			var de *DocumentError
			require.True(t, errors.As(err, &de))
			assert.NotEmpty(t, de.Reason)
		})
	}
}

func TestParseFileNamesSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "XGB_train_set_1.json")
	doc := mutateDocument(t, testutil.Model{Stumps: testutil.Stumps(1, 1)}.Document(), func(m map[string]interface{}) {
		delete(m, "version")
	})
	require.NoError(t, os.WriteFile(path, doc, 0o600))

	_, err := ParseFile(path)
	require.ErrorIs(t, err, ErrUnsupportedSchema)
	var de *DocumentError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, path, de.Source)
	assert.Contains(t, err.Error(), path)
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSerializeEncodesCountersAsText(t *testing.T) {
	a := parseModel(t, testutil.Model{Stumps: testutil.Stumps(2, 1)})
	b := parseModel(t, testutil.Model{Stumps: testutil.Stumps(3, 1)})
	merged, err := Merge([]*Ensemble{a, b})
	require.NoError(t, err)

	doc, err := Serialize(merged)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(doc, &m))
	assert.Equal(t, "5", modelParamOf(m)["num_trees"])
	assert.Equal(t, "1", modelParamOf(m)["num_parallel_tree"])
	assert.Equal(t, []interface{}{0.0, 0.0, 0.0, 0.0, 0.0}, modelOf(m)["tree_info"])
	assert.Equal(t, []interface{}{0.0, 1.0, 2.0, 3.0, 4.0, 5.0}, modelOf(m)["iteration_indptr"])
	trees := modelOf(m)["trees"].([]interface{})
	require.Len(t, trees, 5)
	assert.Equal(t, 4.0, trees[4].(map[string]interface{})["id"])
	assert.Equal(t, "gbtree", boosterOf(m)["name"])
	assert.Equal(t, []interface{}{2.0, 0.0, 3.0}, m["version"])
}

func TestSerializeKeepsUnmodeledFields(t *testing.T) {
	doc := mutateDocument(t, testutil.Model{Stumps: testutil.Stumps(1, 1)}.Document(), func(m map[string]interface{}) {
		m["learner"].(map[string]interface{})["attributes"] = map[string]interface{}{"best_iteration": "0"}
		modelParamOf(m)["num_feature"] = "2"
		modelOf(m)["extra"] = []interface{}{"kept"}
	})
	e, err := Parse(doc)
	require.NoError(t, err)

	out, err := Serialize(e)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, map[string]interface{}{"best_iteration": "0"}, m["learner"].(map[string]interface{})["attributes"])
	assert.Equal(t, "2", modelParamOf(m)["num_feature"])
	assert.Equal(t, []interface{}{"kept"}, modelOf(m)["extra"])
	assert.Contains(t, m["learner"].(map[string]interface{}), "objective")
}

func TestSerializeOmitsAbsentIndptr(t *testing.T) {
	e := parseModel(t, testutil.Model{Stumps: testutil.Stumps(1, 1), OmitIndptr: true})
	out, err := Serialize(e)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &m))
	assert.NotContains(t, modelOf(m), "iteration_indptr")
}

type fakeEncoder struct {
	err error
}

func (f fakeEncoder) Encode(_ context.Context, document []byte) (*NativeArtifact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &NativeArtifact{Binary: append([]byte("bin:"), document...)}, nil
}

func TestToNativeBinary(t *testing.T) {
	artifact, err := ToNativeBinary(context.Background(), fakeEncoder{}, []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, []byte("bin:{}"), artifact.Binary)

	cause := errors.New("XGBoostError: invalid num_trees")
	_, err = ToNativeBinary(context.Background(), fakeEncoder{err: cause}, []byte("{}"))
	require.ErrorIs(t, err, ErrNativeEncodeFailure)
	assert.ErrorIs(t, err, cause)
}

func TestValidate(t *testing.T) {
	valid := func() *Ensemble {
		return parseModel(t, testutil.Model{Stumps: testutil.Stumps(3, 1)})
	}
	tests := []struct {
		name   string
		mutate func(e *Ensemble)
	}{
		{"id gap", func(e *Ensemble) { e.Trees[2].ID = 3 }},
		{"num_trees", func(e *Ensemble) { e.Metadata.NumTrees = 4 }},
		{"tree_info length", func(e *Ensemble) { e.Metadata.TreeInfo = []int{0} }},
		{"indptr missing", func(e *Ensemble) { e.Metadata.IterationIndptr = nil }},
		{"indptr start", func(e *Ensemble) { e.Metadata.IterationIndptr = []int{1, 3} }},
		{"indptr decreasing", func(e *Ensemble) { e.Metadata.IterationIndptr = []int{0, 2, 1, 3} }},
		{"indptr end", func(e *Ensemble) { e.Metadata.IterationIndptr = []int{0, 2} }},
	}
	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid()
			tt.mutate(e)
			assert.ErrorIs(t, e.Validate(), ErrInvariantViolation)
		})
	}
}
