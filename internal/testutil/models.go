// Package testutil builds XGBoost JSON model documents for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Stump describes a depth-one tree: feature < Threshold goes to Left.
type Stump struct {
	Feature     int
	Threshold   float32
	Left, Right float32
	DefaultLeft bool
}

// Model describes a document to generate.
type Model struct {
	Stumps          []Stump
	NumParallelTree int
	NumFeature      int
	NumClass        int
	// TreeInfo and IterationIndptr default to group 0 and one tree per
	// round when nil.
	TreeInfo        []int
	IterationIndptr []int
	OmitIndptr      bool
	// FeatureNames end up in learner.feature_names.
	FeatureNames []string
}

// Stumps returns n stumps whose leaf values are base, base+1, ... on the left
// and their negation on the right, so every tree is recognisable.
func Stumps(n int, base float32) []Stump {
	out := make([]Stump, n)
	for i := range out {
		v := base + float32(i)
		out[i] = Stump{Feature: i % 2, Threshold: 0.5, Left: v, Right: -v}
	}
	return out
}

// Document renders m as a JSON model.
func (m Model) Document() []byte {
	npt := m.NumParallelTree
	if npt == 0 {
		npt = 1
	}
	numFeature := m.NumFeature
	if numFeature == 0 {
		numFeature = 2
	}
	trees := make([]interface{}, len(m.Stumps))
	for i, s := range m.Stumps {
		trees[i] = stumpTree(i, s, numFeature)
	}
	treeInfo := m.TreeInfo
	if treeInfo == nil {
		treeInfo = make([]int, len(m.Stumps))
	}
	indptr := m.IterationIndptr
	if indptr == nil {
		indptr = make([]int, len(m.Stumps)+1)
		for i := range indptr {
			indptr[i] = i
		}
	}
	featureNames := m.FeatureNames
	if featureNames == nil {
		featureNames = []string{}
	}

	model := map[string]interface{}{
		"gbtree_model_param": map[string]string{
			"num_parallel_tree": strconv.Itoa(npt),
			"num_trees":         strconv.Itoa(len(m.Stumps)),
		},
		"trees":     trees,
		"tree_info": treeInfo,
	}
	if !m.OmitIndptr {
		model["iteration_indptr"] = indptr
	}
	doc := map[string]interface{}{
		"learner": map[string]interface{}{
			"attributes":    map[string]string{},
			"feature_names": featureNames,
			"feature_types": []string{},
			"gradient_booster": map[string]interface{}{
				"model": model,
				"name":  "gbtree",
			},
			"learner_model_param": map[string]string{
				"base_score":         "5E-1",
				"boost_from_average": "1",
				"num_class":          strconv.Itoa(m.NumClass),
				"num_feature":        strconv.Itoa(numFeature),
				"num_target":         "1",
			},
			"objective": map[string]interface{}{
				"name":           "binary:logistic",
				"reg_loss_param": map[string]string{"scale_pos_weight": "1"},
			},
		},
		"version": []int{2, 0, 3},
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("testutil: %v", err))
	}
	return b
}

func stumpTree(id int, s Stump, numFeature int) map[string]interface{} {
	defaultLeft := 0
	if s.DefaultLeft {
		defaultLeft = 1
	}
	return map[string]interface{}{
		"base_weights":        []float32{0, s.Left, s.Right},
		"categories":          []int{},
		"categories_nodes":    []int{},
		"categories_segments": []int{},
		"categories_sizes":    []int{},
		"default_left":        []int{defaultLeft, 0, 0},
		"id":                  id,
		"left_children":       []int{1, -1, -1},
		"loss_changes":        []float32{1.5, 0, 0},
		"parents":             []int{2147483647, 0, 0},
		"right_children":      []int{2, -1, -1},
		"split_conditions":    []float32{s.Threshold, s.Left, s.Right},
		"split_indices":       []int{s.Feature, 0, 0},
		"split_type":          []int{0, 0, 0},
		"sum_hessian":         []float32{10, 5, 5},
		"tree_param": map[string]string{
			"num_deleted":      "0",
			"num_feature":      strconv.Itoa(numFeature),
			"num_nodes":        "3",
			"size_leaf_vector": "1",
		},
	}
}
