package xgbmerge

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Ensembler contains interface of a base model.
type Ensembler interface {
	Predict(features []float64) (float64, error)
}

var _ Ensembler = (*Ensemble)(nil)

// EnsembleMetadata holds the ensemble-level counters of a tree booster.
type EnsembleMetadata struct {
	NumTrees        int
	NumParallelTree int
	// TreeInfo is the output group of every tree. Nil when the document
	// has no tree_info.
	TreeInfo []int
	// IterationIndptr holds the index of the first tree of every boosting
	// round followed by NumTrees. Nil when the document has no
	// iteration_indptr.
	IterationIndptr []int
}

// LearnerParams are the learner_model_param values of a model. They are read
// from the document and written back untouched.
type LearnerParams struct {
	NumFeature int
	NumClass   int
	NumTarget  int
	BaseScore  float64
}

// Ensemble is a parsed XGBoost tree model.
type Ensemble struct {
	Trees    []TreeRecord
	Metadata EnsembleMetadata
	Learner  LearnerParams

	skel skeleton
}

// skeleton keeps every document field the ensemble does not model, one map
// per nesting level on the path to the tree list.
type skeleton struct {
	root       map[string]json.RawMessage
	learner    map[string]json.RawMessage
	booster    map[string]json.RawMessage
	model      map[string]json.RawMessage
	modelParam map[string]json.RawMessage
}

// Validate reports the first broken ensemble invariant.
func (e *Ensemble) Validate() error {
	m := e.Metadata
	for i, t := range e.Trees {
		if t.ID != i {
			return errors.Wrapf(ErrInvariantViolation, "tree at position %d has id %d", i, t.ID)
		}
	}
	if m.NumTrees != len(e.Trees) {
		return errors.Wrapf(ErrInvariantViolation, "num_trees %d, trees %d", m.NumTrees, len(e.Trees))
	}
	if len(m.TreeInfo) != m.NumTrees {
		return errors.Wrapf(ErrInvariantViolation, "tree_info has %d entries for %d trees", len(m.TreeInfo), m.NumTrees)
	}
	indptr := m.IterationIndptr
	if len(indptr) == 0 || indptr[0] != 0 {
		return errors.Wrap(ErrInvariantViolation, "iteration_indptr must start at 0")
	}
	for k := 1; k < len(indptr); k++ {
		if indptr[k] < indptr[k-1] {
			return errors.Wrapf(ErrInvariantViolation, "iteration_indptr decreases at %d", k)
		}
	}
	if last := indptr[len(indptr)-1]; last != m.NumTrees {
		return errors.Wrapf(ErrInvariantViolation, "iteration_indptr ends at %d, num_trees %d", last, m.NumTrees)
	}
	return nil
}

// Rounds returns the number of boosting rounds described by IterationIndptr.
func (e *Ensemble) Rounds() int {
	if len(e.Metadata.IterationIndptr) == 0 {
		return 0
	}
	return len(e.Metadata.IterationIndptr) - 1
}

// Predictor evaluates the trees of an ensemble.
type Predictor struct {
	trees     []*xgbTree
	groups    []int
	numGroups int
}

// Compile decodes every tree payload once so repeated predictions do not pay
// for JSON decoding.
func (e *Ensemble) Compile() (*Predictor, error) {
	p := &Predictor{
		trees:     make([]*xgbTree, 0, len(e.Trees)),
		groups:    make([]int, len(e.Trees)),
		numGroups: 1,
	}
	for i, t := range e.Trees {
		tree, err := buildTree(t)
		if err != nil {
			return nil, errors.WithMessagef(err, "error while reading %d tree", i)
		}
		p.trees = append(p.trees, tree)
		if i < len(e.Metadata.TreeInfo) {
			g := e.Metadata.TreeInfo[i]
			if g < 0 {
				return nil, malformed("tree %d has negative group %d", i, g)
			}
			p.groups[i] = g
			if g+1 > p.numGroups {
				p.numGroups = g + 1
			}
		}
	}
	return p, nil
}

// Predict returns the sum of the leaf values reached in every tree. The
// base score is not applied.
func (p *Predictor) Predict(features []float64) (float64, error) {
	pred := 0.0
	for k := range p.trees {
		v, err := p.trees[k].predict(features)
		if err != nil {
			return 0, err
		}
		pred += v
	}
	return pred, nil
}

// PredictGroups returns one raw margin per output group.
func (p *Predictor) PredictGroups(features []float64) ([]float64, error) {
	out := make([]float64, p.numGroups)
	for k, t := range p.trees {
		v, err := t.predict(features)
		if err != nil {
			return nil, err
		}
		out[p.groups[k]] += v
	}
	return out, nil
}

// Predict returns prediction of this ensemble model. Use Compile when
// predicting more than once.
func (e *Ensemble) Predict(features []float64) (float64, error) {
	p, err := e.Compile()
	if err != nil {
		return 0, err
	}
	return p.Predict(features)
}
