package xgbmerge

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MergeOption configures Merge.
type MergeOption func(*mergeOptions)

type mergeOptions struct {
	logger   *Logger
	strict   bool
	preserve bool
	names    []string
}

// sourceName returns the document name of the i-th source, 0-based.
func (o *mergeOptions) sourceName(i int) string {
	if i < len(o.names) && o.names[i] != "" {
		return o.names[i]
	}
	return fmt.Sprintf("local model %d", i+1)
}

// WithLogger sets the logger receiving per-tree progress entries.
func WithLogger(l *Logger) MergeOption {
	return func(o *mergeOptions) {
		o.logger = l
	}
}

// WithStrictCompatibility makes Merge fail with ErrIncompatibleEnsembles when
// a source disagrees with the first one on num_parallel_tree, num_feature or
// num_class. Without it the mismatch is only logged.
func WithStrictCompatibility() MergeOption {
	return func(o *mergeOptions) {
		o.strict = true
	}
}

// WithPreservedStructure keeps every source's tree_info and boosting round
// boundaries instead of resetting tree_info to group 0 and writing one round
// per tree.
func WithPreservedStructure() MergeOption {
	return func(o *mergeOptions) {
		o.preserve = true
	}
}

// WithSourceNames names the sources, in order, in errors and warnings.
func WithSourceNames(names ...string) MergeOption {
	return func(o *mergeOptions) {
		o.names = names
	}
}

// accumulator is the running state of the fold.
type accumulator struct {
	trees    []TreeRecord
	count    int
	indptr   []int
	treeInfo []int
}

// Merge concatenates the trees of sources, in order, into one ensemble.
//
// Tree ids are rewritten to their flat position. Unless WithPreservedStructure
// is given, tree_info is reset to group 0 for every tree and
// iteration_indptr becomes 0, 1, ..., num_trees. Everything else (learner
// parameters, objective, attributes) comes from the first source. Sources are
// not modified; the result shares their tree payloads.
func Merge(sources []*Ensemble, opts ...MergeOption) (*Ensemble, error) {
	o := mergeOptions{logger: NoopLogger()}
	for _, f := range opts {
		f(&o)
	}

	if len(sources) == 0 {
		return nil, ErrEmptyInputSet
	}
	for i, s := range sources {
		if s == nil {
			return nil, errors.Errorf("%s is nil", o.sourceName(i))
		}
		if i == 0 {
			continue
		}
		if err := checkCompatible(sources[0], s); err != nil {
			if o.strict {
				return nil, errors.WithMessage(err, o.sourceName(i))
			}
			o.logger.Warn("merging incompatible local model",
				zap.Int("model", i+1),
				zap.String("source", o.sourceName(i)),
				zap.Error(err),
			)
		}
	}

	acc := seed(sources[0], o.preserve)
	for i, s := range sources[1:] {
		acc = fold(acc, s, i+2, &o)
	}

	merged := finish(acc, sources[0], o.preserve)
	o.logger.LogMergeCompleted(len(sources), merged)
	return merged, nil
}

func checkCompatible(first, s *Ensemble) error {
	if a, b := first.Metadata.NumParallelTree, s.Metadata.NumParallelTree; a != b {
		return errors.Wrapf(ErrIncompatibleEnsembles, "num_parallel_tree %d, want %d", b, a)
	}
	if a, b := first.Learner.NumFeature, s.Learner.NumFeature; a != b {
		return errors.Wrapf(ErrIncompatibleEnsembles, "num_feature %d, want %d", b, a)
	}
	if a, b := first.Learner.NumClass, s.Learner.NumClass; a != b {
		return errors.Wrapf(ErrIncompatibleEnsembles, "num_class %d, want %d", b, a)
	}
	return nil
}

func seed(first *Ensemble, preserve bool) accumulator {
	acc := accumulator{
		trees: make([]TreeRecord, len(first.Trees)),
		count: len(first.Trees),
	}
	for i, t := range first.Trees {
		acc.trees[i] = t.withID(i)
	}
	if preserve {
		acc.indptr = []int{0}
		acc.indptr = append(acc.indptr, roundBoundaries(first, 0)...)
		acc.treeInfo = groups(first)
		return acc
	}
	if first.Metadata.IterationIndptr != nil {
		acc.indptr = append([]int(nil), first.Metadata.IterationIndptr...)
	} else {
		acc.indptr = []int{0}
	}
	return acc
}

// fold appends the trees of s, model being its 1-based position in the
// source list.
func fold(acc accumulator, s *Ensemble, model int, o *mergeOptions) accumulator {
	for t, tree := range s.Trees {
		id := acc.count + t
		o.logger.LogTreeAppended(model, t, id)
		acc.trees = append(acc.trees, tree.withID(id))
	}
	if o.preserve {
		acc.indptr = append(acc.indptr, roundBoundaries(s, acc.count)...)
		acc.treeInfo = append(acc.treeInfo, groups(s)...)
	}
	acc.count += len(s.Trees)
	if !o.preserve {
		acc.indptr = append(acc.indptr, acc.count)
	}
	o.logger.LogSourceMerged(model, len(s.Trees), acc.count)
	return acc
}

func finish(acc accumulator, first *Ensemble, preserve bool) *Ensemble {
	numTrees := len(acc.trees)
	m := EnsembleMetadata{
		NumTrees:        numTrees,
		NumParallelTree: first.Metadata.NumParallelTree,
	}
	if preserve {
		m.TreeInfo = acc.treeInfo
		m.IterationIndptr = acc.indptr
	} else {
		m.TreeInfo = make([]int, numTrees)
		m.IterationIndptr = make([]int, numTrees+1)
		for i := range m.IterationIndptr {
			m.IterationIndptr[i] = i
		}
	}
	return &Ensemble{
		Trees:    acc.trees,
		Metadata: m,
		Learner:  first.Learner,
		skel:     first.skel,
	}
}

// roundBoundaries returns the end offset of every round of s, shifted by
// offset. A source without a usable iteration_indptr counts as one round.
func roundBoundaries(s *Ensemble, offset int) []int {
	n := len(s.Trees)
	indptr := s.Metadata.IterationIndptr
	if len(indptr) < 2 || indptr[0] != 0 || indptr[len(indptr)-1] != n {
		if n == 0 {
			return nil
		}
		return []int{offset + n}
	}
	out := make([]int, 0, len(indptr)-1)
	for _, b := range indptr[1:] {
		out = append(out, offset+b)
	}
	return out
}

// groups returns the tree_info of s, or group 0 for every tree when it has
// none that fits.
func groups(s *Ensemble) []int {
	if len(s.Metadata.TreeInfo) == len(s.Trees) {
		return append([]int(nil), s.Metadata.TreeInfo...)
	}
	return make([]int, len(s.Trees))
}
