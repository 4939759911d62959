package xgbmerge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Document keys on the path to the tree list.
const (
	keyLearner         = "learner"
	keyBooster         = "gradient_booster"
	keyModel           = "model"
	keyModelParam      = "gbtree_model_param"
	keyLearnerParam    = "learner_model_param"
	keyTrees           = "trees"
	keyTreeInfo        = "tree_info"
	keyIterIndptr      = "iteration_indptr"
	keyNumTrees        = "num_trees"
	keyNumParallelTree = "num_parallel_tree"
)

// ParseFile loads an ensemble from an XGBoost JSON model file.
func ParseFile(modelPath string) (*Ensemble, error) {
	modelReader, err := os.Open(modelPath)
	if err != nil {
		return nil, err
	}
	defer modelReader.Close()

	e, err := ParseReader(modelReader)
	return e, WithSource(err, modelPath)
}

// ParseReader loads an ensemble from reader.
func ParseReader(modelReader io.Reader) (*Ensemble, error) {
	document, err := io.ReadAll(modelReader)
	if err != nil {
		return nil, err
	}
	return Parse(document)
}

// Parse decodes an XGBoost JSON model document. The document is not repaired:
// counters are taken as written, but a num_trees that disagrees with the tree
// list is rejected.
func Parse(document []byte) (*Ensemble, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, document); err != nil {
		return nil, malformed("invalid JSON: %v", err)
	}
	compact := buf.Bytes()
	if err := checkSchema(compact); err != nil {
		return nil, err
	}

	var (
		e   Ensemble
		err error
	)
	if e.skel.root, err = decodeObject(compact, "document"); err != nil {
		return nil, err
	}
	if e.skel.learner, err = decodeObject(e.skel.root[keyLearner], keyLearner); err != nil {
		return nil, err
	}
	if e.skel.booster, err = decodeObject(e.skel.learner[keyBooster], keyBooster); err != nil {
		return nil, err
	}
	if e.skel.model, err = decodeObject(e.skel.booster[keyModel], keyModel); err != nil {
		return nil, err
	}
	if e.skel.modelParam, err = decodeObject(e.skel.model[keyModelParam], keyModelParam); err != nil {
		return nil, err
	}

	m := &e.Metadata
	if m.NumTrees, err = decodeTextInt(e.skel.modelParam[keyNumTrees], keyNumTrees); err != nil {
		return nil, err
	}
	if m.NumParallelTree, err = decodeTextInt(e.skel.modelParam[keyNumParallelTree], keyNumParallelTree); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(e.skel.model[keyTrees], &e.Trees); err != nil {
		return nil, asMalformed(err, keyTrees)
	}
	if raw, ok := e.skel.model[keyTreeInfo]; ok {
		if err := json.Unmarshal(raw, &m.TreeInfo); err != nil {
			return nil, asMalformed(err, keyTreeInfo)
		}
	}
	if raw, ok := e.skel.model[keyIterIndptr]; ok {
		if err := json.Unmarshal(raw, &m.IterationIndptr); err != nil {
			return nil, asMalformed(err, keyIterIndptr)
		}
	}
	if m.NumTrees != len(e.Trees) {
		return nil, malformed("num_trees is %d but the model has %d trees", m.NumTrees, len(e.Trees))
	}
	if e.Trees == nil {
		e.Trees = []TreeRecord{}
	}

	if raw, ok := e.skel.learner[keyLearnerParam]; ok {
		if e.Learner, err = decodeLearnerParams(raw); err != nil {
			return nil, err
		}
	}

	delete(e.skel.root, keyLearner)
	delete(e.skel.learner, keyBooster)
	delete(e.skel.booster, keyModel)
	delete(e.skel.model, keyModelParam)
	delete(e.skel.model, keyTrees)
	delete(e.skel.model, keyTreeInfo)
	delete(e.skel.model, keyIterIndptr)
	delete(e.skel.modelParam, keyNumTrees)
	delete(e.skel.modelParam, keyNumParallelTree)
	return &e, nil
}

// Serialize encodes e as an XGBoost JSON model document. num_trees and
// num_parallel_tree are written as strings, the way the native library does.
func Serialize(e *Ensemble) ([]byte, error) {
	m := e.Metadata

	modelParam := withFields(e.skel.modelParam, map[string]interface{}{
		keyNumTrees:        strconv.Itoa(m.NumTrees),
		keyNumParallelTree: strconv.Itoa(m.NumParallelTree),
	})
	trees := e.Trees
	if trees == nil {
		trees = []TreeRecord{}
	}
	modelFields := map[string]interface{}{
		keyModelParam: modelParam,
		keyTrees:      trees,
	}
	if m.TreeInfo != nil {
		modelFields[keyTreeInfo] = m.TreeInfo
	}
	if m.IterationIndptr != nil {
		modelFields[keyIterIndptr] = m.IterationIndptr
	}
	model := withFields(e.skel.model, modelFields)
	booster := withFields(e.skel.booster, map[string]interface{}{keyModel: model})
	learner := withFields(e.skel.learner, map[string]interface{}{keyBooster: booster})
	root := withFields(e.skel.root, map[string]interface{}{keyLearner: learner})
	return marshalDocument(root)
}

// NativeArtifact is what the native library produced for a document.
type NativeArtifact struct {
	// Binary is the saved model.
	Binary []byte
	// Config is the booster configuration JSON, if the encoder reports it.
	Config []byte
}

// NativeEncoder hands a JSON model document to the native library, which
// loads it and saves it in its own binary format.
type NativeEncoder interface {
	Encode(ctx context.Context, document []byte) (*NativeArtifact, error)
}

// ToNativeBinary converts document with enc. Failures are not retried: the
// document is either valid or the merge produced an inconsistent model.
func ToNativeBinary(ctx context.Context, enc NativeEncoder, document []byte) (*NativeArtifact, error) {
	artifact, err := enc.Encode(ctx, document)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNativeEncodeFailure, err)
	}
	return artifact, nil
}

func decodeObject(raw json.RawMessage, name string) (map[string]json.RawMessage, error) {
	if raw == nil {
		return nil, malformed("missing %s", name)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, malformed("%s is not an object", name)
	}
	return obj, nil
}

// decodeTextInt reads an integer stored as a JSON string.
func decodeTextInt(raw json.RawMessage, name string) (int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, malformed("%s is not a string", name)
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, malformed("%s %q is not a non-negative integer", name, s)
	}
	return v, nil
}

func decodeLearnerParams(raw json.RawMessage) (LearnerParams, error) {
	var (
		p      LearnerParams
		fields map[string]string
	)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return p, malformed("%s: %v", keyLearnerParam, err)
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{"num_feature", &p.NumFeature},
		{"num_class", &p.NumClass},
		{"num_target", &p.NumTarget},
	}
	for _, f := range ints {
		s, ok := fields[f.name]
		if !ok {
			continue
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return p, malformed("%s.%s %q is not an integer", keyLearnerParam, f.name, s)
		}
		*f.dst = v
	}
	if s, ok := fields["base_score"]; ok {
		// newer releases write a vector: "[5E-1]"
		s = strings.Trim(s, "[]")
		if i := strings.IndexByte(s, ','); i >= 0 {
			s = s[:i]
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return p, malformed("%s.base_score %q is not a number", keyLearnerParam, fields["base_score"])
		}
		p.BaseScore = v
	}
	return p, nil
}

func asMalformed(err error, name string) error {
	var de *DocumentError
	if errors.As(err, &de) {
		return err
	}
	return malformed("%s: %v", name, err)
}

// withFields returns a copy of base with fields added.
func withFields(base map[string]json.RawMessage, fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(fields))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// marshalDocument encodes v without HTML escaping so untouched strings are
// written back exactly as they were read.
func marshalDocument(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
