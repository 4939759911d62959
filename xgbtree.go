package xgbmerge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// xgbtree constant values.
const (
	isLeaf = 1

	noChild = -1
)

var (
	ErrNilNode          = errors.New("nil node")
	ErrFeatureCount     = errors.New("features less than `node.Feature`")
	ErrCategoricalSplit = errors.New("categorical splits are not supported")
)

// TreeRecord is one boosted tree of an ensemble. The merge only relocates and
// relabels it; everything except the id is kept as the raw JSON it was read
// from.
type TreeRecord struct {
	ID      int
	payload map[string]json.RawMessage
}

// Payload returns the tree fields other than "id". The values are shared with
// the record and must not be modified.
func (t TreeRecord) Payload() map[string]json.RawMessage {
	return maps.Clone(t.payload)
}

// withID returns a copy of t relabeled to id. The payload is shared.
func (t TreeRecord) withID(id int) TreeRecord {
	return TreeRecord{ID: id, payload: t.payload}
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TreeRecord) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return malformed("tree is not an object: %v", err)
	}
	raw, ok := fields["id"]
	if !ok {
		return malformed("tree without id")
	}
	id, err := strconv.Atoi(string(raw))
	if err != nil {
		return malformed("tree id %s is not an integer", raw)
	}
	delete(fields, "id")
	t.ID = id
	t.payload = fields
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t TreeRecord) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(t.payload)+1)
	for k, v := range t.payload {
		fields[k] = v
	}
	fields["id"] = json.RawMessage(strconv.Itoa(t.ID))
	return marshalDocument(fields)
}

// nodeFlag accepts both encodings of default_left seen in model files.
type nodeFlag bool

func (f *nodeFlag) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "true", "1":
		*f = true
	case "false", "0":
		*f = false
	default:
		return fmt.Errorf("invalid flag %s", b)
	}
	return nil
}

type xgbNode struct {
	NodeID    int
	Threshold float32
	Yes       int
	No        int
	Missing   int
	Feature   int
	Flags     uint8
	LeafValue float32
}

type xgbTree struct {
	nodes []*xgbNode
}

// buildTree decodes the array layout of a native model tree into nodes.
// Leaves carry their value in split_conditions.
func buildTree(t TreeRecord) (*xgbTree, error) {
	var (
		left, right, indices, splitType []int
		conditions                      []float32
		defaultLeft                     []nodeFlag
	)
	fields := []struct {
		name     string
		dst      interface{}
		optional bool
	}{
		{"left_children", &left, false},
		{"right_children", &right, false},
		{"split_indices", &indices, false},
		{"split_conditions", &conditions, false},
		{"default_left", &defaultLeft, false},
		{"split_type", &splitType, true},
	}
	for _, f := range fields {
		raw, ok := t.payload[f.name]
		if !ok {
			if f.optional {
				continue
			}
			return nil, malformed("tree %d: missing %s", t.ID, f.name)
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return nil, malformed("tree %d: %s: %v", t.ID, f.name, err)
		}
	}

	numNodes := len(left)
	if len(right) != numNodes || len(indices) != numNodes ||
		len(conditions) != numNodes || len(defaultLeft) != numNodes {
		return nil, malformed("tree %d: node arrays differ in length", t.ID)
	}

	tree := &xgbTree{nodes: make([]*xgbNode, numNodes)}
	for i := 0; i < numNodes; i++ {
		if left[i] == noChild {
			tree.nodes[i] = &xgbNode{
				NodeID:    i,
				Flags:     isLeaf,
				LeafValue: conditions[i],
			}
			continue
		}
		if len(splitType) == numNodes && splitType[i] != 0 {
			return nil, fmt.Errorf("%w: tree %d node %d", ErrCategoricalSplit, t.ID, i)
		}
		if indices[i] < 0 {
			return nil, malformed("tree %d node %d: split index %d", t.ID, i, indices[i])
		}
		// Children are always numbered after their parent.
		for _, c := range [2]int{left[i], right[i]} {
			if c <= i || c >= numNodes {
				return nil, malformed("tree %d node %d: child %d out of range", t.ID, i, c)
			}
		}
		missing := right[i]
		if defaultLeft[i] {
			missing = left[i]
		}
		tree.nodes[i] = &xgbNode{
			NodeID:    i,
			Threshold: conditions[i],
			Yes:       left[i],
			No:        right[i],
			Missing:   missing,
			Feature:   indices[i],
		}
	}
	return tree, nil
}

func (t *xgbTree) predict(features []float64) (float64, error) {
	idx := 0
	for {
		if idx < 0 || idx >= len(t.nodes) {
			return 0, ErrNilNode
		}
		node := t.nodes[idx]
		if node == nil {
			return 0, ErrNilNode
		}
		if node.Flags&isLeaf > 0 {
			return float64(node.LeafValue), nil
		}

		if len(features) <= node.Feature {
			return 0, fmt.Errorf("%w, count features %d, count `node.Feature` %d", ErrFeatureCount, len(features), node.Feature)
		}

		v := features[node.Feature]
		if math.IsNaN(v) {
			// missing value will be represented as NaN value.
			idx = node.Missing
		} else if float32(v) < node.Threshold {
			idx = node.Yes
		} else {
			idx = node.No
		}
	}
}
