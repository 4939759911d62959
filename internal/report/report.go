// Package report summarises the hyperparameters of a global model.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"github.com/mirecl/xgbmerge"
)

const notAvailable = "n/a"

// Summary holds the values printed after a run. They are kept as the strings
// the booster configuration stores them as.
type Summary struct {
	NumTrees        string
	NumParallelTree string
	MaxDepth        string
	Eta             string
	ColsampleByTree string
	Subsample       string
	Lambda          string
	Alpha           string
	TreeMethod      string
	NumFeature      string
}

// boosterConfig is the subset of Booster.save_config() the summary reads.
type boosterConfig struct {
	Learner struct {
		GradientBooster struct {
			GBTreeModelParam map[string]string `json:"gbtree_model_param"`
			TreeTrainParam   map[string]string `json:"tree_train_param"`
			GBTreeTrainParam map[string]string `json:"gbtree_train_param"`
		} `json:"gradient_booster"`
		LearnerModelParam map[string]string `json:"learner_model_param"`
	} `json:"learner"`
}

// FromConfig reads a summary from a booster configuration document.
// Absent values are reported as "n/a".
func FromConfig(config []byte) (Summary, error) {
	var c boosterConfig
	if err := json.Unmarshal(config, &c); err != nil {
		return Summary{}, errors.Wrap(err, "decode booster config")
	}
	gb := c.Learner.GradientBooster
	return Summary{
		NumTrees:        lookup(gb.GBTreeModelParam, "num_trees"),
		NumParallelTree: lookup(gb.GBTreeModelParam, "num_parallel_tree"),
		MaxDepth:        lookup(gb.TreeTrainParam, "max_depth"),
		Eta:             lookup(gb.TreeTrainParam, "eta"),
		ColsampleByTree: lookup(gb.TreeTrainParam, "colsample_bytree"),
		Subsample:       lookup(gb.TreeTrainParam, "subsample"),
		Lambda:          lookup(gb.TreeTrainParam, "lambda"),
		Alpha:           lookup(gb.TreeTrainParam, "alpha"),
		TreeMethod:      lookup(gb.GBTreeTrainParam, "tree_method"),
		NumFeature:      lookup(c.Learner.LearnerModelParam, "num_feature"),
	}, nil
}

// FromEnsemble builds a summary from the model document alone. Training
// parameters are not part of a model document and stay "n/a".
func FromEnsemble(e *xgbmerge.Ensemble) Summary {
	s := Summary{
		NumTrees:        strconv.Itoa(e.Metadata.NumTrees),
		NumParallelTree: strconv.Itoa(e.Metadata.NumParallelTree),
		MaxDepth:        notAvailable,
		Eta:             notAvailable,
		ColsampleByTree: notAvailable,
		Subsample:       notAvailable,
		Lambda:          notAvailable,
		Alpha:           notAvailable,
		TreeMethod:      notAvailable,
		NumFeature:      notAvailable,
	}
	if e.Learner.NumFeature > 0 {
		s.NumFeature = strconv.Itoa(e.Learner.NumFeature)
	}
	return s
}

func lookup(m map[string]string, key string) string {
	if v, ok := m[key]; ok && v != "" {
		return v
	}
	return notAvailable
}

// Rows returns the summary as label/value pairs in print order.
func (s Summary) Rows() [][2]string {
	return [][2]string{
		{"Number of Trees", s.NumTrees},
		{"Parallel Trees per Boosting Round", s.NumParallelTree},
		{"Max Tree Depth", s.MaxDepth},
		{"Learning Rate (eta)", s.Eta},
		{"Features Used per Tree (colsample_bytree)", s.ColsampleByTree},
		{"Data Used per Tree (subsample)", s.Subsample},
		{"L2 Regularization (lambda)", s.Lambda},
		{"L1 Regularization (alpha)", s.Alpha},
		{"Tree Building Method", s.TreeMethod},
		{"Number of Features in Dataset", s.NumFeature},
	}
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Faint(true)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

// Render writes the summary as a boxed table.
func Render(w io.Writer, title string, s Summary) error {
	rows := s.Rows()
	width := 0
	for _, r := range rows {
		if len(r[0]) > width {
			width = len(r[0])
		}
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	for _, r := range rows {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-*s", width, r[0])))
		b.WriteString("  ")
		b.WriteString(r[1])
	}
	_, err := fmt.Fprintln(w, boxStyle.Render(b.String()))
	return err
}
