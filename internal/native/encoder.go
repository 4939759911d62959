// Package native runs the XGBoost library to turn a JSON model document into
// the library's own saved-model format.
//
// The library is driven out of process: the document is written to a
// temporary directory, a command loads it as a Booster, saves it under the
// requested format and dumps the booster configuration next to it.
package native

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mirecl/xgbmerge"
)

// Placeholders substituted in command arguments.
const (
	InputPlaceholder  = "{input}"
	OutputPlaceholder = "{output}"
	ConfigPlaceholder = "{config}"
)

// DefaultScript loads argv[1], saves it to argv[2] and writes the booster
// configuration to argv[3]. The output extension selects the format.
const DefaultScript = `import sys
import xgboost as xgb

booster = xgb.Booster(model_file=sys.argv[1])
booster.save_model(sys.argv[2])
with open(sys.argv[3], "w") as f:
    f.write(booster.save_config())
`

// DefaultCommand runs DefaultScript with python3.
func DefaultCommand() []string {
	return []string{"python3", "-c", DefaultScript, InputPlaceholder, OutputPlaceholder, ConfigPlaceholder}
}

// ExecEncoder implements xgbmerge.NativeEncoder with an external command.
type ExecEncoder struct {
	command []string
	ext     string
	timeout time.Duration
}

// Option configures an ExecEncoder.
type Option func(*ExecEncoder)

// WithCommand replaces the command. Arguments may contain the placeholders
// {input}, {output} and {config}.
func WithCommand(command []string) Option {
	return func(e *ExecEncoder) {
		if len(command) > 0 {
			e.command = command
		}
	}
}

// WithTimeout bounds one Encode call. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(e *ExecEncoder) {
		e.timeout = d
	}
}

// WithOutputName derives the saved-model format from name's extension, e.g.
// ".ubj" for UBJSON or ".json" for JSON.
func WithOutputName(name string) Option {
	return func(e *ExecEncoder) {
		if ext := filepath.Ext(name); ext != "" {
			e.ext = ext
		}
	}
}

// NewExecEncoder creates an encoder running DefaultCommand unless configured
// otherwise.
func NewExecEncoder(opts ...Option) *ExecEncoder {
	e := &ExecEncoder{
		command: DefaultCommand(),
		ext:     ".model",
	}
	for _, f := range opts {
		f(e)
	}
	return e
}

// Encode implements xgbmerge.NativeEncoder.
func (e *ExecEncoder) Encode(ctx context.Context, document []byte) (*xgbmerge.NativeArtifact, error) {
	dir, err := os.MkdirTemp("", "xgbmerge-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "model.json")
	output := filepath.Join(dir, "model"+e.ext)
	configPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(input, document, 0o600); err != nil {
		return nil, err
	}

	args := make([]string, len(e.command))
	replacer := strings.NewReplacer(
		InputPlaceholder, input,
		OutputPlaceholder, output,
		ConfigPlaceholder, configPath,
	)
	for i, a := range e.command {
		args[i] = replacer.Replace(a)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		if msg := lastLine(stderr.String()); msg != "" {
			return nil, errors.Wrapf(err, "%s: %s", args[0], msg)
		}
		return nil, errors.Wrap(err, args[0])
	}

	binary, err := os.ReadFile(output)
	if err != nil {
		return nil, errors.Wrap(err, "native library wrote no model")
	}
	config, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return &xgbmerge.NativeArtifact{Binary: binary, Config: config}, nil
}

// lastLine returns the last non-empty line of s, where Python puts the
// exception message.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
