package xgbmerge

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with merge-specific helpers so field names stay
// consistent across the library and the pipeline.
type Logger struct {
	*zap.Logger
}

// NewLogger creates a Logger writing to stderr.
// level is one of debug, info, warn, error; format is json or console.
func NewLogger(level, format string) (*Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, err
	}

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.RFC3339TimeEncoder

	var encoder zapcore.Encoder
	if format == "json" {
		encoder = zapcore.NewJSONEncoder(config)
	} else {
		config.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(config)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), lvl)
	return &Logger{Logger: zap.New(core)}, nil
}

// NoopLogger discards everything.
func NoopLogger() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// WithSource tags entries with the document a message refers to.
func (l *Logger) WithSource(name string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("source", name))}
}

// WithCount adds a count field.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{Logger: l.Logger.With(zap.Int("count", count))}
}

// LogSourceParsed logs a parsed local model.
func (l *Logger) LogSourceParsed(name string, e *Ensemble) {
	l.Info("local model parsed",
		zap.String("source", name),
		zap.Int("num_trees", e.Metadata.NumTrees),
		zap.Int("num_parallel_tree", e.Metadata.NumParallelTree),
	)
}

// LogTreeAppended logs one tree relocated into the accumulator.
// model is 1-based: the first source is model 1 and never appended.
func (l *Logger) LogTreeAppended(model, local, position int) {
	l.Debug("appending tree",
		zap.Int("model", model),
		zap.Int("tree", local+1),
		zap.Int("id", position),
	)
}

// LogSourceMerged logs the end of one fold step.
func (l *Logger) LogSourceMerged(model, appended, total int) {
	l.Info("local model merged",
		zap.Int("model", model),
		zap.Int("appended", appended),
		zap.Int("num_trees", total),
	)
}

// LogMergeCompleted logs the final shape of a merge.
func (l *Logger) LogMergeCompleted(sources int, e *Ensemble) {
	l.Info("merge completed",
		zap.Int("sources", sources),
		zap.Int("num_trees", e.Metadata.NumTrees),
		zap.Int("rounds", len(e.Metadata.IterationIndptr)-1),
	)
}
