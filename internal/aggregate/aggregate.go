// Package aggregate runs one aggregation job: it discovers the local model
// documents, parses them in parallel, merges them in discovery order and
// writes the global model as JSON and, optionally, in the native format.
//
// Nothing is written unless every step succeeds.
package aggregate

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mirecl/xgbmerge"
	"github.com/mirecl/xgbmerge/internal/compress"
	"github.com/mirecl/xgbmerge/internal/config"
	"github.com/mirecl/xgbmerge/internal/discovery"
	"github.com/mirecl/xgbmerge/internal/native"
	"github.com/mirecl/xgbmerge/internal/report"
	"github.com/mirecl/xgbmerge/internal/storage"
)

// Result describes a finished run.
type Result struct {
	// Sources are the merged documents in merge order.
	Sources  []string
	Ensemble *xgbmerge.Ensemble
	// Document is the serialized global model as written to Output.JSON.
	Document []byte
	// Native is nil when native encoding is disabled.
	Native   *xgbmerge.NativeArtifact
	Summary  report.Summary
	Duration time.Duration
}

// Aggregator runs aggregation jobs against a store.
type Aggregator struct {
	cfg     config.Config
	store   storage.Store
	encoder xgbmerge.NativeEncoder
	logger  *xgbmerge.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithEncoder replaces the native encoder built from the configuration.
func WithEncoder(enc xgbmerge.NativeEncoder) Option {
	return func(a *Aggregator) {
		a.encoder = enc
	}
}

// WithLogger sets the logger.
func WithLogger(l *xgbmerge.Logger) Option {
	return func(a *Aggregator) {
		a.logger = l
	}
}

// New creates an Aggregator. Documents are read from and written to store,
// compressed or not according to their names.
func New(cfg config.Config, store storage.Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		cfg:    cfg,
		store:  compress.Wrap(store),
		logger: xgbmerge.NoopLogger(),
	}
	for _, f := range opts {
		f(a)
	}
	if a.encoder == nil && (cfg.Native.Enabled || cfg.Sources.Verify) {
		a.encoder = native.NewExecEncoder(
			native.WithCommand(cfg.Native.Command),
			native.WithTimeout(cfg.Native.Timeout),
			native.WithOutputName(cfg.Output.Binary),
		)
	}
	return a
}

// Run executes the job.
func (a *Aggregator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	names, err := discovery.Find(ctx, a.store, a.cfg.Sources.Pattern)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.WithMessagef(xgbmerge.ErrEmptyInputSet, "no document matches %s", a.cfg.Sources.Pattern)
	}
	a.logger.WithCount(len(names)).Info("local models found", zap.String("pattern", a.cfg.Sources.Pattern))

	sources, err := a.parseAll(ctx, names)
	if err != nil {
		return nil, err
	}
	for i, name := range names {
		a.logger.LogSourceParsed(name, sources[i])
	}

	merged, err := xgbmerge.Merge(sources, a.mergeOptions(names)...)
	if err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	document, err := xgbmerge.Serialize(merged)
	if err != nil {
		return nil, err
	}

	res := &Result{Sources: names, Ensemble: merged, Document: document}
	if a.cfg.Native.Enabled {
		res.Native, err = xgbmerge.ToNativeBinary(ctx, a.encoder, document)
		if err != nil {
			return nil, err
		}
	}

	if err := a.store.Put(ctx, a.cfg.Output.JSON, document); err != nil {
		return nil, errors.Wrapf(err, "write %s", a.cfg.Output.JSON)
	}
	a.logger.Info("global model saved", zap.String("path", a.cfg.Output.JSON), zap.Int("bytes", len(document)))
	if res.Native != nil {
		if err := a.store.Put(ctx, a.cfg.Output.Binary, res.Native.Binary); err != nil {
			return nil, errors.Wrapf(err, "write %s", a.cfg.Output.Binary)
		}
		a.logger.Info("global model saved", zap.String("path", a.cfg.Output.Binary), zap.Int("bytes", len(res.Native.Binary)))
	}

	res.Summary = a.summarize(res)
	res.Duration = time.Since(start)
	return res, nil
}

// parseAll reads and parses names concurrently, keeping their order.
func (a *Aggregator) parseAll(ctx context.Context, names []string) ([]*xgbmerge.Ensemble, error) {
	if a.cfg.Sources.Verify && a.encoder == nil {
		return nil, errors.New("sources.verify needs a native encoder")
	}
	limit := a.cfg.Parallelism
	if limit <= 0 {
		limit = 1
	}

	sources := make([]*xgbmerge.Ensemble, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			log := a.logger.WithSource(name)
			data, err := a.store.Get(gctx, name)
			if err != nil {
				return errors.Wrapf(err, "read %s", name)
			}
			log.Debug("local model read", zap.Int("bytes", len(data)))
			e, err := xgbmerge.Parse(data)
			if err != nil {
				return xgbmerge.WithSource(err, name)
			}
			if a.cfg.Sources.Verify {
				if _, err := xgbmerge.ToNativeBinary(gctx, a.encoder, data); err != nil {
					return xgbmerge.WithSource(err, name)
				}
				log.Debug("local model verified")
			}
			sources[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sources, nil
}

func (a *Aggregator) mergeOptions(names []string) []xgbmerge.MergeOption {
	opts := []xgbmerge.MergeOption{
		xgbmerge.WithLogger(a.logger),
		xgbmerge.WithSourceNames(names...),
	}
	if a.cfg.Merge.Strict {
		opts = append(opts, xgbmerge.WithStrictCompatibility())
	}
	if a.cfg.Merge.PreserveStructure {
		opts = append(opts, xgbmerge.WithPreservedStructure())
	}
	return opts
}

// summarize prefers the booster configuration the native library reported,
// which carries the training parameters.
func (a *Aggregator) summarize(res *Result) report.Summary {
	if res.Native != nil && len(res.Native.Config) > 0 {
		s, err := report.FromConfig(res.Native.Config)
		if err == nil {
			return s
		}
		a.logger.Warn("booster config unreadable", zap.Error(err))
	}
	return report.FromEnsemble(res.Ensemble)
}
