package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mirecl/xgbmerge"
	"github.com/mirecl/xgbmerge/internal/aggregate"
	"github.com/mirecl/xgbmerge/internal/config"
	"github.com/mirecl/xgbmerge/internal/report"
	"github.com/mirecl/xgbmerge/internal/storage"
)

func newLogger(level, format string) *xgbmerge.Logger {
	logger, err := xgbmerge.NewLogger(level, format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "xgbmerge:", err)
		os.Exit(2)
	}
	return logger
}

func checkError(logger *xgbmerge.Logger, msg string, err error) {
	if err != nil {
		logger.Fatal(msg, zap.Error(err))
	}
}

func aggregateCmd() *cobra.Command {
	var (
		configPath, pattern, outJSON, outBinary, logLevel string
		strict, preserve, noNative, verify                bool
		parallelism                                       int
	)

	cmd := cobra.Command{
		Use:   "aggregate",
		Short: "merge the local models into one global model",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(configPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, "xgbmerge:", err)
				os.Exit(2)
			}
			flags := cmd.Flags()
			if flags.Changed("pattern") {
				cfg.Sources.Pattern = pattern
			}
			if flags.Changed("out-json") {
				cfg.Output.JSON = outJSON
			}
			if flags.Changed("out-binary") {
				cfg.Output.Binary = outBinary
			}
			if flags.Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if flags.Changed("parallelism") {
				cfg.Parallelism = parallelism
			}
			cfg.Merge.Strict = cfg.Merge.Strict || strict
			cfg.Merge.PreserveStructure = cfg.Merge.PreserveStructure || preserve
			cfg.Sources.Verify = cfg.Sources.Verify || verify
			if noNative {
				cfg.Native.Enabled = false
			}

			logger := newLogger(cfg.Log.Level, cfg.Log.Format)
			defer logger.Sync()
			checkError(logger, "invalid configuration", cfg.Validate())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := storage.Open(ctx, cfg.Storage)
			checkError(logger, "cannot open storage", err)

			res, err := aggregate.New(cfg, store, aggregate.WithLogger(logger)).Run(ctx)
			checkError(logger, "aggregation failed", err)

			logger.Info("aggregation finished",
				zap.Int("sources", len(res.Sources)),
				zap.Int("num_trees", res.Ensemble.Metadata.NumTrees),
				zap.Duration("took", res.Duration),
			)
			checkError(logger, "cannot print summary", report.Render(os.Stdout, "Global model", res.Summary))
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML job configuration; defaults apply when empty")
	flags.StringVar(&pattern, "pattern", "", "glob selecting the local model documents")
	flags.StringVar(&outJSON, "out-json", "", "name of the global model JSON document")
	flags.StringVar(&outBinary, "out-binary", "", "name of the global model in the native format")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flags.IntVar(&parallelism, "parallelism", 0, "documents parsed concurrently")
	flags.BoolVar(&strict, "strict", false, "fail when local models disagree on num_parallel_tree, num_feature or num_class")
	flags.BoolVar(&preserve, "preserve-structure", false, "keep tree_info and boosting rounds of the local models")
	flags.BoolVar(&noNative, "no-native", false, "skip the native library and write JSON only")
	flags.BoolVar(&verify, "verify", false, "load every local model with the native library before merging")
	return &cmd
}

func inspectCmd() *cobra.Command {
	var logLevel string

	cmd := cobra.Command{
		Use:   "inspect MODEL_JSON",
		Short: "parse and validate a model document and print its summary",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			logger := newLogger(logLevel, "console")
			defer logger.Sync()

			e, err := xgbmerge.ParseFile(args[0])
			checkError(logger, "cannot parse model", err)
			checkError(logger, "invalid model", e.Validate())
			logger.LogSourceParsed(args[0], e)

			checkError(logger, "cannot print summary", report.Render(os.Stdout, args[0], report.FromEnsemble(e)))
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	return &cmd
}

func predictCmd() *cobra.Command {
	var groups bool

	cmd := cobra.Command{
		Use:   "predict MODEL_JSON FEATURES",
		Short: "print the raw margin of a comma separated feature vector",
		Long:  "Empty or \"nan\" features are treated as missing.",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			logger := newLogger("warn", "console")
			defer logger.Sync()

			e, err := xgbmerge.ParseFile(args[0])
			checkError(logger, "cannot parse model", err)
			p, err := e.Compile()
			checkError(logger, "cannot compile model", err)
			features, err := parseFeatures(args[1])
			checkError(logger, "bad features", err)

			if groups {
				margins, err := p.PredictGroups(features)
				checkError(logger, "prediction failed", err)
				for _, m := range margins {
					fmt.Println(strconv.FormatFloat(m, 'g', -1, 64))
				}
				return
			}
			margin, err := p.Predict(features)
			checkError(logger, "prediction failed", err)
			fmt.Println(strconv.FormatFloat(margin, 'g', -1, 64))
		},
	}
	cmd.Flags().BoolVar(&groups, "groups", false, "print one margin per output group")
	return &cmd
}

func main() {
	root := &cobra.Command{
		Use:   "xgbmerge",
		Short: "merge XGBoost models trained on separate data into one ensemble",
	}
	root.AddCommand(aggregateCmd(), inspectCmd(), predictCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
