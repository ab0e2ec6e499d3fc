// Package main provides the cnvx command-line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/inodb/cnvx/internal/duckdb"
	"github.com/inodb/cnvx/internal/extract"
	"github.com/inodb/cnvx/internal/inputs"
	"github.com/inodb/cnvx/internal/output"
	"github.com/inodb/cnvx/internal/sampleid"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// usageError marks invalid invocations; the command's usage is printed
// alongside the message.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	v := viper.New()
	root := newRootCmd(v)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return ExitSuccess
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	var ue *usageError
	if errors.As(err, &ue) {
		fmt.Fprintln(stderr)
		fmt.Fprint(stderr, cmd.UsageString())
	}
	return ExitError
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "cnvx <genes> <files> <output.csv>",
		Short: "Extract gene-level CNV records from annotation JSON into CSV",
		Long: `Extract copy-number-variant positions hitting the requested genes from
gzipped JSON annotation files and write them as one CSV report.

<genes> and <files> are comma-separated lists; file items may be glob
patterns. Missing or malformed files are reported and skipped.

A gene list that collides with a subcommand name (query, config) must
follow "--", as in: cnvx -- config a.json.gz out.csv`,
		Example: `  cnvx GUSB,EGFR 'data/*.json.gz' cnv_report.csv
  cnvx --workers 4 --duckdb cnv.duckdb EGFR a.json.gz,b.json.gz out.csv
  cnvx query --duckdb cnv.duckdb --gene EGFR`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 3 {
				return &usageError{msg: fmt.Sprintf("expected 3 arguments (genes, files, output), got %d", len(args))}
			}
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(v.GetString("log.level"), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			sum, err := runExtract(cmd.Context(), args[0], args[1], args[2], optionsFromConfig(v), logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Finished: wrote %d rows for %d files to %s\n",
				sum.Rows, sum.Files, args[2])
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Int("workers", 1, "Number of files decoded concurrently (0 = one per CPU)")
	flags.String("sample-pattern", sampleid.DefaultPattern, "Regular expression matching sample ids in file names")
	flags.String("multi-sample", string(extract.PolicyFirst), "Positions with several copy-number samples: first or reject")
	flags.String("duckdb", "", "Also store records in this DuckDB database")
	flags.Bool("duckdb-replace", false, "Remove previously stored records before writing to --duckdb")

	pflags := cmd.PersistentFlags()
	pflags.StringVar(&cfgFile, "config", "", "Config file (default: ~/.cnvx.yaml)")
	pflags.String("log-level", "info", "Log level: debug, info, warn, error")

	bind := map[string]string{
		"workers":            "workers",
		"sample.pattern":     "sample-pattern",
		"copy_number.policy": "multi-sample",
		"output.duckdb":      "duckdb",
		"output.replace":     "duckdb-replace",
	}
	for key, name := range bind {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
	_ = v.BindPFlag("log.level", pflags.Lookup("log-level"))

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return &usageError{msg: err.Error()}
	})

	cmd.AddCommand(newQueryCmd(v))
	cmd.AddCommand(newConfigCmd(v))

	return cmd
}

// initConfig loads ~/.cnvx.yaml (or cfgFile) and CNVX_* environment variables.
func initConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix("CNVX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.AddConfigPath(home)
		v.SetConfigName(".cnvx")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || (cfgFile == "" && errors.Is(err, os.ErrNotExist)) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// newLogger builds a console logger writing to w.
func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, &usageError{msg: fmt.Sprintf("invalid log level %q", level)}
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

// extractOptions holds the configurable knobs of an extraction run.
type extractOptions struct {
	Workers       int
	SamplePattern string
	Policy        string
	DuckDBPath    string
	Replace       bool
}

func optionsFromConfig(v *viper.Viper) extractOptions {
	return extractOptions{
		Workers:       v.GetInt("workers"),
		SamplePattern: v.GetString("sample.pattern"),
		Policy:        v.GetString("copy_number.policy"),
		DuckDBPath:    v.GetString("output.duckdb"),
		Replace:       v.GetBool("output.replace"),
	}
}

// runExtract expands the gene and file lists, runs the extraction and
// writes the CSV report to outPath.
func runExtract(ctx context.Context, genesArg, filesArg, outPath string, opts extractOptions, logger *zap.Logger) (extract.Summary, error) {
	genes := inputs.SplitList(genesArg)
	if len(genes) == 0 {
		return extract.Summary{}, &usageError{msg: "no genes given"}
	}
	items := inputs.SplitList(filesArg)
	if len(items) == 0 {
		return extract.Summary{}, &usageError{msg: "no annotation files given"}
	}
	files, err := inputs.ExpandFiles(items)
	if err != nil {
		return extract.Summary{}, &usageError{msg: err.Error()}
	}

	policy, err := extract.ParsePolicy(opts.Policy)
	if err != nil {
		return extract.Summary{}, &usageError{msg: err.Error()}
	}
	deriver, err := sampleid.New(opts.SamplePattern)
	if err != nil {
		return extract.Summary{}, &usageError{msg: err.Error()}
	}

	batch := make([]extract.Input, len(files))
	for i, f := range files {
		// Unmatched names are resolved from the file's header later.
		id, _ := deriver.Match(f)
		batch[i] = extract.Input{Path: f, Sample: id}
	}

	logger.Info("extracting CNV records",
		zap.Strings("genes", genes),
		zap.Int("files", len(files)),
		zap.String("output", outPath))

	if dir := filepath.Dir(outPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return extract.Summary{}, fmt.Errorf("create output directory: %w", err)
		}
	}
	out, err := os.Create(outPath)
	if err != nil {
		return extract.Summary{}, fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	var writer extract.RecordWriter = output.NewCSVWriter(out)
	if opts.DuckDBPath != "" {
		store, err := duckdb.Open(opts.DuckDBPath)
		if err != nil {
			return extract.Summary{}, err
		}
		defer store.Close()
		if opts.Replace {
			if err := store.ClearRecords(); err != nil {
				return extract.Summary{}, fmt.Errorf("clear stored records: %w", err)
			}
		}
		dw := store.NewRecordWriter()
		logger.Info("storing records in DuckDB",
			zap.String("path", opts.DuckDBPath),
			zap.String("run_id", dw.RunID()))
		writer = output.NewMultiWriter(writer, dw)
	}

	if err := writer.WriteHeader(); err != nil {
		return extract.Summary{}, fmt.Errorf("write header: %w", err)
	}

	ext := extract.NewExtractor()
	ext.SetMultiSamplePolicy(policy)
	ext.SetLogger(logger)

	runner := extract.NewRunner(ext)
	runner.SetWorkers(opts.Workers)
	runner.SetLogger(logger)

	sum, err := runner.Run(ctx, batch, genes, writer)
	if err != nil {
		return sum, err
	}
	if err := out.Close(); err != nil {
		return sum, fmt.Errorf("close output file: %w", err)
	}

	if sum.Skipped > 0 {
		logger.Warn("some annotation files were skipped", zap.Int("skipped", sum.Skipped))
	}
	return sum, nil
}
