package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/logflow/hminer/internal/model"
	"github.com/logflow/hminer/pkg/cache"
	"github.com/logflow/hminer/pkg/config"
	hmerrors "github.com/logflow/hminer/pkg/errors"
	"github.com/logflow/hminer/pkg/export"
	"github.com/logflow/hminer/pkg/heuristics"
	"github.com/logflow/hminer/pkg/index"
	"github.com/logflow/hminer/pkg/parser"
	"github.com/logflow/hminer/pkg/source"
	"github.com/logflow/hminer/pkg/telemetry"
	"github.com/logflow/hminer/pkg/tui"
)

// Discover flags
var (
	inputFile       string
	formatFlag      string
	outputFile      string
	outputFormat    string
	useDuckDB       bool
	cacheBackend    string
	delimiter       string
	depThreshold    float64
	andThreshold    float64
	noiseThreshold  float64
	loopThreshold   float64
	minActivity     int64
	minDFG          int64
	caseIDColumn    string
	activityColumn  string
	timestampColumn string
	resourceColumn  string
	timestampFormat string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover the dependency graph of an event log",
	Long: `Discover the dependency graph of an event log.

Reads from a local file, stdin ("-") or s3://bucket/key.

Examples:
  hminer discover -i events.csv
  hminer discover -i log.xes --dependency-threshold 0.9
  hminer discover -i events.parquet --duckdb -o graph.json
  hminer discover -i events.csv -o graph.dot --output-format dot
  cat events.csv | hminer discover -i - --format csv --case-id case`,
	RunE: runDiscover,
}

func init() {
	addInputFlags(discoverCmd)
	discoverCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the graph to this file")
	discoverCmd.Flags().StringVar(&outputFormat, "output-format", "", "Output format (json, dot, parquet); default json, or from -o extension")
}

// addInputFlags registers the input, column and threshold flags shared by
// discover and watch.
func addInputFlags(cmd *cobra.Command) {
	d := heuristics.DefaultConfig()
	cols := parser.DefaultConfig()

	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input log (path, '-' for stdin, or s3://bucket/key)")
	cmd.Flags().StringVarP(&formatFlag, "format", "f", "", "Input format (csv, xes, jsonl, xlsx, parquet) - auto-detected if not specified")
	cmd.Flags().BoolVar(&useDuckDB, "duckdb", false, "Load the log with DuckDB (csv, jsonl, parquet)")
	cmd.Flags().StringVar(&cacheBackend, "cache", "", "Result cache (none, memory, redis)")
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", "CSV field delimiter")

	cmd.Flags().Float64Var(&depThreshold, "dependency-threshold", d.DependencyThreshold, "Minimum dependency score of an edge")
	cmd.Flags().Float64Var(&andThreshold, "and-threshold", d.AndMeasureThreshold, "AND measure threshold (accepted, not used)")
	cmd.Flags().Float64Var(&noiseThreshold, "noise-threshold", d.NoiseThreshold, "Relative frequency below which pairs are dropped")
	cmd.Flags().Float64Var(&loopThreshold, "loop-threshold", d.DependencyThreshold, "Minimum length-two loop score (default: the dependency threshold)")
	cmd.Flags().Int64Var(&minActivity, "min-activity-count", d.MinActivityCount, "Minimum occurrence estimate of an edge endpoint")
	cmd.Flags().Int64Var(&minDFG, "min-dfg-occurrences", d.MinDFGOccurrences, "Minimum filtered frequency of an edge")

	cmd.Flags().StringVar(&caseIDColumn, "case-id", cols.CaseIDColumn, "Case ID column name")
	cmd.Flags().StringVar(&activityColumn, "activity", cols.ActivityColumn, "Activity column name")
	cmd.Flags().StringVar(&timestampColumn, "timestamp", cols.TimestampColumn, "Timestamp column name")
	cmd.Flags().StringVar(&resourceColumn, "resource", cols.ResourceColumn, "Resource column name")
	cmd.Flags().StringVar(&timestampFormat, "timestamp-format", cols.TimestampFormat, "Timestamp format (Go time layout)")

	cmd.MarkFlagRequired("input")
}

// applyFlags overrides cfg with the flags the user set explicitly.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Lookup("input") == nil {
		return nil
	}

	if f.Changed("dependency-threshold") {
		cfg.Miner.DependencyThreshold = depThreshold
	}
	if f.Changed("and-threshold") {
		cfg.Miner.AndMeasureThreshold = andThreshold
	}
	if f.Changed("noise-threshold") {
		cfg.Miner.NoiseThreshold = noiseThreshold
	}
	if f.Changed("loop-threshold") {
		v := loopThreshold
		cfg.Miner.LoopThreshold = &v
	}
	if f.Changed("min-activity-count") {
		cfg.Miner.MinActivityCount = minActivity
	}
	if f.Changed("min-dfg-occurrences") {
		cfg.Miner.MinDFGOccurrences = minDFG
	}

	if f.Changed("case-id") {
		cfg.Columns.CaseIDColumn = caseIDColumn
	}
	if f.Changed("activity") {
		cfg.Columns.ActivityColumn = activityColumn
	}
	if f.Changed("timestamp") {
		cfg.Columns.TimestampColumn = timestampColumn
	}
	if f.Changed("resource") {
		cfg.Columns.ResourceColumn = resourceColumn
	}
	if f.Changed("timestamp-format") {
		cfg.Columns.TimestampFormat = timestampFormat
	}
	if len(delimiter) != 1 {
		return hmerrors.New(hmerrors.CodeInvalidFormat, "delimiter must be a single byte").
			WithContext("delimiter", delimiter)
	}
	cfg.Columns.Delimiter = delimiter[0]

	if f.Changed("cache") {
		cfg.Cache.Backend = cacheBackend
	}
	return nil
}

// inputFormat resolves the input format from the flag or the file name.
func inputFormat(path string) (parser.Format, error) {
	if formatFlag != "" {
		format := parser.ParseFormat(formatFlag)
		if format == parser.FormatUnknown {
			return format, hmerrors.New(hmerrors.CodeInvalidFormat, "unknown input format").
				WithContext("format", formatFlag)
		}
		return format, nil
	}
	if path == source.Stdin {
		return parser.FormatUnknown, hmerrors.New(hmerrors.CodeInvalidFormat,
			"format must be specified when reading from stdin (--format csv/xes/jsonl)")
	}
	format := parser.DetectFormat(path)
	if format == parser.FormatUnknown {
		return format, hmerrors.New(hmerrors.CodeInvalidFormat,
			"unable to detect input format, please specify with --format").WithContext("path", path)
	}
	return format, nil
}

// loadLog reads the input log, through DuckDB when requested or when the
// format has no streaming parser.
func loadLog(ctx context.Context, cfg *config.Config, path string) (*model.Log, error) {
	format, err := inputFormat(path)
	if err != nil {
		return nil, err
	}

	if useDuckDB || format == parser.FormatParquet {
		if path == source.Stdin || source.IsS3(path) {
			return nil, hmerrors.New(hmerrors.CodeInvalidFormat, "the duckdb loader reads local files only").
				WithContext("path", path)
		}
		loader, err := source.NewDuckDBLoader()
		if err != nil {
			return nil, err
		}
		defer loader.Close()
		return loader.Load(ctx, path, format, cfg.Columns)
	}

	p, err := parser.NewParser(format, cfg.Columns)
	if err != nil {
		return nil, hmerrors.Wrap(err, hmerrors.CodeInvalidFormat, "no parser for format").
			WithContext("format", format.String())
	}

	rc, err := source.Open(ctx, path, cfg.Source())
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return parser.ReadLog(ctx, p, rc)
}

// openCache opens the configured result cache.
func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "", "none":
		return cache.NopCache{}, nil
	case "memory":
		return cache.NewMemoryCache(cfg.Cache.TTL), nil
	case "redis":
		rcfg := cfg.Cache.Redis
		if rcfg.TTL == 0 {
			rcfg.TTL = cfg.Cache.TTL
		}
		rdb, err := cache.NewRedisCache(ctx, rcfg)
		if err != nil {
			return nil, err
		}
		return rdb, nil
	default:
		return nil, hmerrors.New(hmerrors.CodeInvalidFormat, "unknown cache backend").
			WithContext("backend", cfg.Cache.Backend)
	}
}

// run holds what one discovery produced.
type run struct {
	log    *model.Log
	result *heuristics.Result
	index  *index.CaseIndex
	cached bool
}

// newMiner builds the miner for cfg with its stage spans going to tel.
func newMiner(cfg *config.Config, tel *telemetry.Provider) *heuristics.Miner {
	return heuristics.NewMiner(cfg.Miner, heuristics.WithTracer(tel.Tracer(heuristics.TracerName)))
}

// discover loads path and mines it, consulting c first.
func discover(ctx context.Context, cfg *config.Config, miner *heuristics.Miner, c cache.Cache, path string) (*run, error) {
	spinner := tui.Spinner("loading " + path)
	log, err := loadLog(ctx, cfg, path)
	spinner.Finish()
	if err != nil {
		return nil, err
	}

	result, cached, err := cache.Lookup(ctx, c, log, cfg.Miner, func(ctx context.Context) (*heuristics.Result, error) {
		return miner.Discover(ctx, log)
	})
	if err != nil {
		if result == nil {
			return nil, err
		}
		// The graph was mined but could not be stored.
		tui.PrintInfo("cache: %v", err)
	}

	return &run{
		log:    log,
		result: result,
		index:  index.Build(log.Sorted()),
		cached: cached,
	}, nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	tel, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer flushTelemetry(tel)

	c, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	r, err := discover(ctx, cfg, newMiner(cfg, tel), c, inputFile)
	if err != nil {
		return err
	}
	return emit(r, inputFile)
}

// emit writes the result to stdout in the requested format, or renders the
// report and writes the output file when one is given.
func emit(r *run, input string) error {
	format, err := resolveOutputFormat()
	if err != nil {
		return err
	}
	if outputFile == "" && outputFormat != "" {
		return export.Write(os.Stdout, format, r.result)
	}

	tui.RenderReport(os.Stdout, r.result, r.index, tui.ReportOptions{
		Source:  input,
		Cached:  r.cached,
		Verbose: verbose,
	})
	if outputFile == "" {
		return nil
	}
	if err := writeOutput(outputFile, format, r.result); err != nil {
		return err
	}
	tui.PrintSuccess("wrote %s (%s)", outputFile, format)
	return nil
}

func resolveOutputFormat() (export.Format, error) {
	if outputFormat != "" {
		return export.ParseFormat(outputFormat)
	}
	if outputFile != "" {
		ext := strings.TrimPrefix(filepath.Ext(outputFile), ".")
		if f, err := export.ParseFormat(ext); err == nil {
			return f, nil
		}
	}
	return export.FormatJSON, nil
}

func writeOutput(path string, format export.Format, result *heuristics.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return hmerrors.Wrap(err, hmerrors.CodeWriteFailed, "failed to create output").WithContext("path", path)
	}
	if err := export.Write(f, format, result); err != nil {
		f.Close()
		return err
	}
	// The parquet writer closes its sink.
	if err := f.Close(); err != nil && format != export.FormatParquet {
		return hmerrors.Wrap(err, hmerrors.CodeWriteFailed, "failed to close output").WithContext("path", path)
	}
	return nil
}
