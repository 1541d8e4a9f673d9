package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/hminer/pkg/cache"
	"github.com/logflow/hminer/pkg/config"
	"github.com/logflow/hminer/pkg/source"
	"github.com/logflow/hminer/pkg/telemetry"
	"github.com/logflow/hminer/pkg/tui"
	"github.com/logflow/hminer/pkg/watch"
)

var debounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-discover the graph whenever the log file changes",
	Long: `Watch a local log file and re-run discovery each time it is written.

Results are cached in memory for the lifetime of the process, so saving an
unchanged log does not mine it again.

Examples:
  hminer watch -i events.csv
  hminer watch -i events.csv -o graph.dot --debounce 2s`,
	RunE: runWatch,
}

func init() {
	addInputFlags(watchCmd)
	watchCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Rewrite the graph to this file after each run")
	watchCmd.Flags().StringVar(&outputFormat, "output-format", "", "Output format (json, dot, parquet)")
	watchCmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before re-running")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if inputFile == source.Stdin || source.IsS3(inputFile) {
		return fmt.Errorf("watch needs a local file, got %q", inputFile)
	}

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

	c, err := watchCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	miner := newMiner(cfg, tel)
	render := func(ctx context.Context) error {
		r, err := discover(ctx, cfg, miner, c, inputFile)
		if err != nil {
			return err
		}
		return emit(r, inputFile)
	}

	// First run before any change; a broken log is reported, not fatal.
	if err := render(ctx); err != nil {
		tui.PrintError(err)
	}

	w, err := watch.NewWatcher(debounce)
	if err != nil {
		return err
	}
	defer w.Close()

	w.OnChange = func(ctx context.Context, path string) error {
		fmt.Fprintf(os.Stdout, "\n  %s changed, re-running discovery\n", path)
		return render(ctx)
	}
	w.OnError = func(path string, err error) {
		tui.PrintError(err)
	}

	if err := w.Watch(inputFile); err != nil {
		return err
	}
	tui.PrintInfo("watching %s (ctrl-c to stop)", inputFile)

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// watchCache uses the configured backend, or an in-process cache when none
// is configured.
func watchCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	if cfg.Cache.Backend == "" || cfg.Cache.Backend == "none" {
		return cache.NewMemoryCache(cfg.Cache.TTL), nil
	}
	return openCache(ctx, cfg)
}
