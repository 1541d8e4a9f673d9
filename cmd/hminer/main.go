// hminer - Heuristics Miner for process event logs
// Discovers a dependency graph from CSV, XES, JSONL, XLSX or Parquet logs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/hminer/pkg/config"
	hmerrors "github.com/logflow/hminer/pkg/errors"
	"github.com/logflow/hminer/pkg/telemetry"
	"github.com/logflow/hminer/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	verbose    bool
	configFile string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		tui.PrintError(err)
		var e *hmerrors.Error
		if verbose && errors.As(err, &e) {
			fmt.Fprint(os.Stderr, e.FormatStack())
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hminer",
	Short: "hminer - Heuristics Miner process discovery",
	Long: `hminer discovers a dependency graph from an event log using the Heuristics Miner.

Each event needs a case id, an activity and a timestamp. Directly-follows
relations are counted within cases, filtered for noise, scored, and the
edges that clear the dependency threshold form the graph.`,
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: system, user and project files)")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig loads the layered configuration and applies flags of cmd on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	m := newManager()
	if err := m.Load(); err != nil {
		return nil, err
	}
	cfg := m.Get()
	if verbose {
		for _, p := range m.GetPaths() {
			tui.PrintInfo("config: %s", p)
		}
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newManager reads --config when given, the default search paths otherwise.
func newManager() *config.Manager {
	if configFile != "" {
		return config.NewManager(configFile)
	}
	return config.NewManager()
}

// flushTelemetry exports pending spans, giving up after a few seconds.
func flushTelemetry(tel *telemetry.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		tui.PrintInfo("telemetry: %v", err)
	}
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
