// Package cmd provides the cyberres command-line interface.
package cmd

import (
	"fmt"
	"strings"
	"time"

	"cyberres/bootstrap"
	"cyberres/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	outputJSON bool
	configFile string
	noColor    bool
	quiet      bool
	logLevel   string
)

const spinnerDelay = 100 * time.Millisecond

// flagKeys maps command flags to configuration keys. Flags are bound for the
// command being executed only, since several commands share a key.
var flagKeys = map[string]string{
	"log-level":           "logging.level",
	"input":               "input.path",
	"format":              "input.format",
	"config-dir":          "catalog.dir",
	"out-dir":             "output.dir",
	"emit-alerts":         "output.emit_alerts",
	"html":                "output.html",
	"policies":            "evaluation.policies",
	"horizon-days":        "evaluation.horizon_days",
	"seed":                "evaluation.seed",
	"workers":             "evaluation.workers",
	"truncate-at-horizon": "evaluation.truncate_at_horizon",
	"poll-interval-ms":    "watch.poll_interval_ms",
	"diagnostics":         "diagnostics.enabled",
	"diagnostics-addr":    "diagnostics.addr",
}

// NewRootCmd creates the cyberres command with all subcommands
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cyberres",
		Short: "Evaluate the resilience of security control policies",
		Long: `cyberres replays a normalized event stream through detection rules and
incident correlation once per security control policy, then reports
availability, downtime, MTTD and MTTR so the policies can be compared.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default: ./config.yaml or ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newRankCmd())
	rootCmd.AddCommand(newValidateCmd())

	return rootCmd
}

// addCatalogFlags adds the flags every command that loads catalogs accepts
func addCatalogFlags(cmd *cobra.Command) {
	cmd.Flags().String("config-dir", "", "Directory holding rules.yaml and policies.yaml")
	cmd.Flags().StringSlice("policies", nil, "Policies to evaluate, comma separated, or 'all'")
}

// addEvaluationFlags adds the flags shared by run and watch
func addEvaluationFlags(cmd *cobra.Command) {
	addCatalogFlags(cmd)
	cmd.Flags().String("input", "", "Events file (CSV, JSONL or MessagePack)")
	cmd.Flags().String("format", "", "Input format: auto, csv, jsonl, msgpack")
	cmd.Flags().String("out-dir", "", "Directory for reports")
	cmd.Flags().Float64("horizon-days", 0, "Observation horizon in days (0 = event span)")
	cmd.Flags().Uint64("seed", 0, "Seed for incident timing")
	cmd.Flags().Int("workers", 0, "Policies evaluated in parallel (0 = one per CPU)")
	cmd.Flags().Bool("truncate-at-horizon", false, "Leave incidents open when recovery falls past the horizon")
	cmd.Flags().Bool("emit-alerts", false, "Also write alerts.jsonl")
	cmd.Flags().Bool("html", true, "Write report.html")
}

// loadConfig binds the executing command's flags and loads the configuration
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := viper.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}
	return bootstrap.InitConfig(configFile, nil)
}

// newLogger builds the console logger, quieter when --quiet is set
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Logging.Level
	if quiet {
		switch strings.ToLower(level) {
		case "debug", "info":
			level = "warn"
		}
	}
	logger, _, err := bootstrap.InitLogger(level)
	return logger, err
}

// newApp loads configuration and wires the application for cmd
func newApp(cmd *cobra.Command) (*bootstrap.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	app, err := bootstrap.NewApp(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return app, nil
}
