package cmd

import (
	"fmt"

	"cyberres/bootstrap"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate every policy over a finished input and write reports",
		Example: `  cyberres run --input data/events.csv --out-dir out
  cyberres run --policies minimal,standard --horizon-days 7 --seed 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			var s *spinner.Spinner
			if !outputJSON && !quiet {
				s = spinner.New(spinner.CharSets[14], spinnerDelay, spinner.WithWriter(cmd.ErrOrStderr()))
				s.Suffix = fmt.Sprintf(" Evaluating %d policies...", len(app.Policies))
				s.Start()
			}

			ctx, stop := bootstrap.SignalContext(cmd.Context())
			defer stop()
			snap, err := app.RunBatch(ctx)

			if s != nil {
				s.Stop()
			}

			if snap == nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				if jerr := printJSON(out, newRunSummary(snap, app.Reporter.Dir())); jerr != nil {
					return jerr
				}
				return err
			}

			renderResultsTable(out, snap)
			if !quiet {
				renderRankingTable(out, snap.Rankings)
			}
			if bootstrap.IsPartialFailure(err, snap) {
				warningColor.Fprintf(out, "Reports written to %s with %d failed policies\n", app.Reporter.Dir(), len(snap.Failures()))
				return err
			}
			if err != nil {
				return err
			}
			successColor.Fprintf(out, "✓ Reports written to %s\n", app.Reporter.Dir())
			return nil
		},
	}
	addEvaluationFlags(cmd)
	return cmd
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a growing input and recompute reports on every poll",
		Long: `Watch tails the input file, appending new complete records to an in-memory
buffer and re-evaluating every policy over the whole buffer. Reports are
rewritten atomically after each cycle. Stop with Ctrl-C.`,
		Example: `  cyberres watch --input data/live.csv --poll-interval-ms 500 --diagnostics`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}

			if !quiet && !outputJSON {
				infoColor.Fprintf(cmd.OutOrStdout(), "Watching %s (%d policies), reports in %s\n",
					app.Config.Input.Path, len(app.Policies), app.Reporter.Dir())
				if app.Config.Diagnostics.Enabled {
					infoColor.Fprintf(cmd.OutOrStdout(), "Diagnostics on http://%s\n", app.Config.Diagnostics.Addr)
				}
			}

			ctx, stop := bootstrap.SignalContext(cmd.Context())
			defer stop()
			if err := app.RunWatch(ctx); err != nil {
				return err
			}

			if snap := app.Evaluator.Latest(); snap != nil && !quiet {
				if outputJSON {
					return printJSON(cmd.OutOrStdout(), newRunSummary(snap, app.Reporter.Dir()))
				}
				renderResultsTable(cmd.OutOrStdout(), snap)
			}
			return nil
		},
	}
	addEvaluationFlags(cmd)
	cmd.Flags().Int("poll-interval-ms", 0, "Poll period in milliseconds")
	cmd.Flags().Bool("diagnostics", false, "Serve /health, /metrics and /api while watching")
	cmd.Flags().String("diagnostics-addr", "", "Diagnostics listen address")
	return cmd
}
