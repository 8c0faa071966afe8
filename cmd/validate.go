package cmd

import (
	"fmt"

	"cyberres/bootstrap"
	"cyberres/ingest"

	"github.com/spf13/cobra"
)

// validation is the machine readable outcome of validate
type validation struct {
	Rules        int                 `json:"rules"`
	RulesEnabled int                 `json:"rules_enabled"`
	Policies     []string            `json:"policies"`
	Input        string              `json:"input,omitempty"`
	Format       ingest.Format       `json:"format,omitempty"`
	Events       int                 `json:"events"`
	Late         int                 `json:"late_events"`
	Rejected     int                 `json:"rejected_events"`
	Rejects      ingest.RejectCounts `json:"rejects_by_reason,omitempty"`
}

func newValidateCmd() *cobra.Command {
	var checkInput bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the rule and policy catalogs, and optionally an input",
		Long: `Validate loads both catalogs and reports every problem found. With
--check-input the input is also decoded without evaluation and rejected
records are counted by reason.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			sugar := logger.Sugar()

			catalogs, err := bootstrap.LoadCatalogs(cfg, sugar)
			if err != nil {
				return err
			}
			if _, err := catalogs.Policies.Select(cfg.Evaluation.Policies, sugar); err != nil {
				return err
			}
			if _, err := cfg.TimingModel(); err != nil {
				return err
			}

			v := validation{
				Rules:    len(catalogs.Rules),
				Policies: catalogs.Policies.Names(),
			}
			for _, r := range catalogs.Rules {
				if r.IsEnabled() {
					v.RulesEnabled++
				}
			}

			if checkInput || cmd.Flags().Changed("input") {
				batch, err := ingest.LoadFile(cfg.Input.Path, cfg.InputFormat(), sugar,
					ingest.WithReorderSlack(cfg.ReorderSlack()))
				if err != nil {
					return err
				}
				v.Input = cfg.Input.Path
				v.Format = batch.Format
				v.Events = len(batch.Events)
				v.Late = batch.Late
				v.Rejected = batch.Rejected()
				v.Rejects = batch.Rejects
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return printJSON(out, v)
			}

			successColor.Fprintf(out, "✓ %d rules (%d enabled)\n", v.Rules, v.RulesEnabled)
			successColor.Fprintf(out, "✓ %d policies: %v\n", len(v.Policies), v.Policies)
			if v.Input != "" {
				printField(out, "Input", fmt.Sprintf("%s (%s)", v.Input, v.Format))
				printField(out, "Events", fmt.Sprintf("%d", v.Events))
				printField(out, "Late", fmt.Sprintf("%d", v.Late))
				if v.Rejected == 0 {
					successColor.Fprintln(out, "✓ No rejected records")
				} else {
					warningColor.Fprintf(out, "%d rejected records\n", v.Rejected)
					for _, reason := range v.Rejects.Reasons() {
						printField(out, "  "+reason, fmt.Sprintf("%d", v.Rejects[reason]))
					}
				}
			}
			return nil
		},
	}
	addCatalogFlags(cmd)
	cmd.Flags().String("input", "", "Events file to dry-ingest")
	cmd.Flags().String("format", "", "Input format: auto, csv, jsonl, msgpack")
	cmd.Flags().BoolVar(&checkInput, "check-input", false, "Decode the configured input and count rejects")
	return cmd
}
