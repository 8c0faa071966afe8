package cmd

import (
	"cyberres/policy"

	"github.com/spf13/cobra"
)

func newRankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank policies by control effectiveness",
		Long: `Rank scores each policy from its detection and recovery multipliers,
1 - (avg MTTD multiplier + avg MTTR multiplier) / 2 over every threat type,
without reading any events.`,
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

			catalog, err := policy.LoadCatalog(cfg.PoliciesPath(), logger.Sugar())
			if err != nil {
				return err
			}
			selected, err := catalog.Select(cfg.Evaluation.Policies, logger.Sugar())
			if err != nil {
				return err
			}

			rankings := policy.Rank(selected, nil)
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), rankings)
			}
			renderRankingTable(cmd.OutOrStdout(), rankings)
			return nil
		},
	}
	addCatalogFlags(cmd)
	return cmd
}
