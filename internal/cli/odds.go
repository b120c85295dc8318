package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/dicefunnel/internal/config"
	"github.com/mcoot/dicefunnel/internal/dependencies/random"
	"github.com/mcoot/dicefunnel/internal/services/reward"
)

func newOddsCmd() *cobra.Command {
	var configPath string
	var draws int

	cmd := &cobra.Command{
		Use:   "odds",
		Short: "Show the reward table and simulate draws locally",
		Long: `Load the server configuration (file and DICEFUNNEL_* environment)
and report each tier's probability alongside a local simulation.
No server connection is needed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if draws < 0 {
				return fmt.Errorf("--draws must not be negative")
			}

			settings, err := config.Load(configPath)
			if err != nil {
				return err
			}

			engine, err := reward.New(settings.Reward, random.New())
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(oddsReport(engine, settings.Reward, draws))
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Server config file (default ./config.yaml if present)")
	cmd.Flags().IntVar(&draws, "draws", 10000, "Number of simulated draws")

	return cmd
}

func oddsReport(engine *reward.Engine, rewardCfg reward.Config, draws int) Odds {
	probs := engine.Probabilities()
	simulated := engine.Distribution(draws)

	report := Odds{Draws: draws}
	for tier, p := range probs {
		report.Tiers = append(report.Tiers, TierOdds{
			Tier:        tier,
			Percent:     rewardCfg.Percentages[tier],
			Probability: p,
			Simulated:   simulated[tier],
		})
	}
	return report
}
