package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bootyhq/booty/pkg/config"
	"github.com/bootyhq/booty/pkg/governor/decision"
	"github.com/bootyhq/booty/pkg/logging"
	"github.com/bootyhq/booty/pkg/statestore"
	"github.com/bootyhq/booty/pkg/types"
)

// newSimulateCmd dry-runs the decision engine against persisted state. The
// engine is pure, so this never mutates anything.
func newSimulateCmd() *cobra.Command {
	var (
		sha        string
		riskClass  string
		degraded   bool
		approved   bool
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "simulate-decision <owner/repo>",
		Short: "Evaluate the release policy for a SHA without side effects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stateDir, _ := cmd.Flags().GetString("state-dir")
			repo := args[0]

			cfg := config.DefaultReleaseGovernorConfig()
			if configPath != "" {
				data, err := os.ReadFile(configPath)
				if err != nil {
					return err
				}
				cfg, err = config.ParseReleaseGovernorConfig(data)
				if err != nil {
					return err
				}
			}

			store, err := statestore.New(stateDir, logging.New("govctl", slog.LevelWarn))
			if err != nil {
				return err
			}
			state, err := store.LoadRelease(repo)
			if err != nil {
				return err
			}

			d := decision.New().Evaluate(decision.Input{
				SHA:       sha,
				RiskClass: types.RiskClass(riskClass),
				Config:    cfg,
				State:     state,
				Approval:  types.ApprovalContext{EnvApproved: approved},
				Degraded:  degraded,
			})

			encoded, err := json.MarshalIndent(d, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}

	cmd.Flags().StringVar(&sha, "sha", "", "head SHA to evaluate")
	cmd.Flags().StringVar(&riskClass, "risk", string(types.RiskLow), "risk class to assume (LOW, MEDIUM, HIGH)")
	cmd.Flags().BoolVar(&degraded, "degraded", false, "assume the degraded incident signal is raised")
	cmd.Flags().BoolVar(&approved, "approved", false, "assume an approval has been granted")
	cmd.Flags().StringVar(&configPath, "config", "", "release governor config file (defaults apply when omitted)")
	_ = cmd.MarkFlagRequired("sha")
	return cmd
}
