package commands

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bootyhq/booty/pkg/logging"
	"github.com/bootyhq/booty/pkg/memory"
	"github.com/bootyhq/booty/pkg/statestore"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <owner/repo>",
		Short: "Show release state and recent incidents for a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stateDir, _ := cmd.Flags().GetString("state-dir")
			repo := args[0]

			store, err := statestore.New(stateDir, logging.New("govctl", slog.LevelWarn))
			if err != nil {
				return err
			}
			state, err := store.LoadRelease(repo)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "repository:              %s\n", repo)
			fmt.Fprintf(out, "production_sha_current:  %s\n", orNone(state.ProductionSHACurrent))
			fmt.Fprintf(out, "production_sha_previous: %s\n", orNone(state.ProductionSHAPrevious))
			fmt.Fprintf(out, "last_deploy_attempt_sha: %s\n", orNone(state.LastDeployAttemptSHA))
			fmt.Fprintf(out, "last_deploy_time:        %s\n", orNone(state.LastDeployTime))
			fmt.Fprintf(out, "last_deploy_result:      %s\n", orNone(string(state.LastDeployResult)))

			fmt.Fprintf(out, "\ndeploy history (%d):\n", len(state.DeployHistory))
			for _, rec := range state.DeployHistory {
				fmt.Fprintf(out, "  %s  %-8s %s\n", rec.Time, rec.Result, rec.SHA)
			}

			recorder, err := memory.NewRecorder(filepath.Join(stateDir, "memory"))
			if err != nil {
				return err
			}
			notes, err := recorder.Recent(repo, 10)
			if err != nil {
				return err
			}
			if len(notes) > 0 {
				fmt.Fprintf(out, "\nrecent incidents:\n")
				for _, n := range notes {
					fmt.Fprintf(out, "  %s  %-14s %s  %s\n", n.CreatedAt, n.Kind, n.Reason, n.SHA)
				}
			}
			return nil
		},
	}
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
