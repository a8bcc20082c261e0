package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bootyhq/booty/pkg/logging"
	"github.com/bootyhq/booty/pkg/statestore"
)

func newOverridesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overrides <owner/repo>",
		Short: "List active security overrides for a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stateDir, _ := cmd.Flags().GetString("state-dir")
			repo := args[0]

			store, err := statestore.New(stateDir, logging.New("govctl", slog.LevelWarn))
			if err != nil {
				return err
			}
			overrides, err := store.ListOverrides(repo)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(overrides) == 0 {
				fmt.Fprintln(out, "no active overrides")
				return nil
			}
			for _, o := range overrides {
				fmt.Fprintf(out, "%s  %s  %s\n", o.SHA, o.RiskOverride, o.Reason)
				if len(o.Paths) > 0 {
					fmt.Fprintf(out, "    paths: %s\n", strings.Join(o.Paths, ", "))
				}
			}
			return nil
		},
	}
	return cmd
}
