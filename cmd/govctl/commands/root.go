// Package commands implements the govctl cobra commands.
package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// NewRootCmd constructs the govctl root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "govctl",
		Short:         "Inspect and dry-run the booty release governor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("state-dir", defaultStateDir(), "governor state directory")

	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newSimulateCmd())
	cmd.AddCommand(newOverridesCmd())
	return cmd
}

func defaultStateDir() string {
	if v := os.Getenv("GOVERNOR_STATE_DIR"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".booty/state"
	}
	return filepath.Join(home, ".booty", "state")
}
