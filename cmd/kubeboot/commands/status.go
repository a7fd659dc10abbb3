package commands

import (
	"github.com/spf13/cobra"

	"github.com/kubeboot/kubeboot/cmd/kubeboot/handlers"
)

// Status returns the command that reports the recorded bootstrap state.
func Status() *cobra.Command {
	var opts handlers.StatusOptions

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the recorded state of the last bootstrap run",
		Long: `Show the per-node bootstrap progress recorded in the state file.

Reads the state file written by 'kubeboot apply' and prints each node's
phase and stage outcomes. No node is contacted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Status(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: kubeboot.yaml)")
	cmd.Flags().StringVar(&opts.StateFile, "state", "", "Path to run state file (default: from config)")

	return cmd
}
