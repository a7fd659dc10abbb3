package commands

import (
	"github.com/spf13/cobra"

	"github.com/kubeboot/kubeboot/cmd/kubeboot/handlers"
)

// Apply returns the command that bootstraps or resumes the cluster.
//
// Optional flags:
//
//	--config, -c:      Path to the cluster configuration YAML file (default: kubeboot.yaml)
//	--state:           Path to the run state file (default: from config)
//	--resume:          Continue a previous run, skipping stages that already succeeded
//	--dry-run:         Validate the configuration and print the plan without connecting
//	--concurrency:     Limit how many nodes run a stage at once
//	--retry-attempts:  Per-stage attempt budget for transient failures
//	--attempt-timeout: Deadline for a single remote command
//
// Every flag can also come from a KUBEBOOT_-prefixed environment variable.
func Apply() *cobra.Command {
	var opts handlers.ApplyOptions

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Bootstrap the cluster described by the configuration",
		Long: `Bootstrap the Kubernetes cluster described by the configuration file.

Stages run in dependency order: packages and runtime preparation fan out
across all nodes, the primary control plane is initialized, the remaining
nodes join, and the addons are installed on top. Already-completed stages
are skipped, so re-running apply converges an interrupted bootstrap.

Examples:
  # Bootstrap using kubeboot.yaml in the current directory
  kubeboot apply

  # Bootstrap a specific configuration
  kubeboot apply -c production.yaml

  # Continue after a partial failure without redoing finished work
  kubeboot apply --resume

  # Show what would run, without touching any node
  kubeboot apply --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: kubeboot.yaml)")
	cmd.Flags().StringVar(&opts.StateFile, "state", "", "Path to run state file (default: from config)")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "Continue a previous run from its state file")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Validate configuration and print the plan only")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "Max nodes running one stage at a time (default: all)")
	cmd.Flags().IntVar(&opts.RetryAttempts, "retry-attempts", 0, "Attempts per stage for transient failures (default: from config)")
	cmd.Flags().DurationVar(&opts.AttemptTimeout, "attempt-timeout", 0, "Deadline for one remote command (default: from config)")

	return cmd
}
