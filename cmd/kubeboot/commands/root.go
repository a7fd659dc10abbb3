// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing, flag binding, and validation. Command execution is delegated
// to handler functions in the handlers package.
package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Root returns the root command for the kubeboot CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kubeboot",
		Short: "Bootstrap a Kubernetes cluster over SSH",
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			bindEnv(cmd)
		},
	}

	cmd.AddCommand(Apply())
	cmd.AddCommand(Status())
	cmd.AddCommand(Version())

	return cmd
}

// bindEnv overrides any flag not set on the command line from a
// KUBEBOOT_-prefixed environment variable (dashes become underscores,
// e.g. KUBEBOOT_RETRY_ATTEMPTS for --retry-attempts).
func bindEnv(cmd *cobra.Command) {
	v := viper.New()
	v.SetEnvPrefix("KUBEBOOT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if !f.Changed && v.IsSet(f.Name) {
			_ = cmd.Flags().Set(f.Name, v.GetString(f.Name))
		}
	})
}
