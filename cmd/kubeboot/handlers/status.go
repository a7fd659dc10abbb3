package handlers

import (
	"context"
	"fmt"

	"github.com/kubeboot/kubeboot/internal/orchestrator"
	"github.com/kubeboot/kubeboot/internal/stage"
	"github.com/kubeboot/kubeboot/internal/state"
)

// StatusOptions are the status command's flag values.
type StatusOptions struct {
	ConfigPath string
	StateFile  string
}

// Status renders the bootstrap progress recorded in the state file.
// No node is contacted.
func Status(_ context.Context, opts StatusOptions) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	inv, err := cfg.Inventory()
	if err != nil {
		return &ExitError{Code: CodeConfigError, Err: err}
	}

	store := state.NewStore(statePath(cfg, opts.StateFile))
	st, err := loadState(store)
	if err != nil {
		return &ExitError{Code: CodeConfigError, Err: fmt.Errorf("failed to load state file: %w", err)}
	}
	if st == nil {
		fmt.Fprintln(stdout, "No run state recorded. Run 'kubeboot apply' first.")
		return nil
	}

	report := orchestrator.BuildReport(st, inv, stage.Bootstrap())
	renderReport(stdout, report)
	return nil
}
