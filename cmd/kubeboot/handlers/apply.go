// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command
// definitions in the commands package. Handlers are framework-agnostic
// and can be tested independently of the CLI framework.
package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kubeboot/kubeboot/internal/addons"
	"github.com/kubeboot/kubeboot/internal/config"
	"github.com/kubeboot/kubeboot/internal/executor"
	"github.com/kubeboot/kubeboot/internal/inventory"
	"github.com/kubeboot/kubeboot/internal/join"
	"github.com/kubeboot/kubeboot/internal/observe"
	"github.com/kubeboot/kubeboot/internal/orchestrator"
	"github.com/kubeboot/kubeboot/internal/stage"
	"github.com/kubeboot/kubeboot/internal/state"
)

// ApplyOptions are the apply command's flag values. Zero values defer to
// the configuration file.
type ApplyOptions struct {
	ConfigPath     string
	StateFile      string
	Resume         bool
	DryRun         bool
	Concurrency    int
	RetryAttempts  int
	AttemptTimeout time.Duration
}

// clusterRunner interface for testing - matches orchestrator.Orchestrator.
type clusterRunner interface {
	Run(ctx context.Context) *orchestrator.Report
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadConfigFile loads config from file.
	loadConfigFile = config.LoadFile

	// newRemote creates the remote executor reaching cluster nodes.
	newRemote = func(cfg *config.Config) executor.Remote {
		return executor.NewSSHExecutor(cfg.SSH.User, cfg.SSH.KeyPath)
	}

	// newObserver creates the run observer.
	newObserver = func() observe.Observer {
		return observe.NewConsoleObserver()
	}

	// newOrchestrator wires the orchestrator from its collaborators.
	newOrchestrator = func(
		inv *inventory.Inventory,
		graph *stage.Graph,
		runner *stage.Runner,
		catalog *stage.Catalog,
		joiner *join.Coordinator,
		installer *addons.Installer,
		st *state.Cluster,
		obs observe.Observer,
		opts orchestrator.Options,
	) clusterRunner {
		return orchestrator.New(inv, graph, runner, catalog, joiner, installer, st, obs, opts)
	}

	// loadState reads a previous run's state.
	loadState = func(s *state.Store) (*state.Cluster, error) {
		return s.Load()
	}

	// saveState persists the run's state.
	saveState = func(s *state.Store, c *state.Cluster) error {
		return s.Save(c)
	}

	// stdout is the report destination.
	stdout io.Writer = os.Stdout
)

// Apply bootstraps the cluster described by the configuration.
//
// The full sequence: load and validate the configuration, restore the
// previous run's state when resuming, execute the stage graph across
// the inventory, persist the state file and render the report. The
// returned error carries the process exit code: nil on full success,
// CodeRunFailed when any stage did not succeed, CodeConfigError when
// the configuration or state file is unusable.
func Apply(ctx context.Context, opts ApplyOptions) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	inv, err := cfg.Inventory()
	if err != nil {
		return &ExitError{Code: CodeConfigError, Err: err}
	}

	graph := stage.Bootstrap()
	catalog := stage.NewCatalog(cfg.StageVersions(), cfg.Overrides())

	store := state.NewStore(statePath(cfg, opts.StateFile))
	st := state.New()
	if opts.Resume {
		loaded, err := loadState(store)
		if err != nil {
			return &ExitError{Code: CodeConfigError, Err: fmt.Errorf("failed to load state file: %w", err)}
		}
		if loaded != nil {
			st = loaded
		}
	}

	if opts.DryRun {
		renderPlan(stdout, inv, graph, st)
		return nil
	}

	obs := newObserver()
	runner := stage.NewRunner(newRemote(cfg), st, obs, runnerOptions(cfg, opts))
	joiner := join.NewCoordinator(runner, catalog, inv.Primary())
	installer := addons.NewInstaller(runner, st, catalog, inv, obs)

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = cfg.Run.Concurrency
	}

	orch := newOrchestrator(inv, graph, runner, catalog, joiner, installer, st, obs,
		orchestrator.Options{Concurrency: concurrency})

	report := orch.Run(ctx)

	if err := saveState(store, st); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to persist state file: %v\n", err)
	}

	renderReport(stdout, report)

	if report.Status != orchestrator.StatusSuccess {
		return &ExitError{
			Code: CodeRunFailed,
			Err:  fmt.Errorf("bootstrap finished with status %s", report.Status),
		}
	}
	return nil
}

// loadConfig loads and validates the cluster configuration. If no path
// is given, kubeboot.yaml in the current directory is used.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.DefaultFile
	}
	cfg, err := loadConfigFile(path)
	if err != nil {
		return nil, &ExitError{Code: CodeConfigError, Err: fmt.Errorf("failed to load config: %w", err)}
	}
	return cfg, nil
}

// statePath resolves the state file location, flag over config.
func statePath(cfg *config.Config, flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Run.StateFile
}

// runnerOptions merges configuration and flags into the runner tuning.
func runnerOptions(cfg *config.Config, opts ApplyOptions) stage.RunnerOptions {
	ro := stage.DefaultRunnerOptions()
	if cfg.Run.RetryAttempts > 0 {
		ro.MaxAttempts = cfg.Run.RetryAttempts
	}
	ro.AttemptTimeout = cfg.AttemptTimeout()

	if opts.RetryAttempts > 0 {
		ro.MaxAttempts = opts.RetryAttempts
	}
	if opts.AttemptTimeout > 0 {
		ro.AttemptTimeout = opts.AttemptTimeout
	}
	return ro
}
