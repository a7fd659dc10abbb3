package stage

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/kubeboot/kubeboot/internal/executor"
	"github.com/kubeboot/kubeboot/internal/inventory"
	"github.com/kubeboot/kubeboot/internal/observe"
	"github.com/kubeboot/kubeboot/internal/state"
	"github.com/kubeboot/kubeboot/internal/util/retry"
)

// RunnerOptions tunes stage execution.
type RunnerOptions struct {
	// MaxAttempts is the per-stage attempt budget for transient failures.
	MaxAttempts int

	// AttemptTimeout bounds a single remote invocation. An expired
	// attempt counts as a transient failure.
	AttemptTimeout time.Duration

	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff delay.
	MaxBackoff time.Duration
}

// DefaultRunnerOptions returns the default runner tuning.
func DefaultRunnerOptions() RunnerOptions {
	return RunnerOptions{
		MaxAttempts:    3,
		AttemptTimeout: 10 * time.Minute,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     1 * time.Minute,
	}
}

// Runner executes one stage on one node, records every attempt in the
// cluster state, and classifies the result. Transport failures are
// retried with exponential backoff; a command that ran and exited
// non-zero is a logical failure and is not retried.
type Runner struct {
	exec     executor.Remote
	state    *state.Cluster
	observer observe.Observer
	opts     RunnerOptions
}

// NewRunner creates a stage runner.
func NewRunner(exec executor.Remote, st *state.Cluster, obs observe.Observer, opts RunnerOptions) *Runner {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if obs == nil {
		obs = observe.Nop{}
	}
	return &Runner{exec: exec, state: st, observer: obs, opts: opts}
}

// Run executes the stage command on the node and returns the terminal
// outcome. A stage whose latest recorded attempt already succeeded is
// skipped without any remote call, which makes resumed runs idempotent.
func (r *Runner) Run(ctx context.Context, node inventory.Node, stageName string, cmd executor.Command) state.Outcome {
	if r.state.Succeeded(node.Address, stageName) {
		r.observer.Event(observe.Event{
			Type:    observe.EventStageSkipped,
			Stage:   stageName,
			Node:    node.Address,
			Message: "already succeeded, not re-run",
		})
		return state.OutcomeSucceeded
	}

	err := retry.Do(ctx, func(attempt int) error {
		n := r.state.Begin(node.Address, stageName)
		r.observer.Event(observe.Event{
			Type:    observe.EventStageStarted,
			Stage:   stageName,
			Node:    node.Address,
			Message: cmd.String(),
			Fields:  map[string]string{"attempt": strconv.Itoa(n)},
		})

		// The attempt is bounded by its own timeout only. A run
		// cancellation never tears down an in-flight remote command;
		// it is honored between attempts, in the retry backoff.
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.AttemptTimeout)
		defer cancel()

		res, execErr := r.exec.Execute(attemptCtx, node, cmd)
		if execErr != nil {
			terr := &TransientError{Node: node.Address, Stage: stageName, Err: execErr}
			_ = r.state.Finish(node.Address, stageName, n, state.OutcomeFailed, terr.Error())
			r.observer.Event(observe.Event{
				Type:    observe.EventStageRetrying,
				Stage:   stageName,
				Node:    node.Address,
				Message: terr.Error(),
			})
			return terr
		}

		if res.ExitCode != 0 {
			lerr := &LogicalError{
				Node:     node.Address,
				Stage:    stageName,
				ExitCode: res.ExitCode,
				Output:   tail(res.Stderr, res.Stdout),
			}
			_ = r.state.Finish(node.Address, stageName, n, state.OutcomeFailed, lerr.Error())
			return retry.Fatal(lerr)
		}

		_ = r.state.Finish(node.Address, stageName, n, state.OutcomeSucceeded, "")
		return nil
	},
		retry.WithMaxAttempts(r.opts.MaxAttempts),
		retry.WithInitialDelay(r.opts.InitialBackoff),
		retry.WithMaxDelay(r.opts.MaxBackoff),
	)

	if err != nil {
		r.observer.Event(observe.Event{
			Type:    observe.EventStageFailed,
			Stage:   stageName,
			Node:    node.Address,
			Message: err.Error(),
		})
		return state.OutcomeFailed
	}

	r.observer.Event(observe.Event{
		Type:  observe.EventStageSucceeded,
		Stage: stageName,
		Node:  node.Address,
	})
	return state.OutcomeSucceeded
}

// Execute runs a one-off command on a node outside of stage bookkeeping,
// with the runner's attempt timeout and retry policy for transport
// failures. The join coordinator uses this for credential creation.
func (r *Runner) Execute(ctx context.Context, node inventory.Node, cmd executor.Command) (executor.Result, error) {
	var out executor.Result

	err := retry.Do(ctx, func(int) error {
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.AttemptTimeout)
		defer cancel()

		res, execErr := r.exec.Execute(attemptCtx, node, cmd)
		if execErr != nil {
			return &TransientError{Node: node.Address, Stage: "exec", Err: execErr}
		}
		out = res
		if res.ExitCode != 0 {
			return retry.Fatal(&LogicalError{
				Node:     node.Address,
				Stage:    "exec",
				ExitCode: res.ExitCode,
				Output:   tail(res.Stderr, res.Stdout),
			})
		}
		return nil
	},
		retry.WithMaxAttempts(r.opts.MaxAttempts),
		retry.WithInitialDelay(r.opts.InitialBackoff),
		retry.WithMaxDelay(r.opts.MaxBackoff),
	)

	return out, err
}

// tail picks the most useful output fragment for an error record,
// preferring stderr, and keeps it short enough for logs.
func tail(stderr, stdout string) string {
	s := strings.TrimSpace(stderr)
	if s == "" {
		s = strings.TrimSpace(stdout)
	}
	const limit = 400
	if len(s) > limit {
		s = "..." + s[len(s)-limit:]
	}
	return s
}
