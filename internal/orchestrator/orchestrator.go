// Package orchestrator sequences provisioning stages across the cluster.
//
// Per-node work within a stage fans out concurrently under a concurrency
// limit; causally dependent stages run as sequential barriers: the
// primary's control-plane init gates every join, and the join barrier
// gates the addon stages. Failures are contained per node; only a primary
// failure is fatal to the run, because without it no join credential can
// exist.
package orchestrator

import (
	"context"
	"strconv"

	"github.com/kubeboot/kubeboot/internal/addons"
	"github.com/kubeboot/kubeboot/internal/executor"
	"github.com/kubeboot/kubeboot/internal/inventory"
	"github.com/kubeboot/kubeboot/internal/join"
	"github.com/kubeboot/kubeboot/internal/observe"
	"github.com/kubeboot/kubeboot/internal/stage"
	"github.com/kubeboot/kubeboot/internal/state"
	"github.com/kubeboot/kubeboot/internal/util/async"
)

// Options tunes a run.
type Options struct {
	// Concurrency bounds how many nodes execute one stage at the same
	// time. Zero means one slot per node.
	Concurrency int
}

// Orchestrator drives every node through the bootstrap stage graph.
type Orchestrator struct {
	inv       *inventory.Inventory
	graph     *stage.Graph
	runner    *stage.Runner
	catalog   *stage.Catalog
	joiner    *join.Coordinator
	installer *addons.Installer
	state     *state.Cluster
	observer  observe.Observer
	opts      Options
}

// New wires an orchestrator from its collaborators.
func New(
	inv *inventory.Inventory,
	graph *stage.Graph,
	runner *stage.Runner,
	catalog *stage.Catalog,
	joiner *join.Coordinator,
	installer *addons.Installer,
	st *state.Cluster,
	obs observe.Observer,
	opts Options,
) *Orchestrator {
	if obs == nil {
		obs = observe.Nop{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = inv.Len()
	}
	return &Orchestrator{
		inv:       inv,
		graph:     graph,
		runner:    runner,
		catalog:   catalog,
		joiner:    joiner,
		installer: installer,
		state:     st,
		observer:  obs,
		opts:      opts,
	}
}

// Run executes the full bootstrap sequence and returns the final report.
// Run never returns an error: every failure is contained, recorded in the
// cluster state, and reflected in the report status.
func (o *Orchestrator) Run(ctx context.Context) *Report {
	o.observer.Event(observe.Event{
		Type:   observe.EventRunStarted,
		Fields: map[string]string{"run_id": o.state.RunID(), "nodes": strconv.Itoa(o.inv.Len())},
	})

	// Best-effort fan-out: one node's failure never halts its siblings.
	o.fanOut(ctx, stage.InstallPackages, "", o.catalogPayload(stage.InstallPackages))
	o.fanOut(ctx, stage.PrepareRuntime, stage.InstallPackages, o.catalogPayload(stage.PrepareRuntime))

	if !o.initPrimary(ctx) {
		// No control plane means no join credential: fatal to the rest
		// of the run.
		o.blockDownstream("control-plane init did not succeed on the primary")
		return o.finish()
	}

	o.joinOthers(ctx)

	o.installer.Install(ctx)

	return o.finish()
}

// catalogPayload resolves a stage's command once and serves it to every node.
func (o *Orchestrator) catalogPayload(stageName string) func(inventory.Node) (executor.Command, error) {
	return func(inventory.Node) (executor.Command, error) {
		return o.catalog.Command(stageName)
	}
}

// fanOut schedules one stage on every applicable node concurrently.
// A node whose per-node predecessor did not succeed is recorded blocked;
// nodes reached after cancellation are recorded skipped.
func (o *Orchestrator) fanOut(ctx context.Context, stageName, pred string, payload func(inventory.Node) (executor.Command, error)) {
	st, ok := o.graph.Get(stageName)
	if !ok {
		return
	}

	var tasks []async.Task
	for _, n := range o.inv.Nodes() {
		if !st.AppliesTo(n) {
			continue
		}
		if o.state.Succeeded(n.Address, stageName) {
			// Already done in a previous run; the runner would skip it
			// anyway, no need to schedule.
			o.observer.Event(observe.Event{
				Type:    observe.EventStageSkipped,
				Stage:   stageName,
				Node:    n.Address,
				Message: "already succeeded, not re-run",
			})
			continue
		}
		if ctx.Err() != nil {
			o.state.Record(n.Address, stageName, state.OutcomeSkipped, "run cancelled")
			o.observer.Event(observe.Event{
				Type:    observe.EventStageSkipped,
				Stage:   stageName,
				Node:    n.Address,
				Message: "run cancelled",
			})
			continue
		}
		if pred != "" && !o.state.Succeeded(n.Address, pred) {
			blocked := &stage.BlockedError{Node: n.Address, Stage: stageName, Reason: pred + " did not succeed"}
			o.state.Record(n.Address, stageName, state.OutcomeBlocked, blocked.Reason)
			o.observer.Event(observe.Event{
				Type:    observe.EventStageBlocked,
				Stage:   stageName,
				Node:    n.Address,
				Message: blocked.Error(),
			})
			continue
		}

		cmd, err := payload(n)
		if err != nil {
			o.state.Record(n.Address, stageName, state.OutcomeFailed, err.Error())
			continue
		}

		node := n
		tasks = append(tasks, async.Task{
			Name: node.Address,
			Func: func(tctx context.Context) error {
				o.runner.Run(tctx, node, stageName, cmd)
				return nil
			},
		})
	}

	async.Run(ctx, o.opts.Concurrency, tasks)
}

// initPrimary runs the single-node control-plane init barrier and reports
// whether the primary is ready.
func (o *Orchestrator) initPrimary(ctx context.Context) bool {
	primary := o.inv.Primary()

	if o.state.Succeeded(primary.Address, stage.InitPrimary) {
		return true
	}
	if ctx.Err() != nil {
		o.state.Record(primary.Address, stage.InitPrimary, state.OutcomeSkipped, "run cancelled")
		return false
	}
	if !o.state.Succeeded(primary.Address, stage.PrepareRuntime) {
		o.state.Record(primary.Address, stage.InitPrimary, state.OutcomeBlocked,
			stage.PrepareRuntime+" did not succeed")
		return false
	}

	cmd, err := o.catalog.Command(stage.InitPrimary)
	if err != nil {
		o.state.Record(primary.Address, stage.InitPrimary, state.OutcomeFailed, err.Error())
		return false
	}

	return o.runner.Run(ctx, primary, stage.InitPrimary, cmd) == state.OutcomeSucceeded
}

// joinOthers mints the join credential once and fans the join stage out
// to every non-primary node whose runtime prep succeeded.
func (o *Orchestrator) joinOthers(ctx context.Context) {
	if ctx.Err() != nil {
		o.fanOut(ctx, stage.Join, stage.PrepareRuntime, nil) // records skipped
		return
	}

	// No pending join means no consumer for a credential; minting one
	// would be a remote call a fully-joined resume must not make.
	pending := false
	for _, n := range o.inv.Others() {
		if !o.state.Succeeded(n.Address, stage.Join) {
			pending = true
			break
		}
	}
	if !pending {
		return
	}

	cred, err := o.joiner.Obtain(ctx)
	if err != nil {
		o.observer.Printf("join credential unavailable: %v", err)
		for _, n := range o.inv.Others() {
			if o.state.Succeeded(n.Address, stage.Join) {
				continue
			}
			o.state.Record(n.Address, stage.Join, state.OutcomeBlocked, "join credential unavailable")
		}
		return
	}

	o.fanOut(ctx, stage.Join, stage.PrepareRuntime, func(n inventory.Node) (executor.Command, error) {
		return o.joiner.Command(cred, n), nil
	})
}

// blockDownstream records the join and addon stages as blocked for every
// node they apply to. Used when the primary barrier fails.
func (o *Orchestrator) blockDownstream(reason string) {
	blockedStages := append([]string{stage.Join}, stage.AddonStages()...)
	for _, name := range blockedStages {
		st, ok := o.graph.Get(name)
		if !ok {
			continue
		}
		for _, n := range o.inv.Nodes() {
			if !st.AppliesTo(n) || o.state.Succeeded(n.Address, name) {
				continue
			}
			if a, found := o.state.Latest(n.Address, name); found && a.Outcome.Terminal() {
				continue
			}
			o.state.Record(n.Address, name, state.OutcomeBlocked, reason)
			o.observer.Event(observe.Event{
				Type:    observe.EventStageBlocked,
				Stage:   name,
				Node:    n.Address,
				Message: reason,
			})
		}
	}
}

func (o *Orchestrator) finish() *Report {
	report := BuildReport(o.state, o.inv, o.graph)
	o.observer.Event(observe.Event{
		Type:   observe.EventRunFinished,
		Fields: map[string]string{"run_id": report.RunID, "status": string(report.Status)},
	})
	return report
}
