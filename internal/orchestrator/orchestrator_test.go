package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeboot/kubeboot/internal/addons"
	"github.com/kubeboot/kubeboot/internal/executor"
	"github.com/kubeboot/kubeboot/internal/inventory"
	"github.com/kubeboot/kubeboot/internal/join"
	"github.com/kubeboot/kubeboot/internal/stage"
	"github.com/kubeboot/kubeboot/internal/state"
	kbtesting "github.com/kubeboot/kubeboot/internal/testing"
)

// harness wires a full orchestrator over an in-memory executor.
type harness struct {
	inv   *inventory.Inventory
	fake  *kbtesting.FakeRemote
	state *state.Cluster
	orch  *Orchestrator
}

func newHarness(inv *inventory.Inventory, remote executor.Remote, fake *kbtesting.FakeRemote, st *state.Cluster) *harness {
	if st == nil {
		st = state.New()
	}
	opts := stage.DefaultRunnerOptions()
	opts.InitialBackoff = time.Millisecond
	opts.MaxBackoff = time.Millisecond
	opts.AttemptTimeout = time.Second

	catalog := stage.NewCatalog(stage.Versions{Kubernetes: "v1.31.2", Mesh: "1.24.0", CD: "v2.13.1"}, nil)
	runner := stage.NewRunner(remote, st, nil, opts)
	joiner := join.NewCoordinator(runner, catalog, inv.Primary())
	installer := addons.NewInstaller(runner, st, catalog, inv, nil)
	orch := New(inv, stage.Bootstrap(), runner, catalog, joiner, installer, st, nil, Options{})

	return &harness{inv: inv, fake: fake, state: st, orch: orch}
}

// scriptJoinCredential makes token creation on the primary print a
// well-formed join command.
func scriptJoinCredential(fake *kbtesting.FakeRemote, primaryAddr string) {
	fake.Script(primaryAddr, "token create",
		executor.Result{Stdout: kbtesting.JoinOutput(primaryAddr + ":6443")}, nil)
}

func TestRun_FullSuccess(t *testing.T) {
	t.Parallel()
	inv := kbtesting.BuildInventory(3, 3)
	fake := kbtesting.NewFakeRemote()
	scriptJoinCredential(fake, "10.0.0.10")

	h := newHarness(inv, fake, fake, nil)
	report := h.orch.Run(context.Background())

	assert.Equal(t, StatusSuccess, report.Status)
	require.Len(t, report.Nodes, 6)

	for _, nr := range report.Nodes {
		switch {
		case nr.Primary:
			assert.Equal(t, PhaseAddonsInstalled, nr.Phase)
		case nr.Role == inventory.RoleControlPlane:
			assert.Equal(t, PhaseControlPlaneReady, nr.Phase)
		default:
			assert.Equal(t, PhaseJoined, nr.Phase)
		}
	}
}

func TestRun_JoinNeverBeforeInitSucceeds(t *testing.T) {
	t.Parallel()
	inv := kbtesting.BuildInventory(1, 2)
	fake := kbtesting.NewFakeRemote()
	scriptJoinCredential(fake, "10.0.0.10")

	h := newHarness(inv, fake, fake, nil)
	h.orch.Run(context.Background())

	seq := fake.Rendered()
	initIdx, joinIdx := -1, -1
	for i, line := range seq {
		if strings.Contains(line, "kubeadm init") && initIdx == -1 {
			initIdx = i
		}
		if strings.Contains(line, "kubeadm join") && joinIdx == -1 {
			joinIdx = i
		}
	}
	require.NotEqual(t, -1, initIdx)
	require.NotEqual(t, -1, joinIdx)
	assert.Less(t, initIdx, joinIdx, "no node may observe join before init-primary succeeded")
}

func TestRun_AllJoinedBeforeAddons(t *testing.T) {
	t.Parallel()
	inv := kbtesting.BuildInventory(3, 3)
	fake := kbtesting.NewFakeRemote()
	scriptJoinCredential(fake, "10.0.0.10")

	h := newHarness(inv, fake, fake, nil)
	h.orch.Run(context.Background())

	seq := fake.Rendered()
	lastJoin, firstAddon := -1, len(seq)
	for i, line := range seq {
		if strings.Contains(line, "kubeadm join") {
			lastJoin = i
		}
		if strings.Contains(line, "istioctl") && i < firstAddon {
			firstAddon = i
		}
	}
	require.NotEqual(t, -1, lastJoin)
	require.NotEqual(t, len(seq), firstAddon)
	assert.Less(t, lastJoin, firstAddon, "every join must complete before any addon stage is scheduled")
}

func TestRun_PrimaryInitFatal(t *testing.T) {
	t.Parallel()
	inv := kbtesting.BuildInventory(1, 2)
	fake := kbtesting.NewFakeRemote()
	fake.Script("10.0.0.10", "kubeadm init", executor.Result{ExitCode: 1, Stderr: "preflight checks failed"}, nil)

	h := newHarness(inv, fake, fake, nil)
	report := h.orch.Run(context.Background())

	assert.Equal(t, StatusFailed, report.Status)
	// No join stage was ever scheduled for any node.
	assert.Zero(t, fake.CallsMatching("kubeadm join"))
	assert.Zero(t, fake.CallsMatching("token create"))

	for _, n := range inv.Workers() {
		a, ok := h.state.Latest(n.Address, stage.Join)
		require.True(t, ok)
		assert.Equal(t, state.OutcomeBlocked, a.Outcome)
	}
	for _, name := range stage.AddonStages() {
		a, ok := h.state.Latest("10.0.0.10", name)
		require.True(t, ok)
		assert.Equal(t, state.OutcomeBlocked, a.Outcome)
	}
}

func TestRun_TransientInitRetriedThenSucceeds(t *testing.T) {
	t.Parallel()
	inv := kbtesting.BuildInventory(1, 1)
	fake := kbtesting.NewFakeRemote()
	fake.Script("10.0.0.10", "kubeadm init", executor.Result{}, errors.New("connection reset by peer"))
	fake.Script("10.0.0.10", "kubeadm init", executor.Result{}, nil)
	scriptJoinCredential(fake, "10.0.0.10")

	h := newHarness(inv, fake, fake, nil)
	report := h.orch.Run(context.Background())

	assert.Equal(t, StatusSuccess, report.Status)
	assert.Equal(t, 2, h.state.AttemptCount("10.0.0.10", stage.InitPrimary))

	a, ok := h.state.Latest("10.0.0.10", stage.InitPrimary)
	require.True(t, ok)
	assert.Equal(t, state.OutcomeSucceeded, a.Outcome)
	assert.Equal(t, 2, a.Attempt)
}

func TestRun_WorkerJoinFailureIsPartial(t *testing.T) {
	t.Parallel()
	inv := kbtesting.BuildInventory(3, 3)
	fake := kbtesting.NewFakeRemote()
	scriptJoinCredential(fake, "10.0.0.10")
	// One worker permanently refuses to join.
	fake.Script("10.0.0.22", "kubeadm join", executor.Result{ExitCode: 1, Stderr: "certificate signed by unknown authority"}, nil)

	h := newHarness(inv, fake, fake, nil)
	report := h.orch.Run(context.Background())

	assert.Equal(t, StatusPartial, report.Status)

	joined := 0
	for _, nr := range report.Nodes {
		if nr.Phase == PhaseJoined || nr.Phase == PhaseControlPlaneReady || nr.Phase == PhaseAddonsInstalled {
			joined++
		}
	}
	assert.Equal(t, 5, joined, "five of six nodes should be joined or ready")

	failed, ok := h.state.Latest("10.0.0.22", stage.Join)
	require.True(t, ok)
	assert.Equal(t, state.OutcomeFailed, failed.Outcome)

	// Addons still run: at least one control-plane node is ready.
	assert.True(t, h.state.Succeeded("10.0.0.10", stage.InstallMesh))
	assert.True(t, h.state.Succeeded("10.0.0.10", stage.InstallCD))
}

func TestRun_FailedPackagesBlocksNodeNotSiblings(t *testing.T) {
	t.Parallel()
	inv := kbtesting.BuildInventory(1, 2)
	fake := kbtesting.NewFakeRemote()
	scriptJoinCredential(fake, "10.0.0.10")
	fake.Script("10.0.0.20", "apt-get", executor.Result{ExitCode: 100, Stderr: "unable to locate package"}, nil)

	h := newHarness(inv, fake, fake, nil)
	report := h.orch.Run(context.Background())

	assert.Equal(t, StatusPartial, report.Status)

	// The broken node is blocked at every later stage.
	prep, ok := h.state.Latest("10.0.0.20", stage.PrepareRuntime)
	require.True(t, ok)
	assert.Equal(t, state.OutcomeBlocked, prep.Outcome)
	joinA, ok := h.state.Latest("10.0.0.20", stage.Join)
	require.True(t, ok)
	assert.Equal(t, state.OutcomeBlocked, joinA.Outcome)

	// Its sibling is unaffected.
	assert.True(t, h.state.Succeeded("10.0.0.21", stage.Join))
}

func TestRun_ResumeFullySucceededMakesNoRemoteCalls(t *testing.T) {
	t.Parallel()
	inv := kbtesting.BuildInventory(1, 2)
	fake := kbtesting.NewFakeRemote()
	scriptJoinCredential(fake, "10.0.0.10")

	first := newHarness(inv, fake, fake, nil)
	report := first.orch.Run(context.Background())
	require.Equal(t, StatusSuccess, report.Status)
	callsAfterFirst := fake.Calls()

	// Re-run against the same state: nothing should execute remotely.
	second := newHarness(inv, fake, fake, first.state)
	report = second.orch.Run(context.Background())

	assert.Equal(t, StatusSuccess, report.Status)
	assert.Equal(t, callsAfterFirst, fake.Calls(), "idempotent resume must perform zero remote calls")
	assert.Equal(t, 1, fake.CallsMatching("token create"), "fully-joined resume must not mint a new credential")
}

func TestRun_ResumeJoinedClusterMintsNoCredential(t *testing.T) {
	t.Parallel()
	inv := kbtesting.BuildInventory(1, 2)
	fake := kbtesting.NewFakeRemote()

	// Everything done except two addon stages.
	st := state.New()
	for _, n := range inv.Nodes() {
		st.Record(n.Address, stage.InstallPackages, state.OutcomeSucceeded, "")
		st.Record(n.Address, stage.PrepareRuntime, state.OutcomeSucceeded, "")
	}
	st.Record("10.0.0.10", stage.InitPrimary, state.OutcomeSucceeded, "")
	st.Record("10.0.0.20", stage.Join, state.OutcomeSucceeded, "")
	st.Record("10.0.0.21", stage.Join, state.OutcomeSucceeded, "")
	st.Record("10.0.0.10", stage.InstallMesh, state.OutcomeSucceeded, "")

	h := newHarness(inv, fake, fake, st)
	report := h.orch.Run(context.Background())

	assert.Equal(t, StatusSuccess, report.Status)
	assert.Zero(t, fake.CallsMatching("token create"), "no pending join, no credential")
	// Only the two remaining addon stages executed.
	assert.Equal(t, 2, fake.Calls())
}

// cancelOnMatch cancels the run the first time a matching command executes.
type cancelOnMatch struct {
	inner    *kbtesting.FakeRemote
	fragment string
	cancel   context.CancelFunc
}

func (c *cancelOnMatch) Execute(ctx context.Context, node inventory.Node, cmd executor.Command) (executor.Result, error) {
	if strings.Contains(strings.Join(cmd.Argv, " "), c.fragment) {
		c.cancel()
	}
	return c.inner.Execute(ctx, node, cmd)
}

func TestRun_CancellationSkipsUnscheduled(t *testing.T) {
	t.Parallel()
	inv := kbtesting.BuildInventory(1, 2)
	fake := kbtesting.NewFakeRemote()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	remote := &cancelOnMatch{inner: fake, fragment: "apt-get", cancel: cancel}

	h := newHarness(inv, remote, fake, nil)
	report := h.orch.Run(ctx)

	// In-flight package installs completed and were recorded.
	assert.Equal(t, 3, fake.CallsMatching("apt-get"))
	for _, n := range inv.Nodes() {
		assert.True(t, h.state.Succeeded(n.Address, stage.InstallPackages))
	}

	// Nothing after the cancellation point was scheduled. The fragments
	// are phrased to not match the package-install payload, which
	// legitimately ran before the cancellation and names kubeadm too.
	assert.Zero(t, fake.CallsMatching("kubeadm init"))
	assert.Zero(t, fake.CallsMatching("kubeadm join"))
	assert.Zero(t, fake.CallsMatching("token create"))
	assert.Zero(t, fake.CallsMatching("istioctl"))

	for _, n := range inv.Nodes() {
		a, ok := h.state.Latest(n.Address, stage.PrepareRuntime)
		require.True(t, ok)
		assert.Equal(t, state.OutcomeSkipped, a.Outcome, "unscheduled stages must be skipped, not failed")
	}

	initA, ok := h.state.Latest("10.0.0.10", stage.InitPrimary)
	require.True(t, ok)
	assert.Equal(t, state.OutcomeSkipped, initA.Outcome)

	assert.Equal(t, StatusPartial, report.Status)
}

func TestRun_ConcurrencyBound(t *testing.T) {
	t.Parallel()
	inv := kbtesting.BuildInventory(1, 5)
	fake := kbtesting.NewFakeRemote()
	scriptJoinCredential(fake, "10.0.0.10")

	st := state.New()
	opts := stage.DefaultRunnerOptions()
	opts.InitialBackoff = time.Millisecond
	catalog := stage.NewCatalog(stage.Versions{Kubernetes: "v1.31.2", Mesh: "1.24.0", CD: "v2.13.1"}, nil)
	runner := stage.NewRunner(fake, st, nil, opts)
	joiner := join.NewCoordinator(runner, catalog, inv.Primary())
	installer := addons.NewInstaller(runner, st, catalog, inv, nil)

	orch := New(inv, stage.Bootstrap(), runner, catalog, joiner, installer, st, nil, Options{Concurrency: 2})
	report := orch.Run(context.Background())

	assert.Equal(t, StatusSuccess, report.Status)
}

func TestBuildReport_PendingWhenNothingRan(t *testing.T) {
	t.Parallel()
	inv := kbtesting.BuildInventory(1, 1)
	st := state.New()

	report := BuildReport(st, inv, stage.Bootstrap())

	assert.Equal(t, StatusPartial, report.Status)
	require.Len(t, report.Nodes, 2)
	assert.Equal(t, PhaseNotStarted, report.Nodes[0].Phase)
	for _, sr := range report.Nodes[0].Stages {
		assert.Equal(t, state.OutcomePending, sr.Outcome)
	}
}
