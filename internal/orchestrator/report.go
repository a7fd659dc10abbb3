package orchestrator

import (
	"github.com/kubeboot/kubeboot/internal/inventory"
	"github.com/kubeboot/kubeboot/internal/stage"
	"github.com/kubeboot/kubeboot/internal/state"
)

// Status is the overall outcome of an orchestration run.
type Status string

const (
	// StatusSuccess means every stage on every applicable node succeeded.
	StatusSuccess Status = "success"
	// StatusPartial means the run completed but some stages did not succeed.
	StatusPartial Status = "partial"
	// StatusFailed means the primary's control-plane init terminally
	// failed and the cluster could not be formed.
	StatusFailed Status = "failed"
)

// Phase is the derived per-node position in the bootstrap state machine.
type Phase string

const (
	PhaseNotStarted        Phase = "NotStarted"
	PhasePackagesReady     Phase = "PackagesReady"
	PhaseRuntimePrepared   Phase = "RuntimePrepared"
	PhaseControlPlaneReady Phase = "ControlPlaneReady"
	PhaseJoined            Phase = "Joined"
	PhaseAddonsInstalled   Phase = "AddonsInstalled"
)

// StageReport is the terminal outcome of one stage on one node.
type StageReport struct {
	Stage    string
	Outcome  state.Outcome
	Attempts int
	Error    string
}

// NodeReport summarizes one node.
type NodeReport struct {
	Address string
	Role    inventory.Role
	Primary bool
	Phase   Phase
	Stages  []StageReport
}

// Report is the user-visible result of a run.
type Report struct {
	RunID  string
	Status Status
	Nodes  []NodeReport
}

// BuildReport derives the final report from the cluster state.
func BuildReport(st *state.Cluster, inv *inventory.Inventory, graph *stage.Graph) *Report {
	r := &Report{RunID: st.RunID()}

	allOK := true
	for _, n := range inv.Nodes() {
		nr := NodeReport{
			Address: n.Address,
			Role:    n.Role,
			Primary: n.Primary,
			Phase:   nodePhase(st, n),
		}
		for _, s := range graph.Stages() {
			if !s.AppliesTo(n) {
				continue
			}
			sr := StageReport{Stage: s.Name, Outcome: state.OutcomePending}
			if a, ok := st.Latest(n.Address, s.Name); ok {
				sr.Outcome = a.Outcome
				sr.Attempts = st.AttemptCount(n.Address, s.Name)
				sr.Error = a.Error
			}
			if sr.Outcome != state.OutcomeSucceeded {
				allOK = false
			}
			nr.Stages = append(nr.Stages, sr)
		}
		r.Nodes = append(r.Nodes, nr)
	}

	switch {
	case allOK:
		r.Status = StatusSuccess
	case primaryInitFailed(st, inv):
		r.Status = StatusFailed
	default:
		r.Status = StatusPartial
	}
	return r
}

// primaryInitFailed reports whether the control-plane init terminally
// failed or was blocked on the primary. A skipped init (cancellation) is
// not a failure.
func primaryInitFailed(st *state.Cluster, inv *inventory.Inventory) bool {
	a, ok := st.Latest(inv.Primary().Address, stage.InitPrimary)
	if !ok {
		return false
	}
	return a.Outcome == state.OutcomeFailed || a.Outcome == state.OutcomeBlocked
}

// nodePhase walks the per-node state machine from the recorded outcomes.
func nodePhase(st *state.Cluster, n inventory.Node) Phase {
	if !st.Succeeded(n.Address, stage.InstallPackages) {
		return PhaseNotStarted
	}
	if !st.Succeeded(n.Address, stage.PrepareRuntime) {
		return PhasePackagesReady
	}

	if n.Primary {
		if !st.Succeeded(n.Address, stage.InitPrimary) {
			return PhaseRuntimePrepared
		}
		for _, addonStage := range stage.AddonStages() {
			if !st.Succeeded(n.Address, addonStage) {
				return PhaseControlPlaneReady
			}
		}
		return PhaseAddonsInstalled
	}

	if !st.Succeeded(n.Address, stage.Join) {
		return PhaseRuntimePrepared
	}
	if n.Role == inventory.RoleControlPlane {
		return PhaseControlPlaneReady
	}
	return PhaseJoined
}
