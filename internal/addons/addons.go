// Package addons layers optional cluster capabilities on top of a
// working control plane: the service mesh, the load balancer, and the
// continuous-delivery controller.
//
// Addons install sequentially on the primary node because each one
// assumes the previous one's resources exist. A failed addon blocks the
// addons after it but is never rolled back.
package addons

import (
	"context"
	"fmt"

	"github.com/kubeboot/kubeboot/internal/executor"
	"github.com/kubeboot/kubeboot/internal/inventory"
	"github.com/kubeboot/kubeboot/internal/observe"
	"github.com/kubeboot/kubeboot/internal/stage"
	"github.com/kubeboot/kubeboot/internal/state"
)

// Addon is one named addon stage with its prerequisite check.
type Addon struct {
	// Name is the human-readable addon name.
	Name string

	// Stage is the stage name recorded in cluster state.
	Stage string

	// Requires validates the cluster state before installation. A nil
	// check means no prerequisite beyond the ordering.
	Requires func(st *state.Cluster, inv *inventory.Inventory) error
}

// runner is the slice of the stage runner the installer needs.
type runner interface {
	Run(ctx context.Context, node inventory.Node, stageName string, cmd executor.Command) state.Outcome
}

// Installer applies the addon sequence to the primary node.
type Installer struct {
	runner   runner
	state    *state.Cluster
	catalog  *stage.Catalog
	inv      *inventory.Inventory
	observer observe.Observer
	addons   []Addon
}

// NewInstaller creates an installer with the default addon sequence:
// service mesh, then load balancer, then CD controller.
func NewInstaller(r runner, st *state.Cluster, catalog *stage.Catalog, inv *inventory.Inventory, obs observe.Observer) *Installer {
	if obs == nil {
		obs = observe.Nop{}
	}
	return &Installer{
		runner:   r,
		state:    st,
		catalog:  catalog,
		inv:      inv,
		observer: obs,
		addons: []Addon{
			{Name: "service mesh", Stage: stage.InstallMesh, Requires: controlPlaneReady},
			{Name: "load balancer", Stage: stage.InstallLoadBalancer, Requires: controlPlaneReady},
			{Name: "cd controller", Stage: stage.InstallCD, Requires: controlPlaneReady},
		},
	}
}

// Install runs the addon stages sequentially on the primary node. Each
// addon's outcome is recorded individually; a failure blocks the addons
// behind it. Install reports whether every addon succeeded.
func (i *Installer) Install(ctx context.Context) bool {
	primary := i.inv.Primary()
	allOK := true
	var blockedBy string

	for _, addon := range i.addons {
		if blockedBy != "" {
			i.state.Record(primary.Address, addon.Stage, state.OutcomeBlocked,
				fmt.Sprintf("previous addon stage %s did not succeed", blockedBy))
			i.observer.Event(observe.Event{
				Type:  observe.EventStageBlocked,
				Stage: addon.Stage,
				Node:  primary.Address,
			})
			allOK = false
			continue
		}

		if ctx.Err() != nil {
			i.state.Record(primary.Address, addon.Stage, state.OutcomeSkipped, "run cancelled")
			i.observer.Event(observe.Event{
				Type:    observe.EventStageSkipped,
				Stage:   addon.Stage,
				Node:    primary.Address,
				Message: "run cancelled",
			})
			allOK = false
			continue
		}

		if addon.Requires != nil {
			if err := addon.Requires(i.state, i.inv); err != nil {
				i.state.Record(primary.Address, addon.Stage, state.OutcomeBlocked, err.Error())
				i.observer.Event(observe.Event{
					Type:    observe.EventStageBlocked,
					Stage:   addon.Stage,
					Node:    primary.Address,
					Message: err.Error(),
				})
				allOK = false
				blockedBy = addon.Stage
				continue
			}
		}

		cmd, err := i.catalog.Command(addon.Stage)
		if err != nil {
			i.state.Record(primary.Address, addon.Stage, state.OutcomeFailed, err.Error())
			allOK = false
			blockedBy = addon.Stage
			continue
		}

		if out := i.runner.Run(ctx, primary, addon.Stage, cmd); out != state.OutcomeSucceeded {
			allOK = false
			blockedBy = addon.Stage
		}
	}

	return allOK
}

// controlPlaneReady requires at least one control-plane node to have
// reached a ready state: the primary with init-primary succeeded, or any
// other control-plane node joined.
func controlPlaneReady(st *state.Cluster, inv *inventory.Inventory) error {
	for _, n := range inv.ControlPlanes() {
		if n.Primary && st.Succeeded(n.Address, stage.InitPrimary) {
			return nil
		}
		if !n.Primary && st.Succeeded(n.Address, stage.Join) {
			return nil
		}
	}
	return fmt.Errorf("no control-plane node is ready")
}
