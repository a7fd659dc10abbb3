// Package stage declares the provisioning DAG and runs stages on nodes.
//
// Stages are data: a name, its predecessors, and a role filter. The
// built-in bootstrap graph drives a cluster from bare machines to a
// joined control plane with addons; the runner executes one stage on one
// node with retry and outcome classification.
package stage

import (
	"fmt"

	"github.com/kubeboot/kubeboot/internal/inventory"
)

// Built-in stage names.
const (
	InstallPackages     = "install-packages"
	PrepareRuntime      = "prepare-runtime"
	InitPrimary         = "init-primary"
	Join                = "join"
	InstallMesh         = "install-mesh"
	InstallLoadBalancer = "install-loadbalancer"
	InstallCD           = "install-cd"
)

// Stage is one named unit of provisioning work.
type Stage struct {
	// Name identifies the stage.
	Name string

	// After lists stage names that must succeed before this stage runs.
	After []string

	// Roles filters which node roles the stage applies to. Empty means
	// every role.
	Roles []inventory.Role

	// PrimaryOnly restricts the stage to the primary control-plane node.
	PrimaryOnly bool

	// NonPrimary restricts the stage to every node except the primary.
	NonPrimary bool
}

// AppliesTo reports whether the stage targets the given node.
func (s Stage) AppliesTo(n inventory.Node) bool {
	if s.PrimaryOnly && !n.Primary {
		return false
	}
	if s.NonPrimary && n.Primary {
		return false
	}
	if len(s.Roles) == 0 {
		return true
	}
	for _, r := range s.Roles {
		if n.Role == r {
			return true
		}
	}
	return false
}

// Graph is a validated, topologically ordered set of stages.
type Graph struct {
	order  []Stage
	byName map[string]Stage
}

// NewGraph validates the stages (unique names, known predecessors, no
// cycles) and returns them in a topological order that preserves the
// declaration order among independent stages.
func NewGraph(stages ...Stage) (*Graph, error) {
	byName := make(map[string]Stage, len(stages))
	for _, s := range stages {
		if s.Name == "" {
			return nil, fmt.Errorf("stage graph: stage with empty name")
		}
		if _, dup := byName[s.Name]; dup {
			return nil, fmt.Errorf("stage graph: duplicate stage %q", s.Name)
		}
		byName[s.Name] = s
	}

	indegree := make(map[string]int, len(stages))
	for _, s := range stages {
		for _, dep := range s.After {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("stage graph: stage %q depends on unknown stage %q", s.Name, dep)
			}
			indegree[s.Name]++
		}
	}

	// Kahn's algorithm over the declaration order keeps the output stable.
	order := make([]Stage, 0, len(stages))
	done := make(map[string]bool, len(stages))
	for len(order) < len(stages) {
		progressed := false
		for _, s := range stages {
			if done[s.Name] {
				continue
			}
			ready := true
			for _, dep := range s.After {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				order = append(order, s)
				done[s.Name] = true
				progressed = true
			}
		}
		if !progressed {
			return nil, fmt.Errorf("stage graph: dependency cycle among %d stages", len(stages)-len(order))
		}
	}

	return &Graph{order: order, byName: byName}, nil
}

// Stages returns all stages in topological order.
func (g *Graph) Stages() []Stage {
	out := make([]Stage, len(g.order))
	copy(out, g.order)
	return out
}

// Get looks a stage up by name.
func (g *Graph) Get(name string) (Stage, bool) {
	s, ok := g.byName[name]
	return s, ok
}

// Bootstrap returns the built-in provisioning graph: package install and
// runtime prep fan out to every node, the primary initializes the control
// plane behind a single-node barrier, every other node joins, and the
// addon stages run sequentially on the primary.
func Bootstrap() *Graph {
	g, err := NewGraph(
		Stage{Name: InstallPackages},
		Stage{Name: PrepareRuntime, After: []string{InstallPackages}},
		Stage{Name: InitPrimary, After: []string{PrepareRuntime}, PrimaryOnly: true},
		Stage{Name: Join, After: []string{InitPrimary}, NonPrimary: true},
		Stage{Name: InstallMesh, After: []string{Join}, PrimaryOnly: true},
		Stage{Name: InstallLoadBalancer, After: []string{InstallMesh}, PrimaryOnly: true},
		Stage{Name: InstallCD, After: []string{InstallLoadBalancer}, PrimaryOnly: true},
	)
	if err != nil {
		// The built-in graph is static; failing to build it is a bug.
		panic(err)
	}
	return g
}

// AddonStages lists the addon stage names in install order.
func AddonStages() []string {
	return []string{InstallMesh, InstallLoadBalancer, InstallCD}
}
