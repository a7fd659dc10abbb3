// Package inventory holds the static description of cluster membership.
//
// An Inventory is a validated, ordered set of nodes loaded once at startup
// and treated as immutable for the rest of the run. Exactly one node is the
// primary control-plane node; all scheduling decisions key off node role
// and the primary designation.
package inventory

import (
	"fmt"
	"strings"
)

// ValidationError represents a single inventory validation failure.
type ValidationError struct {
	Field    string // Inventory field that failed validation
	Message  string // Human-readable error message
	Severity string // "error" or "warning"
}

// Error implements the error interface.
func (ve ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", ve.Severity, ve.Field, ve.Message)
}

// IsError returns true if this is an error (not a warning).
func (ve ValidationError) IsError() bool {
	return ve.Severity == "error"
}

// ConfigError aggregates inventory validation failures. A run that hits a
// ConfigError aborts before any remote call is made.
type ConfigError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (ce *ConfigError) Error() string {
	msgs := make([]string, 0, len(ce.Errors))
	for _, ve := range ce.Errors {
		msgs = append(msgs, ve.Error())
	}
	return "invalid inventory:\n  " + strings.Join(msgs, "\n  ")
}

// Inventory is an ordered, validated set of nodes.
type Inventory struct {
	nodes []Node
}

// New validates the given nodes and returns an Inventory.
// It fails with a *ConfigError when the node set is empty, an address is
// duplicated, a role is unknown, or the primary designation does not land
// on exactly one control-plane node.
func New(nodes []Node) (*Inventory, error) {
	var errs []ValidationError

	if len(nodes) == 0 {
		errs = append(errs, ValidationError{Field: "nodes", Message: "inventory must not be empty", Severity: "error"})
	}

	seen := make(map[string]bool, len(nodes))
	primaries := 0
	for i, n := range nodes {
		field := fmt.Sprintf("nodes[%d]", i)

		if n.Address == "" {
			errs = append(errs, ValidationError{Field: field + ".address", Message: "address is required", Severity: "error"})
		} else if seen[n.Address] {
			errs = append(errs, ValidationError{Field: field + ".address", Message: fmt.Sprintf("duplicate address %q", n.Address), Severity: "error"})
		}
		seen[n.Address] = true

		if !n.Role.Valid() {
			errs = append(errs, ValidationError{
				Field:    field + ".role",
				Message:  fmt.Sprintf("unknown role %q (expected control-plane, worker or edge)", n.Role),
				Severity: "error",
			})
		}

		if n.Primary {
			primaries++
			if n.Role != RoleControlPlane {
				errs = append(errs, ValidationError{
					Field:    field + ".primary",
					Message:  fmt.Sprintf("primary node must have role control-plane, got %q", n.Role),
					Severity: "error",
				})
			}
		}
	}

	switch primaries {
	case 1:
	case 0:
		if len(nodes) > 0 {
			errs = append(errs, ValidationError{Field: "nodes", Message: "exactly one node must be marked primary", Severity: "error"})
		}
	default:
		errs = append(errs, ValidationError{Field: "nodes", Message: fmt.Sprintf("exactly one primary expected, found %d", primaries), Severity: "error"})
	}

	// Warnings alone never fail validation.
	for _, ve := range errs {
		if ve.IsError() {
			return nil, &ConfigError{Errors: errs}
		}
	}

	out := make([]Node, len(nodes))
	copy(out, nodes)
	return &Inventory{nodes: out}, nil
}

// Nodes returns all nodes in declaration order.
func (inv *Inventory) Nodes() []Node {
	out := make([]Node, len(inv.nodes))
	copy(out, inv.nodes)
	return out
}

// Len returns the number of nodes.
func (inv *Inventory) Len() int { return len(inv.nodes) }

// Primary returns the single primary control-plane node.
func (inv *Inventory) Primary() Node {
	for _, n := range inv.nodes {
		if n.Primary {
			return n
		}
	}
	// New() guarantees exactly one primary; reaching this is a bug.
	panic("inventory: no primary node")
}

// Others returns every node except the primary, in declaration order.
func (inv *Inventory) Others() []Node {
	out := make([]Node, 0, len(inv.nodes)-1)
	for _, n := range inv.nodes {
		if !n.Primary {
			out = append(out, n)
		}
	}
	return out
}

// ControlPlanes returns all control-plane nodes, primary included.
func (inv *Inventory) ControlPlanes() []Node {
	var out []Node
	for _, n := range inv.nodes {
		if n.Role == RoleControlPlane {
			out = append(out, n)
		}
	}
	return out
}

// Workers returns all worker nodes.
func (inv *Inventory) Workers() []Node {
	var out []Node
	for _, n := range inv.nodes {
		if n.Role == RoleWorker {
			out = append(out, n)
		}
	}
	return out
}

// ByAddress looks a node up by its address.
func (inv *Inventory) ByAddress(addr string) (Node, bool) {
	for _, n := range inv.nodes {
		if n.Address == addr {
			return n, true
		}
	}
	return Node{}, false
}
