package inventory

import "fmt"

// Role classifies what a node does in the cluster.
type Role string

const (
	// RoleControlPlane nodes run the Kubernetes control plane.
	RoleControlPlane Role = "control-plane"
	// RoleWorker nodes run workloads.
	RoleWorker Role = "worker"
	// RoleEdge nodes sit in front of the cluster (load balancer hosts).
	RoleEdge Role = "edge"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleControlPlane, RoleWorker, RoleEdge:
		return true
	}
	return false
}

// Node describes one machine in the cluster inventory.
// Nodes are immutable after the inventory is loaded.
type Node struct {
	// Address is the reachable address of the machine (IP or hostname).
	// It is also the node's identity within the inventory.
	Address string `mapstructure:"address" yaml:"address"`

	// Role is the node's cluster role.
	Role Role `mapstructure:"role" yaml:"role"`

	// Primary marks the single control-plane node that performs
	// first-time cluster initialization and issues join credentials.
	Primary bool `mapstructure:"primary" yaml:"primary,omitempty"`

	// User is the remote login user. Falls back to the inventory default.
	User string `mapstructure:"user" yaml:"user,omitempty"`

	// SSHKeyPath references the private key used to reach the node.
	SSHKeyPath string `mapstructure:"ssh_key" yaml:"ssh_key,omitempty"`

	// Port is the SSH port. Zero means the inventory default.
	Port int `mapstructure:"port" yaml:"port,omitempty"`
}

// Name returns the node's display name for logs and reports.
func (n Node) Name() string {
	return fmt.Sprintf("%s/%s", n.Role, n.Address)
}
