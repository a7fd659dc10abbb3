package testing

import (
	"fmt"

	"github.com/kubeboot/kubeboot/internal/inventory"
)

// BuildInventory creates a validated inventory with the given number of
// control-plane and worker nodes. The first control-plane node is the
// primary. Addresses are 10.0.0.1x for control planes and 10.0.0.2x for
// workers.
func BuildInventory(controlPlanes, workers int) *inventory.Inventory {
	var nodes []inventory.Node
	for i := 0; i < controlPlanes; i++ {
		nodes = append(nodes, inventory.Node{
			Address: fmt.Sprintf("10.0.0.1%d", i),
			Role:    inventory.RoleControlPlane,
			Primary: i == 0,
		})
	}
	for i := 0; i < workers; i++ {
		nodes = append(nodes, inventory.Node{
			Address: fmt.Sprintf("10.0.0.2%d", i),
			Role:    inventory.RoleWorker,
		})
	}

	inv, err := inventory.New(nodes)
	if err != nil {
		panic(err)
	}
	return inv
}

// JoinOutput renders a realistic kubeadm join command line, as printed by
// "kubeadm token create --print-join-command".
func JoinOutput(endpoint string) string {
	return fmt.Sprintf(
		"kubeadm join %s --token abcdef.0123456789abcdef --discovery-token-ca-cert-hash sha256:1234567890abcdef\n",
		endpoint,
	)
}
