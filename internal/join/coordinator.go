// Package join mints and distributes the one-time cluster join credential.
//
// The credential is created on the primary node exactly once per run,
// only after the primary's control-plane init succeeded, and is handed to
// every other node through the stage runner. It is a secret: it never
// appears in logs and is never written to the state file.
package join

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kubeboot/kubeboot/internal/executor"
	"github.com/kubeboot/kubeboot/internal/inventory"
	"github.com/kubeboot/kubeboot/internal/stage"
)

// Credential lets a node attach itself to the initialized control plane.
type Credential struct {
	Endpoint string
	Token    string
	CAHash   string
}

// String renders the credential for logs with the secret redacted.
func (c Credential) String() string {
	return fmt.Sprintf("join-credential{endpoint: %s, token: [redacted]}", c.Endpoint)
}

// runner is the slice of the stage runner the coordinator needs.
type runner interface {
	Execute(ctx context.Context, node inventory.Node, cmd executor.Command) (executor.Result, error)
}

// Coordinator obtains the join credential from the primary node and
// builds per-node join commands around it.
type Coordinator struct {
	runner  runner
	catalog *stage.Catalog
	primary inventory.Node

	mu   sync.Mutex
	cred *Credential
}

// NewCoordinator creates a join coordinator for the given primary node.
func NewCoordinator(r runner, catalog *stage.Catalog, primary inventory.Node) *Coordinator {
	return &Coordinator{runner: r, catalog: catalog, primary: primary}
}

// Obtain returns the join credential, running the token-create payload on
// the primary the first time and the memoized credential afterwards. The
// credential is never regenerated within a run.
func (c *Coordinator) Obtain(ctx context.Context) (Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cred != nil {
		return *c.cred, nil
	}

	res, err := c.runner.Execute(ctx, c.primary, c.catalog.TokenCreate())
	if err != nil {
		return Credential{}, fmt.Errorf("create join credential on %s: %w", c.primary.Address, err)
	}

	cred, err := parseJoinOutput(res.Stdout)
	if err != nil {
		return Credential{}, fmt.Errorf("parse join credential from %s: %w", c.primary.Address, err)
	}

	c.cred = &cred
	return cred, nil
}

// Command builds the join payload for a target node, with the credential
// embedded and the command marked sensitive so its argv is never logged.
// Control-plane nodes join as additional control-plane members.
func (c *Coordinator) Command(cred Credential, node inventory.Node) executor.Command {
	argv := []string{
		"kubeadm", "join", cred.Endpoint,
		"--token", cred.Token,
		"--discovery-token-ca-cert-hash", cred.CAHash,
	}
	if node.Role == inventory.RoleControlPlane {
		argv = append(argv, "--control-plane")
	}
	// Joining is a no-op on a node that already belongs to the cluster.
	guarded := []string{
		"sh", "-c",
		"test -f /etc/kubernetes/kubelet.conf || " + strings.Join(argv, " "),
	}
	return executor.Command{Argv: guarded, Sensitive: true}
}

// parseJoinOutput extracts the credential from the output of
// "kubeadm token create --print-join-command":
//
//	kubeadm join <endpoint> --token <token> --discovery-token-ca-cert-hash <hash>
func parseJoinOutput(out string) (Credential, error) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[0] != "kubeadm" || fields[1] != "join" {
			continue
		}

		cred := Credential{Endpoint: fields[2]}
		for i := 3; i < len(fields)-1; i++ {
			switch fields[i] {
			case "--token":
				cred.Token = fields[i+1]
			case "--discovery-token-ca-cert-hash":
				cred.CAHash = fields[i+1]
			}
		}

		if cred.Token == "" || cred.CAHash == "" {
			return Credential{}, fmt.Errorf("join command line missing token or discovery hash")
		}
		return cred, nil
	}
	return Credential{}, fmt.Errorf("no join command line in output")
}
