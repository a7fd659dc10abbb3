package stage

import (
	"fmt"

	"github.com/kubeboot/kubeboot/internal/executor"
)

// Versions carries the three version strings the payload catalog needs.
type Versions struct {
	Kubernetes string
	Mesh       string
	CD         string
}

// Catalog maps stage names to the commands that implement them. Defaults
// are built from the configured versions; callers can override any stage
// with a fully opaque command of their own. Every payload, default or
// supplied, must be safe to execute more than once.
type Catalog struct {
	versions  Versions
	overrides map[string]executor.Command
}

// NewCatalog creates a payload catalog. The overrides map may be nil.
func NewCatalog(v Versions, overrides map[string]executor.Command) *Catalog {
	return &Catalog{versions: v, overrides: overrides}
}

// Command returns the payload for a stage. The join stage has no catalog
// entry: its command embeds the one-time credential and is built by the
// join coordinator.
func (c *Catalog) Command(stageName string) (executor.Command, error) {
	if cmd, ok := c.overrides[stageName]; ok {
		return cmd, nil
	}

	switch stageName {
	case InstallPackages:
		return executor.Command{Argv: []string{
			"apt-get", "install", "-y", "containerd", "kubeadm", "kubelet", "kubectl",
		}}, nil

	case PrepareRuntime:
		return executor.Command{Argv: []string{
			"sh", "-c",
			"modprobe br_netfilter && sysctl -w net.ipv4.ip_forward=1 && swapoff -a",
		}}, nil

	case InitPrimary:
		// Init only when the control plane is not already up, so the
		// stage survives re-execution.
		return executor.Command{Argv: []string{
			"sh", "-c",
			fmt.Sprintf("test -f /etc/kubernetes/admin.conf || kubeadm init --kubernetes-version %s --upload-certs", c.versions.Kubernetes),
		}}, nil

	case InstallMesh:
		return executor.Command{Argv: []string{
			"istioctl", "install", "-y", "--set", "tag=" + c.versions.Mesh,
		}}, nil

	case InstallLoadBalancer:
		return executor.Command{Argv: []string{
			"sh", "-c",
			"apt-get install -y haproxy && systemctl enable --now haproxy",
		}}, nil

	case InstallCD:
		return executor.Command{Argv: []string{
			"sh", "-c",
			fmt.Sprintf("kubectl create namespace argocd --dry-run=client -o yaml | kubectl apply -f - && kubectl apply -n argocd -f https://raw.githubusercontent.com/argoproj/argo-cd/%s/manifests/install.yaml", c.versions.CD),
		}}, nil

	case Join:
		return executor.Command{}, fmt.Errorf("payload for %q is built by the join coordinator", Join)
	}

	return executor.Command{}, fmt.Errorf("no payload for unknown stage %q", stageName)
}

// TokenCreate returns the command that mints a one-time join credential
// on the primary node.
func (c *Catalog) TokenCreate() executor.Command {
	if cmd, ok := c.overrides["token-create"]; ok {
		return cmd
	}
	return executor.Command{Argv: []string{
		"kubeadm", "token", "create", "--print-join-command", "--ttl", "30m",
	}}
}
