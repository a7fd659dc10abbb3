package join

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeboot/kubeboot/internal/executor"
	"github.com/kubeboot/kubeboot/internal/inventory"
	"github.com/kubeboot/kubeboot/internal/stage"
	kbtesting "github.com/kubeboot/kubeboot/internal/testing"
)

type stubRunner struct {
	res   executor.Result
	err   error
	calls int
}

func (s *stubRunner) Execute(context.Context, inventory.Node, executor.Command) (executor.Result, error) {
	s.calls++
	return s.res, s.err
}

func primaryNode() inventory.Node {
	return inventory.Node{Address: "10.0.0.10", Role: inventory.RoleControlPlane, Primary: true}
}

func testCatalog() *stage.Catalog {
	return stage.NewCatalog(stage.Versions{Kubernetes: "v1.31.2", Mesh: "1.24.0", CD: "v2.13.1"}, nil)
}

func TestObtain_ParsesJoinCommand(t *testing.T) {
	t.Parallel()
	r := &stubRunner{res: executor.Result{Stdout: kbtesting.JoinOutput("10.0.0.10:6443")}}
	c := NewCoordinator(r, testCatalog(), primaryNode())

	cred, err := c.Obtain(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "10.0.0.10:6443", cred.Endpoint)
	assert.Equal(t, "abcdef.0123456789abcdef", cred.Token)
	assert.Equal(t, "sha256:1234567890abcdef", cred.CAHash)
}

func TestObtain_Memoized(t *testing.T) {
	t.Parallel()
	r := &stubRunner{res: executor.Result{Stdout: kbtesting.JoinOutput("10.0.0.10:6443")}}
	c := NewCoordinator(r, testCatalog(), primaryNode())

	first, err := c.Obtain(context.Background())
	require.NoError(t, err)
	second, err := c.Obtain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, r.calls, "credential must be created exactly once per run")
}

func TestObtain_RunnerError(t *testing.T) {
	t.Parallel()
	r := &stubRunner{err: errors.New("token create exited 1")}
	c := NewCoordinator(r, testCatalog(), primaryNode())

	_, err := c.Obtain(context.Background())
	assert.ErrorContains(t, err, "create join credential on 10.0.0.10")
}

func TestObtain_GarbageOutput(t *testing.T) {
	t.Parallel()
	r := &stubRunner{res: executor.Result{Stdout: "W0101 token exists\nsomething else\n"}}
	c := NewCoordinator(r, testCatalog(), primaryNode())

	_, err := c.Obtain(context.Background())
	assert.ErrorContains(t, err, "no join command line")
}

func TestObtain_MissingToken(t *testing.T) {
	t.Parallel()
	r := &stubRunner{res: executor.Result{Stdout: "kubeadm join 10.0.0.10:6443 --discovery-token-ca-cert-hash sha256:abc\n"}}
	c := NewCoordinator(r, testCatalog(), primaryNode())

	_, err := c.Obtain(context.Background())
	assert.ErrorContains(t, err, "missing token")
}

func TestCommand_Worker(t *testing.T) {
	t.Parallel()
	c := NewCoordinator(&stubRunner{}, testCatalog(), primaryNode())
	cred := Credential{Endpoint: "10.0.0.10:6443", Token: "abcdef.0123456789abcdef", CAHash: "sha256:abc"}

	cmd := c.Command(cred, inventory.Node{Address: "10.0.0.20", Role: inventory.RoleWorker})

	require.True(t, cmd.Sensitive)
	joined := strings.Join(cmd.Argv, " ")
	assert.Contains(t, joined, "kubeadm join 10.0.0.10:6443")
	assert.Contains(t, joined, "--token abcdef.0123456789abcdef")
	assert.NotContains(t, joined, "--control-plane")
	// Re-running a join on an already joined node must be a no-op.
	assert.Contains(t, joined, "test -f /etc/kubernetes/kubelet.conf ||")
}

func TestCommand_ControlPlane(t *testing.T) {
	t.Parallel()
	c := NewCoordinator(&stubRunner{}, testCatalog(), primaryNode())
	cred := Credential{Endpoint: "10.0.0.10:6443", Token: "t.t", CAHash: "sha256:abc"}

	cmd := c.Command(cred, inventory.Node{Address: "10.0.0.11", Role: inventory.RoleControlPlane})

	assert.Contains(t, strings.Join(cmd.Argv, " "), "--control-plane")
}

func TestCredentialString_RedactsToken(t *testing.T) {
	t.Parallel()
	cred := Credential{Endpoint: "10.0.0.10:6443", Token: "abcdef.secret", CAHash: "sha256:abc"}

	s := cred.String()
	assert.Contains(t, s, "10.0.0.10:6443")
	assert.NotContains(t, s, "secret")
}
