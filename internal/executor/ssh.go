package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/kubeboot/kubeboot/internal/inventory"
)

const defaultSSHPort = 22

// SSHExecutor implements Remote over the SSH protocol. Nodes carry their
// own user/key/port; unset fields fall back to the executor defaults.
type SSHExecutor struct {
	// DefaultUser is used when a node does not name a login user.
	DefaultUser string

	// DefaultKeyPath is used when a node does not name a private key.
	DefaultKeyPath string

	// DialTimeout bounds connection establishment. The per-command
	// deadline comes from the caller's context.
	DialTimeout time.Duration
}

// NewSSHExecutor creates an SSH executor with the given connection defaults.
func NewSSHExecutor(user, keyPath string) *SSHExecutor {
	return &SSHExecutor{
		DefaultUser:    user,
		DefaultKeyPath: keyPath,
		DialTimeout:    10 * time.Second,
	}
}

// Execute runs the command on the node and collects its output. Transport
// failures (dial, session setup, context deadline) are returned as errors;
// a command that ran and exited non-zero is returned with its exit code
// and a nil error.
func (e *SSHExecutor) Execute(ctx context.Context, node inventory.Node, cmd Command) (Result, error) {
	client, err := e.dial(ctx, node)
	if err != nil {
		return Result{}, err
	}
	defer client.Close()

	// Tear the connection down if the context expires mid-command so the
	// session read below unblocks. The remote process is not killed.
	watchdone := make(chan struct{})
	defer close(watchdone)
	go func() {
		select {
		case <-ctx.Done():
			_ = client.Close()
		case <-watchdone:
		}
	}()

	session, err := client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("ssh session to %s: %w", node.Address, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if cmd.Stdin != "" {
		session.Stdin = strings.NewReader(cmd.Stdin)
	}

	err = session.Run(shellJoin(cmd.Argv))
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			// The command ran; report the exit status, not an error.
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		if ctx.Err() != nil {
			return res, fmt.Errorf("command on %s: %w", node.Address, ctx.Err())
		}
		return res, fmt.Errorf("command on %s: %w", node.Address, err)
	}

	return res, nil
}

func (e *SSHExecutor) dial(ctx context.Context, node inventory.Node) (*ssh.Client, error) {
	keyPath := node.SSHKeyPath
	if keyPath == "" {
		keyPath = e.DefaultKeyPath
	}
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read ssh key for %s: %w", node.Address, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key for %s: %w", node.Address, err)
	}

	user := node.User
	if user == "" {
		user = e.DefaultUser
	}
	port := node.Port
	if port == 0 {
		port = defaultSSHPort
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // host keys are not pinned for freshly provisioned machines
		Timeout:         e.DialTimeout,
	}

	addr := net.JoinHostPort(node.Address, fmt.Sprintf("%d", port))
	dialer := net.Dialer{Timeout: e.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// shellJoin renders an argv as a single command line with each argument
// single-quoted, so remote shells never interpret payload content.
func shellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}
