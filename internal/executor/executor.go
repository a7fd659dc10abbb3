// Package executor defines how commands reach remote nodes.
//
// The orchestration core depends only on the Remote interface; the actual
// transport (SSH here, anything else elsewhere) is an implementation
// detail. Commands are structured argument vectors, never interpolated
// shell strings.
package executor

import (
	"context"
	"strings"

	"github.com/kubeboot/kubeboot/internal/inventory"
)

// Command is one remote invocation. Argv is passed through verbatim;
// callers are responsible for keeping commands idempotent so that a stage
// can safely run more than once.
type Command struct {
	// Argv is the program and its arguments.
	Argv []string

	// Stdin is fed to the remote process, if non-empty. Opaque payloads
	// (load balancer config bodies, manifests) travel here.
	Stdin string

	// Sensitive marks commands that embed secrets (join tokens). The
	// argv of a sensitive command is never logged verbatim.
	Sensitive bool
}

// String renders the command for logs, redacting sensitive payloads.
func (c Command) String() string {
	if c.Sensitive {
		if len(c.Argv) > 0 {
			return c.Argv[0] + " [redacted]"
		}
		return "[redacted]"
	}
	return strings.Join(c.Argv, " ")
}

// Result is the outcome of a command that actually ran on the node.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Remote executes commands on cluster nodes.
//
// A non-nil error means the command could not be delivered or its result
// could not be collected (dial failure, broken session, deadline). A
// command that ran and exited non-zero is reported through
// Result.ExitCode with a nil error; that distinction drives retry
// classification in the stage runner.
type Remote interface {
	Execute(ctx context.Context, node inventory.Node, cmd Command) (Result, error)
}
