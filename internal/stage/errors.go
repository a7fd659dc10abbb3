package stage

import "fmt"

// TransientError is a transport-level failure (dial, broken session,
// attempt timeout). Transient failures are retried with backoff.
type TransientError struct {
	Node  string
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure of %s on %s: %v", e.Stage, e.Node, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *TransientError) Unwrap() error { return e.Err }

// LogicalError is a command-reported failure: the stage command ran and
// exited non-zero. Logical failures are never retried, so real faults are
// not masked by re-execution.
type LogicalError struct {
	Node     string
	Stage    string
	ExitCode int
	Output   string
}

// Error implements the error interface.
func (e *LogicalError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s on %s exited %d", e.Stage, e.Node, e.ExitCode)
	}
	return fmt.Sprintf("%s on %s exited %d: %s", e.Stage, e.Node, e.ExitCode, e.Output)
}

// BlockedError marks a stage that could not run because a prerequisite
// node or stage never succeeded. Recorded, never retried.
type BlockedError struct {
	Node   string
	Stage  string
	Reason string
}

// Error implements the error interface.
func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s on %s blocked: %s", e.Stage, e.Node, e.Reason)
}
