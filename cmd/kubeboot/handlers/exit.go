package handlers

// Process exit codes.
const (
	// CodeRunFailed means the run completed but the cluster did not
	// fully converge.
	CodeRunFailed = 1
	// CodeConfigError means the configuration or state file could not
	// be loaded or validated; nothing was executed.
	CodeConfigError = 2
)

// ExitError carries the process exit code alongside the underlying error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }
