package errors

import (
	stderr "errors"
	"fmt"
)

// VenvCreationError reports that creating a virtual environment failed, or
// that no interpreter existed at the expected location afterwards.
type VenvCreationError struct {
	Interpreter string
	VenvPath    string
	Stderr      string
}

// Error is an implementation of the error interface.
func (e *VenvCreationError) Error() string {
	return fmt.Sprintf("creating virtual environment at %q with %q failed", e.VenvPath, e.Interpreter)
}

// ToolkitInstallError reports that the toolkit package install ran but the
// installed module could not be imported or report a version.
type ToolkitInstallError struct {
	PackageSpec string
	VenvPath    string
	Stdout      string
	Stderr      string
}

// Error is an implementation of the error interface.
func (e *ToolkitInstallError) Error() string {
	return fmt.Sprintf("installing toolkit %q into %q failed", e.PackageSpec, e.VenvPath)
}

// ServerStartupError reports that a server process was spawned but an
// unexpected error occurred before it became healthy.
type ServerStartupError struct {
	EnvironmentID string
	Output        string
	Cause         error
}

// Error is an implementation of the error interface.
func (e *ServerStartupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("starting server for environment %q: %v", e.EnvironmentID, e.Cause)
	}
	return fmt.Sprintf("starting server for environment %q failed", e.EnvironmentID)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *ServerStartupError) Unwrap() error { return e.Cause }

// ServerTimeoutError reports that the health check never passed within the
// readiness bound.
type ServerTimeoutError struct {
	EnvironmentID string
	URL           string
	Timeout       string
	LastStderr    string
}

// Error is an implementation of the error interface.
func (e *ServerTimeoutError) Error() string {
	return fmt.Sprintf("server for environment %q at %s not ready after %s", e.EnvironmentID, e.URL, e.Timeout)
}

// PortExhaustionError reports that no free port was found within the
// allocation attempt bound.
type PortExhaustionError struct {
	Attempts int
	Excluded []int
}

// Error is an implementation of the error interface.
func (e *PortExhaustionError) Error() string {
	return fmt.Sprintf("no free port found after %d attempts (%d ports excluded)", e.Attempts, len(e.Excluded))
}

// IsStartupFailure reports whether the error chain contains any of the
// server startup failure kinds.
func IsStartupFailure(e error) bool {
	var st *ServerStartupError
	var to *ServerTimeoutError
	var pe *PortExhaustionError
	return stderr.As(e, &st) || stderr.As(e, &to) || stderr.As(e, &pe)
}
