// Package errors defines the failure taxonomy for environment and server
// lifecycle operations. Each kind carries the diagnostic payload needed to
// present troubleshooting guidance; presentation itself lives in
// presentation.go so callers can stay free of UI concerns.
package errors

import stderr "errors"

// New returns an error that formats as the given text.
// Each call to New returns a distinct error value even if the text is identical.
func New(msg string) error {
	return stderr.New(msg)
}

var (
	// ErrOperationCancelled reports that the caller cancelled an in-flight
	// install or start before it reached a terminal state.
	ErrOperationCancelled = New("operation cancelled")
)

// IsCancelled reports whether the error chain contains a cancellation.
func IsCancelled(e error) bool {
	return stderr.Is(e, ErrOperationCancelled)
}
