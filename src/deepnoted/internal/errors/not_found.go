package errors

import (
	stderr "errors"
	"fmt"
)

// EnvironmentNotFoundError is a domain error for a missing live server.
type EnvironmentNotFoundError struct {
	ID string
}

// Error is an implementation of the error interface.
func (n *EnvironmentNotFoundError) Error() string {
	return fmt.Sprintf("no server tracked for environment %q", n.ID)
}

// NotFoundEnvironment returns the environment id and true if an
// EnvironmentNotFoundError is part of the error chain.
func NotFoundEnvironment(e error) (_ string, ok bool) {
	var nf *EnvironmentNotFoundError
	if !stderr.As(e, &nf) {
		return "", false
	}
	return nf.ID, true
}
