// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package recovery

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionExpired means the recovery session is missing or its TTL
	// elapsed. Callers start over with Begin.
	ErrSessionExpired = errors.New("recovery session expired")

	// ErrInvalidUsername covers unknown and filtered usernames.
	ErrInvalidUsername = errors.New("invalid username")
	ErrInactiveAccount = errors.New("account is inactive")
	ErrWrongAnswer     = errors.New("wrong security answer")

	// ErrThrottled is returned for every submission to a locked stage.
	ErrThrottled = errors.New("too many attempts")

	ErrAccessDenied = errors.New("access denied")
	ErrPINMismatch  = errors.New("pins do not match")

	ErrUsernameNotVerified = errors.New("username stage not passed")

	// ErrCredentialChanged is returned by a CredentialStore when the password
	// changed since the user was loaded.
	ErrCredentialChanged = errors.New("credential changed concurrently")

	// ErrUserNotFound is returned by a CredentialStore for unknown usernames.
	ErrUserNotFound = errors.New("user not found")

	// ErrSessionNotFound and ErrVersionConflict are returned by SessionStore
	// implementations.
	ErrSessionNotFound = errors.New("recovery session not found")
	ErrVersionConflict = errors.New("recovery session was modified concurrently")
)

// ValidationError reports a malformed form field. Param carries the rule's
// argument, such as the limit of a max rule.
type ValidationError struct {
	Field string
	Rule  string
	Param string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: failed %q", e.Field, e.Rule)
}

// Kind groups errors by how callers should respond to them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is shown inline and may be retried freely.
	KindValidation
	// KindAuthentication is shown inline and counts against the throttle.
	KindAuthentication
	// KindAccessDenied is terminal for the request.
	KindAccessDenied
	// KindThrottled lasts until the session expires. A session too contended
	// to update is reported the same way.
	KindThrottled
	// KindSessionExpired restarts the flow with a new session.
	KindSessionExpired
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAccessDenied:
		return "access_denied"
	case KindThrottled:
		return "throttled"
	case KindSessionExpired:
		return "session_expired"
	}
	return "unknown"
}

// Classify maps an error returned by the Engine to its Kind.
func Classify(err error) Kind {
	var vErr *ValidationError
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &vErr), errors.Is(err, ErrPINMismatch):
		return KindValidation
	case errors.Is(err, ErrInvalidUsername),
		errors.Is(err, ErrInactiveAccount),
		errors.Is(err, ErrWrongAnswer):
		return KindAuthentication
	case errors.Is(err, ErrThrottled), errors.Is(err, ErrVersionConflict):
		return KindThrottled
	case errors.Is(err, ErrAccessDenied):
		return KindAccessDenied
	case errors.Is(err, ErrSessionExpired):
		return KindSessionExpired
	}
	return KindUnknown
}
