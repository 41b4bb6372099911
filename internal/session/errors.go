// Package session – sentinel errors
//
// Centralized error values raised by the Registry. Callers are expected to
// match them with errors.Is.
package session

import "errors"

var (
	// ErrSessionNotFound indicates the referenced session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDuplicateActiveSession indicates a session is already active for
	// the same room/participant pair.
	ErrDuplicateActiveSession = errors.New("active session already exists for room and participant")

	// ErrSessionAlreadyEnded indicates the session was already closed,
	// either explicitly or by the idle sweeper.
	ErrSessionAlreadyEnded = errors.New("session already ended")

	// ErrInvalidStateTransition indicates a web-search permission request
	// that is illegal in the session's current permission state.
	ErrInvalidStateTransition = errors.New("invalid search permission transition")

	// ErrNoPendingPermissionRequest indicates a permission resolution with
	// no outstanding request to resolve.
	ErrNoPendingPermissionRequest = errors.New("no pending search permission request")
)
