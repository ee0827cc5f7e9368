package session

import "errors"

// Sentinel errors for lifecycle operations.
var (
	// ErrInvalidTransition is returned when a lifecycle operation is not
	// valid in the session's current state. The state is left unchanged.
	ErrInvalidTransition = errors.New("session: invalid state transition")

	// ErrSessionFinalized is returned by any mutating operation on a
	// session that has completed or is completing.
	ErrSessionFinalized = errors.New("session: session is finalized")

	// ErrUnknownAgent is returned by force invocation with an id that is
	// not in the roster.
	ErrUnknownAgent = errors.New("session: unknown agent")

	// ErrAnalysisNotReady is returned when the analysis is requested
	// before the session has been ended.
	ErrAnalysisNotReady = errors.New("session: analysis not yet available")

	// ErrNotFound is returned by registry lookups for unknown ids.
	ErrNotFound = errors.New("session: not found")
)
