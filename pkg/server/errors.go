package server

import (
	"errors"
	"fmt"
)

var (
	// ErrMaxSessionsReached is returned by Manager.Add at the session limit.
	ErrMaxSessionsReached = errors.New("server: session limit reached")

	// ErrDuplicateSession is returned by Manager.Add for a known session ID.
	ErrDuplicateSession = errors.New("server: duplicate session id")

	// ErrNoStore is returned by New when Deps.Store is nil.
	ErrNoStore = errors.New("server: no chat store")

	ErrUnknownFrame = errors.New("server: unknown frame type")
	ErrUnknownPref  = errors.New("server: unknown preference")
)

// SessionError reports a failed operation on one session.
type SessionError struct {
	SessionID string
	Op        string
	Err       error
}

func (e *SessionError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("server: %s session: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: %s session %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// NewSessionError wraps err as a failed op on the session.
func NewSessionError(sessionID, op string, err error) *SessionError {
	return &SessionError{SessionID: sessionID, Op: op, Err: err}
}
