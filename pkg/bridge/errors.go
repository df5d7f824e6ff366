package bridge

import (
	"errors"
	"fmt"
)

// Sentinel errors for common session and bridge error conditions.
var (
	// ErrSessionClosed is returned when an operation is attempted on a closed session.
	ErrSessionClosed = errors.New("bridge: session closed")

	// ErrSessionNotFound is returned when a session ID does not exist.
	ErrSessionNotFound = errors.New("bridge: session not found")

	// ErrEventQueueFull is returned when the event queue is full and a frame is dropped.
	ErrEventQueueFull = errors.New("bridge: event queue full")

	// ErrInvalidHandshake is returned when the websocket handshake fails.
	ErrInvalidHandshake = errors.New("bridge: invalid handshake")

	// ErrMaxSessionsReached is returned when the maximum number of sessions is reached.
	ErrMaxSessionsReached = errors.New("bridge: max sessions reached")

	// ErrInvalidToken is returned when handshake token validation fails.
	ErrInvalidToken = errors.New("bridge: invalid token")

	// ErrNoConnection is returned when attempting to send on a detached session.
	ErrNoConnection = errors.New("bridge: no connection")

	// ErrBridgeClosed is returned when the bridge has been shut down.
	ErrBridgeClosed = errors.New("bridge: closed")
)

// SessionError wraps an error with session context for debugging.
type SessionError struct {
	SessionID string
	Op        string // Operation that failed
	Err       error  // Underlying error
}

// Error returns the error message with session context.
func (e *SessionError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("bridge: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("bridge: session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// NewSessionError creates a new SessionError.
func NewSessionError(sessionID, op string, err error) *SessionError {
	return &SessionError{
		SessionID: sessionID,
		Op:        op,
		Err:       err,
	}
}

// DispatchError wraps a panic that occurred in a dispatched closure.
type DispatchError struct {
	SessionID string
	Panic     any
	Stack     []byte
}

// Error returns the error message.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("bridge: dispatch panic in session %s: %v", e.SessionID, e.Panic)
}

// NewDispatchError creates a new DispatchError.
func NewDispatchError(sessionID string, panicVal any, stack []byte) *DispatchError {
	return &DispatchError{
		SessionID: sessionID,
		Panic:     panicVal,
		Stack:     stack,
	}
}
