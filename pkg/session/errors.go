package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSession is returned for an empty or malformed session id.
	ErrInvalidSession = errors.New("invalid session id")
	// ErrInvalidMessage is returned when a message lacks a sender or has an
	// unknown type.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrInvalidTTL is returned by SetTTL for a non-positive duration.
	ErrInvalidTTL = errors.New("ttl must be positive")
	// ErrNotFound is returned when a session has no metadata.
	ErrNotFound = errors.New("session not found")
	// ErrSessionActive is returned by DeleteIdle when the session has been
	// written to since the cutoff.
	ErrSessionActive = errors.New("session active since cutoff")
)

// StorageError is a failure of the session log surfaced to callers.
type StorageError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *StorageError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("session %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("session %s %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, SessionID: id, Err: err}
}
