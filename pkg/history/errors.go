package history

import "fmt"

// ChatHistoryError is the single error type callers of Service see. The
// root cause stays reachable through errors.Is and errors.As.
type ChatHistoryError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *ChatHistoryError) Error() string {
	return fmt.Sprintf("chat history %s %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *ChatHistoryError) Unwrap() error { return e.Err }

func wrap(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &ChatHistoryError{Op: op, SessionID: id, Err: err}
}
