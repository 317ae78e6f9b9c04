package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
)

// ErrClosed is returned by a Manager after Close.
var ErrClosed = errors.New("store: manager closed")

// ConnectionError reports that the initial connect and probe failed.
type ConnectionError struct {
	Addr     string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s failed after %d attempts: %v", e.Addr, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// StoreError is the error surfaced by Execute once retries are spent or the
// failure was not worth retrying.
type StoreError struct {
	Op        string
	Attempts  int
	Transient bool
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

var transientReplyPrefixes = []string{
	"LOADING", "TRYAGAIN", "CLUSTERDOWN", "MASTERDOWN", "READONLY", "BUSY",
}

// IsTransient reports whether err is a network or server-state failure that
// may succeed on retry. redis.Nil and context cancellation are never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, redis.ErrClosed) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	msg := err.Error()
	if strings.Contains(msg, "connection pool timeout") {
		return true
	}
	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		for _, p := range transientReplyPrefixes {
			if strings.HasPrefix(msg, p) {
				return true
			}
		}
	}
	return false
}
