package cache

import (
	"errors"
	"fmt"
)

// ErrInvalidKey is returned for an unknown category or malformed parts.
var ErrInvalidKey = errors.New("invalid cache key")

// CacheError is a non-fatal cache failure. Callers treat it as a miss.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }
