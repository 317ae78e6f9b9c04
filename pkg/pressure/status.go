package pressure

import (
	"fmt"
	"time"
)

// Status is a memory-pressure level.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusWarning   Status = "warning"
	StatusCritical  Status = "critical"
	StatusEmergency Status = "emergency"
)

// Urgent reports whether s calls for an immediate forced cleanup.
func (s Status) Urgent() bool {
	return s == StatusCritical || s == StatusEmergency
}

// ForcedCleanupAge is the cutoff used by a forced cleanup at any status.
const ForcedCleanupAge = time.Hour

// Thresholds are usage ratios at which each level starts.
type Thresholds struct {
	Warning   float64
	Critical  float64
	Emergency float64
}

// DefaultThresholds is 70%, 85% and 95%.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 0.70, Critical: 0.85, Emergency: 0.95}
}

// Validate requires 0 < warning < critical < emergency <= 1.
func (t Thresholds) Validate() error {
	if t.Warning <= 0 || t.Warning >= t.Critical || t.Critical >= t.Emergency || t.Emergency > 1 {
		return fmt.Errorf("memory thresholds must satisfy 0 < warning < critical < emergency <= 1, got %v/%v/%v",
			t.Warning, t.Critical, t.Emergency)
	}
	return nil
}

// Classify maps a usage ratio onto a status. Each threshold is inclusive.
func Classify(ratio float64, t Thresholds) Status {
	switch {
	case ratio >= t.Emergency:
		return StatusEmergency
	case ratio >= t.Critical:
		return StatusCritical
	case ratio >= t.Warning:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

// CleanupAge returns how long a session may sit idle before cleanup removes
// it. The age never grows as pressure rises.
func CleanupAge(s Status, sessionTTL time.Duration, force bool) time.Duration {
	if force {
		return ForcedCleanupAge
	}
	switch s {
	case StatusHealthy:
		return 2 * sessionTTL
	case StatusWarning:
		return sessionTTL
	default:
		return sessionTTL / 2
	}
}
