package session

import (
	"fmt"
	"time"
)

// SessionClosedError reports an attempt to add time to a closed ledger.
type SessionClosedError struct {
	Identity string
}

func (e *SessionClosedError) Error() string {
	return fmt.Sprintf("session ledger already closed: %s", e.Identity)
}

// MissingEngineError reports an operation on an empty engine container.
type MissingEngineError struct {
	Op string
}

func (e *MissingEngineError) Error() string {
	return fmt.Sprintf("no engine installed: %s", e.Op)
}

// SuspiciousDurationError reports a duration large enough to indicate a
// missed sleep event or a bug. Never clamped, always surfaced.
type SuspiciousDurationError struct {
	Identity string
	Duration time.Duration
	Limit    time.Duration
}

func (e *SuspiciousDurationError) Error() string {
	return fmt.Sprintf("suspicious duration for %s: %v exceeds %v", e.Identity, e.Duration, e.Limit)
}

// NegativeTimeError reports arithmetic that would drive a summary below
// zero.
type NegativeTimeError struct {
	Identity string
	Hours    float64
}

func (e *NegativeTimeError) Error() string {
	return fmt.Sprintf("negative time for %s: %.6f hours", e.Identity, e.Hours)
}

// ImpossibleStateError reports a pipeline state that the invariants rule
// out, such as a pulse for an identity with no summary row today.
type ImpossibleStateError struct {
	Identity string
	Detail   string
}

func (e *ImpossibleStateError) Error() string {
	return fmt.Sprintf("impossible state [%s]: %s", e.Identity, e.Detail)
}

// WayTooLongWaitError reports a store flush interval above the allowed
// maximum. Configuration error, caught at startup.
type WayTooLongWaitError struct {
	Interval time.Duration
	Max      time.Duration
}

func (e *WayTooLongWaitError) Error() string {
	return fmt.Sprintf("flush interval %v exceeds maximum %v", e.Interval, e.Max)
}
