package types

import (
	"errors"
	"fmt"
)

// SessionMeta identifies one worker session for logging and reporting.
type SessionMeta struct {
	// SessionID is a process-unique session identifier.
	SessionID string
	// Partition is the partition index read from the session header.
	// It is -1 until the header has been read.
	Partition int
	// PID is the worker process id.
	PID int
}

// Validate checks that the session identity is usable.
func (m *SessionMeta) Validate() error {
	if m.SessionID == "" {
		return errors.New("session_id must be non-empty")
	}
	if m.Partition < -1 {
		return fmt.Errorf("partition must be >= -1, got %d", m.Partition)
	}
	return nil
}

// OutcomeStatus is the final classification of a session.
type OutcomeStatus string

const (
	// OutcomeCompleted indicates the session reached END_OF_STREAM.
	OutcomeCompleted OutcomeStatus = "completed"
	// OutcomeFault indicates the session failed and reported an exception frame.
	OutcomeFault OutcomeStatus = "fault"
	// OutcomeTruncated indicates input closed before END_OF_DATA_SECTION.
	OutcomeTruncated OutcomeStatus = "truncated"
	// OutcomeCrash indicates the worker exited without a usable result.
	OutcomeCrash OutcomeStatus = "crash"
)

// SessionOutcome is the final outcome of a session.
type SessionOutcome struct {
	// Status is the outcome classification.
	Status OutcomeStatus
	// Message is a human-readable description.
	Message string
	// Phase is the session phase the failure occurred in, if any.
	Phase string
}
