// Package adapter publishes worker session notifications to downstream
// systems.
//
// A daemon worker publishes one SessionCompletedEvent after each session.
// Publishing is best effort: failures are logged by the caller and never
// change the session outcome.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventTypeSessionCompleted is the event type of SessionCompletedEvent.
const EventTypeSessionCompleted = "session_completed"

// SessionCompletedEvent is the payload published when a session ends.
type SessionCompletedEvent struct {
	EventType  string `json:"event_type"`
	SessionID  string `json:"session_id"`
	WorkerID   string `json:"worker_id,omitempty"`
	Partition  int    `json:"partition"`
	Outcome    string `json:"outcome"`
	Phase      string `json:"phase,omitempty"`
	Message    string `json:"message,omitempty"`
	ExitCode   int    `json:"exit_code"`
	Reusable   bool   `json:"reusable"`
	RecordsIn  int64  `json:"records_in"`
	RecordsOut int64  `json:"records_out"`
	DurationMs int64  `json:"duration_ms"`
	Timestamp  string `json:"timestamp"` // RFC 3339
}

// Adapter publishes session events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation.
	Publish(ctx context.Context, event *SessionCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry. Each further retry
// doubles it.
const BaseBackoff = 500 * time.Millisecond

// Backoff returns the delay before retry attempt i (i >= 1).
func Backoff(i int) time.Duration {
	return time.Duration(1<<uint(i-1)) * BaseBackoff
}

// ErrPermanent marks an error that must not be retried.
var ErrPermanent = errors.New("non-retriable")

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. It stops early when fn returns an error wrapping ErrPermanent
// or when ctx is done. name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, fn func(ctx context.Context) error) error {
	attempts := 1 + retries
	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}
		if i > 0 {
			timer := time.NewTimer(Backoff(i))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) {
			return fmt.Errorf("%s: %w", name, lastErr)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
