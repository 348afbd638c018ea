// Package state implements MapWithState: keyed state carried across
// batches with an optional idle timeout.
//
// Each batch consumes the previous batch's Record and produces the next
// one. For every key that received values the update function runs once;
// keys that have been idle longer than the timeout are offered one last
// call with IsTimingOut() == true and then evicted. All time is logical
// (unix milliseconds supplied by the caller); the engine never reads the
// wall clock.
package state

import "errors"

var (
	// ErrNoState is returned by State.Get when the key has no state.
	ErrNoState = errors.New("state does not exist")
	// ErrRecordConsumed is returned when a Record is used after its state
	// map moved into a newer record.
	ErrRecordConsumed = errors.New("state batch record already consumed")
)

// State is the handle an update function uses to read and change the
// state of one key during one batch.
type State[S any] struct {
	value     S
	exists    bool
	updated   bool
	removed   bool
	timingOut bool
}

// Exists reports whether the key currently has state.
func (s *State[S]) Exists() bool {
	return s.exists
}

// Get returns the current state. It fails with ErrNoState when absent.
func (s *State[S]) Get() (S, error) {
	if !s.exists {
		var zero S
		return zero, ErrNoState
	}
	return s.value, nil
}

// Update replaces the state.
func (s *State[S]) Update(v S) {
	s.value = v
	s.exists = true
	s.updated = true
	s.removed = false
}

// Remove deletes the state.
func (s *State[S]) Remove() {
	var zero S
	s.value = zero
	s.exists = false
	s.updated = false
	s.removed = true
}

// IsTimingOut reports whether this call is the final one for an idle key.
func (s *State[S]) IsTimingOut() bool {
	return s.timingOut
}
