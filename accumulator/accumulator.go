// Package accumulator holds the per-session accumulator registry.
//
// Functions add deltas by id while a session runs; at the end of the
// session every touched accumulator is reported to the host as an
// (id, value) pair. A registry is never shared between sessions.
package accumulator

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/cite-sa/MobiusCore/ipc"
)

// ErrIncompatibleDelta is returned when a delta cannot be combined with
// the current value.
var ErrIncompatibleDelta = errors.New("incompatible accumulator delta")

// CombineFunc merges a delta into the current value.
type CombineFunc func(current, delta any) (any, error)

// Entry is one reported accumulator. It encodes as a msgpack [id, value].
type Entry struct {
	ID    int64
	Value any
}

var (
	_ msgpack.CustomEncoder = Entry{}
	_ msgpack.CustomDecoder = (*Entry)(nil)
)

// EncodeMsgpack implements msgpack.CustomEncoder.
func (e Entry) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeInt(e.ID); err != nil {
		return err
	}
	return enc.Encode(e.Value)
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (e *Entry) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("accumulator entry: expected 2 elements, got %d", n)
	}
	if e.ID, err = dec.DecodeInt64(); err != nil {
		return err
	}
	v, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	e.Value = ipc.Normalize(v)
	return nil
}

// Registry tracks accumulator values for one session.
type Registry struct {
	mu      sync.Mutex
	values  map[int64]any
	combine map[int64]CombineFunc
	updates int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		values:  make(map[int64]any),
		combine: make(map[int64]CombineFunc),
	}
}

// Register sets a custom combine function for id. Ids without one use Sum.
func (r *Registry) Register(id int64, combine CombineFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.combine[id] = combine
}

// Accumulate combines delta into the value of id. The first delta for an
// id becomes its value.
func (r *Registry) Accumulate(id int64, delta any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.values[id]
	if !ok {
		r.values[id] = ipc.Normalize(delta)
		r.updates++
		return nil
	}
	combine := r.combine[id]
	if combine == nil {
		combine = Sum
	}
	next, err := combine(current, ipc.Normalize(delta))
	if err != nil {
		return fmt.Errorf("accumulator %d: %w", id, err)
	}
	r.values[id] = next
	r.updates++
	return nil
}

// Get returns the current value of id.
func (r *Registry) Get(id int64) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[id]
	return v, ok
}

// Touched returns every accumulator updated in this session, by id.
func (r *Registry) Touched() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.values))
	for id := range r.values {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Entry, len(ids))
	for i, id := range ids {
		out[i] = Entry{ID: id, Value: r.values[id]}
	}
	return out
}

// Updates returns the number of successful Accumulate calls.
func (r *Registry) Updates() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

// MarshalEntry encodes e for the end-of-session report.
func MarshalEntry(e Entry) ([]byte, error) {
	return ipc.MarshalValue(e)
}

// UnmarshalEntry decodes one reported accumulator.
func UnmarshalEntry(b []byte) (Entry, error) {
	var e Entry
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Sum is the default combine function: integer and float addition,
// string concatenation and list append.
func Sum(current, delta any) (any, error) {
	switch c := current.(type) {
	case int64:
		switch d := delta.(type) {
		case int64:
			return c + d, nil
		case float64:
			return float64(c) + d, nil
		}
	case float64:
		switch d := delta.(type) {
		case int64:
			return c + float64(d), nil
		case float64:
			return c + d, nil
		}
	case string:
		if d, ok := delta.(string); ok {
			return c + d, nil
		}
	case []any:
		if d, ok := delta.([]any); ok {
			return append(slices.Clone(c), d...), nil
		}
		return append(slices.Clone(c), delta), nil
	}
	return nil, fmt.Errorf("%w: %T += %T", ErrIncompatibleDelta, current, delta)
}
