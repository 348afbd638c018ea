// Package broadcast holds read-only broadcast values shared with user
// functions.
//
// The host announces broadcast variables in the session header as
// (id, path) adds and id removes. Values are msgpack documents read from
// the path on first lookup. A long-lived worker keeps one Registry across
// sessions so values stay loaded until the host removes them.
package broadcast

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/cite-sa/MobiusCore/ipc"
)

// ErrUnknownBroadcast is returned for ids that were removed or never added.
var ErrUnknownBroadcast = errors.New("unknown broadcast variable")

// Loader reads the value stored at path.
type Loader func(path string) (any, error)

// FileLoader reads a msgpack document from path.
func FileLoader(path string) (any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ipc.UnmarshalValue(b)
}

type entry struct {
	path  string
	once  sync.Once
	value any
	err   error
}

// Registry maps broadcast ids to lazily loaded values. It is safe for
// concurrent use by sessions of the same worker.
type Registry struct {
	mu      sync.RWMutex
	entries map[int64]*entry
	loader  Loader
}

// Option configures a Registry.
type Option func(*Registry)

// WithLoader replaces the file loader.
func WithLoader(l Loader) Option {
	return func(r *Registry) { r.loader = l }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[int64]*entry),
		loader:  FileLoader,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers id with the file that holds its value. Re-adding an id
// replaces it and drops any loaded value.
func (r *Registry) Add(id int64, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &entry{path: path}
}

// Put registers an already-materialized value.
func (r *Registry) Put(id int64, value any) {
	e := &entry{}
	e.once.Do(func() { e.value = value })
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = e
}

// Remove evicts id. It reports whether id was present.
func (r *Registry) Remove(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	return ok
}

// Value returns the value of id, loading it on first use.
func (r *Registry) Value(id int64) (any, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBroadcast, id)
	}
	e.once.Do(func() {
		e.value, e.err = r.loader(e.path)
	})
	if e.err != nil {
		return nil, fmt.Errorf("load broadcast %d from %s: %w", id, e.path, e.err)
	}
	return e.value, nil
}

// Len returns the number of registered broadcasts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// WriteFile stores value at path in the format FileLoader reads.
func WriteFile(path string, value any) error {
	b, err := ipc.MarshalValue(value)
	if err != nil {
		return fmt.Errorf("encode broadcast value: %w", err)
	}
	return os.WriteFile(path, b, 0o600)
}

// EncodeRemove returns the wire id announcing the removal of id.
func EncodeRemove(id int64) int64 {
	return -(id + 1)
}

// DecodeID interprets a wire id: non-negative ids are adds, negative ids
// are removes of -(id+1).
func DecodeID(wire int64) (id int64, remove bool) {
	if wire >= 0 {
		return wire, false
	}
	return -wire - 1, true
}
