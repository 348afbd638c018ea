package command

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/cite-sa/MobiusCore/ipc"
	"github.com/cite-sa/MobiusCore/state"
)

// Args are the serializable parameters of a stage. Numbers are int64 or
// float64.
type Args map[string]any

var errMissingArg = errors.New("missing argument")

// Int returns an integer argument. Integral floats are accepted.
func (a Args) Int(name string) (int64, error) {
	v, ok := a[name]
	if !ok {
		return 0, fmt.Errorf("%w %q", errMissingArg, name)
	}
	switch n := ipc.Normalize(v).(type) {
	case int64:
		return n, nil
	case float64:
		if n == math.Trunc(n) {
			return int64(n), nil
		}
	}
	return 0, fmt.Errorf("argument %q: want integer, got %T", name, v)
}

// IntOr returns an integer argument, or def when it is absent.
func (a Args) IntOr(name string, def int64) (int64, error) {
	if _, ok := a[name]; !ok {
		return def, nil
	}
	return a.Int(name)
}

// Float returns a numeric argument as float64.
func (a Args) Float(name string) (float64, error) {
	v, ok := a[name]
	if !ok {
		return 0, fmt.Errorf("%w %q", errMissingArg, name)
	}
	switch n := ipc.Normalize(v).(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, fmt.Errorf("argument %q: want number, got %T", name, v)
}

// String returns a string argument.
func (a Args) String(name string) (string, error) {
	v, ok := a[name]
	if !ok {
		return "", fmt.Errorf("%w %q", errMissingArg, name)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	return "", fmt.Errorf("argument %q: want string, got %T", name, v)
}

// Function shapes a Registry holds.
type (
	// MapFunc turns one record into one record.
	MapFunc func(tc *TaskContext, args Args, rec any) (any, error)
	// FilterFunc keeps records it returns true for.
	FilterFunc func(tc *TaskContext, args Args, rec any) (bool, error)
	// FlatMapFunc turns one record into zero or more records.
	FlatMapFunc func(tc *TaskContext, args Args, rec any) ([]any, error)
	// ReduceFunc folds rec into acc.
	ReduceFunc func(tc *TaskContext, args Args, acc, rec any) (any, error)
	// PartitionFunc transforms a whole partition.
	PartitionFunc func(tc *TaskContext, args Args, in Iterator) (Iterator, error)
	// ScalarFunc computes one value from the selected columns of a row.
	ScalarFunc func(tc *TaskContext, args Args, values []any) (any, error)
	// StateFunc is a MapWithState update function over decoded values.
	StateFunc = state.UpdateFunc[any, any, any, any]
)

// Registry maps function names to implementations. A Registry is safe
// for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]any
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]any)}
}

func (r *Registry) register(name string, fn any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// RegisterMap registers a map function, replacing any function of the
// same name.
func (r *Registry) RegisterMap(name string, fn MapFunc) { r.register(name, fn) }

// RegisterFilter registers a filter function.
func (r *Registry) RegisterFilter(name string, fn FilterFunc) { r.register(name, fn) }

// RegisterFlatMap registers a flat-map function.
func (r *Registry) RegisterFlatMap(name string, fn FlatMapFunc) { r.register(name, fn) }

// RegisterReduce registers a reduce function.
func (r *Registry) RegisterReduce(name string, fn ReduceFunc) { r.register(name, fn) }

// RegisterPartition registers a whole-partition function.
func (r *Registry) RegisterPartition(name string, fn PartitionFunc) { r.register(name, fn) }

// RegisterScalar registers a UDF scalar function.
func (r *Registry) RegisterScalar(name string, fn ScalarFunc) { r.register(name, fn) }

// RegisterState registers a MapWithState update function.
func (r *Registry) RegisterState(name string, fn StateFunc) { r.register(name, fn) }

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// lookup resolves name to a function of type T.
func lookup[T any](r *Registry, name, kind string) (T, error) {
	var zero T
	raw, ok := r.get(name)
	if !ok {
		return zero, malformed("unknown function %q", name)
	}
	fn, ok := raw.(T)
	if !ok {
		return zero, malformed("function %q cannot be used as %s", name, kind)
	}
	return fn, nil
}

// scalar resolves name to a ScalarFunc, adapting a MapFunc to a
// single-argument scalar.
func (r *Registry) scalar(name string) (ScalarFunc, error) {
	raw, ok := r.get(name)
	if !ok {
		return nil, malformed("unknown function %q", name)
	}
	switch fn := raw.(type) {
	case ScalarFunc:
		return fn, nil
	case MapFunc:
		return func(tc *TaskContext, args Args, values []any) (any, error) {
			if len(values) != 1 {
				return nil, fmt.Errorf("map function takes 1 argument, got %d", len(values))
			}
			return fn(tc, args, values[0])
		}, nil
	}
	return nil, malformed("function %q cannot be used as a udf", name)
}
