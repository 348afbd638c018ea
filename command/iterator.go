package command

// Iterator is a forward-only pull over records. After Next returns
// false, Err reports why.
//
// ipc.RecordReader satisfies Iterator.
type Iterator interface {
	Next() bool
	Record() any
	Err() error
}

// pullIter adapts a next function to Iterator. next returns ok=false at
// the end of input.
type pullIter struct {
	next func() (rec any, ok bool, err error)
	rec  any
	err  error
	done bool
}

func pull(next func() (any, bool, error)) *pullIter {
	return &pullIter{next: next}
}

func (it *pullIter) Next() bool {
	if it.done {
		return false
	}
	rec, ok, err := it.next()
	if err != nil || !ok {
		it.err = err
		it.done = true
		it.rec = nil
		return false
	}
	it.rec = rec
	return true
}

func (it *pullIter) Record() any { return it.rec }

func (it *pullIter) Err() error { return it.err }

// FromSlice iterates over records.
func FromSlice(records []any) Iterator {
	i := 0
	return pull(func() (any, bool, error) {
		if i >= len(records) {
			return nil, false, nil
		}
		rec := records[i]
		i++
		return rec, true, nil
	})
}

// Empty returns an iterator with no records.
func Empty() Iterator {
	return FromSlice(nil)
}

// Collect drains it into a slice.
func Collect(it Iterator) ([]any, error) {
	var out []any
	for it.Next() {
		out = append(out, it.Record())
	}
	return out, it.Err()
}

// Transform is one lazy step of a pipeline.
type Transform func(tc *TaskContext, in Iterator) Iterator

// Chain composes transforms left to right: Chain(f, g)(x) == g(f(x)).
func Chain(transforms ...Transform) Transform {
	return func(tc *TaskContext, in Iterator) Iterator {
		out := in
		for _, t := range transforms {
			out = t(tc, out)
		}
		return out
	}
}
