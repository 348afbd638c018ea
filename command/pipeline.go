package command

import (
	"fmt"

	"github.com/cite-sa/MobiusCore/ipc"
)

// Pipeline is a compiled command, ready to run over one partition.
type Pipeline struct {
	input     ipc.Encoding
	output    ipc.Encoding
	transform Transform
	stages    int
}

// InputEncoding returns the encoding of input records.
func (p *Pipeline) InputEncoding() ipc.Encoding { return p.input }

// OutputEncoding returns the encoding of output records.
func (p *Pipeline) OutputEncoding() ipc.Encoding { return p.output }

// Stages returns the number of compiled stages.
func (p *Pipeline) Stages() int { return p.stages }

// Run returns the lazily evaluated output of the pipeline over in.
func (p *Pipeline) Run(tc *TaskContext, in Iterator) Iterator {
	return p.transform(tc, in)
}

// Compile resolves the stages of c against reg.
func Compile(c *Command, reg *Registry) (*Pipeline, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	transforms := make([]Transform, 0, len(c.Stages))
	for i, st := range c.Stages {
		t, err := compileStage(i, st, reg)
		if err != nil {
			return nil, err
		}
		transforms = append(transforms, t)
	}
	return &Pipeline{
		input:     c.InputEncoding(),
		output:    c.OutputEncoding(),
		transform: Chain(transforms...),
		stages:    len(transforms),
	}, nil
}

func compileStage(i int, st Stage, reg *Registry) (Transform, error) {
	switch st.Kind {
	case KindMap:
		fn, err := lookup[MapFunc](reg, st.Func, "map")
		if err != nil {
			return nil, err
		}
		return mapStage(i, st, fn), nil
	case KindFilter:
		fn, err := lookup[FilterFunc](reg, st.Func, "filter")
		if err != nil {
			return nil, err
		}
		return filterStage(i, st, fn), nil
	case KindFlatMap:
		fn, err := lookup[FlatMapFunc](reg, st.Func, "flat_map")
		if err != nil {
			return nil, err
		}
		return flatMapStage(i, st, fn), nil
	case KindReduce:
		fn, err := lookup[ReduceFunc](reg, st.Func, "reduce")
		if err != nil {
			return nil, err
		}
		return reduceStage(i, st, fn), nil
	case KindMapPartitions:
		fn, err := lookup[PartitionFunc](reg, st.Func, "map_partitions")
		if err != nil {
			return nil, err
		}
		return partitionStage(i, st, fn), nil
	case KindTake:
		n, err := st.Args.Int("n")
		if err != nil {
			return nil, malformed("take: %v", err)
		}
		if n < 0 {
			return nil, malformed("take: negative n %d", n)
		}
		return takeStage(n), nil
	case KindMapWithState:
		return compileMapWithState(i, st, reg)
	case KindMappedOutput:
		return mappedOutputStage(i), nil
	case KindStateSnapshot:
		return snapshotStage(i), nil
	default:
		return nil, malformed("unknown stage kind %q", st.Kind)
	}
}

// next pulls one record from in; ok is false at the end of input.
func next(in Iterator) (any, bool, error) {
	if in.Next() {
		return in.Record(), true, nil
	}
	return nil, false, in.Err()
}

func mapStage(i int, st Stage, fn MapFunc) Transform {
	return func(tc *TaskContext, in Iterator) Iterator {
		return pull(func() (any, bool, error) {
			rec, ok, err := next(in)
			if !ok {
				return nil, false, err
			}
			out, err := invoke(st.Func, i, func() (any, error) { return fn(tc, st.Args, rec) })
			return out, err == nil, err
		})
	}
}

func filterStage(i int, st Stage, fn FilterFunc) Transform {
	return func(tc *TaskContext, in Iterator) Iterator {
		return pull(func() (any, bool, error) {
			for {
				rec, ok, err := next(in)
				if !ok {
					return nil, false, err
				}
				keep, err := invoke(st.Func, i, func() (bool, error) { return fn(tc, st.Args, rec) })
				if err != nil {
					return nil, false, err
				}
				if keep {
					return rec, true, nil
				}
			}
		})
	}
}

func flatMapStage(i int, st Stage, fn FlatMapFunc) Transform {
	return func(tc *TaskContext, in Iterator) Iterator {
		var pending []any
		return pull(func() (any, bool, error) {
			for len(pending) == 0 {
				rec, ok, err := next(in)
				if !ok {
					return nil, false, err
				}
				pending, err = invoke(st.Func, i, func() ([]any, error) { return fn(tc, st.Args, rec) })
				if err != nil {
					return nil, false, err
				}
			}
			rec := pending[0]
			pending = pending[1:]
			return rec, true, nil
		})
	}
}

// reduceStage folds the partition into one record. Empty input yields
// no output.
func reduceStage(i int, st Stage, fn ReduceFunc) Transform {
	return func(tc *TaskContext, in Iterator) Iterator {
		done := false
		return pull(func() (any, bool, error) {
			if done {
				return nil, false, nil
			}
			done = true
			acc, ok, err := next(in)
			if !ok {
				return nil, false, err
			}
			for {
				rec, ok, err := next(in)
				if err != nil {
					return nil, false, err
				}
				if !ok {
					return acc, true, nil
				}
				acc, err = invoke(st.Func, i, func() (any, error) { return fn(tc, st.Args, acc, rec) })
				if err != nil {
					return nil, false, err
				}
			}
		})
	}
}

func partitionStage(i int, st Stage, fn PartitionFunc) Transform {
	return func(tc *TaskContext, in Iterator) Iterator {
		var out Iterator
		return pull(func() (any, bool, error) {
			if out == nil {
				it, err := invoke(st.Func, i, func() (Iterator, error) { return fn(tc, st.Args, in) })
				if err != nil {
					return nil, false, err
				}
				if it == nil {
					it = Empty()
				}
				out = it
			}
			return next(out)
		})
	}
}

// takeStage stops pulling after n records. Input left unread is the
// caller's to drain.
func takeStage(n int64) Transform {
	return func(_ *TaskContext, in Iterator) Iterator {
		var taken int64
		return pull(func() (any, bool, error) {
			if taken >= n {
				return nil, false, nil
			}
			rec, ok, err := next(in)
			if ok {
				taken++
			}
			return rec, ok, err
		})
	}
}

func stageError(i int, kind StageKind, err error) error {
	return fmt.Errorf("stage %d (%s): %w", i, kind, err)
}
