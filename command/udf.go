package command

import (
	"fmt"

	"github.com/cite-sa/MobiusCore/ipc"
	"github.com/cite-sa/MobiusCore/sqltype"
	"github.com/cite-sa/MobiusCore/types"
)

type scalarStep struct {
	name string
	args Args
	fn   ScalarFunc
}

type udfColumn struct {
	offsets    []int
	steps      []scalarStep
	returnType sqltype.DataType
}

// CompileUdf resolves a UDF batch. Every stage of every chained command
// is a scalar function; MapFuncs are accepted as one-argument scalars.
// Input rows default to row encoding and output to pickling.
func CompileUdf(b *UdfBatch, reg *Registry) (*Pipeline, error) {
	if len(b.Entries) == 0 {
		return nil, malformed("udf batch has no entries")
	}

	columns := make([]udfColumn, len(b.Entries))
	for i, entry := range b.Entries {
		col := udfColumn{offsets: entry.ArgOffsets}
		for _, c := range entry.Chain {
			if err := c.validate(); err != nil {
				return nil, err
			}
			for _, st := range c.Stages {
				fn, err := reg.scalar(st.Func)
				if err != nil {
					return nil, err
				}
				col.steps = append(col.steps, scalarStep{name: st.Func, args: st.Args, fn: fn})
			}
		}
		if len(col.steps) == 0 {
			return nil, malformed("udf entry %d has no functions", i)
		}
		if raw, ok := col.steps[len(col.steps)-1].args["return_type"]; ok {
			s, ok := raw.(string)
			if !ok {
				return nil, malformed("udf entry %d: return_type is %T", i, raw)
			}
			dt, err := sqltype.Parse(s)
			if err != nil {
				return nil, malformed("udf entry %d: %v", i, err)
			}
			col.returnType = dt
		}
		columns[i] = col
	}

	input, output := b.Encodings()
	return &Pipeline{
		input:     input,
		output:    output,
		transform: udfTransform(columns),
		stages:    len(columns),
	}, nil
}

// Encodings returns the data encodings of the batch, taken from its first
// command: rows in and pickled values out unless that command says
// otherwise.
func (b *UdfBatch) Encodings() (in, out ipc.Encoding) {
	in = ipc.Encoding{Mode: types.ModeRow}
	out = ipc.Encoding{Mode: types.ModePickling}
	if len(b.Entries) == 0 || len(b.Entries[0].Chain) == 0 {
		return in, out
	}
	first := b.Entries[0].Chain[0]
	if e := first.InputEncoding(); e.Mode != types.ModeNone {
		in = e
	}
	if e := first.OutputEncoding(); e.Mode != types.ModeNone {
		out = e
	}
	return in, out
}

func udfTransform(columns []udfColumn) Transform {
	return func(tc *TaskContext, in Iterator) Iterator {
		return pull(func() (any, bool, error) {
			rec, ok, err := next(in)
			if !ok {
				return nil, false, err
			}
			row, ok := rec.([]any)
			if !ok {
				return nil, false, fmt.Errorf("udf input record %T is not a row", rec)
			}
			out := make([]any, len(columns))
			for i, col := range columns {
				v, err := col.apply(tc, i, row)
				if err != nil {
					return nil, false, err
				}
				out[i] = v
			}
			return out, true, nil
		})
	}
}

func (col *udfColumn) apply(tc *TaskContext, entry int, row []any) (any, error) {
	values := make([]any, len(col.offsets))
	for j, off := range col.offsets {
		if off < 0 || off >= len(row) {
			return nil, fmt.Errorf("udf %d: argument offset %d out of range for row of %d", entry, off, len(row))
		}
		values[j] = row[off]
	}

	var v any
	for k, step := range col.steps {
		var err error
		v, err = invoke(step.name, k, func() (any, error) { return step.fn(tc, step.args, values) })
		if err != nil {
			return nil, err
		}
		values = []any{v}
	}
	if col.returnType != nil {
		coerced, err := sqltype.Coerce(col.returnType, v)
		if err != nil {
			return nil, fmt.Errorf("udf %d: %w", entry, err)
		}
		v = coerced
	}
	return v, nil
}
