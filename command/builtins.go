package command

import (
	"fmt"
	"strings"

	"github.com/cite-sa/MobiusCore/accumulator"
	"github.com/cite-sa/MobiusCore/ipc"
	"github.com/cite-sa/MobiusCore/state"
)

// DefaultRegistry returns a registry holding the built-in functions.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterMap("identity", identity)
	r.RegisterMap("to_upper", toUpper)
	r.RegisterFlatMap("split_words", splitWords)
	r.RegisterMap("pair_with_one", pairWithOne)
	r.RegisterMap("first_of_pair", firstOfPair)
	r.RegisterReduce("sum", sum)
	r.RegisterMap("count_into_accumulator", countIntoAccumulator)
	r.RegisterMap("broadcast_lookup", broadcastLookup)
	r.RegisterMap("multiply", multiply)
	r.RegisterPartition("literal_list", literalList)
	r.RegisterPartition("mapped_output", func(tc *TaskContext, _ Args, in Iterator) (Iterator, error) {
		return mappedOutputStage(0)(tc, in), nil
	})
	r.RegisterPartition("state_snapshots", func(tc *TaskContext, _ Args, in Iterator) (Iterator, error) {
		return snapshotStage(0)(tc, in), nil
	})
	r.RegisterState("running_sum", runningSum)
	return r
}

func identity(_ *TaskContext, _ Args, rec any) (any, error) {
	return rec, nil
}

func toUpper(_ *TaskContext, _ Args, rec any) (any, error) {
	switch v := rec.(type) {
	case string:
		return strings.ToUpper(v), nil
	case []byte:
		return []byte(strings.ToUpper(string(v))), nil
	}
	return nil, fmt.Errorf("to_upper: want text, got %T", rec)
}

func splitWords(_ *TaskContext, _ Args, rec any) ([]any, error) {
	var text string
	switch v := rec.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return nil, fmt.Errorf("split_words: want text, got %T", rec)
	}
	fields := strings.Fields(text)
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = f
	}
	return out, nil
}

func pairWithOne(_ *TaskContext, _ Args, rec any) (any, error) {
	return ipc.Pair{Key: rec, Value: int64(1)}, nil
}

func firstOfPair(_ *TaskContext, _ Args, rec any) (any, error) {
	p, ok := ipc.AsPair(rec)
	if !ok {
		return nil, errNotPair(rec)
	}
	return p.Key, nil
}

func sum(_ *TaskContext, _ Args, acc, rec any) (any, error) {
	return accumulator.Sum(ipc.Normalize(acc), ipc.Normalize(rec))
}

// countIntoAccumulator adds 1 to accumulator accumulator_id per record
// and passes the record through.
func countIntoAccumulator(tc *TaskContext, args Args, rec any) (any, error) {
	id, err := args.Int("accumulator_id")
	if err != nil {
		return nil, err
	}
	if err := tc.Accumulators.Accumulate(id, int64(1)); err != nil {
		return nil, err
	}
	return rec, nil
}

// broadcastLookup pairs a record with its entry in the map-valued
// broadcast broadcast_id, or with the whole value when it is not a map.
func broadcastLookup(tc *TaskContext, args Args, rec any) (any, error) {
	id, err := args.Int("broadcast_id")
	if err != nil {
		return nil, err
	}
	value, err := tc.Broadcasts.Value(id)
	if err != nil {
		return nil, err
	}
	if m, ok := value.(map[string]any); ok {
		key := rec
		if b, ok := rec.([]byte); ok {
			key = string(b)
		}
		return ipc.Pair{Key: rec, Value: m[fmt.Sprint(key)]}, nil
	}
	return ipc.Pair{Key: rec, Value: value}, nil
}

func multiply(_ *TaskContext, args Args, rec any) (any, error) {
	factor, ok := args["factor"]
	if !ok {
		return nil, fmt.Errorf("%w %q", errMissingArg, "factor")
	}
	switch f := ipc.Normalize(factor).(type) {
	case int64:
		switch v := ipc.Normalize(rec).(type) {
		case int64:
			return v * f, nil
		case float64:
			return v * float64(f), nil
		}
	case float64:
		switch v := ipc.Normalize(rec).(type) {
		case int64:
			return float64(v) * f, nil
		case float64:
			return v * f, nil
		}
	default:
		return nil, fmt.Errorf("multiply: factor is %T", factor)
	}
	return nil, fmt.Errorf("multiply: want number, got %T", rec)
}

// literalList ignores its input and yields args.values.
func literalList(_ *TaskContext, args Args, _ Iterator) (Iterator, error) {
	raw, ok := args["values"]
	if !ok {
		return nil, fmt.Errorf("%w %q", errMissingArg, "values")
	}
	values, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("literal_list: values is %T", raw)
	}
	return FromSlice(values), nil
}

// runningSum keeps the sum of every value seen for a key and returns
// (key, sum). A timing-out key reports its final sum.
func runningSum(key any, values []any, st *state.State[any]) (any, error) {
	var total any = int64(0)
	if st.Exists() {
		v, err := st.Get()
		if err != nil {
			return nil, err
		}
		total = v
	}
	if st.IsTimingOut() {
		return ipc.Pair{Key: key, Value: total}, nil
	}
	for _, v := range values {
		next, err := accumulator.Sum(ipc.Normalize(total), ipc.Normalize(v))
		if err != nil {
			return nil, err
		}
		total = next
	}
	st.Update(total)
	return ipc.Pair{Key: key, Value: total}, nil
}
