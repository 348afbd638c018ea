package command

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cite-sa/MobiusCore/ipc"
	"github.com/cite-sa/MobiusCore/policy"
	"github.com/cite-sa/MobiusCore/state"
)

// overWire passes v through msgpack the way records cross the socket.
func overWire(t *testing.T, v any) any {
	t.Helper()
	b, err := ipc.MarshalValue(v)
	if err != nil {
		t.Fatalf("MarshalValue() error = %v", err)
	}
	out, err := ipc.UnmarshalValue(b)
	if err != nil {
		t.Fatalf("UnmarshalValue() error = %v", err)
	}
	return out
}

func stateStage(batchTime int64) Stage {
	return Stage{Kind: KindMapWithState, Func: "running_sum", Args: Args{
		"batch_time":     batchTime,
		"timeout_ms":     int64(5000),
		"num_partitions": int64(1),
	}}
}

func TestMapWithState_AcrossBatches(t *testing.T) {
	reg := DefaultRegistry()
	tc := NewTaskContext(0)

	first, err := run(t, reg, tc, []any{
		ipc.Pair{Key: "a", Value: int64(1)},
		[]any{"b", int64(2)},
		ipc.Pair{Key: []byte("a"), Value: int64(3)},
	}, stateStage(1000))
	if err != nil {
		t.Fatalf("batch 1 error = %v", err)
	}
	if len(first) != 1 || !state.IsWire(first[0]) {
		t.Fatalf("batch 1 output = %v, want one state batch record", first)
	}
	rec1, err := state.DecodeWire(overWire(t, first[0]))
	if err != nil {
		t.Fatalf("DecodeWire() error = %v", err)
	}
	wantOut1 := []any{[]any{"a", int64(4)}, []any{"b", int64(2)}}
	if diff := cmp.Diff(wantOut1, rec1.MappedOutput); diff != "" {
		t.Errorf("batch 1 mapped output mismatch (-want +got):\n%s", diff)
	}

	second, err := run(t, reg, tc, []any{
		overWire(t, first[0]),
		ipc.Pair{Key: "b", Value: int64(10)},
	}, stateStage(7000))
	if err != nil {
		t.Fatalf("batch 2 error = %v", err)
	}
	wire2 := overWire(t, second[0])

	mapped, err := run(t, reg, tc, []any{wire2}, Stage{Kind: KindMappedOutput})
	if err != nil {
		t.Fatalf("mapped_output error = %v", err)
	}
	wantMapped := []any{[]any{"b", int64(12)}, []any{"a", int64(4)}}
	if diff := cmp.Diff(wantMapped, mapped); diff != "" {
		t.Errorf("mapped output mismatch (-want +got):\n%s", diff)
	}

	snaps, err := run(t, reg, tc, []any{wire2}, Stage{Kind: KindStateSnapshot})
	if err != nil {
		t.Fatalf("state_snapshots error = %v", err)
	}
	if diff := cmp.Diff([]any{ipc.Pair{Key: "b", Value: int64(12)}}, snaps); diff != "" {
		t.Errorf("snapshots mismatch (-want +got):\n%s", diff)
	}
}

func TestMapWithState_RejectsNonPairs(t *testing.T) {
	_, err := run(t, DefaultRegistry(), NewTaskContext(0), []any{"loose"}, stateStage(1))
	if err == nil {
		t.Error("map_with_state accepted a non-pair record")
	}
}

func TestMappedOutput_RejectsPlainRecords(t *testing.T) {
	_, err := run(t, DefaultRegistry(), NewTaskContext(0), []any{"x"}, Stage{Kind: KindMappedOutput})
	if err == nil {
		t.Error("mapped_output accepted a plain record")
	}
}

func TestMapWithState_Checkpoint(t *testing.T) {
	reg := DefaultRegistry()
	tc := NewTaskContext(3)
	var got []*policy.Checkpoint
	tc.Checkpoint = func(cp *policy.Checkpoint) error {
		got = append(got, cp)
		return nil
	}

	st := stateStage(2000)
	st.Args["stream"] = "clicks"
	st.Args["batch"] = int64(4)
	if _, err := run(t, reg, tc, []any{
		ipc.Pair{Key: "b", Value: int64(2)},
		ipc.Pair{Key: "a", Value: int64(1)},
	}, st); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	want := []*policy.Checkpoint{{
		Stream:      "clicks",
		Partition:   3,
		Batch:       4,
		LogicalTime: 2000,
		Entries: []policy.Entry{
			{Key: "a", Value: int64(1), LastUpdated: 2000},
			{Key: "b", Value: int64(2), LastUpdated: 2000},
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("checkpoints mismatch (-want +got):\n%s", diff)
	}

	// Without a stream name the hook is not called.
	got = nil
	if _, err := run(t, reg, tc, []any{ipc.Pair{Key: "a", Value: int64(1)}}, stateStage(3000)); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("checkpoints = %d, want 0", len(got))
	}

	sinkErr := errors.New("sink down")
	tc.Checkpoint = func(*policy.Checkpoint) error { return sinkErr }
	if _, err := run(t, reg, tc, []any{ipc.Pair{Key: "a", Value: int64(1)}}, st); !errors.Is(err, sinkErr) {
		t.Errorf("run() error = %v, want %v", err, sinkErr)
	}
}

func TestRegistry_LookupState(t *testing.T) {
	reg := DefaultRegistry()
	reg.RegisterState("explode", func(any, []any, *state.State[any]) (any, error) {
		panic("bad state")
	})

	if _, err := reg.LookupState("missing"); !errors.Is(err, ErrMalformedCommand) {
		t.Errorf("LookupState(missing) error = %v, want ErrMalformedCommand", err)
	}
	if _, err := reg.LookupState("identity"); !errors.Is(err, ErrMalformedCommand) {
		t.Errorf("LookupState(identity) error = %v, want ErrMalformedCommand", err)
	}

	sum, err := reg.LookupState("running_sum")
	if err != nil {
		t.Fatalf("LookupState(running_sum) error = %v", err)
	}
	st := &state.State[any]{}
	if _, err := sum("k", []any{int64(2), int64(3)}, st); err != nil {
		t.Fatalf("running_sum error = %v", err)
	}
	if v, _ := st.Get(); v != int64(5) {
		t.Errorf("state = %v, want 5", v)
	}

	explode, err := reg.LookupState("explode")
	if err != nil {
		t.Fatalf("LookupState(explode) error = %v", err)
	}
	var ufe *UserFunctionError
	if _, err := explode("k", nil, &state.State[any]{}); !errors.As(err, &ufe) || ufe.Func != "explode" {
		t.Errorf("explode error = %v, want *UserFunctionError for explode", err)
	}
}
