package checkpoint_test

import (
	"cmp"
	"testing"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/justapithecus/lode/lode"

	"github.com/cite-sa/MobiusCore/checkpoint"
	"github.com/cite-sa/MobiusCore/metrics"
	"github.com/cite-sa/MobiusCore/policy"
	"github.com/cite-sa/MobiusCore/state"
)

func sumUpdate(key string, values []int64, st *state.State[int64]) (string, error) {
	total, _ := st.Get()
	for _, v := range values {
		total += v
	}
	st.Update(total)
	return key, nil
}

func newStream(t *testing.T, pol policy.Policy) *state.Stream[string, int64, int64, string] {
	t.Helper()
	engine := state.NewEngine[string, int64, int64, string](sumUpdate, state.Config{}, cmp.Compare[string])
	s, err := state.NewStream(engine, state.StreamConfig{Name: "totals", Policy: pol, NumPartitions: 2}, cmp.Compare[string])
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}
	return s
}

func TestStreamRestoreFromStore(t *testing.T) {
	factory := checkpoint.SharedFactory(lode.NewMemory())
	client, err := checkpoint.NewClientWithFactory(checkpoint.Config{}, factory)
	if err != nil {
		t.Fatalf("NewClientWithFactory() error = %v", err)
	}
	collector := metrics.NewCollector("tcp", "single", "")
	pol := policy.NewStrictPolicy(checkpoint.NewInstrumentedSink(client, collector))

	first := newStream(t, pol)
	batches := [][]string{{"x", "y", "x"}, {"y", "z"}}
	for i, keys := range batches {
		values := make([]int64, len(keys))
		for j := range values {
			values[j] = int64(j + 1)
		}
		if _, err := first.Run(t.Context(), state.Group(keys, values), int64(1000*(i+1)), nil); err != nil {
			t.Fatalf("Run(batch %d) error = %v", i, err)
		}
	}
	if got := collector.Snapshot().CheckpointWriteSuccess; got != 4 {
		t.Errorf("checkpoint writes = %d, want 4", got)
	}

	latest, err := checkpoint.QueryLatest(t.Context(), client.Dataset(), "totals")
	if err != nil {
		t.Fatalf("QueryLatest() error = %v", err)
	}
	second := newStream(t, nil)
	if err := second.Restore(latest); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if second.Batch() != 2 {
		t.Errorf("Batch() = %d, want 2", second.Batch())
	}

	want, err := first.Snapshots()
	if err != nil {
		t.Fatalf("Snapshots() error = %v", err)
	}
	got, err := second.Snapshots()
	if err != nil {
		t.Fatalf("Snapshots() error = %v", err)
	}
	if diff := gocmp.Diff(want, got); diff != "" {
		t.Errorf("restored state mismatch (-want +got):\n%s", diff)
	}
}
