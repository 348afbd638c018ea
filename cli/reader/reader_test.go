package reader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/justapithecus/lode/lode"

	"github.com/cite-sa/MobiusCore/checkpoint"
	"github.com/cite-sa/MobiusCore/policy"
)

func seededReader(t *testing.T) *CheckpointReader {
	t.Helper()
	client, err := checkpoint.NewClientWithFactory(checkpoint.Config{}, checkpoint.SharedFactory(lode.NewMemory()))
	if err != nil {
		t.Fatalf("NewClientWithFactory() error = %v", err)
	}
	cps := []*policy.Checkpoint{
		{Stream: "clicks", Partition: 0, Batch: 1, LogicalTime: 1000, Entries: []policy.Entry{
			{Key: "a", Value: int64(1), LastUpdated: 1000},
		}},
		{Stream: "clicks", Partition: 0, Batch: 2, LogicalTime: 2000, Entries: []policy.Entry{
			{Key: "a", Value: int64(3), LastUpdated: 2000},
			{Key: "b", Value: int64(5), LastUpdated: 1500},
		}},
		{Stream: "clicks", Partition: 1, Batch: 2, LogicalTime: 2000, Entries: []policy.Entry{
			{Key: "z", Value: "hi", LastUpdated: 500},
		}},
		{Stream: "views", Partition: 0, Batch: 7, LogicalTime: 9000},
	}
	if err := client.WriteCheckpoints(context.Background(), cps); err != nil {
		t.Fatalf("WriteCheckpoints() error = %v", err)
	}
	return NewCheckpointReader(client.Dataset())
}

func TestCheckpointReader_Streams(t *testing.T) {
	r := seededReader(t)
	got, err := r.Streams(t.Context())
	if err != nil {
		t.Fatalf("Streams() error = %v", err)
	}
	want := []StreamItem{
		{Stream: "clicks", Partitions: 2, Keys: 3, LatestBatch: 2},
		{Stream: "views", Partitions: 1, Keys: 0, LatestBatch: 7},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Streams() mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckpointReader_State(t *testing.T) {
	r := seededReader(t)
	view, err := r.State(t.Context(), "clicks")
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	ms := func(v int64) time.Time { return time.UnixMilli(v).UTC() }
	want := &StateView{Stream: "clicks", Partitions: []PartitionState{
		{Partition: 0, Batch: 2, LogicalTime: ms(2000), Entries: []StateEntry{
			{Key: "a", Value: int64(3), LastUpdated: ms(2000)},
			{Key: "b", Value: int64(5), LastUpdated: ms(1500)},
		}},
		{Partition: 1, Batch: 2, LogicalTime: ms(2000), Entries: []StateEntry{
			{Key: "z", Value: "hi", LastUpdated: ms(500)},
		}},
	}}
	if diff := cmp.Diff(want, view); diff != "" {
		t.Errorf("State() mismatch (-want +got):\n%s", diff)
	}

	rows := view.Rows()
	if len(rows) != 3 || rows[2].Key != "z" || rows[2].Value != "hi" || rows[0].Value != "3" {
		t.Errorf("Rows() = %+v", rows)
	}

	if _, err := r.State(t.Context(), "missing"); !errors.Is(err, checkpoint.ErrNoCheckpoint) {
		t.Errorf("State(missing) error = %v, want ErrNoCheckpoint", err)
	}
}

func TestCheckpointReader_Stats(t *testing.T) {
	r := seededReader(t)
	st, err := r.Stats(t.Context(), "clicks")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.Partitions != 2 || st.Keys != 3 || st.MinBatch != 2 || st.MaxBatch != 2 {
		t.Errorf("Stats() = %+v", st)
	}
	if st.OldestKeyTouch == nil || st.OldestKeyTouch.UnixMilli() != 500 {
		t.Errorf("OldestKeyTouch = %v, want 500ms", st.OldestKeyTouch)
	}
	if st.NewestKeyTouch == nil || st.NewestKeyTouch.UnixMilli() != 2000 {
		t.Errorf("NewestKeyTouch = %v, want 2000ms", st.NewestKeyTouch)
	}
}

func TestSummarize_Empty(t *testing.T) {
	st := Summarize(&StateView{Stream: "empty"})
	if st.Partitions != 0 || st.LatestTime != nil || st.OldestKeyTouch != nil {
		t.Errorf("Summarize(empty) = %+v", st)
	}
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{"k", "k"},
		{[]byte{0xca, 0xfe}, "0xcafe"},
		{int64(42), "42"},
		{[]any{"a", int64(1)}, "[a 1]"},
	}
	for _, tt := range tests {
		if got := display(tt.in); got != tt.want {
			t.Errorf("display(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStateView_TableRows(t *testing.T) {
	updated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	view := &StateView{
		Stream: "clicks",
		Partitions: []PartitionState{{
			Partition: 1,
			Batch:     7,
			Entries:   []StateEntry{{Key: "a", Value: int64(3), LastUpdated: updated}},
		}},
	}

	want := [][]string{{"1", "7", "a", "3", "2024-03-01T12:00:00Z"}}
	if diff := cmp.Diff(want, view.TableRows()); diff != "" {
		t.Errorf("TableRows() mismatch (-want +got):\n%s", diff)
	}
	if got := len(view.Columns()); got != len(want[0]) {
		t.Errorf("Columns() has %d entries, rows have %d", got, len(want[0]))
	}
}
