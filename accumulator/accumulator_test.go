package accumulator

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegistry_CountsPerRecord(t *testing.T) {
	r := NewRegistry()
	for range 100 {
		if err := r.Accumulate(3, 1); err != nil {
			t.Fatalf("Accumulate: %v", err)
		}
	}
	got := r.Touched()
	want := []Entry{{ID: 3, Value: int64(100)}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Touched() mismatch (-want +got):\n%s", diff)
	}
	if r.Updates() != 100 {
		t.Errorf("Updates() = %d, want 100", r.Updates())
	}
}

func TestRegistry_TouchedOrderedByID(t *testing.T) {
	r := NewRegistry()
	_ = r.Accumulate(9, "a")
	_ = r.Accumulate(1, 1.5)
	_ = r.Accumulate(9, "b")
	_ = r.Accumulate(1, int64(2))

	want := []Entry{{ID: 1, Value: 3.5}, {ID: 9, Value: "ab"}}
	if diff := cmp.Diff(want, r.Touched()); diff != "" {
		t.Errorf("Touched() mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_CustomCombine(t *testing.T) {
	r := NewRegistry()
	r.Register(1, func(current, delta any) (any, error) {
		if delta.(int64) > current.(int64) {
			return delta, nil
		}
		return current, nil
	})
	for _, v := range []int64{4, 9, 2} {
		_ = r.Accumulate(1, v)
	}
	if v, _ := r.Get(1); v != int64(9) {
		t.Errorf("Get(1) = %v, want 9", v)
	}
}

func TestRegistry_IncompatibleDelta(t *testing.T) {
	r := NewRegistry()
	_ = r.Accumulate(1, "text")
	if err := r.Accumulate(1, true); !errors.Is(err, ErrIncompatibleDelta) {
		t.Errorf("Accumulate error = %v, want ErrIncompatibleDelta", err)
	}
}

func TestEntry_RoundTrip(t *testing.T) {
	b, err := MarshalEntry(Entry{ID: 42, Value: []any{"x", int64(1)}})
	if err != nil {
		t.Fatalf("MarshalEntry: %v", err)
	}
	got, err := UnmarshalEntry(b)
	if err != nil {
		t.Fatalf("UnmarshalEntry: %v", err)
	}
	want := Entry{ID: 42, Value: []any{"x", int64(1)}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
}
