package broadcast

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegistry_AddLookupRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b1")
	if err := WriteFile(path, map[string]any{"greeting": "hello"}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r := NewRegistry()
	r.Add(1, path)

	v, err := r.Value(1)
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"greeting": "hello"}, v); diff != "" {
		t.Errorf("Value mismatch (-want +got):\n%s", diff)
	}

	if !r.Remove(1) {
		t.Error("Remove(1) = false, want true")
	}
	if _, err := r.Value(1); !errors.Is(err, ErrUnknownBroadcast) {
		t.Errorf("Value after remove error = %v, want ErrUnknownBroadcast", err)
	}
}

func TestRegistry_LazyLoad(t *testing.T) {
	loads := 0
	r := NewRegistry(WithLoader(func(path string) (any, error) {
		loads++
		return path, nil
	}))
	r.Add(5, "/does/not/exist")
	if loads != 0 {
		t.Fatalf("loader called on Add")
	}
	for range 3 {
		if _, err := r.Value(5); err != nil {
			t.Fatalf("Value: %v", err)
		}
	}
	if loads != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}
}

func TestRegistry_MissingFileFailsOnLookup(t *testing.T) {
	r := NewRegistry()
	r.Add(2, filepath.Join(t.TempDir(), "missing"))
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	if _, err := r.Value(2); err == nil || errors.Is(err, ErrUnknownBroadcast) {
		t.Errorf("Value error = %v, want load failure", err)
	}
}

func TestRegistry_NeverAdded(t *testing.T) {
	if _, err := NewRegistry().Value(7); !errors.Is(err, ErrUnknownBroadcast) {
		t.Errorf("error = %v, want ErrUnknownBroadcast", err)
	}
}

func TestRegistry_PutAndIDs(t *testing.T) {
	r := NewRegistry()
	r.Put(3, int64(30))
	r.Put(1, int64(10))
	if diff := cmp.Diff([]int64{1, 3}, r.IDs()); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
	if v, err := r.Value(3); err != nil || v != int64(30) {
		t.Errorf("Value(3) = %v, %v, want 30", v, err)
	}
}

func TestWireIDs(t *testing.T) {
	tests := []struct {
		wire   int64
		id     int64
		remove bool
	}{
		{wire: 0, id: 0},
		{wire: 12, id: 12},
		{wire: -1, id: 0, remove: true},
		{wire: -13, id: 12, remove: true},
	}
	for _, tt := range tests {
		id, remove := DecodeID(tt.wire)
		if id != tt.id || remove != tt.remove {
			t.Errorf("DecodeID(%d) = %d, %v, want %d, %v", tt.wire, id, remove, tt.id, tt.remove)
		}
		if tt.remove && EncodeRemove(tt.id) != tt.wire {
			t.Errorf("EncodeRemove(%d) = %d, want %d", tt.id, EncodeRemove(tt.id), tt.wire)
		}
	}
}
