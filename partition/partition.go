// Package partition routes keys to partitions.
package partition

import (
	"errors"
	"fmt"
	"hash/fnv"
	"slices"

	"github.com/cite-sa/MobiusCore/ipc"
)

// ErrInvalidPartitions is returned for a non-positive partition count.
var ErrInvalidPartitions = errors.New("number of partitions must be positive")

// Partitioner assigns a partition index in [0, NumPartitions()) to a key.
type Partitioner interface {
	NumPartitions() int
	Partition(key any) (int, error)
}

// HashPartitioner routes keys by FNV-1a hash of their canonical msgpack
// encoding, so equal keys land together regardless of process.
type HashPartitioner struct {
	N int
}

// NewHashPartitioner creates a hash partitioner over n partitions.
func NewHashPartitioner(n int) (*HashPartitioner, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPartitions, n)
	}
	return &HashPartitioner{N: n}, nil
}

// NumPartitions implements Partitioner.
func (h *HashPartitioner) NumPartitions() int { return h.N }

// Partition implements Partitioner.
func (h *HashPartitioner) Partition(key any) (int, error) {
	if h.N == 1 {
		return 0, nil
	}
	b, err := ipc.MarshalValue(ipc.Normalize(key))
	if err != nil {
		return 0, fmt.Errorf("hash key %v: %w", key, err)
	}
	hash := fnv.New32a()
	_, _ = hash.Write(b)
	return int(hash.Sum32() % uint32(h.N)), nil
}

// RangePartitioner routes keys by binary search over sorted bounds.
// len(Bounds) is NumPartitions()-1. Descending order mirrors the index.
type RangePartitioner struct {
	Bounds    []any
	Ascending bool
}

// NumPartitions implements Partitioner.
func (r *RangePartitioner) NumPartitions() int { return len(r.Bounds) + 1 }

// Partition implements Partitioner.
func (r *RangePartitioner) Partition(key any) (int, error) {
	pos, _ := slices.BinarySearchFunc(r.Bounds, key, Compare)
	if r.Ascending {
		return pos, nil
	}
	return r.NumPartitions() - 1 - pos, nil
}

// SampleBounds picks n-1 range bounds from sampled keys: the samples are
// sorted and the bound i is the sample at len*(i+1)/n.
func SampleBounds(samples []any, n int) ([]any, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPartitions, n)
	}
	if len(samples) == 0 || n == 1 {
		return nil, nil
	}
	sorted := slices.Clone(samples)
	slices.SortStableFunc(sorted, Compare)
	bounds := make([]any, 0, n-1)
	for i := 0; i < n-1; i++ {
		bounds = append(bounds, sorted[len(sorted)*(i+1)/n])
	}
	return bounds, nil
}
