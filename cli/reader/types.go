// Package reader provides the read-side data access layer for the mobius
// CLI.
//
// Read-only commands (inspect, list, stats) go through a Reader. The
// checkpoint-backed Reader rebuilds the latest state of each stream from
// the checkpoint dataset; views carry no data the dataset does not hold.
package reader

import (
	"strconv"
	"time"
)

// StreamItem is one row of `list streams`.
type StreamItem struct {
	Stream      string `json:"stream"`
	Partitions  int    `json:"partitions"`
	Keys        int    `json:"keys"`
	LatestBatch int64  `json:"latest_batch"`
}

// StateView is the latest checkpointed state of one stream.
type StateView struct {
	Stream     string           `json:"stream"`
	Partitions []PartitionState `json:"partitions"`
}

// PartitionState is the newest checkpoint of one partition.
type PartitionState struct {
	Partition   int          `json:"partition"`
	Batch       int64        `json:"batch"`
	LogicalTime time.Time    `json:"logical_time"`
	Entries     []StateEntry `json:"entries"`
}

// StateEntry is one key of a partition's state.
type StateEntry struct {
	Key         any       `json:"key"`
	Value       any       `json:"value"`
	LastUpdated time.Time `json:"last_updated"`
}

// StateRow is one state entry flattened for table output.
type StateRow struct {
	Partition   int       `json:"partition"`
	Batch       int64     `json:"batch"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	LastUpdated time.Time `json:"last_updated"`
}

// Rows flattens the view into one row per entry, by partition then key.
func (v *StateView) Rows() []StateRow {
	var rows []StateRow
	for _, p := range v.Partitions {
		for _, e := range p.Entries {
			rows = append(rows, StateRow{
				Partition:   p.Partition,
				Batch:       p.Batch,
				Key:         display(e.Key),
				Value:       display(e.Value),
				LastUpdated: e.LastUpdated,
			})
		}
	}
	return rows
}

// Columns names the table columns of a state view.
func (v *StateView) Columns() []string {
	return []string{"partition", "batch", "key", "value", "last_updated"}
}

// TableRows renders Rows as table cells.
func (v *StateView) TableRows() [][]string {
	rows := v.Rows()
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{
			strconv.Itoa(r.Partition),
			strconv.FormatInt(r.Batch, 10),
			r.Key,
			r.Value,
			r.LastUpdated.UTC().Format(time.RFC3339Nano),
		}
	}
	return out
}

// Keys returns the total number of keys across partitions.
func (v *StateView) Keys() int {
	n := 0
	for _, p := range v.Partitions {
		n += len(p.Entries)
	}
	return n
}

// StreamStats summarizes the latest state of one stream.
type StreamStats struct {
	Stream         string     `json:"stream"`
	Partitions     int        `json:"partitions"`
	Keys           int        `json:"keys"`
	MinBatch       int64      `json:"min_batch"`
	MaxBatch       int64      `json:"max_batch"`
	LatestTime     *time.Time `json:"latest_time"`
	OldestKeyTouch *time.Time `json:"oldest_key_update"`
	NewestKeyTouch *time.Time `json:"newest_key_update"`
}
