package command

import (
	"github.com/cite-sa/MobiusCore/accumulator"
	"github.com/cite-sa/MobiusCore/broadcast"
	"github.com/cite-sa/MobiusCore/log"
	"github.com/cite-sa/MobiusCore/policy"
)

// TaskContext is what registered functions see of the running session.
type TaskContext struct {
	// Partition is the partition index from the session header.
	Partition int
	// Accumulators is the session's accumulator registry.
	Accumulators *accumulator.Registry
	// Broadcasts is the worker's broadcast registry.
	Broadcasts *broadcast.Registry
	// Logger is the session logger.
	Logger *log.Logger
	// Checkpoint receives the state of map_with_state stages that name a
	// stream. Nil disables checkpointing.
	Checkpoint func(*policy.Checkpoint) error
}

// NewTaskContext returns a context with fresh registries and a no-op
// logger, for tests and local runs.
func NewTaskContext(partition int) *TaskContext {
	return &TaskContext{
		Partition:    partition,
		Accumulators: accumulator.NewRegistry(),
		Broadcasts:   broadcast.NewRegistry(),
		Logger:       log.Nop(),
	}
}
