package policy

import (
	"context"
	"errors"
	"sync"

	"github.com/cite-sa/MobiusCore/log"
)

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// MaxBatches is the number of buffered checkpoints that triggers a
	// flush. Must be positive.
	MaxBatches int

	// Logger is an optional logger for policy observability.
	// If nil, no logging is emitted.
	Logger *log.Logger
}

// DefaultBufferedConfig returns sensible defaults for buffered policy.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{MaxBatches: 16}
}

// ErrInvalidConfig is returned when BufferedConfig is invalid.
var ErrInvalidConfig = errors.New("invalid config: MaxBatches must be positive")

// BufferedPolicy buffers checkpoints and writes them in batches.
//
// Only the latest checkpoint per stream/partition is kept: a newer one
// replaces the buffered one in place, so restores never observe an older
// state than the last write. The buffer is written when it holds
// MaxBatches checkpoints and on Flush. A failed write keeps the buffer
// (at-least-once).
type BufferedPolicy struct {
	sink   Sink
	config BufferedConfig
	logger *log.Logger

	mu     sync.Mutex // guards buffer state
	buffer []*Checkpoint
	index  map[string]int
	stats  *statsRecorder
}

// NewBufferedPolicy creates a new buffered policy.
func NewBufferedPolicy(sink Sink, config BufferedConfig) (*BufferedPolicy, error) {
	if config.MaxBatches <= 0 {
		return nil, ErrInvalidConfig
	}
	return &BufferedPolicy{
		sink:   sink,
		config: config,
		logger: config.Logger,
		buffer: make([]*Checkpoint, 0, config.MaxBatches),
		index:  make(map[string]int),
		stats:  newStatsRecorder(),
	}, nil
}

// Ingest buffers the checkpoint, flushing when the buffer is full.
func (p *BufferedPolicy) Ingest(ctx context.Context, cp *Checkpoint) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.incTotalLocked()

	slot := cp.slot()
	if i, ok := p.index[slot]; ok {
		p.buffer[i] = cp
		p.stats.incSupersededLocked()
	} else {
		p.index[slot] = len(p.buffer)
		p.buffer = append(p.buffer, cp)
	}

	if len(p.buffer) < p.config.MaxBatches {
		return nil
	}
	return p.flushLocked(ctx, "buffer_full")
}

// Flush writes all buffered checkpoints.
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(ctx, "explicit")
}

func (p *BufferedPolicy) flushLocked(ctx context.Context, reason string) error {
	p.stats.incFlushLocked()
	if len(p.buffer) == 0 {
		return nil
	}

	if err := p.sink.WriteCheckpoints(ctx, p.buffer); err != nil {
		p.stats.incErrorsLocked()
		if p.logger != nil {
			p.logger.Error("checkpoint flush failed", map[string]any{
				"reason":   reason,
				"buffered": len(p.buffer),
				"error":    err.Error(),
			})
		}
		return err
	}

	p.stats.incPersistedLocked(p.buffer)
	if p.logger != nil {
		p.logger.Debug("checkpoints flushed", map[string]any{
			"reason": reason,
			"count":  len(p.buffer),
		})
	}
	p.buffer = make([]*Checkpoint, 0, p.config.MaxBatches)
	p.index = make(map[string]int)
	return nil
}

// Close flushes remaining checkpoints and closes the sink.
func (p *BufferedPolicy) Close() error {
	flushErr := p.Flush(context.Background())
	closeErr := p.sink.Close()
	return errors.Join(flushErr, closeErr)
}

// Stats returns an atomic snapshot of policy statistics.
func (p *BufferedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshotLocked(len(p.buffer))
}
