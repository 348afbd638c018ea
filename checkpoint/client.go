// Package checkpoint persists stateful stream checkpoints in a lode
// dataset and reads them back for restore.
//
// Every checkpoint is one dataset write under the Hive layout
// stream=<name>/partition=<n>/batch=<seq>: a head record followed by one
// record per state entry, JSONL encoded.
package checkpoint

import (
	"context"
	"errors"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/cite-sa/MobiusCore/policy"
)

// DefaultDataset is the dataset id used when none is configured.
const DefaultDataset = "mobius_state"

// Config holds checkpoint storage configuration.
type Config struct {
	// Dataset is the lode dataset id. Defaults to DefaultDataset.
	Dataset string
}

func (c Config) dataset() string {
	if c.Dataset == "" {
		return DefaultDataset
	}
	return c.Dataset
}

// Client is a lode-backed policy.Sink.
type Client struct {
	dataset lode.Dataset
	name    string

	mu     sync.Mutex
	closed bool
}

// NewDataset opens the checkpoint dataset over factory. The same layout
// and codec serve writes and reads.
func NewDataset(name string, factory lode.StoreFactory) (lode.Dataset, error) {
	ds, err := lode.NewDataset(
		lode.DatasetID(name),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, wrap("init", name, err)
	}
	return ds, nil
}

// NewClient creates a client with filesystem storage under root.
func NewClient(cfg Config, root string) (*Client, error) {
	return NewClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewClientWithFactory creates a client over a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewClientWithFactory(cfg Config, factory lode.StoreFactory) (*Client, error) {
	ds, err := NewDataset(cfg.dataset(), factory)
	if err != nil {
		return nil, err
	}
	return &Client{dataset: ds, name: cfg.dataset()}, nil
}

// ErrClientClosed is returned by writes after Close.
var ErrClientClosed = errors.New("checkpoint client closed")

// WriteCheckpoints writes each checkpoint as its own snapshot, in order.
// It stops at the first failure.
func (c *Client) WriteCheckpoints(ctx context.Context, checkpoints []*policy.Checkpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}

	for _, cp := range checkpoints {
		records, err := toRecordMaps(cp)
		if err != nil {
			return err
		}
		if _, err := c.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
			return wrap("write", c.name+"/"+cp.Stream, err)
		}
	}
	return nil
}

// Dataset returns the underlying dataset, for reads.
func (c *Client) Dataset() lode.Dataset {
	return c.dataset
}

// Close marks the client closed. The dataset holds no resources.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

var _ policy.Sink = (*Client)(nil)
