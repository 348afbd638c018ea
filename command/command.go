// Package command decodes and runs the serialized stage graphs a host
// sends to the worker.
//
// A Command is data only: each Stage names a function in the worker's
// Registry and carries its parameters. Compile resolves the names and
// returns a Pipeline whose stages pull records lazily from the one
// before.
package command

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/cite-sa/MobiusCore/ipc"
	"github.com/cite-sa/MobiusCore/types"
)

// CommandVersion is the serialized command format version.
const CommandVersion = 1

// StageKind names a stage variant.
type StageKind string

// Stage kinds.
const (
	KindMap           StageKind = "map"
	KindFilter        StageKind = "filter"
	KindFlatMap       StageKind = "flat_map"
	KindReduce        StageKind = "reduce"
	KindMapPartitions StageKind = "map_partitions"
	KindTake          StageKind = "take"
	KindMapWithState  StageKind = "map_with_state"
	KindMappedOutput  StageKind = "mapped_output"
	KindStateSnapshot StageKind = "state_snapshots"
)

// Command is a chain of stages plus the encodings of its input and
// output records.
type Command struct {
	Version    int                  `msgpack:"version"`
	InputMode  types.SerializedMode `msgpack:"input_mode"`
	OutputMode types.SerializedMode `msgpack:"output_mode"`
	KeyMode    types.SerializedMode `msgpack:"key_mode,omitempty"`
	ValueMode  types.SerializedMode `msgpack:"value_mode,omitempty"`
	Stages     []Stage              `msgpack:"stages"`
}

// Stage is one step of a command.
type Stage struct {
	Kind StageKind `msgpack:"kind"`
	Func string    `msgpack:"func,omitempty"`
	Args Args      `msgpack:"args,omitempty"`
}

// New returns a current-version command over the given stages.
func New(input, output types.SerializedMode, stages ...Stage) *Command {
	return &Command{
		Version:    CommandVersion,
		InputMode:  input,
		OutputMode: output,
		Stages:     stages,
	}
}

// InputEncoding returns the encoding of the command's input records.
func (c *Command) InputEncoding() ipc.Encoding {
	return encoding(c.InputMode, c.KeyMode, c.ValueMode)
}

// OutputEncoding returns the encoding of the command's output records.
func (c *Command) OutputEncoding() ipc.Encoding {
	return encoding(c.OutputMode, c.KeyMode, c.ValueMode)
}

func encoding(mode, key, value types.SerializedMode) ipc.Encoding {
	enc := ipc.Encoding{Mode: normalizeMode(mode)}
	if enc.Mode == types.ModePair {
		enc.Key = normalizeMode(key)
		enc.Value = normalizeMode(value)
		if key == "" {
			enc.Key = types.ModeByte
		}
		if value == "" {
			enc.Value = types.ModeByte
		}
	}
	return enc
}

func normalizeMode(m types.SerializedMode) types.SerializedMode {
	parsed, err := types.ParseSerializedMode(string(m))
	if err != nil {
		return m
	}
	return parsed
}

func (c *Command) validate() error {
	if c.Version != CommandVersion {
		return malformed("unsupported command version %d", c.Version)
	}
	for _, m := range []types.SerializedMode{c.InputMode, c.OutputMode, c.KeyMode, c.ValueMode} {
		if !m.Valid() {
			return malformed("unknown serialized mode %q", m)
		}
	}
	return nil
}

// Encode serializes c.
func Encode(c *Command) ([]byte, error) {
	return ipc.MarshalValue(c)
}

// Decode parses a serialized command.
func Decode(b []byte) (*Command, error) {
	var c Command
	if err := msgpack.Unmarshal(b, &c); err != nil {
		return nil, malformed("%v", err)
	}
	for i := range c.Stages {
		if c.Stages[i].Args != nil {
			c.Stages[i].Args = Args(ipc.Normalize(map[string]any(c.Stages[i].Args)).(map[string]any))
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// UdfEntry is one output column of a UDF batch: the input columns it
// reads and the functions applied to them left to right.
type UdfEntry struct {
	ArgOffsets []int
	Chain      []*Command
}

// UdfBatch is the multi-command form sent when the session header sets
// the UDF flag.
type UdfBatch struct {
	Entries []UdfEntry
}

// ReadCommand reads a length-prefixed command.
func ReadCommand(dec *ipc.Decoder) (*Command, error) {
	b, err := dec.ReadBytes()
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

// WriteCommand writes c length-prefixed.
func WriteCommand(enc *ipc.Encoder, c *Command) error {
	b, err := Encode(c)
	if err != nil {
		return err
	}
	return enc.WriteBytes(b)
}

// ReadUdfBatch reads the UDF form: entry count, then per entry the
// argument count and offsets, the chain length and each command.
func ReadUdfBatch(dec *ipc.Decoder) (*UdfBatch, error) {
	n, err := dec.ReadInt()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, malformed("negative udf count %d", n)
	}
	batch := &UdfBatch{Entries: make([]UdfEntry, 0, n)}
	for range n {
		argc, err := dec.ReadInt()
		if err != nil {
			return nil, err
		}
		if argc < 0 {
			return nil, malformed("negative argument count %d", argc)
		}
		entry := UdfEntry{ArgOffsets: make([]int, argc)}
		for j := range entry.ArgOffsets {
			off, err := dec.ReadInt()
			if err != nil {
				return nil, err
			}
			entry.ArgOffsets[j] = int(off)
		}
		chainLen, err := dec.ReadInt()
		if err != nil {
			return nil, err
		}
		if chainLen < 1 {
			return nil, malformed("udf chain length %d", chainLen)
		}
		for range chainLen {
			c, err := ReadCommand(dec)
			if err != nil {
				return nil, err
			}
			entry.Chain = append(entry.Chain, c)
		}
		batch.Entries = append(batch.Entries, entry)
	}
	return batch, nil
}

// WriteUdfBatch writes b in the form ReadUdfBatch reads.
func WriteUdfBatch(enc *ipc.Encoder, b *UdfBatch) error {
	if err := enc.WriteInt(int32(len(b.Entries))); err != nil {
		return err
	}
	for _, e := range b.Entries {
		if err := enc.WriteInt(int32(len(e.ArgOffsets))); err != nil {
			return err
		}
		for _, off := range e.ArgOffsets {
			if err := enc.WriteInt(int32(off)); err != nil {
				return err
			}
		}
		if err := enc.WriteInt(int32(len(e.Chain))); err != nil {
			return err
		}
		for _, c := range e.Chain {
			if err := WriteCommand(enc, c); err != nil {
				return err
			}
		}
	}
	return nil
}
