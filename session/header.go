package session

import (
	"github.com/cite-sa/MobiusCore/broadcast"
	"github.com/cite-sa/MobiusCore/ipc"
)

// Header is the session prelude, in wire order: partition, version,
// three reserved int32, a reserved int64, the working directory, the
// include paths, the broadcast entries and the UDF flag.
type Header struct {
	Partition  int32
	Version    string
	WorkDir    string
	Includes   []string
	Broadcasts []BroadcastEntry
	UDF        bool
}

// BroadcastEntry adds (Path set) or removes (Remove set) a broadcast
// variable.
type BroadcastEntry struct {
	ID     int64
	Path   string
	Remove bool
}

// readHeader reads the prelude up to the include paths.
func readHeader(dec *ipc.Decoder) (*Header, error) {
	h := &Header{}
	var err error
	if h.Partition, err = dec.ReadInt(); err != nil {
		return nil, err
	}
	if h.Version, err = dec.ReadString(); err != nil {
		return nil, err
	}
	for range 3 {
		if _, err := dec.ReadInt(); err != nil {
			return nil, err
		}
	}
	if _, err := dec.ReadLong(); err != nil {
		return nil, err
	}
	if h.WorkDir, err = dec.ReadString(); err != nil {
		return nil, err
	}
	n, err := dec.ReadInt()
	if err != nil {
		return nil, err
	}
	for range n {
		path, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		h.Includes = append(h.Includes, path)
	}
	return h, nil
}

// readBroadcasts reads the broadcast entries into h.
func readBroadcasts(dec *ipc.Decoder, h *Header) error {
	n, err := dec.ReadInt()
	if err != nil {
		return err
	}
	for range n {
		wire, err := dec.ReadLong()
		if err != nil {
			return err
		}
		id, remove := broadcast.DecodeID(wire)
		entry := BroadcastEntry{ID: id, Remove: remove}
		if !remove {
			if entry.Path, err = dec.ReadString(); err != nil {
				return err
			}
		}
		h.Broadcasts = append(h.Broadcasts, entry)
	}
	return nil
}

// readUDFFlag reads the flag that selects the UDF command form.
func readUDFFlag(dec *ipc.Decoder, h *Header) error {
	flag, err := dec.ReadInt()
	if err != nil {
		return err
	}
	h.UDF = flag != 0
	return nil
}

// WriteHeader writes h as the host does, ending with the UDF flag. The
// command follows.
func WriteHeader(enc *ipc.Encoder, h *Header) error {
	if err := enc.WriteInt(h.Partition); err != nil {
		return err
	}
	if err := enc.WriteString(h.Version); err != nil {
		return err
	}
	for range 3 {
		if err := enc.WriteInt(0); err != nil {
			return err
		}
	}
	if err := enc.WriteLong(0); err != nil {
		return err
	}
	if err := enc.WriteString(h.WorkDir); err != nil {
		return err
	}
	if err := enc.WriteInt(int32(len(h.Includes))); err != nil {
		return err
	}
	for _, path := range h.Includes {
		if err := enc.WriteString(path); err != nil {
			return err
		}
	}
	if err := enc.WriteInt(int32(len(h.Broadcasts))); err != nil {
		return err
	}
	for _, b := range h.Broadcasts {
		if b.Remove {
			if err := enc.WriteLong(broadcast.EncodeRemove(b.ID)); err != nil {
				return err
			}
			continue
		}
		if err := enc.WriteLong(b.ID); err != nil {
			return err
		}
		if err := enc.WriteString(b.Path); err != nil {
			return err
		}
	}
	udf := int32(0)
	if h.UDF {
		udf = 1
	}
	return enc.WriteInt(udf)
}
