package ipc

import (
	"bytes"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// Pair is a key/value record. It encodes as a two-element msgpack array.
type Pair struct {
	Key   any
	Value any
}

var _ msgpack.CustomEncoder = Pair{}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (p Pair) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.Encode(p.Key); err != nil {
		return err
	}
	return enc.Encode(p.Value)
}

// AsPair converts a Pair or a two-element []any into a Pair.
func AsPair(v any) (Pair, bool) {
	switch p := v.(type) {
	case Pair:
		return p, true
	case *Pair:
		if p == nil {
			return Pair{}, false
		}
		return *p, true
	case []any:
		if len(p) == 2 {
			return Pair{Key: p[0], Value: p[1]}, true
		}
	}
	return Pair{}, false
}

// MarshalValue encodes v as msgpack with sorted map keys, so equal values
// always produce equal bytes.
func MarshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalValue decodes a msgpack document into a normalized Go value.
func UnmarshalValue(b []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	v, err := dec.DecodeInterface()
	if err != nil {
		return nil, err
	}
	return Normalize(v), nil
}

// Normalize maps decoded msgpack values onto a small set of Go types:
// every integer becomes int64 (uint64 only above math.MaxInt64), every
// float becomes float64, and Pair becomes a two-element []any.
// Slices and string-keyed maps are normalized recursively.
func Normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return normalizeUint(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return normalizeUint(x)
	case float32:
		return float64(x)
	case Pair:
		return []any{Normalize(x.Key), Normalize(x.Value)}
	case []any:
		for i := range x {
			x[i] = Normalize(x[i])
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = Normalize(e)
		}
		return x
	default:
		return v
	}
}

func normalizeUint(u uint64) any {
	if u > math.MaxInt64 {
		return u
	}
	return int64(u)
}
