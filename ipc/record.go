package ipc

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/cite-sa/MobiusCore/types"
)

// Encoding fixes how records are carried in data frames for one direction
// of a session. Key and Value are the sub-encodings used when Mode is pair.
type Encoding struct {
	Mode  types.SerializedMode
	Key   types.SerializedMode
	Value types.SerializedMode
}

// RecordReader pulls decoded records out of the data section, one per
// call to Next. Batch frames are expanded lazily. Reading stops at
// END_OF_DATA_SECTION; any other sentinel ends the stream with an error.
type RecordReader struct {
	dec      *Decoder
	encoding Encoding

	pending []any
	rec     any
	err     error
	done    bool

	frames  int64
	records int64
}

// NewRecordReader creates a reader over the data section of dec.
func NewRecordReader(dec *Decoder, encoding Encoding) *RecordReader {
	return &RecordReader{dec: dec, encoding: encoding}
}

// Next advances to the next record.
func (r *RecordReader) Next() bool {
	if r.err != nil || r.done {
		return false
	}
	if len(r.pending) > 0 {
		r.rec, r.pending = r.pending[0], r.pending[1:]
		r.records++
		return true
	}
	for {
		frame, err := r.dec.ReadFrame()
		if err != nil {
			r.err = err
			return false
		}
		if frame.Sentinel == EndOfDataSection {
			r.done = true
			return false
		}
		if frame.IsSentinel() && frame.Sentinel != Null {
			r.err = &SentinelError{Sentinel: frame.Sentinel}
			return false
		}
		r.frames++

		switch {
		case r.encoding.Mode == types.ModePair:
			rec, err := r.readPair(frame)
			if err != nil {
				r.err = err
				return false
			}
			r.rec = rec
		case r.encoding.Mode.IsBatch() && !frame.IsSentinel():
			items, err := decodeBatch(r.encoding.Mode, frame.Payload)
			if err != nil {
				r.err = err
				return false
			}
			if len(items) == 0 {
				continue
			}
			r.rec, r.pending = items[0], items[1:]
		default:
			rec, err := decodeFrameValue(r.encoding.Mode, frame)
			if err != nil {
				r.err = err
				return false
			}
			r.rec = rec
		}
		r.records++
		return true
	}
}

func (r *RecordReader) readPair(keyFrame Frame) (Pair, error) {
	key, err := decodeFrameValue(r.encoding.Key, keyFrame)
	if err != nil {
		return Pair{}, err
	}
	valueFrame, err := r.dec.ReadFrame()
	if err != nil {
		return Pair{}, err
	}
	if valueFrame.IsSentinel() && valueFrame.Sentinel != Null {
		return Pair{}, &SentinelError{Sentinel: valueFrame.Sentinel}
	}
	r.frames++
	value, err := decodeFrameValue(r.encoding.Value, valueFrame)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Key: key, Value: value}, nil
}

// Record returns the current record.
func (r *RecordReader) Record() any {
	return r.rec
}

// Err returns the error that stopped iteration, if any.
func (r *RecordReader) Err() error {
	return r.err
}

// Done reports whether END_OF_DATA_SECTION has been consumed.
func (r *RecordReader) Done() bool {
	return r.done
}

// Frames returns the number of data frames read.
func (r *RecordReader) Frames() int64 {
	return r.frames
}

// Records returns the number of records produced.
func (r *RecordReader) Records() int64 {
	return r.records
}

// Drain discards remaining frames up to and including END_OF_DATA_SECTION
// and returns the number of frames skipped. Buffered batch elements are
// dropped as well.
func (r *RecordReader) Drain() (int, error) {
	r.pending = nil
	if r.err != nil {
		return 0, r.err
	}
	skipped := 0
	for !r.done {
		frame, err := r.dec.ReadFrame()
		if err != nil {
			r.err = err
			return skipped, err
		}
		switch {
		case frame.Sentinel == EndOfDataSection:
			r.done = true
		case frame.IsSentinel() && frame.Sentinel != Null:
			r.err = &SentinelError{Sentinel: frame.Sentinel}
			return skipped, r.err
		default:
			skipped++
			r.frames++
		}
	}
	return skipped, nil
}

func decodeFrameValue(mode types.SerializedMode, frame Frame) (any, error) {
	if frame.Sentinel == Null {
		return nil, nil
	}
	return DecodeValue(mode, frame.Payload)
}

// DecodeValue decodes one payload under a non-expanding encoding.
// Batch modes decode the whole msgpack document without expanding it.
func DecodeValue(mode types.SerializedMode, payload []byte) (any, error) {
	switch mode {
	case types.ModeNone, "":
		return payload, nil
	case types.ModeString:
		if !utf8.Valid(payload) {
			return nil, &FrameError{Kind: FrameErrorDecode, Msg: "string frame is not valid UTF-8"}
		}
		return string(payload), nil
	case types.ModeByte, types.ModePickling, types.ModeRow, types.ModePair:
		v, err := UnmarshalValue(payload)
		if err != nil {
			return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode msgpack record", Err: err}
		}
		return v, nil
	default:
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("unknown serialized mode %q", mode)}
	}
}

func decodeBatch(mode types.SerializedMode, payload []byte) ([]any, error) {
	v, err := UnmarshalValue(payload)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode batch frame", Err: err}
	}
	items, ok := v.([]any)
	if !ok {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("%s frame is not an array: %T", mode, v)}
	}
	if mode == types.ModeRow {
		for i, item := range items {
			if _, ok := item.([]any); !ok && item != nil {
				return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("row %d is not an array: %T", i, item)}
			}
		}
	}
	return items, nil
}

// ErrUnsupportedRecord is returned when a record cannot be written under
// the session's output encoding.
var ErrUnsupportedRecord = errors.New("record not supported by output encoding")

// RecordWriter writes one output frame per record (two for pairs).
type RecordWriter struct {
	enc      *Encoder
	encoding Encoding
	records  int64
}

// NewRecordWriter creates a writer for the given output encoding.
func NewRecordWriter(enc *Encoder, encoding Encoding) *RecordWriter {
	return &RecordWriter{enc: enc, encoding: encoding}
}

// Write encodes and writes one record. A nil record is written as NULL.
func (w *RecordWriter) Write(rec any) error {
	var err error
	switch {
	case w.encoding.Mode == types.ModePair:
		err = w.writePair(rec)
	case w.encoding.Mode.IsBatch():
		if w.encoding.Mode == types.ModeRow {
			if _, ok := rec.([]any); !ok && rec != nil {
				return fmt.Errorf("%w: row mode requires []any, got %T", ErrUnsupportedRecord, rec)
			}
		}
		err = w.writeValue(types.ModeByte, []any{rec})
	default:
		err = w.writeValue(w.encoding.Mode, rec)
	}
	if err != nil {
		return err
	}
	w.records++
	return nil
}

func (w *RecordWriter) writePair(rec any) error {
	p, ok := AsPair(rec)
	if !ok {
		return fmt.Errorf("%w: pair mode requires a key/value pair, got %T", ErrUnsupportedRecord, rec)
	}
	if err := w.writeValue(w.encoding.Key, p.Key); err != nil {
		return err
	}
	return w.writeValue(w.encoding.Value, p.Value)
}

func (w *RecordWriter) writeValue(mode types.SerializedMode, v any) error {
	if v == nil {
		return w.enc.WriteSentinel(Null)
	}
	payload, err := EncodeValue(mode, v)
	if err != nil {
		return err
	}
	return w.enc.WriteBytes(payload)
}

// Records returns the number of records written.
func (w *RecordWriter) Records() int64 {
	return w.records
}

// EncodeValue encodes one non-nil value under a non-expanding encoding.
func EncodeValue(mode types.SerializedMode, v any) ([]byte, error) {
	switch mode {
	case types.ModeNone, "":
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		default:
			return nil, fmt.Errorf("%w: mode none requires []byte, got %T", ErrUnsupportedRecord, v)
		}
	case types.ModeString:
		switch s := v.(type) {
		case string:
			return []byte(s), nil
		case []byte:
			return s, nil
		default:
			return []byte(fmt.Sprint(v)), nil
		}
	case types.ModeByte, types.ModePickling, types.ModeRow, types.ModePair:
		b, err := MarshalValue(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedRecord, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown serialized mode %q", ErrUnsupportedRecord, mode)
	}
}
