package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
	"slices"
)

// Frame is either a data payload or the sentinel that replaced its length.
type Frame struct {
	Payload  []byte
	Sentinel Sentinel
}

// IsSentinel reports whether the frame carried a sentinel instead of data.
func (f Frame) IsSentinel() bool {
	return f.Sentinel != 0
}

// payloadChunk bounds the allocation made ahead of payload bytes.
const payloadChunk = 64 * 1024

// Decoder reads protocol primitives from a stream.
type Decoder struct {
	reader io.Reader
	buf    [8]byte
}

// NewDecoder creates a new primitive decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: r}
}

// readFull reads exactly len(p) bytes.
// A short read returns *IncompleteReadError wrapping the underlying error,
// so errors.Is(err, io.EOF) still detects a clean end of stream.
func (d *Decoder) readFull(p []byte) error {
	n, err := io.ReadFull(d.reader, p)
	if err != nil {
		return &IncompleteReadError{Expected: len(p), Actual: n, Err: err}
	}
	return nil
}

// ReadInt reads a big-endian int32.
func (d *Decoder) ReadInt() (int32, error) {
	if err := d.readFull(d.buf[:4]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(d.buf[:4])), nil
}

// ReadLong reads a big-endian int64.
func (d *Decoder) ReadLong() (int64, error) {
	if err := d.readFull(d.buf[:8]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(d.buf[:8])), nil
}

// ReadString reads a length-prefixed UTF-8 string.
// A length of -1 denotes null and yields the empty string.
func (d *Decoder) ReadString() (string, error) {
	n, err := d.ReadInt()
	if err != nil {
		return "", err
	}
	if n == -1 {
		return "", nil
	}
	b, err := d.readPayload(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadBytes reads a length-prefixed byte slice. Sentinel lengths are
// rejected; use ReadFrame where a sentinel may appear.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadInt()
	if err != nil {
		return nil, err
	}
	return d.readPayload(n)
}

// ReadFrame reads one frame: either a payload or a recognized sentinel.
//
// Errors:
//   - *IncompleteReadError: stream ended inside the frame (wraps io.EOF
//     when it ended cleanly before the length prefix)
//   - *FrameError with Kind=FrameErrorTooLarge: declared length above MaxFrameSize
//   - *FrameError with Kind=FrameErrorDecode: unknown negative length
func (d *Decoder) ReadFrame() (Frame, error) {
	n, err := d.ReadInt()
	if err != nil {
		return Frame{}, err
	}
	if n < 0 && IsSentinel(n) {
		return Frame{Sentinel: Sentinel(n)}, nil
	}
	payload, err := d.readPayload(n)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Payload: payload}, nil
}

func (d *Decoder) readPayload(n int32) ([]byte, error) {
	if n < 0 {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  fmt.Sprintf("invalid length %d", n),
		}
	}
	if n > MaxFrameSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("length %d exceeds maximum %d", n, MaxFrameSize),
		}
	}
	if n <= payloadChunk {
		payload := make([]byte, n)
		if err := d.readFull(payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
	// Large frames grow with the bytes that actually arrive.
	payload := make([]byte, 0, payloadChunk)
	for len(payload) < int(n) {
		step := min(int(n)-len(payload), payloadChunk)
		payload = slices.Grow(payload, step)
		got, err := io.ReadFull(d.reader, payload[len(payload):len(payload)+step])
		payload = payload[:len(payload)+got]
		if err != nil {
			return nil, &IncompleteReadError{Expected: int(n), Actual: len(payload), Err: err}
		}
	}
	return payload, nil
}

// Encoder writes protocol primitives to a stream.
type Encoder struct {
	writer io.Writer
	buf    [8]byte
}

// NewEncoder creates a new primitive encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{writer: w}
}

// WriteInt writes a big-endian int32.
func (e *Encoder) WriteInt(v int32) error {
	binary.BigEndian.PutUint32(e.buf[:4], uint32(v))
	_, err := e.writer.Write(e.buf[:4])
	return err
}

// WriteLong writes a big-endian int64.
func (e *Encoder) WriteLong(v int64) error {
	binary.BigEndian.PutUint64(e.buf[:8], uint64(v))
	_, err := e.writer.Write(e.buf[:8])
	return err
}

// WriteString writes a length-prefixed UTF-8 string.
func (e *Encoder) WriteString(s string) error {
	return e.WriteBytes([]byte(s))
}

// WriteNullString writes the null string marker.
func (e *Encoder) WriteNullString() error {
	return e.WriteInt(-1)
}

// WriteBytes writes a length-prefixed byte slice as one data frame.
func (e *Encoder) WriteBytes(b []byte) error {
	if len(b) > MaxFrameSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("length %d exceeds maximum %d", len(b), MaxFrameSize),
		}
	}
	if err := e.WriteInt(int32(len(b))); err != nil {
		return err
	}
	_, err := e.writer.Write(b)
	return err
}

// WriteSentinel writes a sentinel in place of a frame length.
func (e *Encoder) WriteSentinel(s Sentinel) error {
	return e.WriteInt(int32(s))
}

// Flush flushes the underlying writer if it buffers.
func (e *Encoder) Flush() error {
	if f, ok := e.writer.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
