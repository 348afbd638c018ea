package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"runtime"
	"strings"
	"testing"
)

func TestPrimitives_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.WriteInt(-42); err != nil {
		t.Fatalf("WriteInt: %v", err)
	}
	if err := enc.WriteLong(1 << 40); err != nil {
		t.Fatalf("WriteLong: %v", err)
	}
	if err := enc.WriteString("héllo"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if err := enc.WriteNullString(); err != nil {
		t.Fatalf("WriteNullString: %v", err)
	}
	if err := enc.WriteBytes([]byte{1, 2, 3}); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}

	dec := NewDecoder(&buf)
	i, err := dec.ReadInt()
	if err != nil || i != -42 {
		t.Errorf("ReadInt() = %d, %v, want -42", i, err)
	}
	l, err := dec.ReadLong()
	if err != nil || l != 1<<40 {
		t.Errorf("ReadLong() = %d, %v, want %d", l, err, int64(1<<40))
	}
	s, err := dec.ReadString()
	if err != nil || s != "héllo" {
		t.Errorf("ReadString() = %q, %v, want %q", s, err, "héllo")
	}
	s, err = dec.ReadString()
	if err != nil || s != "" {
		t.Errorf("ReadString(null) = %q, %v, want empty", s, err)
	}
	b, err := dec.ReadBytes()
	if err != nil || !bytes.Equal(b, []byte{1, 2, 3}) {
		t.Errorf("ReadBytes() = %v, %v, want [1 2 3]", b, err)
	}
}

func TestPrimitives_BigEndian(t *testing.T) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).WriteInt(0x01020304); err != nil {
		t.Fatalf("WriteInt: %v", err)
	}
	if got := buf.Bytes(); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("encoded = %v, want [1 2 3 4]", got)
	}
}

func TestReadBytes_Incomplete(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	_ = enc.WriteInt(100)
	buf.Write([]byte("only ten b"))

	_, err := NewDecoder(&buf).ReadBytes()
	var incomplete *IncompleteReadError
	if !errors.As(err, &incomplete) {
		t.Fatalf("error = %v, want *IncompleteReadError", err)
	}
	if incomplete.Expected != 100 || incomplete.Actual != 10 {
		t.Errorf("Expected/Actual = %d/%d, want 100/10", incomplete.Expected, incomplete.Actual)
	}
	if !strings.Contains(err.Error(), "Incomplete bytes read: expected 100 bytes, got 10") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestReadFrame_TruncatedHugeFrame(t *testing.T) {
	input := binary.BigEndian.AppendUint32(nil, MaxFrameSize)
	input = append(input, "short"...)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := NewDecoder(bytes.NewReader(input)).ReadFrame()
	runtime.ReadMemStats(&after)

	var incomplete *IncompleteReadError
	if !errors.As(err, &incomplete) {
		t.Fatalf("error = %v, want *IncompleteReadError", err)
	}
	if incomplete.Expected != MaxFrameSize || incomplete.Actual != 5 {
		t.Errorf("Expected/Actual = %d/%d, want %d/5", incomplete.Expected, incomplete.Actual, MaxFrameSize)
	}
	if grew := after.TotalAlloc - before.TotalAlloc; grew > 8*payloadChunk {
		t.Errorf("allocated %d bytes for a 5-byte payload", grew)
	}
}

func TestReadFrame_MultiChunkPayload(t *testing.T) {
	want := bytes.Repeat([]byte("mobius"), payloadChunk)
	input := binary.BigEndian.AppendUint32(nil, uint32(len(want)))
	input = append(input, want...)

	f, err := NewDecoder(bytes.NewReader(input)).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if !bytes.Equal(f.Payload, want) {
		t.Errorf("payload length %d, want %d", len(f.Payload), len(want))
	}
}

func TestReadFrame_CleanEOF(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader(nil)).ReadFrame()
	if !errors.Is(err, io.EOF) {
		t.Errorf("error = %v, want io.EOF in chain", err)
	}
}

func TestReadFrame_Sentinels(t *testing.T) {
	for _, s := range []Sentinel{EndOfDataSection, ExceptionThrown, TimingData, EndOfStream, Null} {
		t.Run(s.String(), func(t *testing.T) {
			var buf bytes.Buffer
			_ = NewEncoder(&buf).WriteSentinel(s)
			f, err := NewDecoder(&buf).ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if !f.IsSentinel() || f.Sentinel != s {
				t.Errorf("frame = %+v, want sentinel %v", f, s)
			}
		})
	}
}

func TestReadFrame_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	_ = NewEncoder(&buf).WriteBytes(nil)
	f, err := NewDecoder(&buf).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.IsSentinel() || len(f.Payload) != 0 {
		t.Errorf("frame = %+v, want empty data frame", f)
	}
}

func TestReadFrame_InvalidLengths(t *testing.T) {
	tests := []struct {
		name  string
		n     int32
		kind  FrameErrorKind
		fatal bool
	}{
		{name: "unknown negative", n: -9, kind: FrameErrorDecode},
		{name: "too large", n: MaxFrameSize + 1, kind: FrameErrorTooLarge, fatal: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			_ = NewEncoder(&buf).WriteInt(tt.n)
			_, err := NewDecoder(&buf).ReadFrame()
			var frameErr *FrameError
			if !errors.As(err, &frameErr) {
				t.Fatalf("error = %v, want *FrameError", err)
			}
			if frameErr.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", frameErr.Kind, tt.kind)
			}
			if IsFatalFrameError(err) != tt.fatal {
				t.Errorf("IsFatalFrameError = %v, want %v", IsFatalFrameError(err), tt.fatal)
			}
		})
	}
}

type flushRecorder struct {
	bytes.Buffer
	flushed int
}

func (f *flushRecorder) Flush() error {
	f.flushed++
	return nil
}

func TestEncoder_Flush(t *testing.T) {
	w := &flushRecorder{}
	enc := NewEncoder(w)
	if err := enc.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if w.flushed != 1 {
		t.Errorf("flushed = %d, want 1", w.flushed)
	}
	if err := NewEncoder(io.Discard).Flush(); err != nil {
		t.Errorf("Flush on unbuffered writer: %v", err)
	}
}
