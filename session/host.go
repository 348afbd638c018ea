package session

import (
	"errors"
	"fmt"

	"github.com/cite-sa/MobiusCore/accumulator"
	"github.com/cite-sa/MobiusCore/ipc"
)

// Output is what the host reads back from a session, up to the
// accumulator updates.
type Output struct {
	Records      []any
	Timing       Timing
	Accumulators []accumulator.Entry
	// Exception is the failure text when the worker reported a fault.
	Exception string
}

// ReadOutput reads a session's output the way the host does: data frames
// under encoding, then either an exception frame or the timing block,
// END_OF_DATA_SECTION and the accumulator updates. The host then sends
// its trailing marker and reads the answer with ReadAnswer.
func ReadOutput(dec *ipc.Decoder, encoding ipc.Encoding) (*Output, error) {
	out := &Output{}
	reader := ipc.NewRecordReader(dec, encoding)
	for reader.Next() {
		out.Records = append(out.Records, reader.Record())
	}

	var se *ipc.SentinelError
	if err := reader.Err(); !errors.As(err, &se) {
		if err == nil {
			return out, errors.New("output ended without timing data")
		}
		return out, err
	}

	switch se.Sentinel {
	case ipc.ExceptionThrown:
		msg, err := dec.ReadString()
		if err != nil {
			return out, err
		}
		out.Exception = msg
		return out, nil
	case ipc.TimingData:
	default:
		return out, se
	}

	fields := []*int64{
		&out.Timing.BootTime,
		&out.Timing.InitTime,
		&out.Timing.FinishTime,
		&out.Timing.MemoryBytesSpilled,
		&out.Timing.DiskBytesSpilled,
	}
	for _, f := range fields {
		v, err := dec.ReadLong()
		if err != nil {
			return out, err
		}
		*f = v
	}

	marker, err := dec.ReadInt()
	if err != nil {
		return out, err
	}
	if marker != int32(ipc.EndOfDataSection) {
		return out, fmt.Errorf("expected END_OF_DATA_SECTION after timing data, got %d", marker)
	}

	n, err := dec.ReadInt()
	if err != nil {
		return out, err
	}
	for range n {
		b, err := dec.ReadBytes()
		if err != nil {
			return out, err
		}
		e, err := accumulator.UnmarshalEntry(b)
		if err != nil {
			return out, fmt.Errorf("decode accumulator update: %w", err)
		}
		out.Accumulators = append(out.Accumulators, e)
	}
	return out, nil
}

// ReadAnswer reads the worker's reply to the host's trailing marker and
// reports whether the worker stays reusable.
func ReadAnswer(dec *ipc.Decoder) (bool, error) {
	marker, err := dec.ReadInt()
	if err != nil {
		return false, err
	}
	switch ipc.Sentinel(marker) {
	case ipc.EndOfStream:
		return true, nil
	case ipc.EndOfDataSection:
		return false, nil
	}
	return false, fmt.Errorf("unexpected end-of-session marker %d", marker)
}
