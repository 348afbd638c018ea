package session

import (
	"github.com/cite-sa/MobiusCore/accumulator"
	"github.com/cite-sa/MobiusCore/ipc"
)

// writeTail writes the session tail in the order the host reads it:
// timing block, END_OF_DATA_SECTION, accumulator updates. It then reads
// the host's trailing marker and answers it. The returned flag reports
// whether the host ended with END_OF_STREAM.
func writeTail(dec *ipc.Decoder, enc *ipc.Encoder, timing Timing, updates []accumulator.Entry) (bool, error) {
	if err := enc.WriteSentinel(ipc.TimingData); err != nil {
		return false, err
	}
	for _, v := range []int64{
		timing.BootTime,
		timing.InitTime,
		timing.FinishTime,
		timing.MemoryBytesSpilled,
		timing.DiskBytesSpilled,
	} {
		if err := enc.WriteLong(v); err != nil {
			return false, err
		}
	}
	if err := enc.WriteSentinel(ipc.EndOfDataSection); err != nil {
		return false, err
	}

	if err := enc.WriteInt(int32(len(updates))); err != nil {
		return false, err
	}
	for _, u := range updates {
		b, err := accumulator.MarshalEntry(u)
		if err != nil {
			return false, err
		}
		if err := enc.WriteBytes(b); err != nil {
			return false, err
		}
	}
	if err := enc.Flush(); err != nil {
		return false, err
	}

	marker, err := dec.ReadInt()
	if err != nil {
		return false, err
	}
	reusable := marker == int32(ipc.EndOfStream)
	answer := ipc.EndOfDataSection
	if reusable {
		answer = ipc.EndOfStream
	}
	if err := enc.WriteSentinel(answer); err != nil {
		return false, err
	}
	return reusable, enc.Flush()
}

// writeException reports a failure to the host.
func writeException(enc *ipc.Encoder, msg string) error {
	if err := enc.WriteSentinel(ipc.ExceptionThrown); err != nil {
		return err
	}
	if err := enc.WriteString(msg); err != nil {
		return err
	}
	return enc.Flush()
}
