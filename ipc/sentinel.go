// Package ipc implements the worker wire protocol: big-endian primitives,
// sentinel lengths and the record encodings carried inside data frames.
package ipc

import "fmt"

// Sentinel is a reserved negative int32 written in place of a frame length.
type Sentinel int32

// Sentinel lengths. They carry no payload of their own.
const (
	// EndOfDataSection marks the end of a data stream.
	EndOfDataSection Sentinel = -1
	// ExceptionThrown is followed by a string describing a worker failure.
	ExceptionThrown Sentinel = -2
	// TimingData is followed by five int64 timing/spill fields.
	TimingData Sentinel = -3
	// EndOfStream marks the end of a session.
	EndOfStream Sentinel = -4
	// Null marks an absent value inside pair encodings.
	Null Sentinel = -5
)

// Frame size limits.
const (
	// MaxFrameSize is the largest declared length accepted (256 MiB).
	MaxFrameSize = 256 * 1024 * 1024
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// IsSentinel reports whether n is a recognized sentinel length.
func IsSentinel(n int32) bool {
	return n <= int32(EndOfDataSection) && n >= int32(Null)
}

func (s Sentinel) String() string {
	switch s {
	case EndOfDataSection:
		return "END_OF_DATA_SECTION"
	case ExceptionThrown:
		return "DOTNET_EXCEPTION_THROWN"
	case TimingData:
		return "TIMING_DATA"
	case EndOfStream:
		return "END_OF_STREAM"
	case Null:
		return "NULL"
	default:
		return fmt.Sprintf("Sentinel(%d)", int32(s))
	}
}
