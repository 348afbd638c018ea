package ipc

import (
	"errors"
	"fmt"
)

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a declared length above MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a malformed length or payload.
	FrameErrorDecode
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorPartial:
		return "partial"
	case FrameErrorTooLarge:
		return "too_large"
	case FrameErrorDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if this error is fatal (terminate session).
// Partial and oversized frames leave the stream unsynchronized.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// IncompleteReadError reports a stream that ended before a declared
// number of bytes could be read.
type IncompleteReadError struct {
	Expected int
	Actual   int
	Err      error
}

func (e *IncompleteReadError) Error() string {
	return fmt.Sprintf("Incomplete bytes read: expected %d bytes, got %d", e.Expected, e.Actual)
}

func (e *IncompleteReadError) Unwrap() error {
	return e.Err
}

// SentinelError reports a sentinel read where a data frame was required.
type SentinelError struct {
	Sentinel Sentinel
}

func (e *SentinelError) Error() string {
	return fmt.Sprintf("unexpected %s in data section", e.Sentinel)
}
