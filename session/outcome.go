package session

import (
	"errors"
	"time"

	"github.com/cite-sa/MobiusCore/accumulator"
	"github.com/cite-sa/MobiusCore/ipc"
	"github.com/cite-sa/MobiusCore/types"
)

// Worker process exit codes.
const (
	ExitCodeOK      = 0 // session completed, or input truncated
	ExitCodeFault   = 1 // session fault, exception frame written when possible
	ExitCodeStartup = 2 // configuration, port or connect failure
)

// Timing is the TIMING_DATA block written at the end of a session.
// Times are unix milliseconds.
type Timing struct {
	BootTime           int64
	InitTime           int64
	FinishTime         int64
	MemoryBytesSpilled int64
	DiskBytesSpilled   int64
}

// Result is the outcome of one session.
type Result struct {
	// Meta is the session identity.
	Meta *types.SessionMeta
	// Header is the session header, nil if it could not be read.
	Header *Header
	// Outcome classifies the session.
	Outcome *types.SessionOutcome
	// ExitCode is the process exit code this session maps to.
	ExitCode int
	// Reusable is true when the host ended the session with END_OF_STREAM.
	Reusable bool
	// RecordsIn and RecordsOut count data records.
	RecordsIn  int64
	RecordsOut int64
	// Accumulators holds the reported accumulator values.
	Accumulators []accumulator.Entry
	// Timing is the reported timing block.
	Timing Timing
	// Duration is the wall time of the session.
	Duration time.Duration
	// Err is the session failure, nil on success.
	Err error
}

// determineOutcome maps a session error to its outcome and exit code.
func determineOutcome(err error) (*types.SessionOutcome, int) {
	if err == nil {
		return &types.SessionOutcome{
			Status:  types.OutcomeCompleted,
			Message: "session completed",
		}, ExitCodeOK
	}

	var phase string
	var se *Error
	if errors.As(err, &se) {
		phase = string(se.Phase)
	}
	if IsTruncated(err) {
		return &types.SessionOutcome{
			Status:  types.OutcomeTruncated,
			Message: ErrInputTruncated.Error(),
			Phase:   phase,
		}, ExitCodeOK
	}
	return &types.SessionOutcome{
		Status:  types.OutcomeFault,
		Message: err.Error(),
		Phase:   phase,
	}, ExitCodeFault
}

// isFrameError reports whether err came from a malformed frame.
func isFrameError(err error) bool {
	var fe *ipc.FrameError
	var se *ipc.SentinelError
	return errors.As(err, &fe) || errors.As(err, &se)
}
