package driver

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cite-sa/MobiusCore/session"
	"github.com/cite-sa/MobiusCore/transport"
	"github.com/cite-sa/MobiusCore/types"
)

// DetermineOutcome classifies a task from the worker's exit code and what
// it reported on the wire.
//
// Exit code mapping:
//   - 0 with a complete tail: completed
//   - 0 without a tail: truncated (the worker saw its input close early)
//   - 1 with an exception frame: fault
//   - 1 without one, 2, or anything else: crash
func DetermineOutcome(r *TaskResult) *types.SessionOutcome {
	switch r.ExitCode {
	case session.ExitCodeOK:
		if r.ReadErr == nil {
			return &types.SessionOutcome{Status: types.OutcomeCompleted, Message: "task completed"}
		}
		if closedEarly(r.ReadErr) {
			return &types.SessionOutcome{Status: types.OutcomeTruncated, Message: "worker input closed before end of data"}
		}
		return &types.SessionOutcome{
			Status:  types.OutcomeCrash,
			Message: fmt.Sprintf("worker exited cleanly with unreadable output: %v", r.ReadErr),
		}

	case session.ExitCodeFault:
		if r.Exception != "" {
			return &types.SessionOutcome{
				Status:  types.OutcomeFault,
				Message: r.Exception,
				Phase:   exceptionPhase(r.Exception),
			}
		}
		return &types.SessionOutcome{Status: types.OutcomeCrash, Message: "worker failed without reporting an exception"}

	case session.ExitCodeStartup:
		return &types.SessionOutcome{Status: types.OutcomeCrash, Message: "worker failed to start"}

	default:
		return &types.SessionOutcome{
			Status:  types.OutcomeCrash,
			Message: fmt.Sprintf("worker exited with unexpected code %d", r.ExitCode),
		}
	}
}

func closedEarly(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, transport.ErrConnectionClosed)
}

// exceptionPhase extracts the session phase prefix of an exception text.
func exceptionPhase(msg string) string {
	prefix, _, ok := strings.Cut(msg, ": ")
	if !ok {
		return ""
	}
	switch session.Phase(prefix) {
	case session.PhaseReadHeader, session.PhaseReadBroadcasts, session.PhaseReadCommand,
		session.PhaseStreamRecords, session.PhaseFinalize:
		return prefix
	}
	return ""
}
