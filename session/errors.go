package session

import (
	"errors"
	"fmt"
	"io"

	"github.com/cite-sa/MobiusCore/transport"
)

// Phase names a state of the session state machine.
type Phase string

// Session phases, in order.
const (
	PhaseReadHeader     Phase = "read_header"
	PhaseReadBroadcasts Phase = "read_broadcasts"
	PhaseReadCommand    Phase = "read_command"
	PhaseStreamRecords  Phase = "stream_records"
	PhaseFinalize       Phase = "finalize"
)

// ErrInputTruncated is returned when the input closes before
// END_OF_DATA_SECTION.
var ErrInputTruncated = errors.New("input closed before end of data section")

// Error wraps a session failure with the phase it occurred in.
type Error struct {
	Phase Phase
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTruncated reports whether err is an input truncation.
func IsTruncated(err error) bool {
	return errors.Is(err, ErrInputTruncated)
}

// closedInput reports whether err means the peer closed the input.
func closedInput(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, transport.ErrConnectionClosed)
}
