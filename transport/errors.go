package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// Sentinel errors for errors.Is checks.
var (
	// ErrTimeout reports an exceeded accept or read bound.
	ErrTimeout = errors.New("transport timeout")
	// ErrConnectionClosed reports a peer that closed the connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// ErrorKind classifies transport errors.
type ErrorKind int

const (
	// KindOther is any failure not covered below.
	KindOther ErrorKind = iota
	// KindTimeout indicates a deadline was exceeded.
	KindTimeout
	// KindClosed indicates the connection was closed or reset.
	KindClosed
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindClosed:
		return "closed"
	default:
		return "other"
	}
}

// Error is a classified transport failure.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches ErrTimeout and ErrConnectionClosed by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrConnectionClosed:
		return e.Kind == KindClosed
	}
	return false
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	kind := KindOther
	var netErr net.Error
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		kind = KindClosed
	}
	return &Error{Op: op, Kind: kind, Err: err}
}
