package command

import (
	"errors"
	"fmt"
)

// ErrMalformedCommand is returned when a command cannot be decoded or
// names something the worker cannot run.
var ErrMalformedCommand = errors.New("malformed command")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedCommand, fmt.Sprintf(format, args...))
}

// UserFunctionError reports a registered function that returned an error
// or panicked.
type UserFunctionError struct {
	// Func is the registered function name.
	Func string
	// Stage is the index of the stage within its command.
	Stage int
	// Err is the returned error, or a description of the panic.
	Err error
	// Panic holds the recovered value when the function panicked.
	Panic any
}

func (e *UserFunctionError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("function %q (stage %d) panicked: %v", e.Func, e.Stage, e.Panic)
	}
	return fmt.Sprintf("function %q (stage %d): %v", e.Func, e.Stage, e.Err)
}

func (e *UserFunctionError) Unwrap() error {
	return e.Err
}

// invoke calls fn and converts an error or a panic into a
// UserFunctionError.
func invoke[T any](name string, stage int, fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out = zero
			err = &UserFunctionError{Func: name, Stage: stage, Err: fmt.Errorf("panic: %v", r), Panic: r}
		}
	}()
	out, err = fn()
	if err != nil {
		var ufe *UserFunctionError
		if !errors.As(err, &ufe) {
			err = &UserFunctionError{Func: name, Stage: stage, Err: err}
		}
	}
	return out, err
}

func errNotPair(rec any) error {
	return fmt.Errorf("record %T is not a (key, value) pair", rec)
}
