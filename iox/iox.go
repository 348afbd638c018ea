// Package iox holds small I/O helpers: close-and-ignore wrappers for
// defers and test cleanups, a LIFO closer stack, and byte counters.
package iox

import (
	"errors"
	"io"
)

// DiscardClose closes c, ignoring the error. For defers where a close
// failure changes nothing:
//
//	defer iox.DiscardClose(conn)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc adapts c for t.Cleanup:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { DiscardClose(c) }
}

// DiscardErr runs fn, ignoring its error:
//
//	defer iox.DiscardErr(w.Flush)
func DiscardErr(fn func() error) { _ = fn() }

// Stack closes resources in the reverse order they were pushed. The zero
// value is ready to use; it is not safe for concurrent use.
type Stack struct {
	fns []func() error
}

// Push adds c. Nil closers are skipped.
func (s *Stack) Push(c io.Closer) {
	if c != nil {
		s.fns = append(s.fns, c.Close)
	}
}

// PushFunc adds fn.
func (s *Stack) PushFunc(fn func() error) {
	s.fns = append(s.fns, fn)
}

// Close runs every pushed closer, last first, and joins their errors.
// The stack is empty afterwards.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.fns) - 1; i >= 0; i-- {
		if err := s.fns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.fns = nil
	return errors.Join(errs...)
}
