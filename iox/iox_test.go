package iox

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

type spyCloser struct{ closed bool }

func (s *spyCloser) Close() error { s.closed = true; return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseFunc(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.closed {
		t.Fatal("Close called before invoking returned func")
	}
	fn()
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestDiscardErr(t *testing.T) {
	called := false
	DiscardErr(func() error {
		called = true
		return errors.New("ignored")
	})
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestCountingReaderWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewCountingWriter(&buf)
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Write([]byte(" world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if w.Count() != 11 {
		t.Errorf("writer Count() = %d, want 11", w.Count())
	}

	r := NewCountingReader(&buf)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("read %q, want %q", got, "hello world")
	}
	if r.Count() != 11 {
		t.Errorf("reader Count() = %d, want 11", r.Count())
	}
}

type orderCloser struct {
	name  string
	order *[]string
	err   error
}

func (o orderCloser) Close() error {
	*o.order = append(*o.order, o.name)
	return o.err
}

func TestStack_ClosesInReverseAndJoinsErrors(t *testing.T) {
	var order []string
	errB := errors.New("b failed")
	errD := errors.New("d failed")

	var s Stack
	s.Push(orderCloser{"a", &order, nil})
	s.Push(orderCloser{"b", &order, errB})
	s.Push(nil)
	s.PushFunc(func() error { order = append(order, "c"); return nil })
	s.Push(orderCloser{"d", &order, errD})

	err := s.Close()
	if got := strings.Join(order, ","); got != "d,c,b,a" {
		t.Errorf("close order = %s, want d,c,b,a", got)
	}
	if !errors.Is(err, errB) || !errors.Is(err, errD) {
		t.Errorf("Close() error = %v, want both failures", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
}
