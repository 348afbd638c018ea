package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"time"

	"github.com/cite-sa/MobiusCore/iox"
)

// Conn is a buffered, bidirectional worker connection.
//
// Read follows the io.Reader contract and returns io.EOF unchanged when the
// peer closes; every other failure is a classified *Error.
type Conn struct {
	conn        net.Conn
	in          *iox.CountingReader
	out         *iox.CountingWriter
	reader      *bufio.Reader
	writer      *bufio.Writer
	readTimeout time.Duration
}

func newConn(c net.Conn, cfg Config) *Conn {
	in := iox.NewCountingReader(c)
	out := iox.NewCountingWriter(c)
	return &Conn{
		conn:        c,
		in:          in,
		out:         out,
		reader:      bufio.NewReaderSize(in, cfg.ReadBufferSize),
		writer:      bufio.NewWriterSize(out, cfg.WriteBufferSize),
		readTimeout: cfg.ReadTimeout,
	}
}

// NewConn wraps an established net.Conn (for example one end of net.Pipe).
func NewConn(c net.Conn, cfg Config) *Conn {
	return newConn(c, cfg.withDefaults())
}

func (c *Conn) Read(p []byte) (int, error) {
	if c.readTimeout > 0 && c.reader.Buffered() == 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, classify("read", err)
		}
	}
	n, err := c.reader.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, classify("read", err)
	}
	return n, err
}

// ReadFull reads exactly n bytes. A peer close before n bytes is
// ErrConnectionClosed.
func (c *Conn) ReadFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c, buf); err != nil {
		return nil, classify("read", err)
	}
	return buf, nil
}

// Write buffers p for sending.
func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.writer.Write(p)
	if err != nil {
		return n, classify("write", err)
	}
	return n, nil
}

// Flush sends buffered output.
func (c *Conn) Flush() error {
	if err := c.writer.Flush(); err != nil {
		return classify("flush", err)
	}
	return nil
}

// CloseWrite flushes and half-closes the sending side where the backend
// supports it, so the peer observes end of stream while replies can still
// be read.
func (c *Conn) CloseWrite() error {
	if err := c.Flush(); err != nil {
		return err
	}
	if cw, ok := c.conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return classify("close_write", err)
		}
		return nil
	}
	return c.Close()
}

// Close flushes pending output and closes the connection.
func (c *Conn) Close() error {
	flushErr := c.writer.Flush()
	closeErr := c.conn.Close()
	if closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
		return classify("close", closeErr)
	}
	if flushErr != nil {
		return classify("flush", flushErr)
	}
	return nil
}

// BytesRead returns the number of bytes received from the peer.
func (c *Conn) BytesRead() int64 {
	return c.in.Count()
}

// BytesWritten returns the number of bytes delivered to the peer.
func (c *Conn) BytesWritten() int64 {
	return c.out.Count()
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
