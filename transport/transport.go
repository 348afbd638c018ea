// Package transport provides the byte stream between the host and a worker.
//
// Two backends are available: TCP loopback sockets (the reference backend)
// and AF_VSOCK for workers running inside microVMs. Connections are
// buffered; callers must Flush (or Close) after writing.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/mdlayher/vsock"
)

// Backend selects the socket family.
type Backend string

const (
	// BackendTCP uses loopback TCP sockets.
	BackendTCP Backend = "tcp"
	// BackendVsock uses AF_VSOCK sockets.
	BackendVsock Backend = "vsock"
)

// ParseBackend parses a backend name. "normal" is accepted as an alias
// for tcp and the empty string selects tcp.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tcp", "normal":
		return BackendTCP, nil
	case "vsock":
		return BackendVsock, nil
	default:
		return "", fmt.Errorf("unknown transport backend %q (expected tcp or vsock)", s)
	}
}

// Transport creates listeners and connections for one backend.
type Transport struct {
	cfg Config
}

// New creates a transport for cfg.
func New(cfg Config) (*Transport, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Transport{cfg: cfg}, nil
}

// Config returns the transport configuration.
func (t *Transport) Config() Config {
	return t.cfg
}

// Listen opens a listener.
//
// For tcp, address is "host:port", a bare port, or "" for an ephemeral
// loopback port. For vsock, address is a port number.
func (t *Transport) Listen(address string) (*Listener, error) {
	switch t.cfg.Backend {
	case BackendVsock:
		port, err := parseVsockPort(address)
		if err != nil {
			return nil, err
		}
		ln, err := vsock.Listen(port, nil)
		if err != nil {
			return nil, classify("listen", err)
		}
		return &Listener{ln: ln, cfg: t.cfg}, nil
	default:
		ln, err := net.Listen("tcp", tcpAddress(address, "127.0.0.1:0"))
		if err != nil {
			return nil, classify("listen", err)
		}
		return &Listener{ln: ln, cfg: t.cfg}, nil
	}
}

// Connect dials address, retrying with exponential backoff while the peer
// is not yet listening.
//
// For tcp, address is "host:port" or a bare port on loopback. For vsock,
// address is "cid:port" or a bare port on the host context.
func (t *Transport) Connect(ctx context.Context, address string) (*Conn, error) {
	var lastErr error
	backoff := t.cfg.ConnectBackoff

	for attempt := range t.cfg.ConnectAttempts {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect %s: %w", address, ctx.Err())
		default:
		}

		c, err := t.dial(ctx, address)
		if err != nil {
			lastErr = err
			if attempt < t.cfg.ConnectAttempts-1 {
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return nil, fmt.Errorf("connect %s: %w", address, ctx.Err())
				}
				backoff *= 2
			}
			continue
		}
		return newConn(c, t.cfg), nil
	}

	return nil, fmt.Errorf("connect %s after %d attempts: %w", address, t.cfg.ConnectAttempts, lastErr)
}

func (t *Transport) dial(ctx context.Context, address string) (net.Conn, error) {
	switch t.cfg.Backend {
	case BackendVsock:
		cid, port, err := parseVsockAddress(address)
		if err != nil {
			return nil, err
		}
		c, err := vsock.Dial(cid, port, nil)
		if err != nil {
			return nil, classify("connect", err)
		}
		return c, nil
	default:
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", tcpAddress(address, ""))
		if err != nil {
			return nil, classify("connect", err)
		}
		return c, nil
	}
}

// Listener accepts worker connections.
type Listener struct {
	ln  net.Listener
	cfg Config
}

// aLongTimeAgo is a non-zero time far in the past, used to unblock Accept.
var aLongTimeAgo = time.Unix(1, 0)

type deadliner interface {
	SetDeadline(time.Time) error
}

// Accept waits for the next connection. It is bounded by the configured
// accept timeout (ErrTimeout) and by ctx.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	if dl, ok := l.ln.(deadliner); ok {
		var deadline time.Time
		if l.cfg.AcceptTimeout > 0 {
			deadline = time.Now().Add(l.cfg.AcceptTimeout)
		}
		if err := dl.SetDeadline(deadline); err != nil {
			return nil, classify("accept", err)
		}
		stop := context.AfterFunc(ctx, func() { _ = dl.SetDeadline(aLongTimeAgo) })
		defer stop()
	}

	c, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("accept: %w", ctx.Err())
		}
		return nil, classify("accept", err)
	}
	return newConn(c, l.cfg), nil
}

// Addr returns the listening address in the form accepted by Connect.
func (l *Listener) Addr() string {
	switch a := l.ln.Addr().(type) {
	case *vsock.Addr:
		return fmt.Sprintf("%d:%d", a.ContextID, a.Port)
	default:
		return a.String()
	}
}

// Port returns the listening port.
func (l *Listener) Port() int {
	switch a := l.ln.Addr().(type) {
	case *net.TCPAddr:
		return a.Port
	case *vsock.Addr:
		return int(a.Port)
	default:
		return 0
	}
}

// Close stops listening.
func (l *Listener) Close() error {
	err := l.ln.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return classify("close", err)
	}
	return nil
}

func tcpAddress(address, fallback string) string {
	if address == "" {
		return fallback
	}
	if _, err := strconv.Atoi(address); err == nil {
		return net.JoinHostPort("127.0.0.1", address)
	}
	return address
}

func parseVsockPort(s string) (uint32, error) {
	port, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid vsock port %q: %w", s, err)
	}
	return uint32(port), nil
}

func parseVsockAddress(address string) (uint32, uint32, error) {
	cidPart, portPart, found := strings.Cut(address, ":")
	if !found {
		port, err := parseVsockPort(address)
		return vsock.Host, port, err
	}
	cid, err := strconv.ParseUint(cidPart, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid vsock context id %q: %w", cidPart, err)
	}
	port, err := parseVsockPort(portPart)
	if err != nil {
		return 0, 0, err
	}
	return uint32(cid), port, nil
}
