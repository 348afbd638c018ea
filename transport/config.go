package transport

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvSocketType      = "MOBIUS_WORKER_SOCKET_TYPE"
	EnvReadBufferSize  = "MOBIUS_WORKER_READ_BUFFER_SIZE"
	EnvWriteBufferSize = "MOBIUS_WORKER_WRITE_BUFFER_SIZE"
	EnvReadTimeout     = "MOBIUS_WORKER_READ_TIMEOUT"
	EnvAcceptTimeout   = "MOBIUS_WORKER_ACCEPT_TIMEOUT"
)

// Defaults.
const (
	DefaultBufferSize      = 64 * 1024
	DefaultConnectAttempts = 5
	DefaultConnectBackoff  = 100 * time.Millisecond
)

// Config configures a Transport.
type Config struct {
	Backend         Backend
	ReadBufferSize  int
	WriteBufferSize int
	// ReadTimeout bounds each blocking read. Zero means no bound.
	ReadTimeout time.Duration
	// AcceptTimeout bounds each Accept. Zero means no bound.
	AcceptTimeout   time.Duration
	ConnectAttempts int
	ConnectBackoff  time.Duration
}

// DefaultConfig returns the tcp backend with 64 KiB buffers and no timeouts.
func DefaultConfig() Config {
	return Config{
		Backend:         BackendTCP,
		ReadBufferSize:  DefaultBufferSize,
		WriteBufferSize: DefaultBufferSize,
		ConnectAttempts: DefaultConnectAttempts,
		ConnectBackoff:  DefaultConnectBackoff,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = d.ConnectAttempts
	}
	if c.ConnectBackoff <= 0 {
		c.ConnectBackoff = d.ConnectBackoff
	}
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return err
	}
	if c.ReadBufferSize <= 0 || c.WriteBufferSize <= 0 {
		return fmt.Errorf("buffer sizes must be positive (read=%d, write=%d)", c.ReadBufferSize, c.WriteBufferSize)
	}
	if c.ReadTimeout < 0 || c.AcceptTimeout < 0 {
		return fmt.Errorf("timeouts must be non-negative")
	}
	if c.ConnectAttempts <= 0 {
		return fmt.Errorf("connect attempts must be positive, got %d", c.ConnectAttempts)
	}
	return nil
}

// ApplyEnv overlays environment settings onto c. lookup is usually
// os.LookupEnv.
func (c Config) ApplyEnv(lookup func(string) (string, bool)) (Config, error) {
	c = c.withDefaults()
	if v, ok := lookup(EnvSocketType); ok && v != "" {
		b, err := ParseBackend(v)
		if err != nil {
			return c, fmt.Errorf("%s: %w", EnvSocketType, err)
		}
		c.Backend = b
	}
	var err error
	if c.ReadBufferSize, err = envInt(lookup, EnvReadBufferSize, c.ReadBufferSize); err != nil {
		return c, err
	}
	if c.WriteBufferSize, err = envInt(lookup, EnvWriteBufferSize, c.WriteBufferSize); err != nil {
		return c, err
	}
	if c.ReadTimeout, err = envDuration(lookup, EnvReadTimeout, c.ReadTimeout); err != nil {
		return c, err
	}
	if c.AcceptTimeout, err = envDuration(lookup, EnvAcceptTimeout, c.AcceptTimeout); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func envInt(lookup func(string) (string, bool), key string, def int) (int, error) {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return def, fmt.Errorf("%s: expected positive integer, got %q", key, v)
	}
	return n, nil
}

// envDuration accepts a Go duration ("30s") or a bare number of seconds.
func envDuration(lookup func(string) (string, bool), key string, def time.Duration) (time.Duration, error) {
	v, ok := lookup(key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return def, fmt.Errorf("%s: must be non-negative, got %q", key, v)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}
