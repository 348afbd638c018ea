package worker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// EnvFactoryPort names the environment variable carrying the host's port.
const EnvFactoryPort = "MOBIUS_WORKER_FACTORY_PORT"

// ErrNoPort is returned when no source supplies a port.
var ErrNoPort = errors.New("no port: pass --port, write it to stdin or set " + EnvFactoryPort)

// ResolvePort returns the address the worker connects to. Sources in
// order: flag, the first line of stdin, then EnvFactoryPort. stdin and
// lookup may be nil.
//
// A numeric value must be a valid port. Anything else (host:port, or a
// vsock cid:port) is passed through to the transport unchanged.
func ResolvePort(flag string, stdin io.Reader, lookup func(string) (string, bool)) (string, error) {
	if v := strings.TrimSpace(flag); v != "" {
		return validatePort("--port", v)
	}
	if stdin != nil {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read port from stdin: %w", err)
		}
		if v := strings.TrimSpace(line); v != "" {
			return validatePort("stdin", v)
		}
	}
	if lookup != nil {
		if v, ok := lookup(EnvFactoryPort); ok && strings.TrimSpace(v) != "" {
			return validatePort(EnvFactoryPort, strings.TrimSpace(v))
		}
	}
	return "", ErrNoPort
}

func validatePort(source, v string) (string, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return v, nil
	}
	if n < 1 || n > 65535 {
		return "", fmt.Errorf("%s: port %d out of range", source, n)
	}
	return v, nil
}
