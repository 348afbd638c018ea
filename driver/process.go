package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/cite-sa/MobiusCore/transport"
)

// EnvFactoryPort carries the port the worker connects back to.
const EnvFactoryPort = "MOBIUS_WORKER_FACTORY_PORT"

// WorkerConfig configures one worker launch.
type WorkerConfig struct {
	// Path is the worker binary.
	Path string
	// Args are extra command line arguments.
	Args []string
	// Env is appended to the inherited environment.
	Env []string
	// Port is the driver's listening port.
	Port int
	// Backend is the transport the worker must use.
	Backend transport.Backend
}

// WorkerExit is how a worker process ended.
type WorkerExit struct {
	// ExitCode is the process exit code, -1 if it died from a signal.
	ExitCode int
	// Stderr is the captured diagnostic output.
	Stderr []byte
}

// Worker abstracts a worker's lifecycle so tests can run it in process.
type Worker interface {
	Start(ctx context.Context) error
	Wait() (*WorkerExit, error)
	Kill() error
}

// ProcessFactory creates a Worker.
type ProcessFactory func(cfg *WorkerConfig) Worker

// WorkerProcess runs the worker as a child process. The port is passed in
// the environment and as the first line of stdin; stderr is captured.
type WorkerProcess struct {
	config *WorkerConfig
	cmd    *exec.Cmd
	stderr bytes.Buffer
}

// NewWorkerProcess creates a worker process for cfg.
func NewWorkerProcess(cfg *WorkerConfig) Worker {
	return &WorkerProcess{config: cfg}
}

// Start launches the process and hands it the port.
func (w *WorkerProcess) Start(ctx context.Context) error {
	if w.config.Path == "" {
		return errors.New("worker path is required")
	}
	w.cmd = exec.CommandContext(ctx, w.config.Path, w.config.Args...)

	env := append(os.Environ(), w.config.Env...)
	env = append(env, EnvFactoryPort+"="+strconv.Itoa(w.config.Port))
	if w.config.Backend != "" {
		env = append(env, transport.EnvSocketType+"="+string(w.config.Backend))
	}
	w.cmd.Env = deduplicateEnv(env)
	w.cmd.Stderr = &w.stderr

	stdin, err := w.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	if err := w.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	if _, err := io.WriteString(stdin, strconv.Itoa(w.config.Port)+"\n"); err != nil {
		_ = w.Kill()
		return fmt.Errorf("failed to write port: %w", err)
	}
	if err := stdin.Close(); err != nil {
		_ = w.Kill()
		return fmt.Errorf("failed to close stdin: %w", err)
	}
	return nil
}

// Wait waits for the process to exit.
func (w *WorkerProcess) Wait() (*WorkerExit, error) {
	if w.cmd == nil {
		return nil, errors.New("worker not started")
	}
	err := w.cmd.Wait()
	exit := &WorkerExit{Stderr: w.stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("worker wait failed: %w", err)
		}
		exit.ExitCode = -1
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && !status.Signaled() {
			exit.ExitCode = status.ExitStatus()
		}
	}
	return exit, nil
}

// Kill terminates the process.
func (w *WorkerProcess) Kill() error {
	if w.cmd != nil && w.cmd.Process != nil {
		return w.cmd.Process.Kill()
	}
	return nil
}

// deduplicateEnv keeps the last occurrence of each key.
func deduplicateEnv(env []string) []string {
	last := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		last[key] = i
	}
	out := make([]string, 0, len(last))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if last[key] == i {
			out = append(out, entry)
		}
	}
	return out
}

// InProcess returns a ProcessFactory that runs fn on a goroutine instead
// of a child process. fn receives the driver's port and returns the exit
// code.
func InProcess(fn func(ctx context.Context, port int) int) ProcessFactory {
	return func(cfg *WorkerConfig) Worker {
		return &inProcessWorker{port: cfg.Port, fn: fn}
	}
}

type inProcessWorker struct {
	port   int
	fn     func(ctx context.Context, port int) int
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	code int
}

func (w *inProcessWorker) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		code := w.fn(ctx, w.port)
		w.mu.Lock()
		w.code = code
		w.mu.Unlock()
	}()
	return nil
}

func (w *inProcessWorker) Wait() (*WorkerExit, error) {
	if w.done == nil {
		return nil, errors.New("worker not started")
	}
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return &WorkerExit{ExitCode: w.code}, nil
}

func (w *inProcessWorker) Kill() error {
	if w.cancel != nil {
		w.cancel()
	}
	return nil
}
