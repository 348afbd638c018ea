// Package driver runs tasks against a worker the way the host engine
// does.
//
// A Driver listens on a transport, launches a worker, accepts its
// connection, streams the session input (header, broadcasts, command,
// records, trailer) and reads the results back. The task outcome comes
// from the worker's exit code together with what it reported on the wire.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cite-sa/MobiusCore/accumulator"
	"github.com/cite-sa/MobiusCore/command"
	"github.com/cite-sa/MobiusCore/iox"
	"github.com/cite-sa/MobiusCore/ipc"
	"github.com/cite-sa/MobiusCore/log"
	"github.com/cite-sa/MobiusCore/session"
	"github.com/cite-sa/MobiusCore/transport"
	"github.com/cite-sa/MobiusCore/types"
)

// Task is one task to run on one partition.
type Task struct {
	// Header is the session header. Header.UDF is set from Udf.
	Header session.Header
	// Command is the command to run. Exactly one of Command and Udf is set.
	Command *command.Command
	// Udf is the UDF batch to run.
	Udf *command.UdfBatch
	// Records is the input data.
	Records []any
	// KeepAlive ends the session with END_OF_STREAM so the worker stays
	// reusable.
	KeepAlive bool
	// Truncate closes the input without END_OF_DATA_SECTION.
	Truncate bool
}

func (t *Task) encodings() (in, out ipc.Encoding, err error) {
	switch {
	case t.Command != nil && t.Udf != nil:
		return in, out, errors.New("task has both a command and a UDF batch")
	case t.Command != nil:
		return t.Command.InputEncoding(), t.Command.OutputEncoding(), nil
	case t.Udf != nil:
		in, out = t.Udf.Encodings()
		return in, out, nil
	default:
		return in, out, errors.New("task has no command")
	}
}

// TaskResult is what the driver observed for one task.
type TaskResult struct {
	// Outcome classifies the task.
	Outcome *types.SessionOutcome
	// ExitCode is the worker's exit code.
	ExitCode int
	// Records are the output records.
	Records []any
	// Timing is the worker's timing block.
	Timing session.Timing
	// Accumulators are the reported accumulator updates.
	Accumulators []accumulator.Entry
	// Exception is the reported failure text, if any.
	Exception string
	// Reusable reports whether the worker acknowledged END_OF_STREAM.
	Reusable bool
	// Stderr is the worker's diagnostic output.
	Stderr string
	// Duration is the wall time of the task.
	Duration time.Duration
	// ReadErr is the error that ended reading early, if any.
	ReadErr error
}

// Config configures a Driver.
type Config struct {
	// Worker is the worker launch configuration. Port and Backend are
	// filled in by the driver.
	Worker WorkerConfig
	// Transport configures the listener.
	Transport transport.Config
	// ListenAddress is passed to the transport; empty picks an ephemeral
	// loopback port (tcp).
	ListenAddress string
	// Factory overrides worker creation. Defaults to NewWorkerProcess.
	Factory ProcessFactory
	// Logger defaults to a process logger.
	Logger *log.Logger
}

// Driver runs tasks against freshly launched workers.
type Driver struct {
	config    *Config
	transport *transport.Transport
	logger    *log.Logger
}

// New creates a driver.
func New(cfg *Config) (*Driver, error) {
	tr, err := transport.New(cfg.Transport)
	if err != nil {
		return nil, err
	}
	d := &Driver{config: cfg, transport: tr, logger: cfg.Logger}
	if d.logger == nil {
		d.logger = log.NewProcessLogger()
	}
	return d, nil
}

// Run launches a worker, runs task on it and waits for the worker to
// exit. The error return is reserved for driver-side failures; worker
// failures are reported in the result.
func (d *Driver) Run(ctx context.Context, task *Task) (*TaskResult, error) {
	start := time.Now()
	inEnc, outEnc, err := task.encodings()
	if err != nil {
		return nil, err
	}
	task.Header.UDF = task.Udf != nil

	ln, err := d.transport.Listen(d.config.ListenAddress)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(ln)

	wcfg := d.config.Worker
	wcfg.Port = ln.Port()
	wcfg.Backend = d.transport.Config().Backend
	factory := d.config.Factory
	if factory == nil {
		factory = NewWorkerProcess
	}
	worker := factory(&wcfg)

	d.logger.Info("starting worker", map[string]any{
		"port":      wcfg.Port,
		"partition": task.Header.Partition,
	})
	if err := worker.Start(ctx); err != nil {
		return nil, err
	}

	result := &TaskResult{}
	conn, err := ln.Accept(ctx)
	if err != nil {
		_ = worker.Kill()
		d.logger.Error("worker did not connect", map[string]any{"error": err.Error()})
		result.ReadErr = err
	} else {
		d.exchange(conn, task, inEnc, outEnc, result)
	}

	exit, err := worker.Wait()
	if err != nil {
		return nil, err
	}
	result.ExitCode = exit.ExitCode
	result.Stderr = string(exit.Stderr)
	result.Outcome = DetermineOutcome(result)
	result.Duration = time.Since(start)

	d.logger.Info("task finished", map[string]any{
		"outcome":     string(result.Outcome.Status),
		"exit_code":   result.ExitCode,
		"records_out": len(result.Records),
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result, nil
}

// Submit runs task on a worker daemon listening at address. A daemon
// has no per-task exit code, so ExitCode is inferred from the wire: 1
// when the worker reported an exception, else 0.
func (d *Driver) Submit(ctx context.Context, address string, task *Task) (*TaskResult, error) {
	start := time.Now()
	inEnc, outEnc, err := task.encodings()
	if err != nil {
		return nil, err
	}
	task.Header.UDF = task.Udf != nil

	conn, err := d.transport.Connect(ctx, address)
	if err != nil {
		return nil, err
	}
	result := &TaskResult{}
	d.exchange(conn, task, inEnc, outEnc, result)

	result.ExitCode = session.ExitCodeOK
	if result.Exception != "" {
		result.ExitCode = session.ExitCodeFault
	}
	result.Outcome = DetermineOutcome(result)
	result.Duration = time.Since(start)

	d.logger.Info("task submitted", map[string]any{
		"address":     address,
		"outcome":     string(result.Outcome.Status),
		"records_out": len(result.Records),
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result, nil
}

// exchange writes the session input on a goroutine while reading the
// output. The connection is closed once both sides are done; a worker
// that fails early closes its end, which ends the write.
func (d *Driver) exchange(conn *transport.Conn, task *Task, inEnc, outEnc ipc.Encoding, result *TaskResult) {
	written := make(chan error, 1)
	go func() {
		written <- writeInput(conn, task, inEnc)
	}()

	dec := ipc.NewDecoder(conn)
	out, err := session.ReadOutput(dec, outEnc)
	if out != nil {
		result.Records = out.Records
		result.Timing = out.Timing
		result.Accumulators = out.Accumulators
		result.Exception = out.Exception
	}
	if err == nil && result.Exception == "" {
		result.Reusable, err = session.ReadAnswer(dec)
	}
	result.ReadErr = err

	if werr := <-written; werr != nil {
		d.logger.Debug("input write stopped", map[string]any{"error": werr.Error()})
	}
	iox.DiscardClose(conn)
}

func writeInput(conn *transport.Conn, task *Task, encoding ipc.Encoding) error {
	enc := ipc.NewEncoder(conn)
	if err := session.WriteHeader(enc, &task.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if task.Udf != nil {
		if err := command.WriteUdfBatch(enc, task.Udf); err != nil {
			return fmt.Errorf("write udf batch: %w", err)
		}
	} else if err := command.WriteCommand(enc, task.Command); err != nil {
		return fmt.Errorf("write command: %w", err)
	}

	w := ipc.NewRecordWriter(enc, encoding)
	for _, rec := range task.Records {
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write record %d: %w", w.Records(), err)
		}
	}
	if task.Truncate {
		if err := enc.Flush(); err != nil {
			return err
		}
		return conn.CloseWrite()
	}

	if err := enc.WriteSentinel(ipc.EndOfDataSection); err != nil {
		return err
	}
	trailer := ipc.EndOfDataSection
	if task.KeepAlive {
		trailer = ipc.EndOfStream
	}
	if err := enc.WriteSentinel(trailer); err != nil {
		return err
	}
	return enc.Flush()
}
