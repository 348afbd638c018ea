// Package session runs the worker side of one task: the state machine
// ReadHeader → ReadBroadcasts → ReadCommand → StreamRecords → Finalize.
//
// A Session is single-threaded and strictly sequential. Every failure is
// caught at the session boundary and mapped to an outcome and exit code
// (see Result). Faults are reported to the host as an exception frame;
// a truncated input is not, since the peer is gone.
package session

import (
	"context"
	"io"
	"time"

	"github.com/cite-sa/MobiusCore/accumulator"
	"github.com/cite-sa/MobiusCore/broadcast"
	"github.com/cite-sa/MobiusCore/command"
	"github.com/cite-sa/MobiusCore/ipc"
	"github.com/cite-sa/MobiusCore/log"
	"github.com/cite-sa/MobiusCore/metrics"
	"github.com/cite-sa/MobiusCore/policy"
	"github.com/cite-sa/MobiusCore/types"
)

// Config configures a session.
type Config struct {
	// Meta is the session identity. Meta.Partition is set once the
	// header has been read.
	Meta *types.SessionMeta
	// Registry resolves command functions. Defaults to
	// command.DefaultRegistry().
	Registry *command.Registry
	// Broadcasts is the worker's broadcast registry. A daemon passes the
	// same registry to every session. Defaults to a fresh registry.
	Broadcasts *broadcast.Registry
	// Logger defaults to a stderr logger carrying Meta.
	Logger *log.Logger
	// Collector is optional; all Collector methods are nil-safe.
	Collector *metrics.Collector
	// Checkpoints receives map_with_state checkpoints. Optional.
	Checkpoints policy.Policy
	// BootTime is the worker process start time reported in the timing
	// block. Defaults to the session start.
	BootTime time.Time
	// Now overrides the clock (for tests).
	Now func() time.Time
}

// Session runs one task over a connection.
type Session struct {
	meta        *types.SessionMeta
	registry    *command.Registry
	broadcasts  *broadcast.Registry
	logger      *log.Logger
	collector   *metrics.Collector
	checkpoints policy.Policy
	bootTime    time.Time
	now         func() time.Time
}

// New creates a session. It fails if the session identity is invalid.
func New(cfg *Config) (*Session, error) {
	if err := cfg.Meta.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		meta:        cfg.Meta,
		registry:    cfg.Registry,
		broadcasts:  cfg.Broadcasts,
		logger:      cfg.Logger,
		collector:   cfg.Collector,
		checkpoints: cfg.Checkpoints,
		bootTime:    cfg.BootTime,
		now:         cfg.Now,
	}
	if s.registry == nil {
		s.registry = command.DefaultRegistry()
	}
	if s.broadcasts == nil {
		s.broadcasts = broadcast.NewRegistry()
	}
	if s.logger == nil {
		s.logger = log.NewLogger(cfg.Meta)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Run executes the session over rw and reports its result. The caller
// owns rw and closes it afterwards.
func (s *Session) Run(ctx context.Context, rw io.ReadWriter) *Result {
	start := s.now()
	if s.bootTime.IsZero() {
		s.bootTime = start
	}
	s.collector.IncSessionStarted()

	dec := ipc.NewDecoder(rw)
	enc := ipc.NewEncoder(rw)
	res := &Result{Meta: s.meta}
	res.Timing.BootTime = s.bootTime.UnixMilli()
	res.Timing.InitTime = start.UnixMilli()

	err := s.run(ctx, dec, enc, res)
	res.Duration = s.now().Sub(start)
	res.Err = err
	res.Outcome, res.ExitCode = determineOutcome(err)
	s.report(enc, res)
	return res
}

func (s *Session) transition(p Phase) {
	s.logger.Debug("session phase", map[string]any{"phase": string(p)})
}

func (s *Session) run(ctx context.Context, dec *ipc.Decoder, enc *ipc.Encoder, res *Result) error {
	s.transition(PhaseReadHeader)
	h, err := readHeader(dec)
	if err != nil {
		return &Error{Phase: PhaseReadHeader, Err: err}
	}
	res.Header = h
	s.meta.Partition = int(h.Partition)
	s.logger = s.logger.WithPartition(s.meta.Partition)
	s.logger.Info("session header read", map[string]any{
		"version":  h.Version,
		"work_dir": h.WorkDir,
		"includes": h.Includes,
	})

	if err := ctx.Err(); err != nil {
		return &Error{Phase: PhaseReadBroadcasts, Err: err}
	}
	s.transition(PhaseReadBroadcasts)
	if err := readBroadcasts(dec, h); err != nil {
		return &Error{Phase: PhaseReadBroadcasts, Err: err}
	}
	s.applyBroadcasts(h.Broadcasts)

	s.transition(PhaseReadCommand)
	pipeline, err := s.readCommand(dec, h)
	if err != nil {
		return &Error{Phase: PhaseReadCommand, Err: err}
	}

	s.transition(PhaseStreamRecords)
	tc := &command.TaskContext{
		Partition:    s.meta.Partition,
		Accumulators: accumulator.NewRegistry(),
		Broadcasts:   s.broadcasts,
		Logger:       s.logger,
	}
	if s.checkpoints != nil {
		tc.Checkpoint = func(cp *policy.Checkpoint) error {
			return s.checkpoints.Ingest(ctx, cp)
		}
	}
	if err := s.stream(ctx, dec, enc, pipeline, tc, res); err != nil {
		return err
	}

	s.transition(PhaseFinalize)
	res.Accumulators = tc.Accumulators.Touched()
	s.collector.AddAccumulatorUpdates(tc.Accumulators.Updates())
	res.Timing.FinishTime = s.now().UnixMilli()
	reusable, err := writeTail(dec, enc, res.Timing, res.Accumulators)
	if err != nil {
		return &Error{Phase: PhaseFinalize, Err: err}
	}
	res.Reusable = reusable
	return nil
}

func (s *Session) applyBroadcasts(entries []BroadcastEntry) {
	for _, b := range entries {
		if b.Remove {
			if s.broadcasts.Remove(b.ID) {
				s.collector.IncBroadcastRemoved()
			}
			continue
		}
		s.broadcasts.Add(b.ID, b.Path)
		s.collector.IncBroadcastAdded()
	}
	s.logger.Info("broadcast variables updated", map[string]any{
		"num_broadcast_variables": len(entries),
		"registered":              s.broadcasts.Len(),
	})
}

func (s *Session) readCommand(dec *ipc.Decoder, h *Header) (*command.Pipeline, error) {
	if err := readUDFFlag(dec, h); err != nil {
		return nil, err
	}
	if h.UDF {
		batch, err := command.ReadUdfBatch(dec)
		if err != nil {
			return nil, err
		}
		return command.CompileUdf(batch, s.registry)
	}
	cmd, err := command.ReadCommand(dec)
	if err != nil {
		return nil, err
	}
	return command.Compile(cmd, s.registry)
}

// stream pulls the input through the pipeline and writes every output
// record. Input the pipeline did not consume is drained.
func (s *Session) stream(ctx context.Context, dec *ipc.Decoder, enc *ipc.Encoder, p *command.Pipeline, tc *command.TaskContext, res *Result) error {
	reader := ipc.NewRecordReader(dec, p.InputEncoding())
	writer := ipc.NewRecordWriter(enc, p.OutputEncoding())
	defer func() {
		res.RecordsIn = reader.Records()
		res.RecordsOut = writer.Records()
		s.collector.AddRecordsIn(res.RecordsIn)
		s.collector.AddRecordsOut(res.RecordsOut)
	}()

	out := p.Run(tc, reader)
	for out.Next() {
		if err := ctx.Err(); err != nil {
			return &Error{Phase: PhaseStreamRecords, Err: err}
		}
		if err := writer.Write(out.Record()); err != nil {
			return s.streamError(reader, err)
		}
	}
	if err := out.Err(); err != nil {
		return s.streamError(reader, err)
	}

	if !reader.Done() {
		s.logger.Warn("not all data is read", map[string]any{
			"records_read": reader.Records(),
		})
		n, err := reader.Drain()
		if err != nil {
			return s.streamError(reader, err)
		}
		s.logger.Debug("drained unread input", map[string]any{"frames": n})
	}
	return nil
}

func (s *Session) streamError(reader *ipc.RecordReader, err error) error {
	if !reader.Done() && closedInput(err) {
		s.logger.Debug("input closed", map[string]any{"error": err.Error()})
		return &Error{Phase: PhaseStreamRecords, Err: ErrInputTruncated}
	}
	return &Error{Phase: PhaseStreamRecords, Err: err}
}

// report logs the outcome, updates metrics and writes the exception
// frame for faults.
func (s *Session) report(enc *ipc.Encoder, res *Result) {
	fields := map[string]any{
		"outcome":     string(res.Outcome.Status),
		"records_in":  res.RecordsIn,
		"records_out": res.RecordsOut,
		"duration_ms": res.Duration.Milliseconds(),
	}
	switch res.Outcome.Status {
	case types.OutcomeCompleted:
		s.collector.IncSessionCompleted()
		fields["reusable"] = res.Reusable
		s.logger.Info("session completed", fields)
	case types.OutcomeTruncated:
		s.collector.IncSessionTruncated()
		fields["error"] = res.Err.Error()
		s.logger.Error("session input truncated", fields)
	default:
		s.collector.IncSessionFailed()
		if isFrameError(res.Err) {
			s.collector.IncFrameDecodeErrors()
		}
		fields["error"] = res.Err.Error()
		fields["phase"] = res.Outcome.Phase
		s.logger.Error("session failed", fields)
		if err := writeException(enc, res.Err.Error()); err != nil {
			s.logger.Warn("could not report exception to host", map[string]any{"error": err.Error()})
		}
	}
}
