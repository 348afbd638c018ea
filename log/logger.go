// Package log is the JSON logger shared by the worker, the driver and the
// CLI. Entries carry message, level, timestamp and a structured "fields"
// map; session loggers add session_id, pid and, once the header is read,
// partition. Output goes to stderr because stdout may belong to the host.
package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cite-sa/MobiusCore/types"
)

// EnvLevel names the environment variable that sets the minimum level.
const EnvLevel = "MOBIUS_WORKER_LOG_LEVEL"

// level is shared by every logger in the process so SetLevel applies to
// loggers that already exist.
var level = zap.NewAtomicLevelAt(zapcore.DebugLevel)

// SetLevel sets the process-wide minimum level: debug, info, warn or error.
func SetLevel(name string) error {
	l, err := zapcore.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	level.SetLevel(l)
	return nil
}

// Level returns the current minimum level name.
func Level() string { return level.Level().String() }

// Logger writes structured entries.
type Logger struct {
	zap *zap.Logger
}

// NewLogger returns a stderr logger carrying the session identity.
func NewLogger(meta *types.SessionMeta) *Logger {
	return newLoggerWithWriter(meta, os.Stderr)
}

// NewProcessLogger returns a stderr logger for code running outside any
// session, tagged only with the pid.
func NewProcessLogger() *Logger {
	return &Logger{zap: zap.New(newCore(os.Stderr)).With(zap.Int("pid", os.Getpid()))}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// WithOutput returns a copy of l writing to w.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	core := newCore(w)
	return &Logger{zap: l.zap.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))}
}

// WithSession adds the session identity.
func (l *Logger) WithSession(meta *types.SessionMeta) *Logger {
	return &Logger{zap: l.zap.With(sessionFields(meta)...)}
}

// WithPartition adds the partition index.
func (l *Logger) WithPartition(partition int) *Logger {
	return &Logger{zap: l.zap.With(zap.Int("partition", partition))}
}

func newCore(w io.Writer) zapcore.Core {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	})
	return zapcore.NewCore(enc, zapcore.AddSync(w), level)
}

func sessionFields(meta *types.SessionMeta) []zap.Field {
	fields := []zap.Field{
		zap.String("session_id", meta.SessionID),
		zap.Int("pid", meta.PID),
	}
	if meta.Partition >= 0 {
		fields = append(fields, zap.Int("partition", meta.Partition))
	}
	return fields
}

func newLoggerWithWriter(meta *types.SessionMeta, w io.Writer) *Logger {
	return &Logger{zap: zap.New(newCore(w)).With(sessionFields(meta)...)}
}

func (l *Logger) log(lvl zapcore.Level, message string, fields map[string]any) {
	if ce := l.zap.Check(lvl, message); ce != nil {
		ce.Write(zap.Any("fields", fields))
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.log(zapcore.DebugLevel, message, fields)
}

// Info logs at info level.
func (l *Logger) Info(message string, fields map[string]any) {
	l.log(zapcore.InfoLevel, message, fields)
}

// Warn logs at warn level.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.log(zapcore.WarnLevel, message, fields)
}

// Error logs at error level.
func (l *Logger) Error(message string, fields map[string]any) {
	l.log(zapcore.ErrorLevel, message, fields)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Sugar returns a printf-style view of l for CLI messages.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.zap.Sugar()
}
