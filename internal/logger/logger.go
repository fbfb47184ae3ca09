// Package logger provides the injected, leveled logger used across assetvault.
//
// There is no process-wide logger: New builds a *Logger that is passed to
// every component that logs. Each Logger tees its entries into
//   - an asynchronous writer (bounded queue drained by a background goroutine)
//     that renders text or JSON lines to stdout, stderr, or a file, and
//   - a bounded in-memory ring buffer that Recent reads back, so the caller
//     can show the latest entries without re-reading the log output.
//
// Loggers derived with With share the writer and the ring buffer.
package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name. Unknown names yield
// LevelInfo and false.
func ParseLevel(level string) (Level, bool) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	}
	return LevelInfo, false
}

func (l Level) zap() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func fromZap(l zapcore.Level) Level {
	switch {
	case l <= zapcore.DebugLevel:
		return LevelDebug
	case l == zapcore.InfoLevel:
		return LevelInfo
	case l == zapcore.WarnLevel:
		return LevelWarn
	default:
		return LevelError
	}
}

// Config controls logger construction.
type Config struct {
	// Level is the minimum level written (DEBUG, INFO, WARN, ERROR)
	Level string

	// Format is "text" or "json"
	Format string

	// Output is "stdout", "stderr", or a file path (opened for append)
	Output string

	// BufferSize is the ring buffer capacity (default: 1000 entries)
	BufferSize int

	// QueueSize is the writer queue length (default: 256 lines)
	QueueSize int
}

// Logger is a leveled logger with an in-memory tail of recent entries.
type Logger struct {
	sugar  *zap.SugaredLogger
	level  zap.AtomicLevel
	ring   *ring
	writer *asyncWriter
	file   *os.File
}

// New builds a Logger from cfg. Call Close to flush the writer goroutine.
func New(cfg Config) (*Logger, error) {
	lvl, _ := ParseLevel(cfg.Level)
	atom := zap.NewAtomicLevelAt(lvl.zap())

	var (
		sink zapcore.WriteSyncer
		file *os.File
	)
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		sink = zapcore.Lock(os.Stdout)
	case "stderr":
		sink = zapcore.Lock(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log output %s: %w", cfg.Output, err)
		}
		file = f
		sink = zapcore.AddSync(f)
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	w := newAsyncWriter(sink, cfg.QueueSize)
	r := newRing(bufferSize)

	core := zapcore.NewTee(
		zapcore.NewCore(newEncoder(cfg.Format), w, atom),
		&ringCore{LevelEnabler: atom, ring: r},
	)

	return &Logger{
		sugar:  zap.New(core).Sugar(),
		level:  atom,
		ring:   r,
		writer: w,
		file:   file,
	}, nil
}

// Nop returns a logger that discards output but still records entries in its
// ring buffer.
func Nop() *Logger {
	atom := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	r := newRing(100)
	return &Logger{
		sugar: zap.New(&ringCore{LevelEnabler: atom, ring: r}).Sugar(),
		level: atom,
		ring:  r,
	}
}

func newEncoder(format string) zapcore.Encoder {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "msg",
		NameKey:        "logger",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if strings.EqualFold(format, "json") {
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(encCfg)
	}
	encCfg.ConsoleSeparator = " "
	return zapcore.NewConsoleEncoder(encCfg)
}

// SetLevel changes the minimum level. Unknown names are ignored.
func (l *Logger) SetLevel(level string) {
	if lvl, ok := ParseLevel(level); ok {
		l.level.SetLevel(lvl.zap())
	}
}

// Level returns the current minimum level.
func (l *Logger) Level() Level {
	return fromZap(l.level.Level())
}

// With returns a child logger that attaches the given key/value pairs to every
// entry. The child shares the parent's writer and ring buffer.
func (l *Logger) With(keysAndValues ...any) *Logger {
	child := *l
	child.sugar = l.sugar.With(keysAndValues...)
	return &child
}

func (l *Logger) Debug(format string, v ...any) {
	l.sugar.Debugf(format, v...)
}

func (l *Logger) Info(format string, v ...any) {
	l.sugar.Infof(format, v...)
}

func (l *Logger) Warn(format string, v ...any) {
	l.sugar.Warnf(format, v...)
}

func (l *Logger) Error(format string, v ...any) {
	l.sugar.Errorf(format, v...)
}

// Recent returns up to n of the most recent entries, oldest first.
// n <= 0 returns everything the ring buffer holds.
func (l *Logger) Recent(n int) []Entry {
	return l.ring.recent(n)
}

// Sync blocks until every queued line has been written.
func (l *Logger) Sync() error {
	if l.writer == nil {
		return nil
	}
	return l.writer.Sync()
}

// Close drains the writer goroutine and closes the output file, if any.
// Logging after Close writes synchronously.
func (l *Logger) Close() error {
	if l.writer == nil {
		return nil
	}
	err := l.writer.Close()
	if l.file != nil {
		if cerr := l.file.Close(); err == nil {
			err = cerr
		}
		l.file = nil
	}
	return err
}

// Entry is one log record kept in the ring buffer.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
	Fields  map[string]any
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] [%s] %s", e.Time.Format("2006-01-02 15:04:05"), e.Level, e.Message)
}
