// Package logger writes the HTTP API log: one flat JSON object per line
// with time, level, msg and the request fields next to them.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level of a log line.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// SlogLevel maps the level onto log/slog, so both loggers share LOG_LEVEL.
func (l Level) SlogLevel() slog.Level {
	return slog.LevelDebug + slog.Level(4*min(max(l, LevelDebug), LevelError))
}

// ParseLevel reads LOG_LEVEL. Unknown values mean INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR", "FATAL":
		return LevelError
	}
	return LevelInfo
}

// Field is one key of a log line.
type Field struct {
	Key   string
	Value any
}

func Any(key string, value any) Field { return Field{key, value} }
func String(key, value string) Field  { return Field{key, value} }
func Int(key string, value int) Field { return Field{key, value} }
func Component(name string) Field     { return Field{"component", name} }
func Operation(name string) Field     { return Field{"operation", name} }
func EJID(id int) Field               { return Field{"ejid", id} }
func SnapshotID(id string) Field      { return Field{"snapshot_id", id} }
func Students(n int) Field            { return Field{"students", n} }
func Latency(d time.Duration) Field   { return Field{"latency", d.String()} }
func RequestID(id string) Field       { return Field{RequestIDKey, id} }

// Err logs err under "error". A nil error is logged as null.
func Err(err error) Field {
	if err == nil {
		return Field{"error", nil}
	}
	return Field{"error", err.Error()}
}

// RequestIDKey is the field carrying X-Request-ID.
const RequestIDKey = "request_id"

// Options configures New.
type Options struct {
	Output    io.Writer // os.Stdout when nil
	Level     Level
	AddCaller bool
}

// Logger is safe for concurrent use. Loggers derived with With share the
// output and its lock.
type Logger struct {
	out    *lockedWriter
	level  Level
	caller bool
	fields []Field
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// New creates a logger.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Logger{
		out:    &lockedWriter{w: opts.Output},
		level:  opts.Level,
		caller: opts.AddCaller,
	}
}

// With returns a logger that adds fields to every line.
func (l *Logger) With(fields ...Field) *Logger {
	child := *l
	child.fields = append(append([]Field(nil), l.fields...), fields...)
	return &child
}

// WithRequestID is With(RequestID(id)).
func (l *Logger) WithRequestID(id string) *Logger {
	return l.With(RequestID(id))
}

func (l *Logger) Debug(msg string, fields ...Field) { l.write(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.write(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.write(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.write(LevelError, msg, fields) }

func (l *Logger) write(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}

	line := make(map[string]any, len(l.fields)+len(fields)+4)
	for _, f := range l.fields {
		line[f.Key] = f.Value
	}
	for _, f := range fields {
		line[f.Key] = f.Value
	}
	line["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	line["level"] = level.String()
	line["msg"] = msg
	if l.caller {
		// write <- Info/Warn/... <- caller
		if _, file, n, ok := runtime.Caller(2); ok {
			line["caller"] = fmt.Sprintf("%s:%d", filepath.Base(file), n)
		}
	}

	data, err := json.Marshal(line)
	if err != nil {
		data = fmt.Appendf(nil, `{"level":%q,"msg":%q,"marshal_error":%q}`, level.String(), msg, err.Error())
	}
	data = append(data, '\n')

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	_, _ = l.out.w.Write(data)
}

