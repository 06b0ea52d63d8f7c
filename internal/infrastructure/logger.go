package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LevelCritical sits above slog.LevelError for the "critical" config level
const LevelCritical = slog.Level(12)

// contextKey is a type for context keys
type contextKey string

const (
	// TraceIDContextKey is the key for storing trace ID in context
	TraceIDContextKey contextKey = "trace_id"
	// RequestIDContextKey is an alias for TraceIDContextKey
	RequestIDContextKey = TraceIDContextKey
)

// Logging owns the application logger. The console handler is always
// present; the rotating file handler is attached later by AttachFile.
type Logging struct {
	Logger *slog.Logger

	level *slog.LevelVar
	set   *handlerSet

	mu   sync.Mutex
	file *FileHandler
	out  *RotatingFile
}

// NewLogging creates a logger writing JSON records to console.
// A nil console discards output.
func NewLogging(console io.Writer, debug bool) *Logging {
	if console == nil {
		console = io.Discard
	}

	level := new(slog.LevelVar)
	if debug {
		level.Set(slog.LevelDebug)
	}

	consoleHandler := slog.NewJSONHandler(console, &slog.HandlerOptions{
		AddSource:   true,
		Level:       level,
		ReplaceAttr: replaceLevelName,
	})

	set := &handlerSet{}
	set.add(consoleHandler)

	return &Logging{
		Logger: slog.New(&traceHandler{Handler: &fanoutHandler{set: set}}),
		level:  level,
		set:    set,
	}
}

// AttachFile adds a size-rotating file handler at the named level and sets
// the logger level to match.
func (l *Logging) AttachFile(path, levelName string) (*FileHandler, error) {
	level, err := ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	out, err := OpenRotatingFile(path, MaxLogBytes, LogBackupCount)
	if err != nil {
		return nil, err
	}

	fh := NewFileHandler(out, level)

	l.mu.Lock()
	l.file = fh
	l.out = out
	l.mu.Unlock()

	l.set.add(fh)
	l.level.Set(level)
	return fh, nil
}

// FileHandler returns the attached file handler, or nil
func (l *Logging) FileHandler() *FileHandler {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file
}

// Level returns the logger level
func (l *Logging) Level() slog.Level {
	return l.level.Level()
}

// Close closes the log file if one is attached
func (l *Logging) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return nil
	}
	err := l.out.Close()
	l.out = nil
	return err
}

// ParseLevel converts a config level name to a slog level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "critical":
		return LevelCritical, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// LevelName returns the upper-case name used in log output
func LevelName(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO"
	case level < slog.LevelError:
		return "WARNING"
	case level < LevelCritical:
		return "ERROR"
	default:
		return "CRITICAL"
	}
}

func replaceLevelName(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(LevelName(level))
		}
	}
	return a
}

// GetLogger returns the process default logger
func GetLogger() *slog.Logger {
	return slog.Default()
}

// handlerSet is the mutable list of sinks shared by every derived logger
type handlerSet struct {
	mu       sync.RWMutex
	handlers []slog.Handler
}

func (s *handlerSet) add(h slog.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

func (s *handlerSet) snapshot() []slog.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]slog.Handler(nil), s.handlers...)
}

// handlerOp records a WithAttrs or WithGroup call
type handlerOp struct {
	group string
	attrs []slog.Attr
}

// fanoutHandler sends each record to every handler in the set. Attributes
// and groups are replayed per record so loggers derived before AttachFile
// still reach the file.
type fanoutHandler struct {
	set *handlerSet
	ops []handlerOp
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, base := range h.set.snapshot() {
		if base.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, base := range h.set.snapshot() {
		if !base.Enabled(ctx, r.Level) {
			continue
		}
		target := base
		for _, op := range h.ops {
			if op.group != "" {
				target = target.WithGroup(op.group)
			} else {
				target = target.WithAttrs(op.attrs)
			}
		}
		if err := target.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanoutHandler{set: h.set, ops: append(h.cloneOps(), handlerOp{attrs: attrs})}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &fanoutHandler{set: h.set, ops: append(h.cloneOps(), handlerOp{group: name})}
}

func (h *fanoutHandler) cloneOps() []handlerOp {
	return append([]handlerOp(nil), h.ops...)
}

// traceHandler wraps a slog.Handler to automatically inject trace_id from context
type traceHandler struct {
	slog.Handler
}

// Handle adds trace_id to the record if present in context
func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if traceID := GetTraceID(ctx); traceID != "" {
		r.AddAttrs(slog.String("trace_id", traceID))
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs returns a new Handler with additional attributes
func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup returns a new Handler with the given group name
func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDContextKey, traceID)
}

// GetTraceID retrieves the trace ID from context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDContextKey).(string); ok {
		return traceID
	}
	return ""
}

// openLogFile opens or creates a log file in append mode, creating its directory
func openLogFile(filePath string, flag int) (*os.File, error) {
	if err := ensureDir(filePath); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
	}
	return file, nil
}
