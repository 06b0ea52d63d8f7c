// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// LogEntry is one captured log record. Attrs include those added with
// Logger.With.
type LogEntry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogRecorder captures every record logged through Logger, at all levels
type LogRecorder struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewLogRecorder creates an empty recorder
func NewLogRecorder() *LogRecorder {
	return &LogRecorder{}
}

// Logger returns a logger writing into the recorder
func (r *LogRecorder) Logger() *slog.Logger {
	return slog.New(&recordingHandler{rec: r})
}

// Entries returns a copy of the captured records
func (r *LogRecorder) Entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogEntry(nil), r.entries...)
}

// AtLevel returns the records logged at level
func (r *LogRecorder) AtLevel(level slog.Level) []LogEntry {
	var out []LogEntry
	for _, e := range r.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Contains reports whether any message contains substr
func (r *LogRecorder) Contains(substr string) bool {
	for _, e := range r.Entries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// Find returns the first record whose message contains substr
func (r *LogRecorder) Find(substr string) (LogEntry, bool) {
	for _, e := range r.Entries() {
		if strings.Contains(e.Message, substr) {
			return e, true
		}
	}
	return LogEntry{}, false
}

// AssertLogged fails t unless a record at level contains substr
func (r *LogRecorder) AssertLogged(t testing.TB, level slog.Level, substr string) {
	t.Helper()

	entries := r.AtLevel(level)
	for _, e := range entries {
		if strings.Contains(e.Message, substr) {
			return
		}
	}
	t.Errorf("no %s log containing %q", level, substr)
	for _, e := range entries {
		t.Logf("  - %s %v", e.Message, e.Attrs)
	}
}

func (r *LogRecorder) add(e LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

type recordingHandler struct {
	rec   *LogRecorder
	attrs []slog.Attr
	group string
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, record slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+record.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	record.Attrs(func(a slog.Attr) bool {
		attrs[h.key(a.Key)] = a.Value.Any()
		return true
	})
	h.rec.add(LogEntry{Level: record.Level, Message: record.Message, Attrs: attrs})
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &recordingHandler{rec: h.rec, group: h.group}
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	for i := len(h.attrs); i < len(next.attrs); i++ {
		next.attrs[i].Key = h.key(next.attrs[i].Key)
	}
	return next
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	return &recordingHandler{rec: h.rec, attrs: h.attrs, group: h.key(name)}
}

func (h *recordingHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}
