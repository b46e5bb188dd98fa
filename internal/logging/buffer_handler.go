package logging

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// LogCallback is called for every entry written to the ring buffer.
// The app uses it to publish entries on the event bus.
type LogCallback func(entry LogEntry)

// BufferHandler stores records in a RingBuffer for /api/logs. Group paths
// are flattened into dotted attribute keys.
type BufferHandler struct {
	buffer   *RingBuffer // nil: package buffer and callback
	level    slog.Leveler
	callback LogCallback
	scope    scope
}

// NewBufferHandler creates a handler writing to buffer. With a nil buffer it
// writes to the buffer set up by Initialize and calls the package callback.
func NewBufferHandler(buffer *RingBuffer, level slog.Leveler, callback LogCallback) *BufferHandler {
	return &BufferHandler{buffer: buffer, level: level, callback: callback}
}

// Enabled implements slog.Handler.
func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	buffer, callback := h.buffer, h.callback
	if buffer == nil {
		buffer, callback = currentSink()
	}
	if buffer == nil {
		return nil
	}

	attrs := make(map[string]any)
	module, session := h.scope.walk(r, func(path []string, v slog.Value) {
		attrs[strings.Join(path, ".")] = entryValue(v)
	})
	if module == "" {
		module = "app"
	}

	entry := LogEntry{
		Timestamp:  r.Time,
		Level:      levelName(r.Level),
		Module:     module,
		Session:    session,
		Message:    r.Message,
		Attributes: attrs,
	}
	entry.Seq = buffer.Write(entry)

	if callback != nil {
		callback(entry)
	}
	return nil
}

// entryValue converts a value into something that marshals to readable JSON.
func entryValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}

// WithAttrs implements slog.Handler.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	dup := *h
	dup.scope = h.scope.withAttrs(attrs)
	return &dup
}

// WithGroup implements slog.Handler.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	dup := *h
	dup.scope = h.scope.withGroup(name)
	return &dup
}
