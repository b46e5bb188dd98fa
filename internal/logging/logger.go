package logging

import (
	"context"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 1000

// Identifier tags every record sent to the systemd journal.
const Identifier = "framerec"

// Logger is the subset of *slog.Logger that components depend on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// everything is the level output handlers are built with. Filtering is done
// per module, in front of them.
const everything = slog.Level(math.MinInt)

type module struct {
	level  slog.LevelVar
	logger *slog.Logger
}

var reg = struct {
	sync.RWMutex
	cfg      Config
	global   slog.LevelVar
	modules  map[string]*module
	buffer   *RingBuffer
	callback LogCallback
}{modules: map[string]*module{}}

// outputs holds the handler every module logger writes through. Initialize
// swaps it, so loggers handed out earlier pick up the configured format.
var outputs atomic.Pointer[slog.Handler]

// Initialize applies config and starts the ring buffer. Loggers already
// returned by GetLogger keep working and follow the new levels and format.
func Initialize(config Config) {
	reg.Lock()
	reg.cfg = config
	if reg.buffer == nil {
		reg.buffer = NewRingBuffer(defaultBufferSize)
	}
	applyLevels()
	reg.Unlock()

	out := buildOutputs(config.Format)
	outputs.Store(&out)
	slog.SetDefault(slog.New(&moduleHandler{level: &reg.global}))
}

// SetLevels changes the global and per-module levels in place. The format
// is left alone. The config watcher calls it on hot reload.
func SetLevels(config Config) {
	reg.Lock()
	defer reg.Unlock()
	reg.cfg.Level = config.Level
	reg.cfg.Modules = config.Modules
	applyLevels()
}

// applyLevels must be called with reg locked.
func applyLevels() {
	reg.global.Set(levelFor(reg.cfg, ""))
	for name, m := range reg.modules {
		m.level.Set(levelFor(reg.cfg, name))
	}
}

// levelFor resolves a module's level: its override, else the global level,
// else info.
func levelFor(cfg Config, name string) slog.Level {
	if l, ok := parseLevel(cfg.Modules[name]); ok && name != "" {
		return l
	}
	if l, ok := parseLevel(cfg.Level); ok {
		return l
	}
	return slog.LevelInfo
}

// GetLogger returns the logger for a module, creating it on first use.
// Records carry a "module" attribute with the name.
func GetLogger(name string) *slog.Logger {
	reg.RLock()
	m, ok := reg.modules[name]
	reg.RUnlock()
	if ok {
		return m.logger
	}

	reg.Lock()
	defer reg.Unlock()
	if m, ok := reg.modules[name]; ok {
		return m.logger
	}
	m = &module{}
	m.level.Set(levelFor(reg.cfg, name))
	m.logger = slog.New(&moduleHandler{level: &m.level}).With("module", name)
	reg.modules[name] = m
	return m.logger
}

// GetBuffer returns the ring buffer Initialize created.
func GetBuffer() *RingBuffer {
	reg.RLock()
	defer reg.RUnlock()
	return reg.buffer
}

// SetLogCallback sets a function called with every entry stored in the
// ring buffer. Pass nil to remove it.
func SetLogCallback(callback LogCallback) {
	reg.Lock()
	defer reg.Unlock()
	reg.callback = callback
}

func currentSink() (*RingBuffer, LogCallback) {
	reg.RLock()
	defer reg.RUnlock()
	return reg.buffer, reg.callback
}

// moduleHandler gates records on a module level and forwards them to the
// current outputs, replaying the WithAttrs/WithGroup calls made on it.
type moduleHandler struct {
	level *slog.LevelVar
	chain []func(slog.Handler) slog.Handler

	cached atomic.Pointer[resolved]
}

type resolved struct {
	from *slog.Handler
	h    slog.Handler
}

func (m *moduleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= m.level.Level()
}

func (m *moduleHandler) Handle(ctx context.Context, r slog.Record) error {
	return m.target().Handle(ctx, r)
}

func (m *moduleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return m.extend(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (m *moduleHandler) WithGroup(name string) slog.Handler {
	return m.extend(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (m *moduleHandler) extend(step func(slog.Handler) slog.Handler) *moduleHandler {
	chain := make([]func(slog.Handler) slog.Handler, len(m.chain), len(m.chain)+1)
	copy(chain, m.chain)
	return &moduleHandler{level: m.level, chain: append(chain, step)}
}

func (m *moduleHandler) target() slog.Handler {
	base := outputs.Load()
	if base == nil {
		fallback := buildOutputs("text")
		outputs.CompareAndSwap(nil, &fallback)
		base = outputs.Load()
	}
	if c := m.cached.Load(); c != nil && c.from == base {
		return c.h
	}

	h := *base
	for _, step := range m.chain {
		h = step(h)
	}
	m.cached.Store(&resolved{from: base, h: h})
	return h
}

// buildOutputs assembles stdout, the journal when reachable and the ring
// buffer behind /api/logs.
func buildOutputs(format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: everything}

	var handlers []slog.Handler
	if stdoutUsable() {
		if format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(os.Stdout, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stdout, opts))
		}
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(everything))
	}
	handlers = append(handlers, NewBufferHandler(nil, everything, nil))
	return Tee(handlers...)
}

// stdoutUsable is false when stdout is closed or not a stream or file.
func stdoutUsable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return 0, false
}

// ValidLevel reports whether level names a known log level.
func ValidLevel(level string) bool {
	_, ok := parseLevel(level)
	return ok
}
