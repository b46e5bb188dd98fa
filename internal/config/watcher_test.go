package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/framerec/internal/logging"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func startWatcher(t *testing.T, path string, debounce time.Duration, opts ...WatcherOption[logging.Config]) *Watcher[logging.Config] {
	t.Helper()
	opts = append([]WatcherOption[logging.Config]{WithDebounce[logging.Config](debounce)}, opts...)
	w := NewConfigWatcher(path, ReadLoggingConfig, newTestLogger(), opts...)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("watcher.Stop failed: %v", err)
		}
	})
	// Give the watcher a moment to register with the kernel
	time.Sleep(50 * time.Millisecond)
	return w
}

func TestConfigWatcher_ReloadsLoggingLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framerec.toml")
	writeConfig(t, path, "[logging]\nlevel = \"info\"\n")

	received := make(chan logging.Config, 1)
	w := startWatcher(t, path, 50*time.Millisecond)
	w.OnReload(func(cfg logging.Config) { received <- cfg })

	writeConfig(t, path, "[logging]\nlevel = \"debug\"\npipeline = \"warn\"\n")

	select {
	case cfg := <-received:
		if cfg.Level != "debug" {
			t.Errorf("level = %q, want debug", cfg.Level)
		}
		if cfg.Modules["pipeline"] != "warn" {
			t.Errorf("pipeline level = %q, want warn", cfg.Modules["pipeline"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestConfigWatcher_FollowsRenameOnSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "framerec.toml")
	writeConfig(t, path, "[logging]\nlevel = \"info\"\n")

	received := make(chan logging.Config, 4)
	w := startWatcher(t, path, 50*time.Millisecond)
	w.OnReload(func(cfg logging.Config) { received <- cfg })

	// Editors often write a sibling file and rename it over the original.
	for i, level := range []string{"warn", "error"} {
		tmp := filepath.Join(dir, fmt.Sprintf(".framerec.toml.%d", i))
		writeConfig(t, tmp, fmt.Sprintf("[logging]\nlevel = %q\n", level))
		if err := os.Rename(tmp, path); err != nil {
			t.Fatal(err)
		}

		select {
		case cfg := <-received:
			if cfg.Level != level {
				t.Errorf("save %d: level = %q, want %q", i, cfg.Level, level)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("save %d: timeout waiting for reload", i)
		}
	}
}

func TestConfigWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "framerec.toml")
	writeConfig(t, path, "[logging]\nlevel = \"info\"\n")

	var count atomic.Int32
	w := startWatcher(t, path, 20*time.Millisecond)
	w.OnReload(func(logging.Config) { count.Add(1) })

	writeConfig(t, filepath.Join(dir, "other.toml"), "x = 1\n")
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("reloaded %d times for an unrelated file", got)
	}
}

func TestConfigWatcher_MultipleHandlersAndUnsubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framerec.toml")
	writeConfig(t, path, "[logging]\nlevel = \"info\"\n")

	w := startWatcher(t, path, 50*time.Millisecond)

	var mu sync.Mutex
	var order []string
	record := func(name string) func(logging.Config) {
		return func(logging.Config) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}
	w.OnReload(record("first"))
	unsub := w.OnReload(record("second"))
	w.OnReload(record("third"))

	writeConfig(t, path, "[logging]\nlevel = \"debug\"\n")
	time.Sleep(300 * time.Millisecond)

	unsub()
	writeConfig(t, path, "[logging]\nlevel = \"warn\"\n")
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"first", "second", "third", "first", "third"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Errorf("handler calls = %v, want %v", order, want)
	}
}

func TestConfigWatcher_ErrorKeepsHandlersQuiet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framerec.toml")
	writeConfig(t, path, "[logging]\nlevel = \"info\"\n")

	errorReceived := make(chan error, 1)
	configReceived := make(chan logging.Config, 1)
	w := startWatcher(t, path, 50*time.Millisecond,
		WithErrorHandler[logging.Config](func(err error) { errorReceived <- err }))
	w.OnReload(func(cfg logging.Config) { configReceived <- cfg })

	writeConfig(t, path, "[logging\nlevel = ")

	select {
	case <-errorReceived:
	case <-configReceived:
		t.Fatal("config handler should not be called on parse error")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
}

func TestConfigWatcher_Debounce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framerec.toml")
	writeConfig(t, path, "[logging]\nlevel = \"info\"\n")

	var count atomic.Int32
	var last atomic.Value
	w := startWatcher(t, path, 200*time.Millisecond)
	w.OnReload(func(cfg logging.Config) {
		count.Add(1)
		last.Store(cfg.Level)
	})

	for _, level := range []string{"debug", "warn", "error", "info", "debug"} {
		writeConfig(t, path, fmt.Sprintf("[logging]\nlevel = %q\n", level))
		time.Sleep(30 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 debounced reload, got %d", got)
	}
	if got, _ := last.Load().(string); got != "debug" {
		t.Errorf("final level = %q, want debug", got)
	}
}

func TestConfigWatcher_StopIsFinal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framerec.toml")
	writeConfig(t, path, "[logging]\nlevel = \"info\"\n")

	var count atomic.Int32
	w := NewConfigWatcher(path, ReadLoggingConfig, newTestLogger(), WithDebounce[logging.Config](20*time.Millisecond))
	w.OnReload(func(logging.Config) { count.Add(1) })
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop = %v", err)
	}

	writeConfig(t, path, "[logging]\nlevel = \"debug\"\n")
	time.Sleep(150 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected 0 reloads after stop, got %d", got)
	}
}

func TestConfigWatcher_StartWithoutPath(t *testing.T) {
	w := NewConfigWatcher("", ReadLoggingConfig, newTestLogger())
	if err := w.Start(); err == nil {
		t.Error("expected error when no path is configured")
	}
}
