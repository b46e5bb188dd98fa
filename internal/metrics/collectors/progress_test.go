package collectors

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/framerec/internal/metrics"
)

func skipOnMacOS(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "darwin" {
		t.Skip("Unix socket path too long on macOS")
	}
}

func waitForEncoder(t *testing.T, session string, cond func(*metrics.EncoderMetrics) bool) *metrics.EncoderMetrics {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m := metrics.GetEncoderMetrics(session); m != nil && cond(m) {
			return m
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("encoder metrics for %s never matched: %+v", session, metrics.GetEncoderMetrics(session))
	return nil
}

func TestConsumeParsesProgressBlocks(t *testing.T) {
	session := "consume-test"
	metrics.DeleteEncoderMetrics(session)
	defer metrics.DeleteEncoderMetrics(session)

	c := &ProgressCollector{session: session}
	c.consume(strings.NewReader(`frame=120
fps=29.97
drop_frames=3
dup_frames=1
speed=1.25x
progress=continue
no_equals_sign

fps=invalid
  speed = 0.98x  
progress=end
`))

	m := metrics.GetEncoderMetrics(session)
	if m == nil {
		t.Fatal("expected metrics")
	}
	if m.FPS != 29.97 || m.DroppedFrames != 3 || m.DuplicateFrames != 1 {
		t.Errorf("metrics = %+v", *m)
	}
	if m.Speed != 0.98 {
		t.Errorf("speed = %v, want 0.98 from the final block", m.Speed)
	}
}

func TestProgressCollectorOverSocket(t *testing.T) {
	skipOnMacOS(t)
	socketPath := filepath.Join(t.TempDir(), "progress.sock")
	session := "socket-test"
	metrics.DeleteEncoderMetrics(session)

	c := NewProgressCollector(socketPath, session)
	if c.URL() != "unix://"+socketPath {
		t.Errorf("URL = %q", c.URL())
	}
	if err := c.Start(t.Context()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer c.Stop()

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("fps=30\nprogress=continue\n")); err != nil {
		t.Fatal(err)
	}
	waitForEncoder(t, session, func(m *metrics.EncoderMetrics) bool { return m.FPS == 30 })

	if _, err := conn.Write([]byte("fps=60\nspeed=2x\nprogress=continue\n")); err != nil {
		t.Fatal(err)
	}
	waitForEncoder(t, session, func(m *metrics.EncoderMetrics) bool { return m.FPS == 60 && m.Speed == 2 })
}

func TestProgressCollectorStopCleansUp(t *testing.T) {
	skipOnMacOS(t)
	socketPath := filepath.Join(t.TempDir(), "progress.sock")
	session := "stop-test"

	// A stale file at the socket path must not prevent binding.
	if err := os.WriteFile(socketPath, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	c := NewProgressCollector(socketPath, session)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// An idle client must not keep Stop waiting.
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	metrics.SetEncoderFPS(session, 30)

	done := make(chan struct{})
	go func() {
		_ = c.Stop()
		_ = c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on an open connection")
	}

	if metrics.GetEncoderMetrics(session) != nil {
		t.Error("expected encoder metrics to be deleted after stop")
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("expected socket file to be removed")
	}
}

func TestProgressCollectorStopsWithContext(t *testing.T) {
	skipOnMacOS(t)
	socketPath := filepath.Join(t.TempDir(), "progress.sock")

	ctx, cancel := context.WithCancel(context.Background())
	c := NewProgressCollector(socketPath, "ctx-test")
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(socketPath); os.IsNotExist(err) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("socket still present after context cancel")
}
