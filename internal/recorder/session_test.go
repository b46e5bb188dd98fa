package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/framerec/internal/events"
	"github.com/smazurov/framerec/internal/metrics"
	"github.com/smazurov/framerec/internal/pipeline"
)

type rawFrame struct{}

func (rawFrame) Release() {}

type instantSource struct{}

func (instantSource) Acquire(context.Context, time.Duration) (pipeline.RawFrame, error) {
	return rawFrame{}, nil
}

var copyConverter = pipeline.ConverterFunc(func(_ pipeline.RawFrame, dst *pipeline.Buffer) error {
	dst.Data[0] = 0xAB
	return nil
})

type countingSink struct {
	mu        sync.Mutex
	submitted int
	flushed   bool
	failAfter int
}

func (s *countingSink) Submit(_ *pipeline.Buffer, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && s.submitted >= s.failAfter {
		return errors.New("disk full")
	}
	s.submitted++
	return nil
}

func (s *countingSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed = true
	return nil
}

func testConfig(name string, bus *events.Bus) Config {
	return Config{
		Name:   name,
		Kind:   "video",
		Output: "/tmp/" + name + ".avi",
		Pipeline: pipeline.Config{
			Shape:          pipeline.VideoShape(4, 4),
			PoolSize:       4,
			Interval:       5 * time.Millisecond,
			AcquireTimeout: 10 * time.Millisecond,
		},
		EventBus:       bus,
		ReportInterval: 10 * time.Millisecond,
	}
}

func recv[T any](t *testing.T, ch <-chan any) T {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-ch:
			if v, ok := ev.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("no %T delivered", zero)
			return zero
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	bus := events.New()
	ch := make(chan any, 64)
	defer events.SubscribeToChannel[events.SessionStartedEvent](bus, ch)()
	defer events.SubscribeToChannel[events.SessionStoppedEvent](bus, ch)()

	sink := &countingSink{}
	s, err := New(testConfig("lifecycle-session", bus), instantSource{}, copyConverter, sink)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	started := recv[events.SessionStartedEvent](t, ch)
	if started.Session != "lifecycle-session" || started.PoolSize != 4 || started.Interval != "5ms" {
		t.Errorf("started event = %+v", started)
	}

	info := s.Info()
	if info.Session != "lifecycle-session" || info.Kind != "video" || info.StartedAt.IsZero() {
		t.Errorf("info = %+v", info)
	}

	time.Sleep(50 * time.Millisecond)
	s.RequestStop()
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if err := s.Wait(); err != nil {
		t.Errorf("second Wait() = %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Error("Done not closed after Wait")
	}

	stopped := recv[events.SessionStoppedEvent](t, ch)
	if stopped.Error != "" {
		t.Errorf("stopped with error %q", stopped.Error)
	}

	sink.mu.Lock()
	submitted, flushed := sink.submitted, sink.flushed
	sink.mu.Unlock()
	if submitted == 0 || !flushed {
		t.Errorf("sink submitted=%d flushed=%v", submitted, flushed)
	}
	if stopped.Submitted != uint64(submitted) {
		t.Errorf("stopped.Submitted = %d, sink saw %d", stopped.Submitted, submitted)
	}

	stats, ok := metrics.GetSessionStats("lifecycle-session")
	if !ok || stats.Submitted != uint64(submitted) {
		t.Errorf("metrics cache = %+v (%v), want final sample", stats, ok)
	}
	if s.Stats().IdleBuffers != 4 {
		t.Errorf("idle buffers = %d, want 4", s.Stats().IdleBuffers)
	}
}

func TestSessionSinkFailure(t *testing.T) {
	bus := events.New()
	failedCh := make(chan any, 4)
	stoppedCh := make(chan any, 4)
	defer events.SubscribeToChannel[events.SinkFailedEvent](bus, failedCh)()
	defer events.SubscribeToChannel[events.SessionStoppedEvent](bus, stoppedCh)()

	s, err := New(testConfig("failing-session", bus), instantSource{}, copyConverter, &countingSink{failAfter: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after sink failure")
	}

	err = s.Wait()
	var sinkErr *pipeline.SinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("Wait() = %v, want *pipeline.SinkError", err)
	}

	failed := recv[events.SinkFailedEvent](t, failedCh)
	if failed.Error != "disk full" || failed.Stamp != sinkErr.Stamp {
		t.Errorf("sink failed event = %+v", failed)
	}
	stopped := recv[events.SessionStoppedEvent](t, stoppedCh)
	if stopped.Error == "" {
		t.Error("stopped event should carry the error")
	}
}

func TestSessionWithoutBus(t *testing.T) {
	s, err := New(testConfig("quiet-session", nil), instantSource{}, copyConverter, &countingSink{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	s.RequestStop()
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait() = %v", err)
	}
}

func TestNewRequiresName(t *testing.T) {
	cfg := testConfig("", nil)
	if _, err := New(cfg, instantSource{}, copyConverter, &countingSink{}); err == nil {
		t.Error("expected error for empty session name")
	}
}
