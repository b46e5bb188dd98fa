package events

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/framerec/internal/pipeline"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan SessionStartedEvent, 1)

	unsub := bus.Subscribe(func(e SessionStartedEvent) {
		received <- e
	})
	defer unsub()

	ev := SessionStartedEvent{
		Session:   "dxgi_output_20260102_150405",
		Kind:      "video",
		Output:    "/tmp/dxgi_output_20260102_150405.avi",
		PoolSize:  50,
		Timestamp: "2026-01-02T15:04:05Z",
	}
	bus.Publish(ev)

	select {
	case got := <-received:
		if got != ev {
			t.Errorf("got %+v, want %+v", got, ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan SinkFailedEvent, 1)

	unsub := bus.Subscribe(func(e SinkFailedEvent) {
		received <- e
	})

	bus.Publish(SinkFailedEvent{Stamp: 1})
	<-received

	unsub()

	bus.Publish(SinkFailedEvent{Stamp: 2})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	started := make(chan bool, 1)
	stopped := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(SessionStartedEvent) { started <- true })
	defer unsub1()
	unsub2 := bus.Subscribe(func(SessionStoppedEvent) { stopped <- true })
	defer unsub2()

	bus.Publish(SessionStartedEvent{Session: "a"})
	<-started

	select {
	case <-stopped:
		t.Fatal("stop subscriber received a start event")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_UnknownHandlerIsNoop(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)
	unsub := bus.Subscribe(func(SessionStatsEvent) { receivedCh <- true })
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range eventsPerGoroutine {
				bus.Publish(SessionStatsEvent{Ticks: uint64(i)})
			}
		}()
	}
	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"SessionStarted", SessionStartedEvent{Session: "s"}},
		{"SessionStopped", SessionStoppedEvent{Session: "s"}},
		{"FrameDropped", FrameDroppedEvent{Reason: "capture_miss"}},
		{"SinkFailed", SinkFailedEvent{Error: "broken pipe"}},
		{"SessionStats", SessionStatsEvent{Ticks: 1}},
		{"LogEntry", LogEntryEvent{Message: "hello"}},
		{"ConfigReloaded", ConfigReloadedEvent{Level: "debug"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := make(chan any, 1)

			var unsub func()
			switch tt.event.(type) {
			case SessionStartedEvent:
				unsub = SubscribeToChannel[SessionStartedEvent](bus, ch)
			case SessionStoppedEvent:
				unsub = SubscribeToChannel[SessionStoppedEvent](bus, ch)
			case FrameDroppedEvent:
				unsub = SubscribeToChannel[FrameDroppedEvent](bus, ch)
			case SinkFailedEvent:
				unsub = SubscribeToChannel[SinkFailedEvent](bus, ch)
			case SessionStatsEvent:
				unsub = SubscribeToChannel[SessionStatsEvent](bus, ch)
			case LogEntryEvent:
				unsub = SubscribeToChannel[LogEntryEvent](bus, ch)
			case ConfigReloadedEvent:
				unsub = SubscribeToChannel[ConfigReloadedEvent](bus, ch)
			}
			defer unsub()

			bus.Publish(tt.event)
			select {
			case got := <-ch:
				if got.(Event).Type() != tt.event.Type() {
					t.Errorf("type = %d, want %d", got.(Event).Type(), tt.event.Type())
				}
			case <-time.After(time.Second):
				t.Fatal("event not delivered")
			}
		})
	}
}

func TestEventTypesAreDistinct(t *testing.T) {
	seen := make(map[uint32]string)
	for _, ev := range []Event{
		SessionStartedEvent{}, SessionStoppedEvent{}, FrameDroppedEvent{},
		SinkFailedEvent{}, SessionStatsEvent{}, LogEntryEvent{}, ConfigReloadedEvent{},
	} {
		if prev, dup := seen[ev.Type()]; dup {
			t.Errorf("%T shares type %d with %s", ev, ev.Type(), prev)
		}
		seen[ev.Type()] = typeName(ev)
	}
}

func typeName(ev Event) string {
	data, _ := json.Marshal(ev)
	return string(data)
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[SessionStoppedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(SessionStoppedEvent{Session: "s"})
		done <- true
	}()

	<-done
}

func TestDropThrottle(t *testing.T) {
	bus := New()
	ch := make(chan any, 16)
	unsub := SubscribeToChannel[FrameDroppedEvent](bus, ch)
	defer unsub()

	clock := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	d := NewDropThrottle(bus, "sess", time.Second)
	d.now = func() time.Time { return clock }

	// First drop goes out immediately, the next four are held back.
	for i := int64(0); i < 5; i++ {
		d.Handle(pipeline.DropPoolExhausted, i, uint64(i+1), pipeline.ErrPoolExhausted)
	}
	first := recvDrop(t, ch)
	if first.Count != 1 || first.Stamp != 0 || first.Reason != "pool_exhausted" {
		t.Errorf("first event = %+v", first)
	}
	if first.Error != pipeline.ErrPoolExhausted.Error() {
		t.Errorf("error = %q", first.Error)
	}

	// A different reason has its own window.
	d.Handle(pipeline.DropConvertFailed, 9, 1, errors.New("bad frame"))
	other := recvDrop(t, ch)
	if other.Reason != "convert_failed" || other.Count != 1 {
		t.Errorf("other event = %+v", other)
	}

	clock = clock.Add(1500 * time.Millisecond)
	d.Handle(pipeline.DropPoolExhausted, 5, 6, nil)
	batch := recvDrop(t, ch)
	if batch.Count != 5 || batch.Total != 6 || batch.Stamp != 5 {
		t.Errorf("batched event = %+v, want count 5 total 6 stamp 5", batch)
	}

	d.Handle(pipeline.DropPoolExhausted, 6, 7, nil)
	d.Flush()
	flushed := recvDrop(t, ch)
	if flushed.Count != 1 || flushed.Total != 7 {
		t.Errorf("flushed event = %+v", flushed)
	}

	d.Flush()
	select {
	case ev := <-ch:
		t.Errorf("unexpected event after empty flush: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func recvDrop(t *testing.T, ch <-chan any) FrameDroppedEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev.(FrameDroppedEvent)
	case <-time.After(time.Second):
		t.Fatal("no FrameDroppedEvent delivered")
	}
	return FrameDroppedEvent{}
}
