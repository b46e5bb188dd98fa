package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(SessionStartedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event is generic over the concrete type
	switch e := ev.(type) {
	case SessionStartedEvent:
		event.Publish(b.dispatcher, e)
	case SessionStoppedEvent:
		event.Publish(b.dispatcher, e)
	case FrameDroppedEvent:
		event.Publish(b.dispatcher, e)
	case SinkFailedEvent:
		event.Publish(b.dispatcher, e)
	case SessionStatsEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	case ConfigReloadedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type selects which events it receives.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e SinkFailedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(SessionStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionStoppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameDroppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SinkFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionStatsEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConfigReloadedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel forwards events of type T into ch without blocking the
// publisher. SSE handlers select on the channel; when a slow client lets it
// fill up, further events are dropped for that client only.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
