package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/framerec/internal/api/models"
	"github.com/smazurov/framerec/internal/events"
)

// registerSSERoutes registers the session event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time session lifecycle, drop, sink failure, stats and config reload events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"connected":       models.ConnectedEvent{},
		"session-started": events.SessionStartedEvent{},
		"session-stopped": events.SessionStoppedEvent{},
		"frame-dropped":   events.FrameDroppedEvent{},
		"sink-failed":     events.SinkFailedEvent{},
		"session-stats":   events.SessionStatsEvent{},
		"config-reloaded": events.ConfigReloadedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		// Subscribe before the greeting so nothing published after it is missed
		unsubscribers := []func(){
			events.SubscribeToChannel[events.SessionStartedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SessionStoppedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FrameDroppedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SinkFailedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SessionStatsEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ConfigReloadedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		hello := models.ConnectedEvent{
			Message:   "SSE connection established",
			Timestamp: time.Now().Format(time.RFC3339),
		}
		if rec := s.currentRecorder(); rec != nil {
			hello.Session = rec.Info().Session
		}
		if err := send.Data(hello); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
