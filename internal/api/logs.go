package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/framerec/internal/api/models"
	"github.com/smazurov/framerec/internal/events"
	"github.com/smazurov/framerec/internal/logging"
)

func (s *Server) logBuffer() *logging.RingBuffer {
	if s.options.LogBuffer != nil {
		return s.options.LogBuffer
	}
	return logging.GetBuffer()
}

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Logs",
		Description: "Recent log entries from the in-memory buffer. Poll with since=last_seq for newer entries.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *models.LogsRequest) (*models.LogsResponse, error) {
		data := models.LogsData{Entries: []logging.LogEntry{}, LastSeq: input.Since}

		buffer := s.logBuffer()
		if buffer == nil {
			return &models.LogsResponse{Body: data}, nil
		}

		entries := buffer.ReadSince(input.Since)
		if len(entries) > 0 {
			data.LastSeq = entries[len(entries)-1].Seq
		}
		if input.Module != "" || input.Session != "" {
			filtered := entries[:0]
			for _, e := range entries {
				if (input.Module == "" || e.Module == input.Module) &&
					(input.Session == "" || e.Session == input.Session) {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}
		if input.Limit > 0 && len(entries) > input.Limit {
			entries = entries[len(entries)-input.Limit:]
		}
		if len(entries) > 0 {
			data.Entries = entries
		}
		data.Count = len(data.Entries)

		return &models.LogsResponse{Body: data}, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Replays buffered entries first, then streams new ones.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, input *models.LogStreamRequest, send sse.Sender) {
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		// Entries logged during the replay arrive on both paths
		var lastSeq uint64
		if buffer := s.logBuffer(); buffer != nil && input.Backlog > 0 {
			for _, entry := range buffer.Tail(input.Backlog) {
				if err := send.Data(toLogEvent(entry)); err != nil {
					return
				}
				lastSeq = entry.Seq
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				entry, ok := ev.(events.LogEntryEvent)
				if !ok || (entry.Seq != 0 && entry.Seq <= lastSeq) {
					continue
				}
				if err := send.Data(entry); err != nil {
					return
				}
			}
		}
	})
}

func toLogEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Session:    entry.Session,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}
