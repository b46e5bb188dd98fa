package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/framerec/internal/api/models"
	"github.com/smazurov/framerec/internal/metrics"
	"github.com/smazurov/framerec/internal/pipeline"
	"github.com/smazurov/framerec/internal/screen"
)

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/session",
		Summary:     "Session",
		Description: "Current recording session with pipeline counters and encoder progress",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, _ *struct{}) (*models.SessionResponse, error) {
		rec := s.currentRecorder()
		if rec == nil {
			return nil, huma.Error404NotFound("No recording session")
		}

		info := rec.Info()
		data := models.SessionData{
			SessionInfo: info,
			Stats:       toSessionStats(rec.Stats()),
			Encoder:     metrics.GetEncoderMetrics(info.Session),
		}
		if !info.StartedAt.IsZero() {
			data.Uptime = time.Since(info.StartedAt).Truncate(time.Second).String()
		}
		return &models.SessionResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "stop-session",
		Method:        http.MethodPost,
		Path:          "/api/session/stop",
		Summary:       "Stop Session",
		Description:   "Request the recording to stop. Queued buffers are still encoded before the output is finalized.",
		Tags:          []string{"session"},
		Security:      withAuth(),
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{401, 404},
	}, func(_ context.Context, _ *struct{}) (*models.StopResponse, error) {
		rec := s.currentRecorder()
		if rec == nil {
			return nil, huma.Error404NotFound("No recording session")
		}

		info := rec.Info()
		s.logger.Info("Stop requested via API", "session", info.Session)
		rec.RequestStop()

		return &models.StopResponse{
			Body: models.StopData{Status: "stopping", Session: info.Session},
		}, nil
	})
}

func (s *Server) registerDisplayRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-displays",
		Method:      http.MethodGet,
		Path:        "/api/displays",
		Summary:     "List Displays",
		Description: "Active displays that can be recorded",
		Tags:        []string{"displays"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.DisplayListResponse, error) {
		list := screen.ListDisplays
		if s.options.Displays != nil {
			list = s.options.Displays
		}
		displays := list()
		if displays == nil {
			displays = []screen.Display{}
		}
		return &models.DisplayListResponse{
			Body: models.DisplayListData{Displays: displays, Count: len(displays)},
		}, nil
	})
}

func toSessionStats(st pipeline.Stats) models.SessionStats {
	dropped := make(map[string]uint64, len(st.Dropped))
	for reason, n := range st.Dropped {
		dropped[string(reason)] = n
	}
	return models.SessionStats{
		Ticks:       st.Ticks,
		Enqueued:    st.Enqueued,
		Submitted:   st.Submitted,
		Skipped:     st.Skipped,
		Dropped:     dropped,
		LastStamp:   st.LastStamp,
		QueueDepth:  st.QueueDepth,
		IdleBuffers: st.IdleBuffers,
		PoolSize:    st.PoolSize,
	}
}
