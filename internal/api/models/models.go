package models

import (
	"time"

	"github.com/smazurov/framerec/internal/logging"
	"github.com/smazurov/framerec/internal/metrics"
	"github.com/smazurov/framerec/internal/screen"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"v0.3.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"3f2c1ab" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2026-01-02T15:04:05Z" doc:"Build date"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go version used to build"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Operating system and architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// SessionInfo describes a running recording. Filled in by the recorder.
type SessionInfo struct {
	Session   string        `json:"session" example:"dxgi_output_20260102_150405" doc:"Session identifier"`
	Kind      string        `json:"kind" example:"video" doc:"Recording kind: video or audio"`
	Output    string        `json:"output" example:"/srv/rec/dxgi_output_20260102_150405.avi" doc:"Output file path"`
	Interval  time.Duration `json:"interval" example:"33333333" doc:"Tick interval in nanoseconds"`
	PoolSize  int           `json:"pool_size" example:"50" doc:"Buffers in the pool"`
	State     string        `json:"state" example:"running" doc:"Capture loop state"`
	StartedAt time.Time     `json:"started_at" doc:"When capture started"`
}

// SessionStats mirrors the pipeline counters.
type SessionStats struct {
	Ticks       uint64            `json:"ticks" example:"900" doc:"Pacing ticks processed"`
	Enqueued    uint64            `json:"enqueued" example:"897" doc:"Buffers that entered the queue"`
	Submitted   uint64            `json:"submitted" example:"895" doc:"Buffers handed to the sink"`
	Skipped     uint64            `json:"skipped" example:"2" doc:"Slots given up by pacing"`
	Dropped     map[string]uint64 `json:"dropped" doc:"Dropped ticks by reason"`
	LastStamp   int64             `json:"last_stamp" example:"901" doc:"Stamp of the last submitted buffer, -1 before the first"`
	QueueDepth  int               `json:"queue_depth" example:"2" doc:"Buffers waiting for the encoder"`
	IdleBuffers int               `json:"idle_buffers" example:"48" doc:"Buffers in the free list"`
	PoolSize    int               `json:"pool_size" example:"50" doc:"Total buffers"`
}

type SessionData struct {
	SessionInfo
	Uptime  string                  `json:"uptime" example:"30s" doc:"Time since capture started"`
	Stats   SessionStats            `json:"stats" doc:"Pipeline counters"`
	Encoder *metrics.EncoderMetrics `json:"encoder,omitempty" doc:"Latest ffmpeg progress values, when reported"`
}

type SessionResponse struct {
	Body SessionData
}

type StopData struct {
	Status  string `json:"status" example:"stopping" doc:"Stop status"`
	Session string `json:"session" example:"dxgi_output_20260102_150405" doc:"Session being stopped"`
}

type StopResponse struct {
	Body StopData
}

// Display models
type DisplayListData struct {
	Displays []screen.Display `json:"displays" doc:"Active displays, primary first"`
	Count    int              `json:"count" example:"2" doc:"Number of displays"`
}

type DisplayListResponse struct {
	Body DisplayListData
}

// Log models
type LogsRequest struct {
	Since   uint64 `query:"since" doc:"Only return entries with a sequence number above this"`
	Limit   int    `query:"limit" default:"200" minimum:"0" maximum:"5000" doc:"Maximum entries to return, newest kept"`
	Module  string `query:"module" example:"pipeline" doc:"Only return entries from this module"`
	Session string `query:"session" example:"dxgi_output_20260102_150405" doc:"Only return entries from this recording session"`
}

type LogsData struct {
	Entries []logging.LogEntry `json:"entries" doc:"Log entries, oldest first"`
	Count   int                `json:"count" example:"20" doc:"Number of entries returned"`
	LastSeq uint64             `json:"last_seq" example:"421" doc:"Pass as since to poll for newer entries"`
}

type LogsResponse struct {
	Body LogsData
}

type LogStreamRequest struct {
	Backlog int `query:"backlog" default:"100" minimum:"0" maximum:"5000" doc:"Buffered entries replayed before live streaming"`
}

// ConnectedEvent is the first message on every SSE stream.
type ConnectedEvent struct {
	Message   string `json:"message" example:"SSE connection established"`
	Session   string `json:"session,omitempty" doc:"Active session, if any"`
	Timestamp string `json:"timestamp"`
}
