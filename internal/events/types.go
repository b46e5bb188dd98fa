package events

// Event type constants for kelindar/event.
const (
	TypeSessionStarted uint32 = iota + 1
	TypeSessionStopped
	TypeFrameDropped
	TypeSinkFailed
	TypeSessionStats
	TypeLogEntry
	TypeConfigReloaded
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionStartedEvent is published once the pipeline goroutines are running.
type SessionStartedEvent struct {
	Session   string `json:"session" example:"dxgi_output_20260102_150405" doc:"Session identifier"`
	Kind      string `json:"kind" example:"video" doc:"Recording kind: video or audio"`
	Output    string `json:"output" example:"/srv/rec/dxgi_output_20260102_150405.avi" doc:"Output file path"`
	Interval  string `json:"interval" example:"33ms" doc:"Capture tick interval"`
	PoolSize  int    `json:"pool_size" example:"50" doc:"Buffers in the pool"`
	Timestamp string `json:"timestamp" example:"2026-01-02T15:04:05Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionStartedEvent.
func (e SessionStartedEvent) Type() uint32 { return TypeSessionStarted }

// SessionStoppedEvent is published after Join returns.
type SessionStoppedEvent struct {
	Session   string `json:"session" doc:"Session identifier"`
	Enqueued  uint64 `json:"enqueued" doc:"Buffers that entered the queue"`
	Submitted uint64 `json:"submitted" doc:"Buffers handed to the sink"`
	Dropped   uint64 `json:"dropped" doc:"Ticks that produced no buffer"`
	Skipped   uint64 `json:"skipped" doc:"Slots given up by pacing"`
	Error     string `json:"error,omitempty" doc:"Set when the session ended on a failure"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionStoppedEvent.
func (e SessionStoppedEvent) Type() uint32 { return TypeSessionStopped }

// FrameDroppedEvent summarizes drops. Published at most once per throttle
// window per reason, so Count can cover many ticks.
type FrameDroppedEvent struct {
	Session   string `json:"session" doc:"Session identifier"`
	Reason    string `json:"reason" example:"pool_exhausted" doc:"Why the tick produced no buffer"`
	Stamp     int64  `json:"stamp" doc:"Stamp of the most recent drop"`
	Count     uint64 `json:"count" doc:"Drops for this reason since the previous event"`
	Total     uint64 `json:"total" doc:"Drops for this reason since the session started"`
	Error     string `json:"error,omitempty" doc:"Error of the most recent drop"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameDroppedEvent.
func (e FrameDroppedEvent) Type() uint32 { return TypeFrameDropped }

// SinkFailedEvent is published when the sink rejects a buffer and the session ends.
type SinkFailedEvent struct {
	Session   string `json:"session" doc:"Session identifier"`
	Stamp     int64  `json:"stamp" doc:"Stamp that failed"`
	Error     string `json:"error" example:"write |1: broken pipe" doc:"Sink error"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for SinkFailedEvent.
func (e SinkFailedEvent) Type() uint32 { return TypeSinkFailed }

// SessionStatsEvent carries a periodic counters snapshot.
type SessionStatsEvent struct {
	Session     string            `json:"session"`
	Ticks       uint64            `json:"ticks"`
	Enqueued    uint64            `json:"enqueued"`
	Submitted   uint64            `json:"submitted"`
	Skipped     uint64            `json:"skipped"`
	Dropped     map[string]uint64 `json:"dropped"`
	QueueDepth  int               `json:"queue_depth"`
	IdleBuffers int               `json:"idle_buffers"`
	LastStamp   int64             `json:"last_stamp"`
}

// Type returns the event type identifier for SessionStatsEvent.
func (e SessionStatsEvent) Type() uint32 { return TypeSessionStats }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2026-01-02T15:04:05.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"pipeline" doc:"Source module"`
	Session    string         `json:"session,omitempty" example:"dxgi_output_20260102_150405" doc:"Recording session the entry belongs to"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// ConfigReloadedEvent is published after the config watcher applied a change.
type ConfigReloadedEvent struct {
	Path      string `json:"path" doc:"Config file that changed"`
	Level     string `json:"level" doc:"Global log level now in effect"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConfigReloadedEvent.
func (e ConfigReloadedEvent) Type() uint32 { return TypeConfigReloaded }
