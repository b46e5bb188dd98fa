package pipeline

import (
	"context"

	"github.com/smazurov/framerec/internal/logging"
)

// encodeLoop is the consumer side: pop, submit in order, release.
type encodeLoop struct {
	queue    *Queue
	pool     *Pool
	sink     Sink
	stop     *StopToken
	counters *counters
	logger   logging.Logger
}

// run drains the queue into the sink until end-of-stream and then flushes.
// A sink error ends the session: the stop token is set so capture winds down,
// and no flush is attempted.
func (e *encodeLoop) run(ctx context.Context) error {
	e.logger.Info("Encode loop started")

	for {
		entry, ok := e.queue.Pop(ctx)
		if !ok {
			break
		}

		err := e.sink.Submit(entry.Buffer, entry.Stamp)
		if relErr := e.pool.Release(entry.Buffer); relErr != nil {
			e.logger.Error("Failed to return buffer to pool", "stamp", entry.Stamp, "error", relErr)
		}
		if err != nil {
			e.logger.Error("Sink rejected buffer, ending session", "stamp", entry.Stamp, "error", err)
			e.stop.Request()
			return &SinkError{Stamp: entry.Stamp, Op: "submit", Err: err}
		}

		e.counters.submitted.Add(1)
	}

	if err := ctx.Err(); err != nil {
		e.logger.Warn("Encode loop aborted before end of stream", "error", err)
		e.stop.Request()
		return err
	}

	e.logger.Info("End of stream, flushing sink", "submitted", e.counters.submitted.Load())
	if err := e.sink.Flush(); err != nil {
		e.logger.Error("Sink flush failed", "error", err)
		return &SinkError{Op: "flush", Err: err}
	}

	e.logger.Info("Encode loop stopped")
	return nil
}
