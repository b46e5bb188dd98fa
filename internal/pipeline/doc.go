// Package pipeline moves periodically sampled frames from a capture source to
// an encode sink without stalling capture and without unbounded memory growth.
//
// Two goroutines share three things and nothing else:
//
//   - Pool: a fixed arena of pre-allocated buffers. Acquire never blocks; an
//     empty pool makes the capture loop drop the tick.
//   - Queue: a FIFO of (buffer, stamp) entries sized to the pool, so pushing
//     never blocks and memory is bounded by the pool.
//   - StopToken: the cooperative stop flag.
//
// The capture loop asks the Pacer for the next tick, acquires a raw frame with
// a bounded timeout, converts it into a pooled buffer and pushes it. The encode
// loop pops entries in order, submits them to the sink and releases the
// buffers. On stop, capture exits and closes the queue; encode drains what is
// left, flushes the sink and exits.
//
// Example:
//
//	p, err := pipeline.New(pipeline.Config{
//		Shape:    pipeline.VideoShape(1280, 720),
//		PoolSize: 50,
//		Interval: pipeline.IntervalForRate(30),
//	}, source, converter, sink)
//	if err != nil {
//		return err
//	}
//	_ = p.Start(ctx)
//	<-sigChan
//	p.RequestStop()
//	return p.Join()
package pipeline
