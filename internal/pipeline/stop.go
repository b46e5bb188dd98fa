package pipeline

import "sync"

// StopToken is the shared cooperative cancellation flag for one pipeline.
// It is set at most once and never reset.
type StopToken struct {
	once sync.Once
	done chan struct{}
}

// NewStopToken returns an unset token.
func NewStopToken() *StopToken {
	return &StopToken{done: make(chan struct{})}
}

// Request sets the token. Idempotent and safe from any goroutine, including
// a signal handler goroutine.
func (t *StopToken) Request() {
	t.once.Do(func() { close(t.done) })
}

// Stopped reports whether Request has been called.
func (t *StopToken) Stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed once the token is set.
func (t *StopToken) Done() <-chan struct{} {
	return t.done
}
