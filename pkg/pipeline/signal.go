// Package pipeline runs one kiosk identification session: capture feeds
// frames to matching, the first accepted match latches the recognition
// state, and a bounded announce-and-persist sequence ends the session.
package pipeline

import (
	"context"
	"sync"
)

// Stop reasons.
const (
	ReasonManualQuit     = "manual quit"
	ReasonDisplayTimeout = "display timeout"
	ReasonInterrupt      = "interrupt"
	ReasonRemoteStop     = "remote stop"
	ReasonDeviceFailure  = "device failure"
)

// Signal is the session-wide stop flag. It is set at most once and never
// cleared; the first reason wins.
type Signal struct {
	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	reason string
}

// NewSignal returns an unset signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Stop sets the signal. It reports whether this call was the one that set it.
func (s *Signal) Stop(reason string) bool {
	first := false
	s.once.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		close(s.done)
		first = true
	})
	return first
}

// Stopped reports whether the signal is set.
func (s *Signal) Stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed when the signal is set.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Reason returns the reason passed to the first Stop, or "".
func (s *Signal) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Context returns a child of parent that is cancelled once the signal is set.
func (s *Signal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
