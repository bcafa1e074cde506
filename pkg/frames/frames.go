// Package frames provides the bounded hand-off between frame capture and
// face matching.
//
// The channel is lossy on purpose: a full buffer drops the newest frame
// instead of stalling capture, so matching always works on recent input.
package frames

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultCapacity is the number of frames the channel buffers.
const DefaultCapacity = 2

// Frame is one captured image sample.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	JPEG       []byte
	Width      int
	Height     int
}

// Clone returns a copy that shares no memory with f.
func (f Frame) Clone() Frame {
	c := f
	if f.JPEG != nil {
		c.JPEG = append([]byte(nil), f.JPEG...)
	}
	return c
}

// Stats is a point-in-time view of channel counters.
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Consumed  uint64 `json:"consumed"`
	Buffered  int    `json:"buffered"`
}

// Channel is a single-producer, single-consumer frame buffer.
type Channel struct {
	ch chan Frame

	published atomic.Uint64
	dropped   atomic.Uint64
	consumed  atomic.Uint64
}

// NewChannel creates a channel holding at most capacity frames.
// A capacity below 1 falls back to DefaultCapacity.
func NewChannel(capacity int) *Channel {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Channel{ch: make(chan Frame, capacity)}
}

// TryPublish hands a frame to the consumer without blocking.
// It returns false and drops the frame when the buffer is full.
func (c *Channel) TryPublish(f Frame) bool {
	select {
	case c.ch <- f:
		c.published.Add(1)
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// TryConsume takes the oldest buffered frame, if any, without blocking.
func (c *Channel) TryConsume() (Frame, bool) {
	select {
	case f := <-c.ch:
		c.consumed.Add(1)
		return f, true
	default:
		return Frame{}, false
	}
}

// Receive waits up to wait for a frame. It returns false when the wait
// elapses or ctx is done, so callers can re-check their stop condition.
func (c *Channel) Receive(ctx context.Context, wait time.Duration) (Frame, bool) {
	if f, ok := c.TryConsume(); ok {
		return f, true
	}
	if wait <= 0 {
		return Frame{}, false
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case f := <-c.ch:
		c.consumed.Add(1)
		return f, true
	case <-timer.C:
		return Frame{}, false
	case <-ctx.Done():
		return Frame{}, false
	}
}

// Len returns the number of buffered frames.
func (c *Channel) Len() int {
	return len(c.ch)
}

// Cap returns the buffer capacity.
func (c *Channel) Cap() int {
	return cap(c.ch)
}

// Stats returns the channel counters.
func (c *Channel) Stats() Stats {
	return Stats{
		Published: c.published.Load(),
		Dropped:   c.dropped.Load(),
		Consumed:  c.consumed.Load(),
		Buffered:  len(c.ch),
	}
}
