package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-elevatr/pkg/directory"
	"github.com/teslashibe/go-elevatr/pkg/frames"
	"github.com/teslashibe/go-elevatr/pkg/recognition"
)

// Session is the state shared by the loops of one identification run.
type Session struct {
	ID        string
	Signal    *Signal
	Frames    *frames.Channel
	State     *recognition.State
	StartedAt time.Time
}

// NewSession creates a session with a fresh ID and a frame channel of
// frames.DefaultCapacity.
func NewSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		Signal:    NewSignal(),
		Frames:    frames.NewChannel(frames.DefaultCapacity),
		State:     recognition.NewState(),
		StartedAt: time.Now(),
	}
}

// Directory looks up users and their reservations.
type Directory interface {
	FindUser(ctx context.Context, userID string) (*directory.User, error)
	FirstReservation(ctx context.Context, externalUID string) (*recognition.Reservation, error)
}

// Recorder persists a recognition at shutdown.
type Recorder interface {
	Record(ctx context.Context, entry recognition.LogEntry) error
}

// FrameObserver sees every captured frame. It must not block.
type FrameObserver interface {
	ObserveFrame(frame frames.Frame)
}

// RetryPolicy controls what a loop does after a transient failure.
// The zero value retries immediately and forever.
type RetryPolicy struct {
	Delay time.Duration

	// MaxConsecutive stops the session after this many failures in a
	// row. Zero means no limit.
	MaxConsecutive int
}

// wait sleeps for the retry delay or until the signal is set.
func (p RetryPolicy) wait(sig *Signal) {
	if p.Delay <= 0 {
		return
	}
	t := time.NewTimer(p.Delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-sig.Done():
	}
}

// exhausted reports whether n consecutive failures exceed the limit.
func (p RetryPolicy) exhausted(n int) bool {
	return p.MaxConsecutive > 0 && n >= p.MaxConsecutive
}
