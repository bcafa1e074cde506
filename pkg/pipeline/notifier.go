package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-elevatr/pkg/recognition"
	"github.com/teslashibe/go-elevatr/pkg/speech"
)

// DefaultAnnounceTimeout bounds one announcement.
const DefaultAnnounceTimeout = 15 * time.Second

// Notifier speaks the recognition announcement once, off the capture
// goroutine.
type Notifier struct {
	speaker speech.Speaker
	timeout time.Duration
	logger  *slog.Logger

	once     sync.Once
	launched atomic.Bool
	done     chan struct{}
	err      error
}

// NewNotifier creates a notifier. A nil speaker only logs.
func NewNotifier(speaker speech.Speaker, timeout time.Duration, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if speaker == nil {
		speaker = speech.LogSpeaker{Logger: logger}
	}
	if timeout <= 0 {
		timeout = DefaultAnnounceTimeout
	}
	return &Notifier{
		speaker: speaker,
		timeout: timeout,
		logger:  logger.With("component", "notifier"),
		done:    make(chan struct{}),
	}
}

// Launch starts the announcement for rec. Only the first call has an
// effect; it reports whether this call started it.
func (n *Notifier) Launch(rec recognition.Recognition) bool {
	started := false
	n.once.Do(func() {
		started = true
		n.launched.Store(true)
		go n.announce(rec)
	})
	return started
}

func (n *Notifier) announce(rec recognition.Recognition) {
	defer close(n.done)

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	text := recognition.Announcement(rec)
	n.logger.Info("announcing", "user_id", rec.UserID, "text", text)
	if err := n.speaker.Say(ctx, text); err != nil {
		n.err = err
		n.logger.Warn("announcement failed", "user_id", rec.UserID, "error", err)
	}
}

// Launched reports whether an announcement was started.
func (n *Notifier) Launched() bool {
	return n.launched.Load()
}

// Wait blocks until a launched announcement finishes or ctx is done.
// It returns immediately when nothing was launched.
func (n *Notifier) Wait(ctx context.Context) error {
	if !n.launched.Load() {
		return nil
	}
	select {
	case <-n.done:
		return n.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
