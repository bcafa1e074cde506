package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-elevatr/pkg/camera"
	"github.com/teslashibe/go-elevatr/pkg/frames"
)

// DefaultDisplayDuration is how long a recognition stays on screen before
// the session ends.
const DefaultDisplayDuration = 10 * time.Second

// CapturePhase is the capture loop's lifecycle position.
type CapturePhase int32

const (
	CaptureRunning CapturePhase = iota
	CaptureDisplaying
	CaptureStopped
)

func (p CapturePhase) String() string {
	switch p {
	case CaptureRunning:
		return "running"
	case CaptureDisplaying:
		return "displaying"
	case CaptureStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CaptureConfig configures a CaptureLoop.
type CaptureConfig struct {
	Source    camera.Source
	Display   camera.Display
	Notifier  *Notifier
	Sequencer *Sequencer
	Observer  FrameObserver // optional

	DisplayDuration time.Duration
	Retry           RetryPolicy
	Now             func() time.Time
	Logger          *slog.Logger
}

// CaptureLoop reads the device, renders the overlay and feeds the frame
// channel. It owns the device and display and runs the shutdown sequence
// when it exits.
type CaptureLoop struct {
	cfg     CaptureConfig
	session *Session
	logger  *slog.Logger

	phase        atomic.Int32
	seq          uint64
	displayStart time.Time
	readFailures atomic.Uint64
}

// NewCaptureLoop creates a capture loop for session.
func NewCaptureLoop(session *Session, cfg CaptureConfig) (*CaptureLoop, error) {
	if session == nil {
		return nil, errors.New("pipeline: session required")
	}
	if cfg.Source == nil {
		return nil, errors.New("pipeline: frame source required")
	}
	if cfg.Display == nil {
		cfg.Display = camera.NewHeadless()
	}
	if cfg.DisplayDuration <= 0 {
		cfg.DisplayDuration = DefaultDisplayDuration
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NewNotifier(nil, 0, cfg.Logger)
	}
	if cfg.Sequencer == nil {
		cfg.Sequencer = NewSequencer(session, SequencerConfig{Now: cfg.Now, Logger: cfg.Logger})
	}
	return &CaptureLoop{
		cfg:     cfg,
		session: session,
		logger:  cfg.Logger.With("component", "capture"),
	}, nil
}

// Phase returns the current phase.
func (l *CaptureLoop) Phase() CapturePhase {
	return CapturePhase(l.phase.Load())
}

// ReadFailures returns the number of failed device reads.
func (l *CaptureLoop) ReadFailures() uint64 {
	return l.readFailures.Load()
}

// Run loops until the session signal is set, then closes the device and
// display and runs the sequencer. It must be called from the goroutine
// that owns the window.
func (l *CaptureLoop) Run(ctx context.Context) {
	l.logger.Info("capture started", "session", l.session.ID)
	defer l.shutdown(ctx)

	consecutive := 0
	for !l.session.Signal.Stopped() {
		frame, err := l.cfg.Source.Read()
		if err != nil {
			l.readFailures.Add(1)
			consecutive++
			l.logger.Warn("frame read failed", "error", err, "consecutive", consecutive)
			if l.cfg.Retry.exhausted(consecutive) {
				l.session.Signal.Stop(ReasonDeviceFailure)
				return
			}
			l.cfg.Retry.wait(l.session.Signal)
			continue
		}
		consecutive = 0
		if !l.step(frame) {
			return
		}
	}
}

// step handles one captured frame. It returns false when the loop should
// end.
func (l *CaptureLoop) step(frame frames.Frame) bool {
	l.seq++
	frame.Seq = l.seq
	now := l.cfg.Now()
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = now
	}

	snap := l.session.State.Snapshot()
	if snap.Recognized && l.Phase() == CaptureRunning {
		l.phase.Store(int32(CaptureDisplaying))
		l.displayStart = now
		l.logger.Info("recognition displayed", "user_id", snap.Payload.UserID, "for", l.cfg.DisplayDuration)
		l.cfg.Notifier.Launch(*snap.Payload)
	}

	var lines []string
	if snap.Recognized {
		lines = snap.Lines
	}
	if err := l.cfg.Display.Render(frame, lines); err != nil {
		l.logger.Warn("render failed", "error", err)
	}

	if l.Phase() == CaptureDisplaying && now.Sub(l.displayStart) >= l.cfg.DisplayDuration {
		l.session.Signal.Stop(ReasonDisplayTimeout)
		return false
	}

	if !l.session.Frames.TryPublish(frame.Clone()) {
		l.logger.Debug("frame dropped", "seq", frame.Seq)
	}
	if l.cfg.Observer != nil {
		l.cfg.Observer.ObserveFrame(frame)
	}

	if l.cfg.Display.QuitRequested() {
		l.session.Signal.Stop(ReasonManualQuit)
		return false
	}
	return true
}

func (l *CaptureLoop) shutdown(ctx context.Context) {
	// Every exit path ends the session so the other loops follow.
	l.session.Signal.Stop(ReasonInterrupt)

	if err := l.cfg.Source.Close(); err != nil {
		l.logger.Warn("close source", "error", err)
	}
	if err := l.cfg.Display.Close(); err != nil {
		l.logger.Warn("close display", "error", err)
	}
	l.phase.Store(int32(CaptureStopped))

	l.cfg.Sequencer.Run(ctx)
	l.logger.Info("capture stopped",
		"reason", l.session.Signal.Reason(),
		"frames", l.seq,
		"read_failures", l.readFailures.Load(),
	)
}
