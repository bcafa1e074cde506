package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-elevatr/pkg/camera"
	"github.com/teslashibe/go-elevatr/pkg/frames"
	"github.com/teslashibe/go-elevatr/pkg/matcher"
	"github.com/teslashibe/go-elevatr/pkg/priority"
	"github.com/teslashibe/go-elevatr/pkg/recognition"
	"github.com/teslashibe/go-elevatr/pkg/speech"
)

// DefaultShutdownGrace bounds how long Run waits for background work
// after capture has stopped.
const DefaultShutdownGrace = 5 * time.Second

// Background is a worker that runs for the length of a session, such as
// the gallery sync.
type Background interface {
	Run(ctx context.Context)
}

// Config wires a session's collaborators.
type Config struct {
	Source     camera.Source
	Display    camera.Display
	Matcher    matcher.Matcher
	Directory  Directory
	Predictor  priority.Predictor
	Speaker    speech.Speaker
	Recorders  []Recorder
	Observer   FrameObserver
	Background []Background

	GalleryDir string

	Threshold       float64
	Cooldown        time.Duration
	DisplayDuration time.Duration
	PollInterval    time.Duration
	AnnounceTimeout time.Duration
	PersistTimeout  time.Duration
	ShutdownGrace   time.Duration
	CaptureRetry    RetryPolicy
	MatchRetry      RetryPolicy

	Now    func() time.Time
	Logger *slog.Logger
}

// DefaultConfig returns the timing defaults with no collaborators.
func DefaultConfig() Config {
	return Config{
		Threshold:       DefaultThreshold,
		Cooldown:        DefaultCooldown,
		DisplayDuration: DefaultDisplayDuration,
		PollInterval:    DefaultPollInterval,
		AnnounceTimeout: DefaultAnnounceTimeout,
		PersistTimeout:  DefaultPersistTimeout,
		ShutdownGrace:   DefaultShutdownGrace,
	}
}

// Result summarizes a finished session.
type Result struct {
	SessionID   string                   `json:"session_id"`
	StopReason  string                   `json:"stop_reason"`
	Recognized  bool                     `json:"recognized"`
	Recognition *recognition.Recognition `json:"recognition,omitempty"`
	LogKey      string                   `json:"log_key,omitempty"`
	Persisted   bool                     `json:"persisted"`
	Announced   bool                     `json:"announced"`
	Frames      frames.Stats             `json:"frames"`
	Matching    MatchStats               `json:"matching"`
	Duration    time.Duration            `json:"duration"`
}

// Runner owns one session and its loops.
type Runner struct {
	cfg       Config
	session   *Session
	capture   *CaptureLoop
	matching  *MatchingLoop
	notifier  *Notifier
	sequencer *Sequencer
	logger    *slog.Logger

	runOnce sync.Once
}

// NewRunner validates cfg and builds the session.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}

	session := NewSession()
	logger := cfg.Logger.With("session", session.ID)

	notifier := NewNotifier(cfg.Speaker, cfg.AnnounceTimeout, logger)
	sequencer := NewSequencer(session, SequencerConfig{
		Recorders: cfg.Recorders,
		Timeout:   cfg.PersistTimeout,
		Now:       cfg.Now,
		Logger:    logger,
	})

	capture, err := NewCaptureLoop(session, CaptureConfig{
		Source:          cfg.Source,
		Display:         cfg.Display,
		Notifier:        notifier,
		Sequencer:       sequencer,
		Observer:        cfg.Observer,
		DisplayDuration: cfg.DisplayDuration,
		Retry:           cfg.CaptureRetry,
		Now:             cfg.Now,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	matching, err := NewMatchingLoop(session, MatchingConfig{
		Matcher:      cfg.Matcher,
		Directory:    cfg.Directory,
		Predictor:    cfg.Predictor,
		GalleryDir:   cfg.GalleryDir,
		Threshold:    cfg.Threshold,
		Cooldown:     cfg.Cooldown,
		PollInterval: cfg.PollInterval,
		Retry:        cfg.MatchRetry,
		Now:          cfg.Now,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	return &Runner{
		cfg:       cfg,
		session:   session,
		capture:   capture,
		matching:  matching,
		notifier:  notifier,
		sequencer: sequencer,
		logger:    logger.With("component", "runner"),
	}, nil
}

// Session returns the runner's session.
func (r *Runner) Session() *Session { return r.session }

// Capture returns the capture loop.
func (r *Runner) Capture() *CaptureLoop { return r.capture }

// Matching returns the matching loop.
func (r *Runner) Matching() *MatchingLoop { return r.matching }

// Stop ends the session with reason. It is safe to call from any goroutine.
func (r *Runner) Stop(reason string) bool {
	return r.session.Signal.Stop(reason)
}

// ErrAlreadyRun is returned when Run is called twice.
var ErrAlreadyRun = errors.New("pipeline: runner already ran")

// Run executes the session. Capture runs on the calling goroutine;
// matching and background workers run on their own. Cancelling ctx stops
// the session with ReasonInterrupt and still persists a recognition.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	ran := false
	r.runOnce.Do(func() { ran = true })
	if !ran {
		return nil, ErrAlreadyRun
	}

	sess := r.session
	r.logger.Info("session started", "gallery", r.cfg.GalleryDir)

	// Translate external cancellation into the session signal.
	go func() {
		select {
		case <-ctx.Done():
			sess.Signal.Stop(ReasonInterrupt)
		case <-sess.Signal.Done():
		}
	}()

	bgCtx, stopBackground := sess.Signal.Context(context.WithoutCancel(ctx))
	defer stopBackground()

	var bg sync.WaitGroup
	for _, w := range r.cfg.Background {
		bg.Add(1)
		go func(w Background) {
			defer bg.Done()
			w.Run(bgCtx)
		}(w)
	}

	matchDone := make(chan struct{})
	go func() {
		defer close(matchDone)
		r.matching.Run(bgCtx)
	}()

	r.capture.Run(ctx)
	stopBackground()

	grace, cancel := context.WithTimeout(context.Background(), r.cfg.ShutdownGrace)
	defer cancel()

	select {
	case <-matchDone:
	case <-grace.Done():
		r.logger.Warn("matching loop still busy at shutdown", "grace", r.cfg.ShutdownGrace)
	}
	if err := r.notifier.Wait(grace); err != nil {
		r.logger.Warn("announcement incomplete", "error", err)
	}

	bgDone := make(chan struct{})
	go func() {
		bg.Wait()
		close(bgDone)
	}()
	select {
	case <-bgDone:
	case <-grace.Done():
		r.logger.Warn("background workers still busy at shutdown")
	}

	res := r.result()
	r.logger.Info("session finished",
		"reason", res.StopReason,
		"recognized", res.Recognized,
		"persisted", res.Persisted,
		"frames_published", res.Frames.Published,
		"frames_dropped", res.Frames.Dropped,
		"duration", res.Duration,
	)
	return res, nil
}

func (r *Runner) result() *Result {
	snap := r.session.State.Snapshot()
	res := &Result{
		SessionID:   r.session.ID,
		StopReason:  r.session.Signal.Reason(),
		Recognized:  snap.Recognized,
		Recognition: snap.Payload,
		Persisted:   r.sequencer.Persisted(),
		Announced:   r.notifier.Launched(),
		Frames:      r.session.Frames.Stats(),
		Matching:    r.matching.Stats(),
		Duration:    time.Since(r.session.StartedAt),
	}
	if e := r.sequencer.Entry(); e != nil {
		res.LogKey = e.Key
	}
	return res
}
