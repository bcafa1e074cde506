package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-elevatr/pkg/directory"
	"github.com/teslashibe/go-elevatr/pkg/frames"
	"github.com/teslashibe/go-elevatr/pkg/matcher"
	"github.com/teslashibe/go-elevatr/pkg/priority"
	"github.com/teslashibe/go-elevatr/pkg/recognition"
)

// Matching defaults.
const (
	DefaultThreshold    = 0.35
	DefaultPollInterval = 100 * time.Millisecond
)

// MatchPhase is the matching loop's lifecycle position.
type MatchPhase int32

const (
	MatchSearching MatchPhase = iota
	// MatchLatched is terminal: the recognition state is set and further
	// frames are ignored.
	MatchLatched
)

func (p MatchPhase) String() string {
	if p == MatchLatched {
		return "latched"
	}
	return "searching"
}

// MatchingConfig configures a MatchingLoop.
type MatchingConfig struct {
	Matcher    matcher.Matcher
	Directory  Directory
	Predictor  priority.Predictor
	GalleryDir string

	Threshold    float64
	Cooldown     time.Duration
	PollInterval time.Duration
	Retry        RetryPolicy
	Now          func() time.Time
	Logger       *slog.Logger
}

// MatchStats counts how frames were handled.
type MatchStats struct {
	Processed    uint64 `json:"processed"`
	MatcherError uint64 `json:"matcher_errors"`
	NoCandidate  uint64 `json:"no_candidate"`
	AboveLimit   uint64 `json:"above_threshold"`
	CooledDown   uint64 `json:"cooled_down"`
	Incomplete   uint64 `json:"incomplete"`
}

// MatchingLoop consumes frames and latches the first acceptable match.
type MatchingLoop struct {
	cfg      MatchingConfig
	session  *Session
	cooldown *CooldownTable
	logger   *slog.Logger

	phase atomic.Int32

	processed       atomic.Uint64
	matcherErrs     atomic.Uint64
	noCandidate     atomic.Uint64
	aboveLimit      atomic.Uint64
	cooledDown      atomic.Uint64
	incomplete      atomic.Uint64
	consecutiveErrs int
}

// NewMatchingLoop creates a matching loop for session.
func NewMatchingLoop(session *Session, cfg MatchingConfig) (*MatchingLoop, error) {
	if session == nil {
		return nil, errors.New("pipeline: session required")
	}
	if cfg.Matcher == nil {
		return nil, errors.New("pipeline: matcher required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("pipeline: directory required")
	}
	if cfg.Predictor == nil {
		return nil, errors.New("pipeline: predictor required")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &MatchingLoop{
		cfg:      cfg,
		session:  session,
		cooldown: NewCooldownTable(cfg.Cooldown),
		logger:   cfg.Logger.With("component", "matching"),
	}, nil
}

// Phase returns the current phase.
func (m *MatchingLoop) Phase() MatchPhase {
	return MatchPhase(m.phase.Load())
}

// Stats returns the frame counters.
func (m *MatchingLoop) Stats() MatchStats {
	return MatchStats{
		Processed:    m.processed.Load(),
		MatcherError: m.matcherErrs.Load(),
		NoCandidate:  m.noCandidate.Load(),
		AboveLimit:   m.aboveLimit.Load(),
		CooledDown:   m.cooledDown.Load(),
		Incomplete:   m.incomplete.Load(),
	}
}

// Run consumes frames until a match latches, the session stops or ctx is
// done. Collaborator calls in flight are not cancelled by the session
// stopping; the loop exits after the current frame.
func (m *MatchingLoop) Run(ctx context.Context) {
	m.logGallery()

	recvCtx, cancel := m.session.Signal.Context(ctx)
	defer cancel()
	workCtx := context.WithoutCancel(ctx)

	for !m.session.Signal.Stopped() && m.Phase() != MatchLatched {
		frame, ok := m.session.Frames.Receive(recvCtx, m.cfg.PollInterval)
		if !ok {
			if recvCtx.Err() != nil {
				break
			}
			continue
		}
		if m.Process(workCtx, frame) {
			break
		}
	}
	m.logger.Info("matching stopped", "phase", m.Phase().String(), "processed", m.processed.Load())
}

// Process runs one frame through the match pipeline. It reports whether
// the loop is latched afterwards.
func (m *MatchingLoop) Process(ctx context.Context, frame frames.Frame) bool {
	if m.Phase() == MatchLatched {
		return true
	}
	m.processed.Add(1)

	cands, err := m.cfg.Matcher.Find(ctx, frame, m.cfg.GalleryDir)
	if err != nil {
		m.matcherErrs.Add(1)
		m.consecutiveErrs++
		m.logger.Warn("matcher failed", "seq", frame.Seq, "error", err)
		if m.cfg.Retry.exhausted(m.consecutiveErrs) {
			m.session.Signal.Stop(ReasonDeviceFailure)
			return false
		}
		m.cfg.Retry.wait(m.session.Signal)
		return false
	}
	m.consecutiveErrs = 0

	best, ok := matcher.Best(cands)
	if !ok {
		m.noCandidate.Add(1)
		m.logger.Debug("no face matched", "seq", frame.Seq)
		return false
	}
	if best.Distance > m.cfg.Threshold {
		m.aboveLimit.Add(1)
		m.logger.Debug("best match above threshold", "identity", best.Identity, "distance", best.Distance)
		return false
	}

	userID := matcher.IdentityKey(best.Identity)
	now := m.cfg.Now()
	if m.cooldown.Active(userID, now) {
		m.cooledDown.Add(1)
		m.logger.Debug("identity in cooldown", "user_id", userID)
		return false
	}

	rec, ok := m.enrich(ctx, userID)
	if !ok {
		m.incomplete.Add(1)
		return false
	}

	if m.session.Signal.Stopped() {
		m.logger.Info("session stopped before latch", "user_id", userID)
		return false
	}
	if !m.session.State.TryLatch(recognition.DisplayLines(rec), rec) {
		if !m.session.State.Recognized() {
			m.logger.Info("session closed before latch", "user_id", userID)
			return false
		}
		m.phase.Store(int32(MatchLatched))
		return true
	}
	m.cooldown.Record(userID, now)
	m.phase.Store(int32(MatchLatched))

	m.logger.Info("user recognized",
		"user_id", rec.UserID,
		"name", rec.UserName,
		"distance", best.Distance,
		"priority", rec.PredictedPriority,
		"destination_floor", rec.Reservation.DestinationFloor,
	)
	return true
}

// enrich resolves the user, reservation and priority for userID. Missing
// data is logged and reported as not ok.
func (m *MatchingLoop) enrich(ctx context.Context, userID string) (recognition.Recognition, bool) {
	user, err := m.cfg.Directory.FindUser(ctx, userID)
	if errors.Is(err, directory.ErrNotFound) {
		m.logger.Info("matched identity has no user record", "user_id", userID)
		return recognition.Recognition{}, false
	}
	if err != nil {
		m.logger.Warn("user lookup failed", "user_id", userID, "error", err)
		return recognition.Recognition{}, false
	}
	if user.ExternalUID == "" {
		m.logger.Warn("user has no external UID", "user_id", userID)
		return recognition.Recognition{}, false
	}

	res, err := m.cfg.Directory.FirstReservation(ctx, user.ExternalUID)
	if err != nil {
		m.logger.Info("no reservation for user", "user_id", userID, "error", err)
		return recognition.Recognition{}, false
	}

	designation := user.DesignationOrDefault()
	score, err := m.cfg.Predictor.Predict(ctx, designation)
	if err != nil {
		m.logger.Warn("priority prediction failed", "user_id", userID, "designation", designation, "error", err)
		return recognition.Recognition{}, false
	}

	return recognition.Recognition{
		UserID:            userID,
		UserName:          user.DisplayName(),
		ExternalUID:       user.ExternalUID,
		Designation:       designation,
		Reservation:       *res,
		PredictedPriority: score,
	}, true
}

func (m *MatchingLoop) logGallery() {
	files, err := matcher.GalleryFiles(m.cfg.GalleryDir)
	if err != nil {
		m.logger.Warn("list gallery", "dir", m.cfg.GalleryDir, "error", err)
		return
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.Base(f)
	}
	m.logger.Info("matching started", "gallery", m.cfg.GalleryDir, "profiles", len(names), "files", names)
}
