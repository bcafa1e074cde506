package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-elevatr/pkg/recognition"
)

// DefaultPersistTimeout bounds all recorder writes at shutdown.
const DefaultPersistTimeout = 10 * time.Second

// Sequencer persists the session outcome exactly once.
type Sequencer struct {
	session   *Session
	recorders []Recorder
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger

	once      sync.Once
	ran       atomic.Bool
	persisted atomic.Bool
	entry     *recognition.LogEntry
}

// SequencerConfig configures a Sequencer.
type SequencerConfig struct {
	Recorders []Recorder
	Timeout   time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
}

// NewSequencer creates a sequencer for session.
func NewSequencer(session *Session, cfg SequencerConfig) *Sequencer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPersistTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sequencer{
		session:   session,
		recorders: cfg.Recorders,
		timeout:   cfg.Timeout,
		now:       cfg.Now,
		logger:    cfg.Logger.With("component", "sequencer"),
	}
}

// Run persists the recognition, if any, to every recorder. Only the first
// call does work; it reports whether at least one recorder succeeded.
// Writes are not cancelled by ctx, only bounded by the persist timeout,
// so an interrupt still gets its recognition logged.
func (s *Sequencer) Run(ctx context.Context) bool {
	s.once.Do(func() {
		s.persisted.Store(s.persist(ctx))
		s.ran.Store(true)
	})
	return s.persisted.Load()
}

func (s *Sequencer) persist(ctx context.Context) bool {
	snap := s.session.State.Close()
	if !snap.Recognized || snap.Payload == nil {
		s.logger.Info("no recognized data to persist", "session", s.session.ID)
		return false
	}

	at := s.now()
	entry := recognition.LogEntry{
		SessionID:   s.session.ID,
		Key:         recognition.LogKey(snap.Payload.UserID, at),
		CapturedAt:  at,
		Recognition: *snap.Payload,
	}
	s.entry = &entry

	if len(s.recorders) == 0 {
		s.logger.Warn("recognition not persisted: no recorders configured", "key", entry.Key)
		return false
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	ok := false
	for _, r := range s.recorders {
		if err := r.Record(pctx, entry); err != nil {
			s.logger.Error("persist recognition", "key", entry.Key, "error", err)
			continue
		}
		ok = true
	}
	if ok {
		s.logger.Info("recognition persisted", "key", entry.Key, "user_id", entry.Recognition.UserID)
	}
	return ok
}

// Persisted reports whether the last Run reached at least one recorder.
func (s *Sequencer) Persisted() bool {
	return s.persisted.Load()
}

// Ran reports whether Run has completed.
func (s *Sequencer) Ran() bool {
	return s.ran.Load()
}

// Entry returns the log entry built by Run, or nil when nothing was
// recognized. Valid after Run returns.
func (s *Sequencer) Entry() *recognition.LogEntry {
	if !s.ran.Load() {
		return nil
	}
	return s.entry
}
