package recognition

import "sync"

// Snapshot is a consistent copy of State.
type Snapshot struct {
	Lines      []string     `json:"lines"`
	Payload    *Recognition `json:"payload,omitempty"`
	Recognized bool         `json:"recognized"`
}

// State is written once by the matching loop and read on every captured
// frame. Once recognized or closed it never changes again.
type State struct {
	mu         sync.Mutex
	lines      []string
	payload    *Recognition
	recognized bool
	closed     bool
}

// NewState returns an empty, unrecognized state.
func NewState() *State {
	return &State{}
}

// Snapshot returns a copy of the current state taken under the lock.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close refuses all later latches and returns the final snapshot. The
// shutdown sequence persists exactly what Close returns.
func (s *State) Close() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.snapshotLocked()
}

// Closed reports whether Close has been called.
func (s *State) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *State) snapshotLocked() Snapshot {
	snap := Snapshot{Recognized: s.recognized}
	if len(s.lines) > 0 {
		snap.Lines = append([]string(nil), s.lines...)
	}
	if s.payload != nil {
		p := *s.payload
		snap.Payload = &p
	}
	return snap
}

// Recognized reports whether the state has latched.
func (s *State) Recognized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recognized
}

// TryLatch stores lines and payload and marks the state recognized.
// The first successful call wins; later calls, calls after Close and calls
// with no lines are no-ops returning false.
func (s *State) TryLatch(lines []string, payload Recognition) bool {
	if len(lines) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recognized || s.closed {
		return false
	}
	s.lines = append([]string(nil), lines...)
	s.payload = &payload
	s.recognized = true
	return true
}
