package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-elevatr/pkg/directory"
	"github.com/teslashibe/go-elevatr/pkg/frames"
	"github.com/teslashibe/go-elevatr/pkg/recognition"
)

// fakeClock is advanced explicitly by the tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSource yields small JPEG-like frames. When clock is set each read
// advances it by step; when delay is set each read sleeps.
type fakeSource struct {
	clock *fakeClock
	step  time.Duration
	delay time.Duration

	// failFirst makes the first n reads fail; alwaysFail makes all fail.
	failFirst  int
	alwaysFail bool

	reads    atomic.Int64
	closed   atomic.Bool
	closedAt time.Time
}

func (s *fakeSource) Read() (frames.Frame, error) {
	n := s.reads.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.clock != nil {
		s.clock.Advance(s.step)
	}
	if s.alwaysFail || int(n) <= s.failFirst {
		return frames.Frame{}, errors.New("device busy")
	}
	return frames.Frame{JPEG: []byte{0xFF, 0xD8, byte(n)}, Width: 640, Height: 480}, nil
}

func (s *fakeSource) Close() error {
	if s.clock != nil {
		s.closedAt = s.clock.Now()
	}
	s.closed.Store(true)
	return nil
}

// fakeDisplay records rendered overlays and requests quit after quitAfter
// renders when quitAfter > 0.
type fakeDisplay struct {
	mu        sync.Mutex
	renders   int
	overlays  [][]string
	quitAfter int
	closed    bool
}

func (d *fakeDisplay) Render(_ frames.Frame, lines []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.renders++
	d.overlays = append(d.overlays, append([]string(nil), lines...))
	return nil
}

func (d *fakeDisplay) QuitRequested() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quitAfter > 0 && d.renders >= d.quitAfter
}

func (d *fakeDisplay) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDisplay) Renders() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.renders
}

// fakeDirectory serves users and reservations from maps.
type fakeDirectory struct {
	users        map[string]directory.User
	reservations map[string]recognition.Reservation
	userErr      error

	lookups atomic.Int64
}

func (d *fakeDirectory) FindUser(_ context.Context, userID string) (*directory.User, error) {
	d.lookups.Add(1)
	if d.userErr != nil {
		return nil, d.userErr
	}
	u, ok := d.users[userID]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return &u, nil
}

func (d *fakeDirectory) FirstReservation(_ context.Context, uid string) (*recognition.Reservation, error) {
	r, ok := d.reservations[uid]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return &r, nil
}

func standardDirectory() *fakeDirectory {
	return &fakeDirectory{
		users: map[string]directory.User{
			"U7": {UserID: "U7", ExternalUID: "fb-7", Name: "Ada", Designation: "Manager"},
			"U8": {UserID: "U8", Name: "No Account"},
		},
		reservations: map[string]recognition.Reservation{
			"fb-7": {EntryFloor: 0, DestinationFloor: 5, NumberOfPeople: 1, UrgencyLevel: "high", WaitingTimePreference: 2},
		},
	}
}

// fakeRecorder stores entries; failing recorders return err.
type fakeRecorder struct {
	mu      sync.Mutex
	entries []recognition.LogEntry
	err     error
}

func (r *fakeRecorder) Record(ctx context.Context, e recognition.LogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return r.err
}

func (r *fakeRecorder) Entries() []recognition.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recognition.LogEntry(nil), r.entries...)
}
