package camera

import (
	"errors"
	"sync/atomic"

	"github.com/teslashibe/go-elevatr/pkg/frames"
)

// ErrClosed is returned by a source or display after Close.
var ErrClosed = errors.New("camera: closed")

// Source produces frames. Read blocks until the next frame is available.
type Source interface {
	Read() (frames.Frame, error)
	Close() error
}

// Display shows frames with an optional text overlay and reports whether
// the operator asked to quit.
type Display interface {
	Render(frame frames.Frame, lines []string) error
	QuitRequested() bool
	Close() error
}

// Headless is a Display for kiosks without a screen. It renders nothing;
// RequestQuit lets another component (the dashboard) act as the quit key.
type Headless struct {
	quit     atomic.Bool
	rendered atomic.Uint64
	lines    atomic.Value // []string
}

// NewHeadless returns a headless display.
func NewHeadless() *Headless {
	return &Headless{}
}

// Render records the overlay lines.
func (h *Headless) Render(_ frames.Frame, lines []string) error {
	h.rendered.Add(1)
	h.lines.Store(append([]string(nil), lines...))
	return nil
}

// QuitRequested reports whether RequestQuit was called.
func (h *Headless) QuitRequested() bool {
	return h.quit.Load()
}

// RequestQuit makes the next QuitRequested return true.
func (h *Headless) RequestQuit() {
	h.quit.Store(true)
}

// Close is a no-op.
func (h *Headless) Close() error {
	return nil
}

// Rendered returns the number of frames rendered.
func (h *Headless) Rendered() uint64 {
	return h.rendered.Load()
}

// LastLines returns the overlay of the last rendered frame.
func (h *Headless) LastLines() []string {
	v, _ := h.lines.Load().([]string)
	return v
}

var _ Display = (*Headless)(nil)
