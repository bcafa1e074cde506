// Package webcam drives a local OpenCV video device and window. It
// implements camera.Source and camera.Display.
package webcam

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-elevatr/pkg/camera"
	"github.com/teslashibe/go-elevatr/pkg/frames"
)

var overlayColor = color.RGBA{G: 255, A: 255}

// Device is an open camera and, unless headless, its window.
// Read and Render must be called from the same goroutine; OpenCV windows
// are not safe to drive from several threads.
type Device struct {
	cfg    camera.Config
	logger *slog.Logger

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	window *gocv.Window
	last   gocv.Mat
	closed bool

	quit atomic.Bool
}

// Open opens the device at cfg.DeviceID and requests cfg.Width x cfg.Height.
func Open(cfg camera.Config, logger *slog.Logger) (*Device, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera config: %v", errs)
	}
	if logger == nil {
		logger = slog.Default()
	}

	vc, err := gocv.OpenVideoCapture(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", cfg.DeviceID, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %d: device not available", cfg.DeviceID)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))

	d := &Device{
		cfg:    cfg,
		logger: logger.With("component", "webcam"),
		cap:    vc,
		last:   gocv.NewMat(),
	}
	if !cfg.Headless {
		d.window = gocv.NewWindow(cfg.WindowName)
	}
	d.logger.Info("camera opened",
		"device", cfg.DeviceID,
		"width", int(vc.Get(gocv.VideoCaptureFrameWidth)),
		"height", int(vc.Get(gocv.VideoCaptureFrameHeight)),
		"window", !cfg.Headless,
	)
	return d, nil
}

// Read grabs the next frame and encodes it as JPEG.
func (d *Device) Read() (frames.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return frames.Frame{}, camera.ErrClosed
	}

	if ok := d.cap.Read(&d.last); !ok || d.last.Empty() {
		return frames.Frame{}, fmt.Errorf("read camera %d: no frame", d.cfg.DeviceID)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, d.last, []int{gocv.IMWriteJpegQuality, d.cfg.Quality})
	if err != nil {
		return frames.Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return frames.Frame{
		JPEG:   append([]byte(nil), buf.GetBytes()...),
		Width:  d.last.Cols(),
		Height: d.last.Rows(),
	}, nil
}

// Render shows the last frame read with lines drawn over it and polls the
// window for the quit key. Without a window it does nothing.
func (d *Device) Render(_ frames.Frame, lines []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return camera.ErrClosed
	}
	if d.window == nil || d.last.Empty() {
		return nil
	}

	for i, pos := range d.cfg.LinePositions(len(lines)) {
		gocv.PutText(&d.last, lines[i], image.Pt(pos[0], pos[1]),
			gocv.FontHersheySimplex, d.cfg.FontScale, overlayColor, d.cfg.Thickness)
	}
	d.window.IMShow(d.last)

	if key := d.window.WaitKey(1); key >= 0 && isQuitKey(key, d.cfg.QuitKey) {
		d.logger.Info("quit key pressed")
		d.quit.Store(true)
	}
	return nil
}

// QuitRequested reports whether the quit key was pressed.
func (d *Device) QuitRequested() bool {
	return d.quit.Load()
}

// Close releases the window and the device. It is safe to call twice.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var err error
	if d.window != nil {
		if cerr := d.window.Close(); cerr != nil {
			err = cerr
		}
	}
	if cerr := d.cap.Close(); cerr != nil && err == nil {
		err = cerr
	}
	d.last.Close()
	return err
}

// isQuitKey compares the low byte of a WaitKey result with the configured
// key, ignoring case.
func isQuitKey(key int, quit string) bool {
	if len(quit) != 1 {
		return false
	}
	k := byte(key & 0xFF)
	q := quit[0]
	return k == q || toLower(k) == toLower(q)
}

func toLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
