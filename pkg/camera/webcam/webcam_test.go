package webcam

import (
	"os"
	"testing"

	"github.com/teslashibe/go-elevatr/internal/log"
	"github.com/teslashibe/go-elevatr/pkg/camera"
)

func TestIsQuitKey(t *testing.T) {
	tests := []struct {
		key  int
		quit string
		want bool
	}{
		{'q', "q", true},
		{'Q', "q", true},
		{'q' | 0x100000, "q", true}, // modifier bits from some backends
		{'x', "q", false},
		{27, "q", false},
		{'q', "", false},
	}
	for _, tc := range tests {
		if got := isQuitKey(tc.key, tc.quit); got != tc.want {
			t.Errorf("isQuitKey(%d, %q) = %v, want %v", tc.key, tc.quit, got, tc.want)
		}
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := camera.DefaultConfig()
	cfg.Width = 1
	if _, err := Open(cfg, log.Discard()); err == nil {
		t.Error("expected config error")
	}
}

func TestDeviceReadsFrames(t *testing.T) {
	if os.Getenv("KIOSK_CAMERA_TEST") == "" {
		t.Skip("set KIOSK_CAMERA_TEST=1 to run against a real camera")
	}
	cfg := camera.DefaultConfig()
	cfg.Headless = true

	d, err := Open(cfg, log.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	f, err := d.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(f.JPEG) == 0 || f.Width == 0 || f.Height == 0 {
		t.Errorf("frame: %d bytes %dx%d", len(f.JPEG), f.Width, f.Height)
	}
	if err := d.Render(f, []string{"User ID: test"}); err != nil {
		t.Errorf("Render: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if _, err := d.Read(); err != camera.ErrClosed {
		t.Errorf("Read after close: got %v", err)
	}
}
