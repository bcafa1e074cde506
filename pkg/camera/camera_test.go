package camera

import (
	"testing"

	"github.com/teslashibe/go-elevatr/pkg/frames"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("default config invalid: %v", errs)
	}
	if cfg.Width != 640 || cfg.Height != 480 {
		t.Errorf("resolution: got %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.WindowName != "Elevator Camera" {
		t.Errorf("window name: got %q", cfg.WindowName)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errors int
	}{
		{"tiny width", func(c *Config) { c.Width = 10 }, 1},
		{"bad quality", func(c *Config) { c.Quality = 0 }, 1},
		{"window needs name", func(c *Config) { c.WindowName = "" }, 1},
		{"headless needs no name", func(c *Config) { c.WindowName = ""; c.Headless = true }, 0},
		{"quit key", func(c *Config) { c.QuitKey = "esc" }, 1},
		{"overlay", func(c *Config) { c.LineStep = 0; c.FontScale = 0; c.Thickness = 0 }, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			if errs := cfg.Validate(); len(errs) != tc.errors {
				t.Errorf("got %d errors (%v), want %d", len(errs), errs, tc.errors)
			}
		})
	}
}

func TestLinePositions(t *testing.T) {
	cfg := DefaultConfig()
	pos := cfg.LinePositions(3)
	want := [][2]int{{20, 35}, {20, 60}, {20, 85}}
	for i := range want {
		if pos[i] != want[i] {
			t.Errorf("line %d: got %v, want %v", i, pos[i], want[i])
		}
	}
}

func TestHeadless(t *testing.T) {
	h := NewHeadless()
	if h.QuitRequested() {
		t.Fatal("fresh display requests quit")
	}
	if err := h.Render(frames.Frame{}, []string{"User ID: U1"}); err != nil {
		t.Fatal(err)
	}
	if h.Rendered() != 1 || len(h.LastLines()) != 1 {
		t.Errorf("render not recorded: %d, %v", h.Rendered(), h.LastLines())
	}
	h.RequestQuit()
	if !h.QuitRequested() {
		t.Error("RequestQuit ignored")
	}
}
