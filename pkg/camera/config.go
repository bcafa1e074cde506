// Package camera describes the kiosk video device: its configuration and
// the Source and Display contracts the capture loop drives.
package camera

// Config holds all camera and window parameters.
type Config struct {
	// === Device ===
	DeviceID int `toml:"device_id" json:"device_id"` // OpenCV device index
	Width    int `toml:"width" json:"width"`         // Requested frame width in pixels
	Height   int `toml:"height" json:"height"`       // Requested frame height in pixels
	Quality  int `toml:"quality" json:"quality"`     // JPEG quality 1-100 for handed-off frames

	// === Window ===
	WindowName string `toml:"window_name" json:"window_name"`
	Headless   bool   `toml:"headless" json:"headless"` // No window; the dashboard feed replaces it

	// === Overlay ===
	// Recognition lines are drawn starting at (OverlayX, OverlayY), one
	// line every LineStep pixels.
	OverlayX  int     `toml:"overlay_x" json:"overlay_x"`
	OverlayY  int     `toml:"overlay_y" json:"overlay_y"`
	LineStep  int     `toml:"line_step" json:"line_step"`
	FontScale float64 `toml:"font_scale" json:"font_scale"`
	Thickness int     `toml:"thickness" json:"thickness"`

	// QuitKey is the key that ends the session from the window.
	QuitKey string `toml:"quit_key" json:"quit_key"`
}

// Device limits.
const (
	MaxWidth  = 4096
	MaxHeight = 2160
)

// DefaultConfig returns the kiosk defaults: VGA capture, overlay in the top
// left corner.
func DefaultConfig() Config {
	return Config{
		DeviceID: 0,
		Width:    640,
		Height:   480,
		Quality:  85,

		WindowName: "Elevator Camera",

		OverlayX:  20,
		OverlayY:  35,
		LineStep:  25,
		FontScale: 0.7,
		Thickness: 2,

		QuitKey: "q",
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.DeviceID < 0 {
		errors = append(errors, "device_id must not be negative")
	}
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 4096")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	if !c.Headless && c.WindowName == "" {
		errors = append(errors, "window_name is required unless headless")
	}
	if c.LineStep < 1 {
		errors = append(errors, "line_step must be positive")
	}
	if c.FontScale <= 0 {
		errors = append(errors, "font_scale must be positive")
	}
	if c.Thickness < 1 {
		errors = append(errors, "thickness must be positive")
	}
	if len(c.QuitKey) != 1 {
		errors = append(errors, "quit_key must be a single character")
	}

	return errors
}

// LinePositions returns the baseline of each overlay line.
func (c *Config) LinePositions(n int) [][2]int {
	pos := make([][2]int, n)
	for i := range pos {
		pos[i] = [2]int{c.OverlayX, c.OverlayY + i*c.LineStep}
	}
	return pos
}
