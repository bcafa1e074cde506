package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	c := Default()
	c.Directory.URL = "https://kiosk.firebaseio.com"
	if err := c.normalize(); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestDefaultNeedsDirectory(t *testing.T) {
	c := Default()
	if err := c.normalize(); err != nil {
		t.Fatal(err)
	}
	err := c.Validate()
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Field != "directory.url" {
		t.Fatalf("expected directory.url error, got %v", err)
	}

	c.Directory.URL = "https://kiosk.firebaseio.com"
	if err := c.Validate(); err != nil {
		t.Errorf("default config with a directory should validate: %v", err)
	}
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	parsed, err := Parse([]byte(SampleConfig()))
	if err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	def := Default()
	if err := def.normalize(); err != nil {
		t.Fatal(err)
	}
	if parsed.Pipeline != def.Pipeline {
		t.Errorf("pipeline: sample %+v, default %+v", parsed.Pipeline, def.Pipeline)
	}
	if parsed.Camera != def.Camera {
		t.Errorf("camera: sample %+v, default %+v", parsed.Camera, def.Camera)
	}
	if parsed.Paths != def.Paths {
		t.Errorf("paths: sample %+v, default %+v", parsed.Paths, def.Paths)
	}
	if parsed.Gallery != def.Gallery {
		t.Errorf("gallery: sample %+v, default %+v", parsed.Gallery, def.Gallery)
	}
	if parsed.Matcher != def.Matcher {
		t.Errorf("matcher: sample %+v, default %+v", parsed.Matcher, def.Matcher)
	}
	if parsed.Speech.Engine != def.Speech.Engine || len(parsed.Speech.Player) != len(def.Speech.Player) {
		t.Errorf("speech: sample %+v, default %+v", parsed.Speech, def.Speech)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("FIREBASE_URL", "https://kiosk.firebaseio.com/")
	c, exists, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Error("exists should be false")
	}
	if c.Directory.URL != "https://kiosk.firebaseio.com" {
		t.Errorf("directory url: got %q", c.Directory.URL)
	}
	if c.Pipeline.Threshold != 0.35 || c.Pipeline.DisplayDuration() != 10*time.Second {
		t.Errorf("pipeline defaults: %+v", c.Pipeline)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kiosk.toml")
	data := `
[paths]
gallery_dir = "` + filepath.Join(dir, "gallery") + `"

[camera]
device_id = 2
headless = true

[pipeline]
threshold = 0.3
display_seconds = 5

[directory]
url = "https://from-file.firebaseio.com"

[predictor.scores]
manager = 2.5

[speech]
engine = "LOG"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KIOSK_CAMERA", "4")
	t.Setenv("EMBEDDING_URL", "http://embed:9000/")

	c, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Error("exists should be true")
	}
	if c.Camera.DeviceID != 4 || !c.Camera.Headless {
		t.Errorf("camera: %+v", c.Camera)
	}
	if c.Camera.Width != 640 {
		t.Errorf("unset camera fields should keep defaults: %+v", c.Camera)
	}
	if c.Pipeline.Threshold != 0.3 || c.Pipeline.DisplayDuration() != 5*time.Second {
		t.Errorf("pipeline: %+v", c.Pipeline)
	}
	if c.Pipeline.CooldownSeconds != 10 {
		t.Errorf("cooldown default lost: %d", c.Pipeline.CooldownSeconds)
	}
	if c.Directory.URL != "https://from-file.firebaseio.com" {
		t.Errorf("directory: %q", c.Directory.URL)
	}
	if c.Matcher.EmbeddingURL != "http://embed:9000" {
		t.Errorf("embedding url: %q", c.Matcher.EmbeddingURL)
	}
	if c.Predictor.Scores["manager"] != 2.5 {
		t.Errorf("scores: %v", c.Predictor.Scores)
	}
	if c.Speech.Engine != "log" {
		t.Errorf("engine: %q", c.Speech.Engine)
	}
}

func TestLoadRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	os.WriteFile(path, []byte("[pipeline\nthreshold = "), 0o644)
	if _, _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"threshold zero", func(c *Config) { c.Pipeline.Threshold = 0 }, "pipeline.threshold"},
		{"threshold too large", func(c *Config) { c.Pipeline.Threshold = 3 }, "pipeline.threshold"},
		{"display", func(c *Config) { c.Pipeline.DisplaySeconds = 0 }, "pipeline.display_seconds"},
		{"negative retries", func(c *Config) { c.Pipeline.MaxReadFailures = -1 }, "pipeline"},
		{"bad directory url", func(c *Config) { c.Directory.URL = "kiosk.firebaseio.com" }, "directory.url"},
		{"no embedding url", func(c *Config) { c.Matcher.EmbeddingURL = "" }, "matcher.embedding_url"},
		{"face gate without model", func(c *Config) { c.Matcher.FaceGate = FaceGateOn; c.Detection.ModelPath = "" }, "detection.model_path"},
		{"unknown face gate", func(c *Config) { c.Matcher.FaceGate = "maybe" }, "matcher.face_gate"},
		{"unknown gallery provider", func(c *Config) { c.Gallery.Provider = "azure" }, "gallery.provider"},
		{"openai without key", func(c *Config) { c.Speech.Engine = "openai" }, "speech.api_key"},
		{"command without argv", func(c *Config) { c.Speech.Command = nil }, "speech.command"},
		{"unknown engine", func(c *Config) { c.Speech.Engine = "morse" }, "speech.engine"},
		{"camera", func(c *Config) { c.Camera.Quality = 0 }, "camera"},
		{"journal path", func(c *Config) { c.Paths.JournalPath = "" }, "paths.journal_path"},
		{"web addr", func(c *Config) { c.Web.Enabled = true; c.Web.Addr = "" }, "web.addr"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig(t)
			tc.modify(&c)
			err := c.Validate()
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if ce.Field != tc.field {
				t.Errorf("field: got %q, want %q (%v)", ce.Field, tc.field, err)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := expandPath("~/kiosk/gallery")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "kiosk", "gallery") {
		t.Errorf("got %q", got)
	}
	if got, _ := expandPath(""); got != "" {
		t.Errorf("empty path: got %q", got)
	}
}

func TestDurations(t *testing.T) {
	c := Default()
	if c.Pipeline.PollInterval() != 100*time.Millisecond {
		t.Errorf("poll interval: %v", c.Pipeline.PollInterval())
	}
	if c.Web.StatusInterval() != time.Second || c.Gallery.SyncInterval() != 10*time.Second {
		t.Errorf("intervals: %v %v", c.Web.StatusInterval(), c.Gallery.SyncInterval())
	}
}

func TestGalleryDefaults(t *testing.T) {
	c := Default()
	if c.Gallery.Provider != "s3" || c.Gallery.Prefix != "profile_pictures/" {
		t.Errorf("gallery defaults: %+v", c.Gallery)
	}
	if c.Pipeline.ReadRetry() != 0 {
		t.Errorf("read retry: got %v, want 0", c.Pipeline.ReadRetry())
	}
}

func TestFaceGateEnabled(t *testing.T) {
	model := filepath.Join(t.TempDir(), "face_detection_yunet.onnx")
	if err := os.WriteFile(model, []byte("onnx"), 0o644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(t.TempDir(), "missing.onnx")

	tests := []struct {
		mode  string
		model string
		want  bool
	}{
		{FaceGateAuto, model, true},
		{FaceGateAuto, missing, false},
		{FaceGateAuto, "", false},
		{FaceGateOn, missing, true},
		{FaceGateOff, model, false},
	}
	for _, tc := range tests {
		c := Default()
		c.Matcher.FaceGate = tc.mode
		c.Detection.ModelPath = tc.model
		if got := c.FaceGateEnabled(); got != tc.want {
			t.Errorf("mode %s model %q: got %v, want %v", tc.mode, tc.model, got, tc.want)
		}
	}
}
