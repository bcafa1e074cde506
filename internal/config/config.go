// Package config loads the kiosk configuration from a TOML file and the
// environment.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/teslashibe/go-elevatr/pkg/camera"
	"github.com/teslashibe/go-elevatr/pkg/detection"
)

//go:embed sample_config.toml
var sampleConfig string

// SampleConfig returns a commented configuration file with every default.
func SampleConfig() string {
	return sampleConfig
}

// Paths contains on-disk locations.
type Paths struct {
	GalleryDir  string `toml:"gallery_dir"`
	JournalPath string `toml:"journal_path"`
	LockPath    string `toml:"lock_path"`
}

// Pipeline contains session timing and matching limits.
type Pipeline struct {
	Threshold              float64 `toml:"threshold"`
	CooldownSeconds        int     `toml:"cooldown_seconds"`
	DisplaySeconds         int     `toml:"display_seconds"`
	PollIntervalMillis     int     `toml:"poll_interval_ms"`
	AnnounceTimeoutSeconds int     `toml:"announce_timeout_seconds"`
	PersistTimeoutSeconds  int     `toml:"persist_timeout_seconds"`
	ShutdownGraceSeconds   int     `toml:"shutdown_grace_seconds"`
	ReadRetryMillis        int     `toml:"read_retry_ms"`
	MaxReadFailures        int     `toml:"max_read_failures"`
	MaxMatchErrors         int     `toml:"max_match_errors"`
}

// Gallery contains the reference image bucket settings.
type Gallery struct {
	// Provider is "s3" or "gcs".
	Provider            string `toml:"provider"`
	Bucket              string `toml:"bucket"`
	Prefix              string `toml:"prefix"`
	SyncDuringSession   bool   `toml:"sync_during_session"`
	SyncIntervalSeconds int    `toml:"sync_interval_seconds"`

	// Region and Endpoint apply to s3. AWS credentials come from the
	// standard AWS environment and shared config.
	Region   string `toml:"region"`
	Endpoint string `toml:"endpoint"`

	// CredentialsFile applies to gcs.
	CredentialsFile string `toml:"credentials_file"`
}

// Directory contains the user directory (Firebase RTDB) settings.
type Directory struct {
	URL             string `toml:"url"`
	CredentialsFile string `toml:"credentials_file"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// Predictor contains the priority model settings. Without a URL the
// table is used.
type Predictor struct {
	URL            string             `toml:"url"`
	TimeoutSeconds int                `toml:"timeout_seconds"`
	Default        float64            `toml:"default"`
	Scores         map[string]float64 `toml:"scores"`
}

// Matcher contains the embedding service settings.
type Matcher struct {
	EmbeddingURL   string `toml:"embedding_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxCandidates  int    `toml:"max_candidates"`
	// FaceGate crops frames to the detected face before embedding and
	// skips frames without one: "auto" (when the detection model file
	// exists), "on" or "off".
	FaceGate string `toml:"face_gate"`
}

// Speech contains announcement settings.
type Speech struct {
	// Engine is "openai", "command" or "log".
	Engine  string   `toml:"engine"`
	Command []string `toml:"command"`
	APIKey  string   `toml:"api_key"`
	Voice   string   `toml:"voice"`
	Model   string   `toml:"model"`
	Player  []string `toml:"player"`
}

// Journal contains the local sqlite journal settings.
type Journal struct {
	Enabled bool `toml:"enabled"`
}

// Web contains the dashboard settings.
type Web struct {
	Enabled          bool   `toml:"enabled"`
	Addr             string `toml:"addr"`
	FrameStride      int    `toml:"frame_stride"`
	StatusIntervalMS int    `toml:"status_interval_ms"`
	StaticDir        string `toml:"static_dir"`
}

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the complete kiosk configuration.
type Config struct {
	Paths     Paths            `toml:"paths"`
	Camera    camera.Config    `toml:"camera"`
	Pipeline  Pipeline         `toml:"pipeline"`
	Gallery   Gallery          `toml:"gallery"`
	Directory Directory        `toml:"directory"`
	Predictor Predictor        `toml:"predictor"`
	Matcher   Matcher          `toml:"matcher"`
	Detection detection.Config `toml:"detection"`
	Speech    Speech           `toml:"speech"`
	Journal   Journal          `toml:"journal"`
	Web       Web              `toml:"web"`
	Logging   Logging          `toml:"logging"`
}

// DefaultPath is used when no --config flag is given.
const DefaultPath = "~/.config/elevatr/kiosk.toml"

// Load reads path over the defaults, applies environment overrides,
// expands paths and validates. A missing file is not an error; exists
// reports whether one was read.
func Load(path string) (cfg *Config, exists bool, err error) {
	c := Default()
	if path == "" {
		path = DefaultPath
	}
	resolved, err := expandPath(path)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, false, fmt.Errorf("read config: %w", err)
	default:
		exists = true
		if err := toml.Unmarshal(data, &c); err != nil {
			return nil, true, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	c.ApplyEnv()
	if err := c.normalize(); err != nil {
		return nil, exists, err
	}
	if err := c.Validate(); err != nil {
		return nil, exists, err
	}
	return &c, exists, nil
}

// Parse decodes TOML over the defaults without touching the environment.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.normalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyEnv overrides settings from environment variables. Secrets are
// usually provided this way, often through a .env file.
func (c *Config) ApplyEnv() {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&c.Directory.URL, "FIREBASE_URL")
	setString(&c.Directory.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&c.Gallery.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&c.Gallery.Bucket, "GALLERY_BUCKET")
	setString(&c.Gallery.Provider, "GALLERY_PROVIDER")
	setString(&c.Gallery.Region, "AWS_REGION")
	setString(&c.Gallery.Endpoint, "GALLERY_ENDPOINT")
	setString(&c.Paths.GalleryDir, "GALLERY_DIR")
	setString(&c.Speech.APIKey, "OPENAI_API_KEY")
	setString(&c.Matcher.EmbeddingURL, "EMBEDDING_URL")
	setString(&c.Predictor.URL, "PREDICTOR_URL")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Web.Addr, "KIOSK_WEB_ADDR")

	if v := os.Getenv("KIOSK_CAMERA"); v != "" {
		var id int
		if _, err := fmt.Sscanf(v, "%d", &id); err == nil {
			c.Camera.DeviceID = id
		}
	}
	if v := strings.ToLower(os.Getenv("KIOSK_HEADLESS")); v == "1" || v == "true" {
		c.Camera.Headless = true
	}
}

func (c *Config) normalize() error {
	var err error
	for _, p := range []struct {
		field string
		value *string
	}{
		{"paths.gallery_dir", &c.Paths.GalleryDir},
		{"paths.journal_path", &c.Paths.JournalPath},
		{"paths.lock_path", &c.Paths.LockPath},
		{"directory.credentials_file", &c.Directory.CredentialsFile},
		{"gallery.credentials_file", &c.Gallery.CredentialsFile},
		{"detection.model_path", &c.Detection.ModelPath},
		{"web.static_dir", &c.Web.StaticDir},
	} {
		if *p.value, err = expandPath(*p.value); err != nil {
			return fmt.Errorf("%s: %w", p.field, err)
		}
	}
	c.Directory.URL = strings.TrimRight(strings.TrimSpace(c.Directory.URL), "/")
	c.Matcher.EmbeddingURL = strings.TrimRight(strings.TrimSpace(c.Matcher.EmbeddingURL), "/")
	c.Predictor.URL = strings.TrimRight(strings.TrimSpace(c.Predictor.URL), "/")
	c.Speech.Engine = strings.ToLower(strings.TrimSpace(c.Speech.Engine))
	c.Gallery.Provider = strings.ToLower(strings.TrimSpace(c.Gallery.Provider))
	c.Matcher.FaceGate = strings.ToLower(strings.TrimSpace(c.Matcher.FaceGate))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

func expandPath(value string) (string, error) {
	if value == "" {
		return value, nil
	}
	if strings.HasPrefix(value, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if value == "~" {
			value = home
		} else if len(value) > 1 && value[1] == '/' {
			value = filepath.Join(home, value[2:])
		}
	}
	abs, err := filepath.Abs(filepath.Clean(value))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return abs, nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
func millis(n int) time.Duration  { return time.Duration(n) * time.Millisecond }

// Cooldown returns the identity debounce window.
func (p Pipeline) Cooldown() time.Duration { return seconds(p.CooldownSeconds) }

// DisplayDuration returns how long a recognition stays on screen.
func (p Pipeline) DisplayDuration() time.Duration { return seconds(p.DisplaySeconds) }

// PollInterval returns the matching loop's receive wait.
func (p Pipeline) PollInterval() time.Duration { return millis(p.PollIntervalMillis) }

// AnnounceTimeout bounds one announcement.
func (p Pipeline) AnnounceTimeout() time.Duration { return seconds(p.AnnounceTimeoutSeconds) }

// PersistTimeout bounds recorder writes.
func (p Pipeline) PersistTimeout() time.Duration { return seconds(p.PersistTimeoutSeconds) }

// ShutdownGrace bounds the wait for background work.
func (p Pipeline) ShutdownGrace() time.Duration { return seconds(p.ShutdownGraceSeconds) }

// ReadRetry is the pause after a failed frame read.
// Face gate modes.
const (
	FaceGateAuto = "auto"
	FaceGateOn   = "on"
	FaceGateOff  = "off"
)

// FaceGateEnabled reports whether frames go through the face detector.
// In auto mode that depends on the detection model being present.
func (c *Config) FaceGateEnabled() bool {
	switch c.Matcher.FaceGate {
	case FaceGateOn:
		return true
	case FaceGateAuto:
		if c.Detection.ModelPath == "" {
			return false
		}
		info, err := os.Stat(c.Detection.ModelPath)
		return err == nil && !info.IsDir()
	default:
		return false
	}
}

func (p Pipeline) ReadRetry() time.Duration { return millis(p.ReadRetryMillis) }

// Timeout returns the directory request timeout.
func (d Directory) Timeout() time.Duration { return seconds(d.TimeoutSeconds) }

// Timeout returns the predictor request timeout.
func (p Predictor) Timeout() time.Duration { return seconds(p.TimeoutSeconds) }

// Timeout returns the embedding request timeout.
func (m Matcher) Timeout() time.Duration { return seconds(m.TimeoutSeconds) }

// SyncInterval returns the gallery poll interval.
func (g Gallery) SyncInterval() time.Duration { return seconds(g.SyncIntervalSeconds) }

// StatusInterval returns the dashboard push interval.
func (w Web) StatusInterval() time.Duration { return millis(w.StatusIntervalMS) }
