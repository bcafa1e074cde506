package config

import (
	"fmt"
	"strings"
)

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks that required configuration is present and in range.
// It returns the first problem as a *ConfigError.
func (c *Config) Validate() error {
	if c.Paths.GalleryDir == "" {
		return invalid("paths.gallery_dir", "is required")
	}
	if errs := c.Camera.Validate(); len(errs) > 0 {
		return invalid("camera", "%s", strings.Join(errs, "; "))
	}

	p := c.Pipeline
	if p.Threshold <= 0 || p.Threshold > 2 {
		return invalid("pipeline.threshold", "must be in (0, 2], got %v", p.Threshold)
	}
	for _, d := range []struct {
		field string
		value int
	}{
		{"pipeline.cooldown_seconds", p.CooldownSeconds},
		{"pipeline.display_seconds", p.DisplaySeconds},
		{"pipeline.poll_interval_ms", p.PollIntervalMillis},
		{"pipeline.announce_timeout_seconds", p.AnnounceTimeoutSeconds},
		{"pipeline.persist_timeout_seconds", p.PersistTimeoutSeconds},
		{"pipeline.shutdown_grace_seconds", p.ShutdownGraceSeconds},
		{"directory.timeout_seconds", c.Directory.TimeoutSeconds},
		{"matcher.timeout_seconds", c.Matcher.TimeoutSeconds},
	} {
		if d.value <= 0 {
			return invalid(d.field, "must be positive")
		}
	}
	if p.ReadRetryMillis < 0 || p.MaxReadFailures < 0 || p.MaxMatchErrors < 0 {
		return invalid("pipeline", "retry settings must not be negative")
	}

	if c.Directory.URL == "" {
		return invalid("directory.url", "FIREBASE_URL or directory.url is required")
	}
	if !strings.HasPrefix(c.Directory.URL, "http://") && !strings.HasPrefix(c.Directory.URL, "https://") {
		return invalid("directory.url", "must be an http(s) URL")
	}
	if c.Matcher.EmbeddingURL == "" {
		return invalid("matcher.embedding_url", "EMBEDDING_URL or matcher.embedding_url is required")
	}
	switch c.Matcher.FaceGate {
	case FaceGateAuto, FaceGateOff:
	case FaceGateOn:
		if c.Detection.ModelPath == "" {
			return invalid("detection.model_path", "is required when matcher.face_gate is on")
		}
	default:
		return invalid("matcher.face_gate", "must be auto, on or off, got %q", c.Matcher.FaceGate)
	}

	switch c.Gallery.Provider {
	case "s3", "gcs":
	default:
		return invalid("gallery.provider", "must be s3 or gcs, got %q", c.Gallery.Provider)
	}
	if c.Gallery.Bucket != "" && c.Gallery.SyncDuringSession && c.Gallery.SyncIntervalSeconds <= 0 {
		return invalid("gallery.sync_interval_seconds", "must be positive")
	}

	switch c.Speech.Engine {
	case "openai":
		if c.Speech.APIKey == "" {
			return invalid("speech.api_key", "OPENAI_API_KEY is required for the openai engine")
		}
		if len(c.Speech.Player) == 0 {
			return invalid("speech.player", "is required for the openai engine")
		}
	case "command":
		if len(c.Speech.Command) == 0 {
			return invalid("speech.command", "is required for the command engine")
		}
	case "log":
	default:
		return invalid("speech.engine", "must be openai, command or log, got %q", c.Speech.Engine)
	}

	if c.Journal.Enabled && c.Paths.JournalPath == "" {
		return invalid("paths.journal_path", "is required when the journal is enabled")
	}
	if c.Web.Enabled && c.Web.Addr == "" {
		return invalid("web.addr", "is required when the dashboard is enabled")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return invalid("logging.format", "must be text or json")
	}
	return nil
}
