package config

import (
	"github.com/teslashibe/go-elevatr/pkg/camera"
	"github.com/teslashibe/go-elevatr/pkg/detection"
	"github.com/teslashibe/go-elevatr/pkg/speech"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Paths: Paths{
			GalleryDir:  "~/.local/share/elevatr/gallery",
			JournalPath: "~/.local/share/elevatr/journal.db",
			LockPath:    "~/.local/share/elevatr/kiosk.lock",
		},
		Camera: camera.DefaultConfig(),
		Pipeline: Pipeline{
			Threshold:              0.35,
			CooldownSeconds:        10,
			DisplaySeconds:         10,
			PollIntervalMillis:     100,
			AnnounceTimeoutSeconds: 15,
			PersistTimeoutSeconds:  10,
			ShutdownGraceSeconds:   5,
			ReadRetryMillis:        0,
			MaxReadFailures:        0,
			MaxMatchErrors:         0,
		},
		Gallery: Gallery{
			Provider:            "s3",
			Prefix:              "profile_pictures/",
			SyncDuringSession:   true,
			SyncIntervalSeconds: 10,
		},
		Directory: Directory{
			TimeoutSeconds: 10,
		},
		Predictor: Predictor{
			TimeoutSeconds: 5,
			Default:        1.0,
		},
		Matcher: Matcher{
			EmbeddingURL:   "http://127.0.0.1:8000",
			TimeoutSeconds: 10,
			MaxCandidates:  5,
			FaceGate:       FaceGateAuto,
		},
		Detection: detection.DefaultConfig(),
		Speech: Speech{
			Engine:  "command",
			Command: append([]string(nil), speech.DefaultCommand...),
			Voice:   speech.VoiceShimmer,
			Model:   speech.ModelTTS1,
			Player:  append([]string(nil), speech.DefaultPlayer...),
		},
		Journal: Journal{
			Enabled: true,
		},
		Web: Web{
			Enabled:          false,
			Addr:             "127.0.0.1:8090",
			FrameStride:      3,
			StatusIntervalMS: 1000,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}
