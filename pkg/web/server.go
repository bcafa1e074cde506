// Package web serves the kiosk status dashboard: session status, a remote
// stop button and the live camera feed.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-elevatr/pkg/frames"
	"github.com/teslashibe/go-elevatr/pkg/hub"
	"github.com/teslashibe/go-elevatr/pkg/pipeline"
	"github.com/teslashibe/go-elevatr/pkg/recognition"
)

// Config configures the dashboard server.
type Config struct {
	Addr string

	// FrameStride forwards every Nth captured frame to camera viewers.
	FrameStride int

	// StatusInterval is how often status is pushed to websocket clients.
	StatusInterval time.Duration

	// StaticDir, when set, is served at /.
	StaticDir string

	Logger *slog.Logger
}

// DefaultConfig returns the dashboard defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:8090",
		FrameStride:    3,
		StatusInterval: time.Second,
	}
}

// Status is the dashboard view of a session.
type Status struct {
	SessionID    string                   `json:"session_id"`
	CapturePhase string                   `json:"capture_phase"`
	MatchPhase   string                   `json:"match_phase"`
	Stopped      bool                     `json:"stopped"`
	StopReason   string                   `json:"stop_reason,omitempty"`
	Recognized   bool                     `json:"recognized"`
	Lines        []string                 `json:"lines,omitempty"`
	Recognition  *recognition.Recognition `json:"recognition,omitempty"`
	Frames       frames.Stats             `json:"frames"`
	Matching     pipeline.MatchStats      `json:"matching"`
	Uptime       string                   `json:"uptime"`
	Viewers      int                      `json:"viewers"`
}

// Server is the dashboard. It observes captured frames and runs for the
// length of a session as a pipeline background worker.
type Server struct {
	cfg    Config
	app    *fiber.App
	logger *slog.Logger

	statusHub *hub.Hub
	cameraHub *hub.Hub

	mu     sync.RWMutex
	runner *pipeline.Runner

	frameCount atomic.Uint64
}

// NewServer creates the dashboard server.
func NewServer(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.FrameStride <= 0 {
		cfg.FrameStride = def.FrameStride
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = def.StatusInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "web"),
		statusHub: hub.New("status", cfg.Logger),
		cameraHub: hub.New("camera", cfg.Logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Elevator Kiosk",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/stop", s.handleStop)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// Bind attaches the session the dashboard reports on.
func (s *Server) Bind(r *pipeline.Runner) {
	s.mu.Lock()
	s.runner = r
	s.mu.Unlock()
}

func (s *Server) bound() *pipeline.Runner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runner
}

// Status returns the current session status. ok is false before Bind.
func (s *Server) Status() (Status, bool) {
	r := s.bound()
	if r == nil {
		return Status{}, false
	}
	sess := r.Session()
	snap := sess.State.Snapshot()
	return Status{
		SessionID:    sess.ID,
		CapturePhase: r.Capture().Phase().String(),
		MatchPhase:   r.Matching().Phase().String(),
		Stopped:      sess.Signal.Stopped(),
		StopReason:   sess.Signal.Reason(),
		Recognized:   snap.Recognized,
		Lines:        snap.Lines,
		Recognition:  snap.Payload,
		Frames:       sess.Frames.Stats(),
		Matching:     r.Matching().Stats(),
		Uptime:       time.Since(sess.StartedAt).Truncate(time.Second).String(),
		Viewers:      s.cameraHub.ClientCount(),
	}, true
}

// ObserveFrame forwards every FrameStride-th frame to camera viewers.
// It never blocks the capture loop.
func (s *Server) ObserveFrame(f frames.Frame) {
	n := s.frameCount.Add(1)
	if (n-1)%uint64(s.cfg.FrameStride) != 0 || len(f.JPEG) == 0 {
		return
	}
	if s.cameraHub.ClientCount() == 0 {
		return
	}
	s.cameraHub.BroadcastBinary(append([]byte(nil), f.JPEG...))
}

// Run serves on cfg.Addr until ctx is done.
func (s *Server) Run(ctx context.Context) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.logger.Error("dashboard listen failed", "addr", s.cfg.Addr, "error", err)
		return
	}
	if err := s.Serve(ctx, ln); err != nil {
		s.logger.Error("dashboard stopped", "error", err)
	}
}

// Serve serves on ln until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHubs := context.WithCancel(context.Background())
	defer stopHubs()
	go s.statusHub.Run(hubCtx)
	go s.cameraHub.Run(hubCtx)
	go s.pushStatus(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", ln.Addr().String())
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Send one last status so viewers see the stop reason.
	if st, ok := s.Status(); ok {
		s.statusHub.BroadcastJSON(st)
	}
	stopHubs()
	if err := s.app.ShutdownWithTimeout(2 * time.Second); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return <-errCh
}

func (s *Server) pushStatus(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() == 0 {
				continue
			}
			if st, ok := s.Status(); ok {
				if err := s.statusHub.BroadcastJSON(st); err != nil {
					s.logger.Warn("encode status", "error", err)
				}
			}
		}
	}
}

// App exposes the fiber app for in-process requests.
func (s *Server) App() *fiber.App {
	return s.app
}
