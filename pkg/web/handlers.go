package web

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-elevatr/pkg/hub"
	"github.com/teslashibe/go-elevatr/pkg/pipeline"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStatus returns the session status.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	st, ok := s.Status()
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no session",
		})
	}
	return c.JSON(st)
}

// handleStop ends the session as if the quit key was pressed.
func (s *Server) handleStop(c *fiber.Ctx) error {
	r := s.bound()
	if r == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no session",
		})
	}
	first := r.Stop(pipeline.ReasonRemoteStop)
	if first {
		s.logger.Info("session stopped from dashboard", "ip", c.IP())
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"stopped": first,
		"reason":  r.Session().Signal.Reason(),
	})
}

// handleStatusWS sends the current status, then every pushed update.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	if st, ok := s.Status(); ok {
		data, err := json.Marshal(st)
		if err == nil {
			err = c.WriteMessage(websocket.TextMessage, data)
		}
		if err != nil {
			s.logger.Debug("initial status write failed", "error", err)
			return
		}
	}
	s.serveClient(s.statusHub, c)
}

// handleCameraWS streams JPEG frames as binary messages.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	s.serveClient(s.cameraHub, c)
}

func (s *Server) serveClient(h *hub.Hub, c *websocket.Conn) {
	client, err := hub.NewClient(h, c)
	if err != nil {
		c.WriteMessage(websocket.CloseMessage, []byte{})
		return
	}
	client.Run()
}
