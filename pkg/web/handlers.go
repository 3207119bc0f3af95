package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/safevision/pkg/camera"
	"github.com/teslashibe/safevision/pkg/hub"
	"github.com/teslashibe/safevision/pkg/protocol"
)

// handleStatus returns the current status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Status())
}

// handleStats returns pipeline counters
func (s *Server) handleStats(c *fiber.Ctx) error {
	st := s.ctrl.Stats()
	st.Clients = s.ClientCounts()
	return c.JSON(st)
}

// handleRetry re-requests camera access. A refusal is reported as 503
// with the user-facing message and the resulting status.
func (s *Server) handleRetry(c *fiber.Ctx) error {
	err := s.ctrl.RetryCamera(c.UserContext())
	st := s.ctrl.Status()
	s.PublishStatus(st)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":  err.Error(),
			"status": st,
		})
	}
	return c.JSON(st)
}

func (s *Server) handleProcessing(fn func() bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		active := fn()
		s.PublishStatus(s.ctrl.Status())
		return c.JSON(fiber.Map{"processing": active})
	}
}

func (s *Server) handleGetCameraConfig(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.CameraConfig())
}

// handleUpdateCameraConfig accepts a partial config, optionally with a
// "preset" key, and reacquires the camera with it.
func (s *Server) handleUpdateCameraConfig(c *fiber.Ctx) error {
	var params map[string]any
	if err := c.BodyParser(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}

	cfg, err := s.ctrl.UpdateCameraConfig(c.UserContext(), params)
	if err != nil {
		if camera.IsAccessError(err) {
			s.PublishStatus(s.ctrl.Status())
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":  err.Error(),
				"config": cfg,
			})
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	s.PublishStatus(s.ctrl.Status())
	return c.JSON(cfg)
}

func (s *Server) handlePresets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"names":   camera.PresetNames(),
		"presets": camera.Presets(),
	})
}

// handleStatusWS sends the current status, then every update
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var initial []hub.Message
	if msg, err := protocol.NewMessage(protocol.TypeStatus, s.ctrl.Status()); err == nil {
		if b, err := msg.Bytes(); err == nil {
			initial = append(initial, hub.NewJSONMessage(b))
		}
	}
	hub.NewClient(s.statusHub, c, initial...).Run()
}

// handleCameraWS streams sampled frames as binary JPEG messages
func (s *Server) handleCameraWS(c *websocket.Conn) {
	hub.NewClient(s.cameraHub, c).Run()
}

// handleEventsWS streams toast and vibrate events
func (s *Server) handleEventsWS(c *websocket.Conn) {
	hub.NewClient(s.eventsHub, c).Run()
}
