package backend

import (
	"context"
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/safevision/pkg/protocol"
)

// maxFrameMessage bounds one inbound frame message.
const maxFrameMessage = DefaultBodyLimit

func (s *Server) registerStream(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get(StreamPath, websocket.New(s.handleStream))
}

// handleStream answers each frame message with a verdict or error message
// carrying the same frame ID. Frames on one connection are handled in order.
func (s *Server) handleStream(c *websocket.Conn) {
	clients := s.streamClients.Add(1)
	logger := s.logger.With("remote", c.RemoteAddr().String())
	logger.Info("stream client connected", "clients", clients)

	defer func() {
		left := s.streamClients.Add(-1)
		logger.Info("stream client disconnected", "clients", left)
	}()

	c.SetReadLimit(maxFrameMessage)

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("stream read error", "error", err)
			}
			return
		}

		reply := s.handleStreamMessage(data)
		if reply == nil {
			continue
		}
		out, err := reply.Bytes()
		if err != nil {
			logger.Error("encode reply failed", "error", err)
			continue
		}
		if err := c.WriteMessage(websocket.TextMessage, out); err != nil {
			logger.Warn("stream write error", "error", err)
			return
		}
	}
}

func (s *Server) handleStreamMessage(data []byte) *protocol.Message {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.logger.Warn("bad stream message", "error", err)
		reply, _ := protocol.NewErrorMessage("", err)
		return reply
	}

	switch msg.Type {
	case protocol.TypePing:
		reply, _ := protocol.NewMessage(protocol.TypePong, nil)
		return reply

	case protocol.TypeFrame:
		s.streamFrames.Add(1)

		var frame protocol.FrameData
		if err := msg.ParseData(&frame); err != nil {
			s.failed.Add(1)
			reply, _ := protocol.NewErrorMessage("", err)
			return reply
		}
		jpeg, err := frame.Bytes()
		if err == nil && len(jpeg) == 0 {
			err = ErrEmptyImage
		}
		if err != nil {
			s.failed.Add(1)
			reply, _ := protocol.NewErrorMessage(frame.ID, err)
			return reply
		}

		v, err := s.analyze(context.Background(), jpeg)
		if err != nil {
			s.failed.Add(1)
			s.logger.Error("stream analysis failed", "frame_id", frame.ID, "error", err)
			reply, _ := protocol.NewErrorMessage(frame.ID, err)
			return reply
		}
		reply, _ := protocol.NewVerdictMessage(frame.ID, v)
		return reply

	default:
		reply, _ := protocol.NewErrorMessage("", errors.New("unsupported message type "+string(msg.Type)))
		return reply
	}
}
