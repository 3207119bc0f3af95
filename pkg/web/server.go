// Package web serves the assistant's screen: a small dashboard showing the
// verdict card, the live camera and the controls, plus a JSON API.
package web

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/safevision/pkg/camera"
	"github.com/teslashibe/safevision/pkg/dispatch"
	"github.com/teslashibe/safevision/pkg/feedback"
	"github.com/teslashibe/safevision/pkg/hub"
	"github.com/teslashibe/safevision/pkg/protocol"
	"github.com/teslashibe/safevision/pkg/sampler"
)

//go:embed static
var staticFiles embed.FS

// Status is the dashboard's view of the assistant.
type Status struct {
	Camera     camera.State     `json:"camera"`
	Processing bool             `json:"processing"`  // sampling active
	Inflight   bool             `json:"dispatching"` // a frame is at the backend
	Verdict    protocol.Verdict `json:"verdict"`
	Card       *feedback.Card   `json:"card"`
	Backend    string           `json:"backend"`
}

// Stats aggregates pipeline counters.
type Stats struct {
	Sampler  sampler.Stats  `json:"sampler"`
	Dispatch dispatch.Stats `json:"dispatch"`
	Clients  map[string]int `json:"clients"`
}

// Controller is what the dashboard drives.
type Controller interface {
	Status() Status
	Stats() Stats

	RetryCamera(ctx context.Context) error
	SetProcessing(active bool) bool
	ToggleProcessing() bool

	CameraConfig() camera.Config
	UpdateCameraConfig(ctx context.Context, params map[string]any) (camera.Config, error)
}

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	ctrl   Controller
	logger *slog.Logger

	statusHub *hub.Hub
	cameraHub *hub.Hub
	eventsHub *hub.Hub
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	logger    *slog.Logger
	staticDir string
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *serverOptions) { o.logger = l }
}

// WithStaticDir serves the page from dir instead of the built-in one.
func WithStaticDir(dir string) Option {
	return func(o *serverOptions) { o.staticDir = dir }
}

// NewServer creates the dashboard for ctrl.
func NewServer(ctrl Controller, opts ...Option) *Server {
	o := serverOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "web.server")

	s := &Server{
		ctrl:      ctrl,
		logger:    logger,
		statusHub: hub.New("status", hub.WithLogger(o.logger)),
		cameraHub: hub.New("camera", hub.WithLogger(o.logger), hub.WithBuffer(8)),
		eventsHub: hub.New("events", hub.WithLogger(o.logger)),
	}

	app := fiber.New(fiber.Config{
		AppName:               "SafeVision Dashboard",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/stats", s.handleStats)
	api.Post("/camera/retry", s.handleRetry)
	api.Get("/camera/config", s.handleGetCameraConfig)
	api.Put("/camera/config", s.handleUpdateCameraConfig)
	api.Get("/camera/presets", s.handlePresets)
	api.Post("/processing/start", s.handleProcessing(func() bool { return ctrl.SetProcessing(true) }))
	api.Post("/processing/stop", s.handleProcessing(func() bool { return ctrl.SetProcessing(false) }))
	api.Post("/processing/toggle", s.handleProcessing(ctrl.ToggleProcessing))

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	if o.staticDir != "" {
		app.Static("/", o.staticDir)
	} else {
		root, _ := fs.Sub(staticFiles, "static")
		app.Use("/", filesystem.New(filesystem.Config{Root: http.FS(root)}))
	}

	s.app = app
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the hubs and serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.StartHubs(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", addr)
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.app.ShutdownWithContext(shutdownCtx)
	}
}

// StartHubs runs the broadcast hubs until ctx is cancelled.
func (s *Server) StartHubs(ctx context.Context) {
	go s.statusHub.Run(ctx)
	go s.cameraHub.Run(ctx)
	go s.eventsHub.Run(ctx)
}

// PublishStatus pushes st to status clients.
func (s *Server) PublishStatus(st Status) {
	s.broadcast(s.statusHub, protocol.TypeStatus, st)
}

// SendCameraFrame pushes a JPEG to live camera clients.
func (s *Server) SendCameraFrame(jpeg []byte) {
	if s.cameraHub.ClientCount() == 0 {
		return
	}
	s.cameraHub.BroadcastBinary(jpeg)
}

// ClientCounts returns the number of connected clients per hub.
func (s *Server) ClientCounts() map[string]int {
	return map[string]int{
		s.statusHub.Name(): s.statusHub.ClientCount(),
		s.cameraHub.Name(): s.cameraHub.ClientCount(),
		s.eventsHub.Name(): s.eventsHub.ClientCount(),
	}
}

func (s *Server) broadcast(h *hub.Hub, t protocol.MessageType, data any) {
	msg, err := protocol.NewMessage(t, data)
	if err != nil {
		s.logger.Error("encode broadcast failed", "type", t, "error", err)
		return
	}
	b, err := msg.Bytes()
	if err != nil {
		s.logger.Error("encode broadcast failed", "type", t, "error", err)
		return
	}
	h.Broadcast(hub.NewJSONMessage(b))
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
