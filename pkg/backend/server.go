package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/teslashibe/safevision/pkg/protocol"
)

// Route paths served by the backend.
const (
	ProcessImagePath = "/process-image"
	HealthPath       = "/health"
	MetricsPath      = "/metrics"
	StreamPath       = "/ws/process"

	// FrameIDHeader correlates a request with the client's frame.
	FrameIDHeader = "X-Frame-ID"

	// DefaultBodyLimit fits a 1080p JPEG encoded as a data URL.
	DefaultBodyLimit = 16 * 1024 * 1024
)

// Errors returned to clients as {"error": "..."}.
var (
	ErrMissingImage = errors.New("backend: no image provided")
	ErrEmptyImage   = errors.New("backend: empty image")
)

// Stats are the backend's request counters.
type Stats struct {
	Requests      uint64        `json:"requests"`
	Errors        uint64        `json:"errors"`
	Unsafe        uint64        `json:"unsafe"`
	StreamClients int64         `json:"stream_clients"`
	StreamFrames  uint64        `json:"stream_frames"`
	Analyzed      uint64        `json:"analyzed"`
	AvgLatency    time.Duration `json:"avg_latency_ns"`
	Uptime        time.Duration `json:"uptime_ns"`
}

// Server serves the inference contract over HTTP and WebSocket.
type Server struct {
	app      *fiber.App
	analyzer Analyzer
	timeout  time.Duration
	logger   *slog.Logger
	started  time.Time
	access   bool

	requests      atomic.Uint64
	failed        atomic.Uint64
	unsafe        atomic.Uint64
	analyzed      atomic.Uint64
	latencyTotal  atomic.Int64
	streamClients atomic.Int64
	streamFrames  atomic.Uint64
}

// Option configures a Server.
type Option func(*Server)

// WithAnalyzer sets the analyzer. Defaults to StaticAnalyzer.
func WithAnalyzer(a Analyzer) Option {
	return func(s *Server) { s.analyzer = a }
}

// WithAnalyzeTimeout bounds each analysis. Zero means no limit.
func WithAnalyzeTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithAccessLog logs every request line.
func WithAccessLog(enabled bool) Option {
	return func(s *Server) { s.access = enabled }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates the backend and registers its routes.
func NewServer(opts ...Option) *Server {
	s := &Server{
		analyzer: StaticAnalyzer{},
		logger:   slog.Default(),
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "backend.server")

	app := fiber.New(fiber.Config{
		AppName:               "SafeVision Backend",
		DisableStartupMessage: true,
		BodyLimit:             DefaultBodyLimit,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type," + FrameIDHeader,
	}))
	if s.access {
		app.Use(fiberlogger.New())
	}

	app.Post(ProcessImagePath, s.handleProcessImage)
	app.Get(HealthPath, s.handleHealth)
	app.Get(MetricsPath, s.handleMetrics)
	s.registerStream(app)

	s.app = app
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("backend listening", "addr", addr, "analyzer", s.analyzer.Name())
	return s.app.Listen(addr)
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// Stats returns a snapshot of the counters.
func (s *Server) Stats() Stats {
	st := Stats{
		Requests:      s.requests.Load(),
		Errors:        s.failed.Load(),
		Unsafe:        s.unsafe.Load(),
		StreamClients: s.streamClients.Load(),
		StreamFrames:  s.streamFrames.Load(),
		Analyzed:      s.analyzed.Load(),
		Uptime:        time.Since(s.started),
	}
	// Rejected requests never reach the analyzer and do not count.
	if st.Analyzed > 0 {
		st.AvgLatency = time.Duration(s.latencyTotal.Load() / int64(st.Analyzed))
	}
	return st
}

func (s *Server) handleProcessImage(c *fiber.Ctx) error {
	s.requests.Add(1)

	frameID := c.Get(FrameIDHeader)
	if frameID == "" {
		frameID = uuid.NewString()
	}
	c.Set(FrameIDHeader, frameID)

	data, err := readImage(c)
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("bad process-image request", "frame_id", frameID, "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	v, err := s.analyze(c.UserContext(), data)
	if err != nil {
		s.failed.Add(1)
		s.logger.Error("analysis failed", "frame_id", frameID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	s.logger.Debug("frame analyzed",
		"frame_id", frameID,
		"bytes", len(data),
		"message", v.Message,
		"safe", v.IsSafe,
	)
	return c.JSON(v)
}

// readImage accepts either a JSON data URL body or a multipart "image" field.
func readImage(c *fiber.Ctx) ([]byte, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, ErrMissingImage
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload: %w", err)
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		if len(data) == 0 {
			return nil, ErrEmptyImage
		}
		return data, nil
	}

	var req protocol.ProcessImageRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, fmt.Errorf("invalid body: %w", err)
	}
	if req.Image == "" {
		return nil, ErrMissingImage
	}
	_, data, err := protocol.DecodeDataURL(req.Image)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	return data, nil
}

func (s *Server) analyze(ctx context.Context, data []byte) (protocol.Verdict, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	v, err := s.analyzer.Analyze(ctx, data)
	s.latencyTotal.Add(int64(time.Since(start)))
	s.analyzed.Add(1)
	if err != nil {
		return protocol.Verdict{}, err
	}
	if !v.IsSafe {
		s.unsafe.Add(1)
	}
	return v, nil
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"analyzer": s.analyzer.Name(),
		"uptime":   time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	st := s.Stats()

	var b strings.Builder
	writeMetric(&b, "safevision_backend_requests_total", "counter", "HTTP frames received.", float64(st.Requests))
	writeMetric(&b, "safevision_backend_errors_total", "counter", "Frames that failed to process.", float64(st.Errors))
	writeMetric(&b, "safevision_backend_unsafe_total", "counter", "Verdicts reported unsafe.", float64(st.Unsafe))
	writeMetric(&b, "safevision_backend_stream_frames_total", "counter", "Frames received over the stream endpoint.", float64(st.StreamFrames))
	writeMetric(&b, "safevision_backend_analyzed_total", "counter", "Frames passed to the analyzer.", float64(st.Analyzed))
	writeMetric(&b, "safevision_backend_stream_clients", "gauge", "Connected stream clients.", float64(st.StreamClients))
	writeMetric(&b, "safevision_backend_latency_seconds_avg", "gauge", "Mean analysis latency.", st.AvgLatency.Seconds())
	writeMetric(&b, "safevision_backend_uptime_seconds", "gauge", "Seconds since start.", st.Uptime.Seconds())

	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	return c.SendString(b.String())
}

func writeMetric(b *strings.Builder, name, kind, help string, v float64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n%s %g\n", name, help, name, kind, name, v)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
