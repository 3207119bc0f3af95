package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/safevision/pkg/audio"
	"github.com/teslashibe/safevision/pkg/camera"
	"github.com/teslashibe/safevision/pkg/dispatch"
	"github.com/teslashibe/safevision/pkg/feedback"
	"github.com/teslashibe/safevision/pkg/sampler"
	"github.com/teslashibe/safevision/pkg/tts"
	"github.com/teslashibe/safevision/pkg/web"
)

// DrainTimeout bounds how long Shutdown waits for in-flight dispatches.
const DrainTimeout = 2 * time.Second

// App is the assistant orchestrator.
// It owns every component and their lifecycle.
type App struct {
	config Config
	logger *slog.Logger

	// Camera
	device    camera.Device
	acquirer  *camera.Acquirer
	cameraMgr *camera.Manager

	// Pipeline
	sampler    *sampler.Sampler
	transport  dispatch.Transport
	dispatcher *dispatch.Dispatcher
	store      *dispatch.Store

	// Feedback
	presenter *feedback.Presenter
	speaker   feedback.Speaker
	haptics   feedback.Haptics
	notifier  dispatch.Notifier
	closers   []func() error

	web *web.Server

	// In-flight dispatches run on dispatchCtx, which outlives Run so that
	// a late reply completes and is discarded instead of being aborted.
	dispatchCtx context.Context
	inflight    sync.WaitGroup

	shutdownOnce sync.Once
}

// Option overrides a component, mainly for tests.
type Option func(*App)

// WithDevice sets the camera device. Defaults to the gocv device.
func WithDevice(d camera.Device) Option {
	return func(a *App) { a.device = d }
}

// WithTransport sets the backend transport instead of building one from
// the config.
func WithTransport(t dispatch.Transport) Option {
	return func(a *App) { a.transport = t }
}

// WithSpeaker sets the speech output instead of building one from the
// TTS config.
func WithSpeaker(s feedback.Speaker) Option {
	return func(a *App) { a.speaker = s }
}

// WithHaptics adds a haptic output alongside the dashboard's.
func WithHaptics(h feedback.Haptics) Option {
	return func(a *App) { a.haptics = h }
}

// WithNotifier adds a toast sink alongside the log and dashboard.
func WithNotifier(n dispatch.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// New creates an assistant with the given configuration.
// Environment overrides are applied by the caller via LoadEnvConfig.
func New(cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		config:      cfg,
		logger:      slog.Default(),
		dispatchCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "assistant")
	return a, nil
}

// Init builds all components.
// Call this after New() and before Run().
func (a *App) Init() error {
	if err := a.initCamera(); err != nil {
		return fmt.Errorf("camera init: %w", err)
	}
	if err := a.initDispatch(); err != nil {
		return fmt.Errorf("dispatch init: %w", err)
	}
	if err := a.initFeedback(); err != nil {
		return fmt.Errorf("feedback init: %w", err)
	}
	a.initSampler()
	a.wire()

	a.logger.Info("assistant initialized",
		"backend", a.config.BackendURL,
		"transport", a.config.Transport,
		"encoding", a.config.Encoding,
		"cadence", a.config.Cadence,
		"interval", a.config.Interval,
		"dashboard", a.config.DashboardAddr,
	)
	return nil
}

func (a *App) initCamera() error {
	if a.device == nil {
		a.device = camera.NewGoCVDevice(a.logger)
	}
	a.cameraMgr = camera.NewManager(a.config.Camera)
	a.acquirer = camera.NewAcquirer(a.device,
		camera.WithConstraints(a.config.Camera.Constraints()),
		camera.WithLogger(a.logger),
	)
	return nil
}

func (a *App) initDispatch() error {
	if a.transport == nil {
		t, err := a.buildTransport()
		if err != nil {
			return err
		}
		a.transport = t
	}

	// The dashboard exists before the notifier and haptics that target it.
	if a.config.DashboardAddr != "" {
		var opts []web.Option
		opts = append(opts, web.WithLogger(a.logger))
		if a.config.StaticDir != "" {
			opts = append(opts, web.WithStaticDir(a.config.StaticDir))
		}
		a.web = web.NewServer(a, opts...)
	}

	notifiers := dispatch.MultiNotifier{dispatch.LogNotifier{Logger: a.logger}}
	if a.web != nil {
		notifiers = append(notifiers, a.web.Notifier())
	}
	if a.notifier != nil {
		notifiers = append(notifiers, a.notifier)
	}

	a.store = dispatch.NewStore()
	a.dispatcher = dispatch.New(a.transport,
		dispatch.WithStore(a.store),
		dispatch.WithNotifier(notifiers),
		dispatch.WithTimeout(a.config.DispatchTimeout),
		dispatch.WithLogger(a.logger),
	)
	return nil
}

func (a *App) buildTransport() (dispatch.Transport, error) {
	if a.config.Transport == TransportStream {
		st, err := dispatch.NewStreamTransport(a.config.BackendURL, dispatch.WithStreamLogger(a.logger))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	}

	enc, err := dispatch.ParseEncoding(a.config.Encoding)
	if err != nil {
		return nil, err
	}
	return dispatch.NewHTTPTransport(a.config.BackendURL,
		dispatch.WithEncoding(enc),
		dispatch.WithHTTPLogger(a.logger),
	)
}

func (a *App) initFeedback() error {
	if a.speaker == nil {
		speaker, err := a.buildSpeaker()
		if err != nil {
			return err
		}
		a.speaker = speaker
	}

	var haptics feedback.MultiHaptics
	if a.web != nil {
		haptics = append(haptics, a.web.Haptics())
	}
	if a.haptics != nil {
		haptics = append(haptics, a.haptics)
	}
	if a.config.LogHaptics {
		haptics = append(haptics, feedback.LogHaptics{Logger: a.logger})
	}

	opts := []feedback.Option{feedback.WithLogger(a.logger)}
	if a.speaker != nil {
		opts = append(opts, feedback.WithSpeaker(a.speaker))
	}
	if len(haptics) > 0 {
		opts = append(opts, feedback.WithHaptics(haptics))
	}
	a.presenter = feedback.NewPresenter(opts...)
	return nil
}

// buildSpeaker returns nil when speech is disabled.
func (a *App) buildSpeaker() (feedback.Speaker, error) {
	provider, err := a.buildTTS()
	if err != nil || provider == nil {
		return nil, err
	}
	player := audio.NewPlayer(audio.WithLogger(a.logger))
	if !player.Available() {
		a.logger.Warn("no audio player found, speech disabled")
		provider.Close()
		return nil, nil
	}

	speaker := feedback.NewTTSSpeaker(provider, player, feedback.WithSpeakerLogger(a.logger))
	a.closers = append(a.closers, speaker.Close, provider.Close)
	return speaker, nil
}

func (a *App) buildTTS() (tts.Provider, error) {
	mode := a.config.TTSMode
	logOpt := tts.WithLogger(a.logger)

	var providers []tts.Provider
	if (mode == TTSAuto || mode == TTSElevenLabs) && a.config.ElevenLabsKey != "" {
		p, err := tts.NewElevenLabs(tts.WithAPIKey(a.config.ElevenLabsKey), tts.WithVoice(a.config.voice()), logOpt)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if (mode == TTSAuto || mode == TTSOpenAI) && a.config.OpenAIKey != "" {
		p, err := tts.NewOpenAI(tts.WithAPIKey(a.config.OpenAIKey), logOpt)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if mode != TTSNone {
		// Local fallback; its Health reports a missing binary.
		providers = append(providers, tts.NewEspeak(logOpt))
	}

	switch len(providers) {
	case 0:
		return nil, nil
	case 1:
		return providers[0], nil
	}
	chain, err := tts.NewChain(providers...)
	if err != nil {
		return nil, err
	}
	chain.SetLogger(a.logger)
	return chain, nil
}

func (a *App) initSampler() {
	cadence, _ := sampler.ParseCadence(a.config.Cadence)
	a.sampler = sampler.New(a.acquirer, a.onFrame,
		sampler.WithCadence(cadence),
		sampler.WithInterval(a.config.Interval),
		sampler.WithQuality(a.config.Camera.Quality),
		sampler.WithLogger(a.logger),
	)
}

// wire connects state changes to the presenter and dashboard.
func (a *App) wire() {
	a.store.Subscribe(func(snap dispatch.Snapshot) {
		a.presenter.Update(snap.Verdict, snap.Processing)
		a.publishStatus()
	})
	a.acquirer.Subscribe(func(camera.State) {
		a.publishStatus()
	})
	a.cameraMgr.OnConfigChange = func(cfg camera.Config) error {
		a.sampler.SetQuality(cfg.Quality)
		return a.acquirer.Reconfigure(a.dispatchCtx, cfg.Constraints())
	}
}

// onFrame runs on the sampler goroutine. Each frame is dispatched on its
// own goroutine; overlapping dispatches are allowed.
func (a *App) onFrame(f *camera.Frame) {
	if a.web != nil {
		a.web.SendCameraFrame(f.Data)
	}

	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		a.dispatcher.Dispatch(a.dispatchCtx, f)
	}()
}

func (a *App) publishStatus() {
	if a.web != nil {
		a.web.PublishStatus(a.Status())
	}
}

// Run acquires the camera, optionally starts sampling and serves the
// dashboard. Blocks until ctx is cancelled. A denied camera is not fatal:
// the user can retry from the dashboard.
func (a *App) Run(ctx context.Context) error {
	if err := a.acquirer.Acquire(ctx); err != nil {
		if !camera.IsAccessError(err) {
			return err
		}
		a.logger.Warn("camera unavailable, waiting for retry", "error", err)
	}

	if a.config.AutoStart {
		a.sampler.Start()
	}

	errCh := make(chan error, 1)
	if a.web != nil {
		go func() { errCh <- a.web.Run(ctx, a.config.DashboardAddr) }()
	}

	a.logger.Info("assistant running", "processing", a.sampler.Active())

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		<-ctx.Done()
		return nil
	}
}

// Shutdown stops sampling, releases the camera and detaches the store so
// late verdicts are ignored. Safe to call more than once.
func (a *App) Shutdown() error {
	var errs []error
	a.shutdownOnce.Do(func() {
		if a.sampler != nil {
			a.sampler.Close()
		}
		if a.acquirer != nil {
			if err := a.acquirer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if a.store != nil {
			a.store.Detach()
		}

		drained := make(chan struct{})
		go func() {
			a.inflight.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(DrainTimeout):
			a.logger.Warn("in-flight dispatches still pending at shutdown")
		}

		for _, c := range a.closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
		a.logger.Info("assistant stopped")
	})
	return errors.Join(errs...)
}

// Status implements web.Controller.
func (a *App) Status() web.Status {
	snap := a.store.Snapshot()
	return web.Status{
		Camera:     a.acquirer.State(),
		Processing: a.sampler.Active(),
		Inflight:   snap.Processing,
		Verdict:    snap.Verdict,
		Card:       a.presenter.Card(),
		Backend:    a.config.BackendURL,
	}
}

// Stats implements web.Controller.
func (a *App) Stats() web.Stats {
	return web.Stats{
		Sampler:  a.sampler.Stats(),
		Dispatch: a.dispatcher.Stats(),
	}
}

// RetryCamera implements web.Controller.
func (a *App) RetryCamera(ctx context.Context) error {
	return a.acquirer.Retry(ctx)
}

// SetProcessing implements web.Controller.
func (a *App) SetProcessing(active bool) bool {
	a.sampler.SetActive(active)
	a.publishStatus()
	return a.sampler.Active()
}

// ToggleProcessing implements web.Controller.
func (a *App) ToggleProcessing() bool {
	active := a.sampler.Toggle()
	a.publishStatus()
	return active
}

// CameraConfig implements web.Controller.
func (a *App) CameraConfig() camera.Config {
	return a.cameraMgr.GetConfig()
}

// UpdateCameraConfig implements web.Controller. The camera is reacquired
// with the new constraints if it was granted or denied.
func (a *App) UpdateCameraConfig(_ context.Context, params map[string]any) (camera.Config, error) {
	err := a.cameraMgr.UpdateConfig(params)
	return a.cameraMgr.GetConfig(), err
}

// Acquirer exposes the camera acquirer.
func (a *App) Acquirer() *camera.Acquirer { return a.acquirer }

// Store exposes the verdict store.
func (a *App) Store() *dispatch.Store { return a.store }

// Presenter exposes the feedback presenter.
func (a *App) Presenter() *feedback.Presenter { return a.presenter }

// Web returns the dashboard server, or nil when disabled.
func (a *App) Web() *web.Server { return a.web }

var _ web.Controller = (*App)(nil)
