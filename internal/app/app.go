// Package app wires all voxscribe subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the recognizer chain,
// pipeline, decoder, store and HTTP handler, Run serves HTTP until its
// context ends, and Shutdown tears everything down in order.
//
// For testing, inject implementations via functional options (WithStore,
// WithDecoder, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/voxscribe/internal/config"
	"github.com/MrWong99/voxscribe/internal/decode"
	"github.com/MrWong99/voxscribe/internal/health"
	"github.com/MrWong99/voxscribe/internal/observe"
	"github.com/MrWong99/voxscribe/internal/pipeline"
	"github.com/MrWong99/voxscribe/internal/resilience"
	"github.com/MrWong99/voxscribe/internal/server"
	"github.com/MrWong99/voxscribe/internal/store"
	"github.com/MrWong99/voxscribe/internal/store/postgres"
	"github.com/MrWong99/voxscribe/internal/transcript"
	"github.com/MrWong99/voxscribe/pkg/provider/stt"
	"github.com/MrWong99/voxscribe/pkg/provider/vad"
)

// NamedRecognizer is a recognizer together with the provider name it was
// built from.
type NamedRecognizer struct {
	Name       string
	Recognizer stt.Recognizer
}

// Providers holds the provider instances built by main.go via the config
// registry.
type Providers struct {
	// STT is the primary recognizer. Required.
	STT NamedRecognizer

	// STTFallbacks are tried in order when the primary fails.
	STTFallbacks []NamedRecognizer

	// VAD is the speech classifier. Required.
	VAD vad.Engine
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	metrics        *observe.Metrics
	metricsHandler http.Handler
	recognizer     stt.Recognizer
	fallback       *resilience.RecognizerFallback
	pipeline       *pipeline.Pipeline
	decoder        server.Decoder
	store          store.Store
	handler        http.Handler
	httpServer     *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a transcript store instead of creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithDecoder injects an audio decoder instead of creating an ffmpeg-backed
// one.
func WithDecoder(d server.Decoder) Option {
	return func(a *App) { a.decoder = d }
}

// WithMetrics records telemetry on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics. Without it the route is absent.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously; a PostgreSQL store is
// connected and migrated before New returns.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT.Recognizer == nil {
		return nil, errors.New("app: an stt provider is required")
	}
	if providers.VAD == nil {
		return nil, errors.New("app: a vad provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Recognizer chain ──────────────────────────────────────────────
	a.initRecognizer()

	// ── 2. Pipeline ──────────────────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 3. Decoder ───────────────────────────────────────────────────────
	if err := a.initDecoder(); err != nil {
		return nil, fmt.Errorf("app: init decoder: %w", err)
	}

	// ── 4. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 5. HTTP handler ──────────────────────────────────────────────────
	if err := a.initHTTP(); err != nil {
		return nil, fmt.Errorf("app: init http: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initRecognizer wraps the primary recognizer in a circuit-breaking fallback
// chain when fallbacks are configured.
func (a *App) initRecognizer() {
	for _, r := range append([]NamedRecognizer{a.providers.STT}, a.providers.STTFallbacks...) {
		if c, ok := r.Recognizer.(interface{ Close() error }); ok {
			a.closers = append(a.closers, c.Close)
		}
	}
	if len(a.providers.STTFallbacks) == 0 {
		a.recognizer = a.providers.STT.Recognizer
		return
	}

	breaker := a.cfg.Breaker()
	breaker.OnStateChange = func(name string, from, to resilience.State) {
		slog.Warn("recognizer circuit breaker changed state", "backend", name, "from", from, "to", to)
		a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
	}
	fb := resilience.NewRecognizerFallback(a.providers.STT.Recognizer, a.providers.STT.Name,
		resilience.FallbackConfig{CircuitBreaker: breaker})
	for _, r := range a.providers.STTFallbacks {
		fb.AddFallback(r.Name, r.Recognizer)
	}
	a.fallback = fb
	a.recognizer = fb
	slog.Info("recognizer fallback chain configured", "primary", a.providers.STT.Name, "fallbacks", len(a.providers.STTFallbacks))
}

// initPipeline builds the transcription pipeline with the optional
// vocabulary corrector.
func (a *App) initPipeline() error {
	opts := []pipeline.Option{pipeline.WithMetrics(a.metrics)}
	if terms := a.cfg.Transcription.Vocabulary; len(terms) > 0 {
		opts = append(opts, pipeline.WithCorrector(transcript.NewVocabularyCorrector(terms, nil)))
		slog.Info("vocabulary correction enabled", "terms", len(terms))
	}
	p, err := pipeline.New(a.cfg.Pipeline(), a.providers.VAD, a.recognizer, opts...)
	if err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

// initDecoder creates the ffmpeg-backed decoder if one wasn't injected.
func (a *App) initDecoder() error {
	if a.decoder != nil {
		return nil
	}
	d, err := decode.New(a.cfg.Audio.SampleRate,
		decode.WithFFmpeg(a.cfg.Audio.FFmpegPath),
		decode.WithMaxDuration(a.cfg.Audio.MaxDuration),
	)
	if err != nil {
		return err
	}
	a.decoder = d
	return nil
}

// initStore opens the PostgreSQL store, falls back to the in-memory store,
// or leaves the store nil when persistence is disabled.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil || a.cfg.Store.Disabled {
		return nil
	}
	if dsn := a.cfg.Store.PostgresDSN; dsn != "" {
		s, err := postgres.New(ctx, dsn)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, func() error {
			s.Close()
			return nil
		})
		slog.Info("transcript store: postgres")
		return nil
	}
	a.store = store.NewMemory(a.cfg.Store.MemoryCapacity)
	slog.Info("transcript store: memory", "capacity", a.cfg.Store.MemoryCapacity)
	return nil
}

// initHTTP assembles the route table and middleware chain.
func (a *App) initHTTP() error {
	opts := []server.Option{server.WithMaxUploadBytes(a.cfg.Server.MaxUploadBytes)}
	if a.store != nil {
		opts = append(opts, server.WithStore(a.store))
	}
	srv, err := server.New(a.decoder, a.pipeline, opts...)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	srv.Register(mux)
	health.New(a.readinessCheckers()...).Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}

	a.handler = server.CORS(a.cfg.Server.AllowedOrigins)(observe.Middleware(a.metrics)(mux))
	return nil
}

// readinessCheckers returns one checker per external dependency.
func (a *App) readinessCheckers() []health.Checker {
	var checkers []health.Checker
	if a.store != nil {
		checkers = append(checkers, health.Checker{Name: "store", Check: a.store.Ping})
	}
	if c, ok := a.decoder.(interface{ Check(context.Context) error }); ok {
		// WAV decodes in-process, so a missing ffmpeg only affects other formats.
		checkers = append(checkers, health.Checker{Name: "ffmpeg", Check: c.Check, Optional: true})
	}
	if a.fallback != nil {
		checkers = append(checkers, health.Checker{Name: "recognizer", Check: a.recognizerReady})
	}
	return checkers
}

// recognizerReady fails only when every backend's breaker is open.
func (a *App) recognizerReady(context.Context) error {
	states := a.fallback.States()
	for _, s := range states {
		if s != resilience.StateOpen {
			return nil
		}
	}
	return fmt.Errorf("all %d recognizer circuit breakers are open", len(states))
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the complete HTTP handler including middleware.
func (a *App) Handler() http.Handler { return a.handler }

// Transcribe decodes data and runs one pipeline job on it. It is the
// one-shot path used by the command line.
func (a *App) Transcribe(ctx context.Context, data []byte, contentType string) (*pipeline.Result, error) {
	pcm, err := a.decoder.Decode(ctx, data, contentType)
	if err != nil {
		return nil, err
	}
	return a.pipeline.Transcribe(ctx, pcm.Data, pcm.SampleRate)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured listen address and blocks until ctx is
// cancelled or the server fails. On cancellation Run returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is [App.Run] on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.httpServer = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpServer.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpServer.Serve(ln)
		}
		errCh <- err
	}()

	slog.Info("app running", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting requests, waits for in-flight jobs and then
// releases all subsystems in init order. It respects the context deadline:
// if ctx expires before all closers finish, remaining closers are skipped
// and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.httpServer != nil {
			if err := a.httpServer.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
				shutdownErr = err
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
