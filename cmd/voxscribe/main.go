// Command voxscribe serves the voice-activity-gated transcription API and
// transcribes single files from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxscribe/internal/app"
	"github.com/MrWong99/voxscribe/internal/config"
	"github.com/MrWong99/voxscribe/internal/observe"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "voxscribe: %v\n", err)
		return 1
	}
	return 0
}

// globalFlags holds flags shared by every subcommand.
type globalFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	var gf globalFlags

	root := &cobra.Command{
		Use:           "voxscribe",
		Short:         "Voice-activity-gated speech transcription",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&gf.configPath, "config", "", "path to the YAML configuration file (defaults apply when empty)")

	root.AddCommand(newServeCmd(&gf), newTranscribeCmd(&gf))
	return root
}

// loadConfig reads the file at path, or returns a fully defaulted config when
// path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromReader(strings.NewReader(""))
	}
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", path)
	}
	return cfg, err
}

// ── serve ──────────────────────────────────────────────────────────────────────

func newServeCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP transcription server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), gf.configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	levelVar := new(slog.LevelVar)
	levelVar.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(levelVar))

	slog.Info("voxscribe starting",
		"version", version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:      cfg.Telemetry.ServiceName,
		ServiceVersion:   version,
		TraceSampleRatio: cfg.Telemetry.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg, cfg.Transcription.Vocabulary)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return err
	}

	var opts []app.Option
	if cfg.Telemetry.MetricsOn() {
		opts = append(opts, app.WithMetricsHandler(telemetry.MetricsHandler()))
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, func(old, new *config.Config) {
			applyConfigChange(levelVar, config.Diff(old, new))
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			go watcher.Run(ctx)
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

// applyConfigChange applies the hot-reloadable part of d and warns about
// fields that only take effect after a restart.
func applyConfigChange(levelVar *slog.LevelVar, d config.ConfigDiff) {
	if d.LogLevelChanged {
		levelVar.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config change requires a restart", "sections", d.RestartRequired)
	}
}

// ── transcribe ─────────────────────────────────────────────────────────────────

func newTranscribeCmd(gf *globalFlags) *cobra.Command {
	var contentType string
	cmd := &cobra.Command{
		Use:   "transcribe FILE",
		Short: "Transcribe one audio file and print the transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transcribeFile(cmd, gf.configPath, args[0], contentType)
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "MIME type of FILE (guessed from the extension when empty)")
	return cmd
}

func transcribeFile(cmd *cobra.Command, configPath, path, contentType string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(levelVar))

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = contentTypeFor(path)
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg, cfg.Transcription.Vocabulary)
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return err
	}

	// The one-shot path needs neither persistence nor a listener.
	cfg.Store.Disabled = true
	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}
	defer func() {
		if err := application.Shutdown(context.Background()); err != nil {
			slog.Warn("shutdown", "err", err)
		}
	}()

	res, err := application.Transcribe(ctx, data, contentType)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if res.NoSpeech() {
		fmt.Fprintln(out, "No speech detected")
		return nil
	}
	fmt.Fprintln(out, res.Transcript)
	slog.Debug("transcribed",
		"file", path,
		"segments", res.SpeechSegments,
		"chunks", res.Chunks,
		"duration", res.AudioDuration,
	)
	return nil
}

// contentTypeFor guesses the upload MIME type from the file extension.
func contentTypeFor(path string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "mp3":
		return "audio/mpeg"
	case "ogg", "oga":
		return "audio/ogg"
	case "webm":
		return "audio/webm"
	case "flac":
		return "audio/flac"
	default:
		return "audio/wav"
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       voxscribe — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("STT", providerLabel(cfg.Transcription.Provider))
	for _, fb := range cfg.Transcription.Fallbacks {
		printRow("STT fallback", providerLabel(fb))
	}
	printRow("VAD", cfg.VAD.Name)
	printRow("Policy", cfg.Segmentation.Policy)
	printRow("Sample rate", fmt.Sprintf("%d Hz", cfg.Audio.SampleRate))
	switch {
	case cfg.Store.Disabled:
		printRow("Store", "(disabled)")
	case cfg.Store.PostgresDSN != "":
		printRow("Store", "postgres")
	default:
		printRow("Store", "memory")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry) string {
	if e.Model != "" {
		return e.Name + " / " + e.Model
	}
	return e.Name
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
