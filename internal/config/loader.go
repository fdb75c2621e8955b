package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voxscribe/internal/segment"
	"github.com/MrWong99/voxscribe/pkg/provider/vad"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "whisper-native", "deepgram", "google", "openai"},
	"vad": {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Call [Config.ApplyDefaults] first; zero values are not filled in here.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must not be negative, got %d", cfg.Server.MaxUploadBytes))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must not be negative, got %s", cfg.Server.ShutdownTimeout))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	switch cfg.Audio.FrameDurationMs {
	case 10, 20, 30:
	default:
		errs = append(errs, fmt.Errorf("audio.frame_duration_ms %d is invalid; valid values: 10, 20, 30", cfg.Audio.FrameDurationMs))
	}
	if cfg.Audio.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("audio.max_duration must not be negative, got %s", cfg.Audio.MaxDuration))
	}

	// VAD
	validateProviderName("vad", cfg.VAD.Name)
	if cfg.VAD.Aggressiveness < 0 || cfg.VAD.Aggressiveness > vad.MaxAggressiveness {
		errs = append(errs, fmt.Errorf("vad.aggressiveness %d is out of range [0, %d]", cfg.VAD.Aggressiveness, vad.MaxAggressiveness))
	}
	if cfg.VAD.SpeechThreshold < 0 || cfg.VAD.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.speech_threshold %.3f is out of range [0, 1]", cfg.VAD.SpeechThreshold))
	}
	if cfg.VAD.SilenceThreshold < 0 || cfg.VAD.SilenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %.3f is out of range [0, 1]", cfg.VAD.SilenceThreshold))
	}
	if cfg.VAD.SpeechThreshold > 0 && cfg.VAD.SilenceThreshold > cfg.VAD.SpeechThreshold {
		errs = append(errs, errors.New("vad.silence_threshold must not exceed vad.speech_threshold"))
	}
	if cfg.VAD.MaxConsecutiveFailures < 0 {
		errs = append(errs, fmt.Errorf("vad.max_consecutive_failures must not be negative, got %d", cfg.VAD.MaxConsecutiveFailures))
	}

	// Segmentation
	if o, err := cfg.Segmentation.Overrides(); err != nil {
		errs = append(errs, err)
	} else if _, err := segment.Resolve(segment.Policy(cfg.Segmentation.Policy), max(cfg.Audio.SampleRate, 1), o); err != nil {
		errs = append(errs, fmt.Errorf("segmentation: %w", err))
	}

	// Transcription
	t := cfg.Transcription
	if t.Provider.Name == "" {
		errs = append(errs, errors.New("transcription.provider.name is required"))
	}
	validateProviderName("stt", t.Provider.Name)
	for i, fb := range t.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("transcription.fallbacks[%d].name is required", i))
		}
		validateProviderName("stt", fb.Name)
	}
	if t.ConfidenceThreshold != nil && (*t.ConfidenceThreshold < 0 || *t.ConfidenceThreshold > 1) {
		errs = append(errs, fmt.Errorf("transcription.confidence_threshold %.3f is out of range [0, 1]", *t.ConfidenceThreshold))
	}
	if t.ChunkTimeout < 0 {
		errs = append(errs, fmt.Errorf("transcription.chunk_timeout must not be negative, got %s", t.ChunkTimeout))
	}
	if t.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("transcription.concurrency must be at least 1, got %d", t.Concurrency))
	}
	if t.CircuitBreaker.MaxFailures < 0 || t.CircuitBreaker.HalfOpenMax < 0 || t.CircuitBreaker.ResetTimeout < 0 {
		errs = append(errs, errors.New("transcription.circuit_breaker values must not be negative"))
	}

	// Store
	if cfg.Store.MemoryCapacity < 0 {
		errs = append(errs, fmt.Errorf("store.memory_capacity must not be negative, got %d", cfg.Store.MemoryCapacity))
	}
	if cfg.Store.Disabled && cfg.Store.PostgresDSN != "" {
		slog.Warn("store.disabled is set; store.postgres_dsn is ignored")
	}

	// Telemetry
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %.3f is out of range [0, 1]", r))
	}

	return errors.Join(errs...)
}

// Overrides converts the optional segmentation fields into
// [segment.Overrides].
func (s SegmentationConfig) Overrides() (segment.Overrides, error) {
	o := segment.Overrides{
		MinChunkBytes:      s.MinChunkBytes,
		MinSegmentDuration: s.MinSegmentDuration,
	}
	if s.Strategy != "" {
		st, err := segment.ParseStrategy(s.Strategy)
		if err != nil {
			return segment.Overrides{}, fmt.Errorf("segmentation.strategy: %w", err)
		}
		o.Strategy = &st
	}
	return o, nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
