package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxscribe/internal/config"
)

func validConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	if err := config.Validate(validConfig()); err != nil {
		t.Fatalf("defaults should validate, got: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"log level", func(c *config.Config) { c.Server.LogLevel = "verbose" }, "server.log_level"},
		{"negative upload", func(c *config.Config) { c.Server.MaxUploadBytes = -1 }, "server.max_upload_bytes"},
		{"tls without key", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "c.pem"} }, "server.tls"},
		{"sample rate", func(c *config.Config) { c.Audio.SampleRate = -8000 }, "audio.sample_rate"},
		{"frame duration", func(c *config.Config) { c.Audio.FrameDurationMs = 25 }, "audio.frame_duration_ms"},
		{"max duration", func(c *config.Config) { c.Audio.MaxDuration = -time.Second }, "audio.max_duration"},
		{"aggressiveness", func(c *config.Config) { c.VAD.Aggressiveness = 4 }, "vad.aggressiveness"},
		{"speech threshold", func(c *config.Config) { c.VAD.SpeechThreshold = 1.5 }, "vad.speech_threshold"},
		{"threshold order", func(c *config.Config) {
			c.VAD.SpeechThreshold = 0.1
			c.VAD.SilenceThreshold = 0.2
		}, "must not exceed"},
		{"failures", func(c *config.Config) { c.VAD.MaxConsecutiveFailures = -1 }, "vad.max_consecutive_failures"},
		{"policy", func(c *config.Config) { c.Segmentation.Policy = "sentences" }, "unknown policy"},
		{"strategy", func(c *config.Config) { c.Segmentation.Strategy = "word" }, "segmentation.strategy"},
		{"min chunk bytes", func(c *config.Config) {
			n := -1
			c.Segmentation.MinChunkBytes = &n
		}, "min chunk bytes"},
		{"provider name", func(c *config.Config) { c.Transcription.Provider.Name = "" }, "transcription.provider.name"},
		{"fallback name", func(c *config.Config) {
			c.Transcription.Fallbacks = []config.ProviderEntry{{}}
		}, "transcription.fallbacks[0].name"},
		{"confidence", func(c *config.Config) {
			v := 1.2
			c.Transcription.ConfidenceThreshold = &v
		}, "transcription.confidence_threshold"},
		{"concurrency", func(c *config.Config) { c.Transcription.Concurrency = -2 }, "transcription.concurrency"},
		{"breaker", func(c *config.Config) { c.Transcription.CircuitBreaker.MaxFailures = -1 }, "circuit_breaker"},
		{"memory capacity", func(c *config.Config) { c.Store.MemoryCapacity = -5 }, "store.memory_capacity"},
		{"sample ratio", func(c *config.Config) { c.Telemetry.TraceSampleRatio = 2 }, "trace_sample_ratio"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q should mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.LogLevel = "loud"
	cfg.Audio.FrameDurationMs = 7
	cfg.Transcription.Concurrency = 0

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors, got nil")
	}
	msg := err.Error()
	for _, want := range []string{"server.log_level", "audio.frame_duration_ms", "transcription.concurrency"} {
		if !strings.Contains(msg, want) {
			t.Errorf("joined error should contain %q, got: %s", want, msg)
		}
	}
}

func TestValidate_UnknownProviderOnlyWarns(t *testing.T) {
	cfg := validConfig()
	cfg.Transcription.Provider.Name = "acme-asr"
	cfg.VAD.Name = "silero"
	if err := config.Validate(cfg); err != nil {
		t.Errorf("unknown provider names should only warn, got: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	for _, kind := range []string{"stt", "vad"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] is empty", kind)
		}
	}
	for _, name := range []string{"whisper", "whisper-native", "deepgram", "google", "openai"} {
		found := false
		for _, n := range config.ValidProviderNames["stt"] {
			if n == name {
				found = true
			}
		}
		if !found {
			t.Errorf("stt provider %q missing from ValidProviderNames", name)
		}
	}
}
