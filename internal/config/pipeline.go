package config

import (
	"github.com/MrWong99/voxscribe/internal/pipeline"
	"github.com/MrWong99/voxscribe/internal/resilience"
	"github.com/MrWong99/voxscribe/internal/segment"
	"github.com/MrWong99/voxscribe/pkg/provider/vad"
)

// Pipeline maps the audio, vad, segmentation and transcription sections onto
// a [pipeline.Config]. cfg must have passed [Validate].
func (c *Config) Pipeline() pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.FrameDurationMs = c.Audio.FrameDurationMs
	pc.VAD = vad.Config{
		Aggressiveness:   c.VAD.Aggressiveness,
		SpeechThreshold:  c.VAD.SpeechThreshold,
		SilenceThreshold: c.VAD.SilenceThreshold,
	}
	pc.MaxConsecutiveFailures = c.VAD.MaxConsecutiveFailures
	pc.Policy = segment.Policy(c.Segmentation.Policy)
	if o, err := c.Segmentation.Overrides(); err == nil {
		pc.Overrides = o
	}

	t := c.Transcription
	if t.ConfidenceThreshold != nil {
		pc.ConfidenceThreshold = *t.ConfidenceThreshold
	}
	if t.ChunkTimeout > 0 {
		pc.ChunkTimeout = t.ChunkTimeout
	}
	if t.Concurrency > 0 {
		pc.Concurrency = t.Concurrency
	}
	pc.AnnotateServiceErrors = t.AnnotateServiceErrors
	pc.Language = t.Language
	if t.Provider.Name != "" {
		pc.ProviderName = t.Provider.Name
	}
	return pc
}

// Breaker returns the circuit breaker template for recognizer fallbacks.
func (c *Config) Breaker() resilience.CircuitBreakerConfig {
	cb := c.Transcription.CircuitBreaker
	return resilience.CircuitBreakerConfig{
		MaxFailures:  cb.MaxFailures,
		ResetTimeout: cb.ResetTimeout,
		HalfOpenMax:  cb.HalfOpenMax,
	}
}
