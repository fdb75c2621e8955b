package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voxscribe/internal/app"
	"github.com/MrWong99/voxscribe/internal/config"
	"github.com/MrWong99/voxscribe/pkg/provider/stt"
	"github.com/MrWong99/voxscribe/pkg/provider/stt/deepgram"
	"github.com/MrWong99/voxscribe/pkg/provider/stt/google"
	"github.com/MrWong99/voxscribe/pkg/provider/stt/openai"
	"github.com/MrWong99/voxscribe/pkg/provider/stt/whisper"
	"github.com/MrWong99/voxscribe/pkg/provider/vad"
	"github.com/MrWong99/voxscribe/pkg/provider/vad/energy"
)

// defaultKeywordBoost is the Deepgram boost applied to vocabulary terms.
const defaultKeywordBoost = 2.0

// registerBuiltinProviders wires all built-in provider factories into reg.
// vocabulary is handed to recognizers that accept recognition hints.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry, vocabulary []string) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("google", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		var opts []google.Option
		if entry.APIKey != "" {
			opts = append(opts, google.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, google.WithEndpoint(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, google.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, google.WithLanguage(lang))
		}
		if n := optInt(entry.Options, "max_alternatives"); n > 0 {
			opts = append(opts, google.WithMaxAlternatives(n))
		}
		if p, ok := optBool(entry.Options, "automatic_punctuation"); ok {
			opts = append(opts, google.WithAutomaticPunctuation(p))
		}
		if len(vocabulary) > 0 {
			opts = append(opts, google.WithPhrases(vocabulary))
		}
		return google.New(ctx, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if len(vocabulary) > 0 {
			keywords := make([]stt.KeywordBoost, len(vocabulary))
			for i, term := range vocabulary {
				keywords[i] = stt.KeywordBoost{Keyword: term, Boost: defaultKeywordBoost}
			}
			opts = append(opts, deepgram.WithKeywords(keywords))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, openai.WithLanguage(lang))
		}
		if n := optInt(entry.Options, "max_retries"); n > 0 {
			opts = append(opts, openai.WithMaxRetries(n))
		}
		if prompt := optString(entry.Options, "prompt"); prompt != "" {
			opts = append(opts, openai.WithPrompt(prompt))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		var opts []energy.Option
		if n := optInt(entry.Options, "start_frames"); n > 0 {
			opts = append(opts, energy.WithStartFrames(n))
		}
		if n := optInt(entry.Options, "hangover_frames"); n > 0 {
			opts = append(opts, energy.WithHangoverFrames(n))
		}
		return energy.New(opts...), nil
	})

	for _, name := range reg.STTNames() {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
}

// buildProviders instantiates the recognizers and the VAD engine named in cfg
// using the registry. A missing primary recognizer or VAD engine is fatal; a
// fallback that cannot be built is skipped with a warning.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	primary := cfg.Transcription.Provider
	rec, err := reg.CreateSTT(primary)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", primary.Name, err)
	}
	ps.STT = app.NamedRecognizer{Name: primary.Name, Recognizer: rec}
	slog.Info("provider created", "kind", "stt", "name", primary.Name)

	for _, entry := range cfg.Transcription.Fallbacks {
		rec, err := reg.CreateSTT(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown fallback provider, skipping", "kind", "stt", "name", entry.Name)
			continue
		}
		if err != nil {
			slog.Warn("fallback provider unavailable, skipping", "kind", "stt", "name", entry.Name, "err", err)
			continue
		}
		ps.STTFallbacks = append(ps.STTFallbacks, app.NamedRecognizer{Name: entry.Name, Recognizer: rec})
		slog.Info("provider created", "kind", "stt-fallback", "name", entry.Name)
	}

	engine, err := reg.CreateVAD(cfg.VAD.ProviderEntry)
	if err != nil {
		return nil, fmt.Errorf("create vad provider %q: %w", cfg.VAD.Name, err)
	}
	ps.VAD = engine
	slog.Info("provider created", "kind", "vad", "name", cfg.VAD.Name)

	return ps, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer from opts. YAML decodes whole numbers as int;
// JSON-style float64 values are truncated. Returns 0 when absent.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// optBool extracts a boolean from opts and reports whether it was set.
func optBool(opts map[string]any, key string) (bool, bool) {
	b, ok := opts[key].(bool)
	return b, ok
}
