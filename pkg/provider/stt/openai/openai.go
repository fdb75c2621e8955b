// Package openai provides an STT recognizer backed by the OpenAI audio
// transcription API.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/voxscribe/pkg/audio"
	"github.com/MrWong99/voxscribe/pkg/provider/stt"
)

const providerName = "openai"

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = oai.AudioModelWhisper1

// Ensure Recognizer implements the stt.Recognizer interface.
var _ stt.Recognizer = (*Recognizer)(nil)

// Recognizer implements stt.Recognizer using the OpenAI API. The API does not
// score transcriptions, so results carry no confidence.
type Recognizer struct {
	client   oai.Client
	model    oai.AudioModel
	language string
	prompt   string
}

// config holds optional configuration for the recognizer.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	maxRetries   int
	language     string
	prompt       string
}

// Option is a functional option for Recognizer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the client retries failed requests. Negative
// keeps the client default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// WithLanguage sets the ISO-639-1 language hint (e.g., "en").
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithPrompt sets a prompt that biases the transcription towards a
// vocabulary or style.
func WithPrompt(prompt string) Option {
	return func(c *config) {
		c.prompt = prompt
	}
}

// New constructs a new OpenAI Recognizer.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Recognizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = string(DefaultModel)
	}

	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Recognizer{
		client:   oai.NewClient(reqOpts...),
		model:    oai.AudioModel(model),
		language: cfg.language,
		prompt:   cfg.prompt,
	}, nil
}

// Recognize uploads a as a WAV file to the transcriptions endpoint.
func (r *Recognizer) Recognize(ctx context.Context, a stt.Audio) (stt.Result, error) {
	wav := audio.EncodeWAV(a.PCM, a.SampleRate, max(a.Channels, 1))

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model:          r.model,
		ResponseFormat: oai.AudioResponseFormatJSON,
	}
	lang := a.Language
	if lang == "" {
		lang = r.language
	}
	if lang != "" {
		// The API takes ISO-639-1 codes only.
		params.Language = oai.String(strings.ToLower(strings.SplitN(lang, "-", 2)[0]))
	}
	if r.prompt != "" {
		params.Prompt = oai.String(r.prompt)
	}

	resp, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		reqErr := &stt.RequestError{Provider: providerName, Err: err}
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			reqErr.StatusCode = apiErr.StatusCode
		}
		return stt.Result{}, reqErr
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return stt.Result{}, stt.ErrNoSpeech
	}
	return stt.Result{Alternatives: []stt.Alternative{{Transcript: text}}}, nil
}
