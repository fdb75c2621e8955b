// Package google provides an STT recognizer backed by the Google Cloud
// Speech-to-Text v1 REST API (speech:recognize).
//
// Chunks are sent as base64 LINEAR16 content in a synchronous recognize
// request, so a single call is limited to roughly one minute of audio. The
// service scores its alternatives; an empty result list means nothing was
// recognized.
package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	speech "google.golang.org/api/speech/v1"

	"github.com/MrWong99/voxscribe/pkg/provider/stt"
)

const (
	providerName = "google"

	defaultLanguage        = "en-US"
	defaultMaxAlternatives = 1
)

// Compile-time assertion that Recognizer implements stt.Recognizer.
var _ stt.Recognizer = (*Recognizer)(nil)

// config holds optional configuration for the recognizer.
type config struct {
	apiKey          string
	endpoint        string
	httpClient      *http.Client
	language        string
	model           string
	maxAlternatives int
	phrases         []string
	punctuation     bool
}

// Option is a functional option for Recognizer.
type Option func(*config)

// WithAPIKey authenticates with an API key instead of application default
// credentials.
func WithAPIKey(key string) Option {
	return func(c *config) { c.apiKey = key }
}

// WithEndpoint overrides the API base URL.
func WithEndpoint(url string) Option {
	return func(c *config) { c.endpoint = url }
}

// WithHTTPClient replaces the HTTP client. The client is used as-is, so it
// must carry its own authentication.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithLanguage sets the BCP-47 recognition language. Defaults to "en-US".
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithModel selects a recognition model such as "latest_long" or
// "phone_call". Empty lets the service choose.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithMaxAlternatives sets how many alternatives the service may return.
func WithMaxAlternatives(n int) Option {
	return func(c *config) { c.maxAlternatives = n }
}

// WithPhrases adds vocabulary hints as a speech context.
func WithPhrases(phrases []string) Option {
	return func(c *config) { c.phrases = phrases }
}

// WithAutomaticPunctuation asks the service to insert punctuation.
func WithAutomaticPunctuation(on bool) Option {
	return func(c *config) { c.punctuation = on }
}

// Recognizer implements stt.Recognizer using Google Speech-to-Text v1.
type Recognizer struct {
	svc *speech.Service
	cfg config
}

// New constructs a Recognizer. Without WithAPIKey or WithHTTPClient the
// client uses application default credentials.
func New(ctx context.Context, opts ...Option) (*Recognizer, error) {
	cfg := config{language: defaultLanguage, maxAlternatives: defaultMaxAlternatives}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.maxAlternatives < 1 || cfg.maxAlternatives > 30 {
		return nil, fmt.Errorf("google stt: max alternatives must be in [1, 30], got %d", cfg.maxAlternatives)
	}

	var clientOpts []option.ClientOption
	if cfg.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.apiKey))
	}
	if cfg.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.endpoint))
	}
	if cfg.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(cfg.httpClient))
	}

	svc, err := speech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google stt: create service: %w", err)
	}
	return &Recognizer{svc: svc, cfg: cfg}, nil
}

// Recognize sends a synchronous recognize request for a.
func (r *Recognizer) Recognize(ctx context.Context, a stt.Audio) (stt.Result, error) {
	lang := a.Language
	if lang == "" {
		lang = r.cfg.language
	}

	rc := &speech.RecognitionConfig{
		Encoding:                   "LINEAR16",
		SampleRateHertz:            int64(a.SampleRate),
		AudioChannelCount:          int64(max(a.Channels, 1)),
		LanguageCode:               lang,
		MaxAlternatives:            int64(r.cfg.maxAlternatives),
		Model:                      r.cfg.model,
		EnableAutomaticPunctuation: r.cfg.punctuation,
	}
	if len(r.cfg.phrases) > 0 {
		rc.SpeechContexts = []*speech.SpeechContext{{Phrases: r.cfg.phrases}}
	}

	resp, err := r.svc.Speech.Recognize(&speech.RecognizeRequest{
		Config: rc,
		Audio:  &speech.RecognitionAudio{Content: base64.StdEncoding.EncodeToString(a.PCM)},
	}).Context(ctx).Do()
	if err != nil {
		reqErr := &stt.RequestError{Provider: providerName, Err: err}
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			reqErr.StatusCode = apiErr.Code
		}
		return stt.Result{}, reqErr
	}
	return toResult(resp), nil
}

// toResult flattens a recognize response. The service splits long audio into
// consecutive results; with a single result its alternatives are returned
// as-is, otherwise the best alternatives are joined into one whose confidence
// is their mean.
func toResult(resp *speech.RecognizeResponse) stt.Result {
	out := stt.Result{HasConfidence: true}
	var results []*speech.SpeechRecognitionResult
	for _, res := range resp.Results {
		if res != nil && len(res.Alternatives) > 0 {
			results = append(results, res)
		}
	}

	switch len(results) {
	case 0:
		return out
	case 1:
		for _, alt := range results[0].Alternatives {
			out.Alternatives = append(out.Alternatives, stt.Alternative{
				Transcript: strings.TrimSpace(alt.Transcript),
				Confidence: alt.Confidence,
			})
		}
		return out
	}

	var (
		parts []string
		sum   float64
	)
	for _, res := range results {
		best := res.Alternatives[0]
		parts = append(parts, strings.TrimSpace(best.Transcript))
		sum += best.Confidence
	}
	out.Alternatives = []stt.Alternative{{
		Transcript: strings.Join(parts, " "),
		Confidence: sum / float64(len(results)),
	}}
	return out
}
