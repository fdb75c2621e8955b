// Package whisper provides whisper.cpp-backed STT recognizers.
//
// [Recognizer] talks to a running whisper-server binary, which exposes a REST
// API at POST /inference. Each Recognize call wraps the chunk in a WAV
// container and submits it as one multipart upload. [NativeRecognizer] runs
// the model in-process through the whisper.cpp CGO bindings.
//
// whisper.cpp does not score its output, so results never carry a confidence
// and an empty transcription is reported as [stt.ErrNoSpeech].
//
// Usage:
//
//	r, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	)
//	res, err := r.Recognize(ctx, stt.Mono16(pcm, 16000))
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/voxscribe/pkg/audio"
	"github.com/MrWong99/voxscribe/pkg/provider/stt"
)

const (
	providerName = "whisper"

	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	// maxErrorBody caps how much of a failed response is kept for the error.
	maxErrorBody = 512
)

// blankMarkers are the placeholder texts whisper emits for audio without
// speech.
var blankMarkers = []string{"[BLANK_AUDIO]", "[ Silence ]", "(silence)"}

// Compile-time assertion that Recognizer implements stt.Recognizer.
var _ stt.Recognizer = (*Recognizer)(nil)

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with. This is the default.
func WithModel(model string) Option {
	return func(r *Recognizer) {
		r.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(r *Recognizer) {
		r.language = lang
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Recognizer) {
		r.httpClient = c
	}
}

// Recognizer implements stt.Recognizer backed by a whisper.cpp HTTP server.
// It holds no per-call state and is safe for concurrent use.
type Recognizer struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Recognizer that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Recognizer, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	r := &Recognizer{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Recognize encodes a as a WAV file and POSTs it to the /inference endpoint
// as multipart/form-data.
func (r *Recognizer) Recognize(ctx context.Context, a stt.Audio) (stt.Result, error) {
	lang := a.Language
	if lang == "" {
		lang = r.language
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(a.PCM, a.SampleRate, max(a.Channels, 1))); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: write wav data: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: write response_format field: %w", err)
	}
	if lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if r.model != "" {
		if err := mw.WriteField("model", r.model); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.serverURL+"/inference", &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return stt.Result{}, &stt.RequestError{Provider: providerName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return stt.Result{}, &stt.RequestError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(msg))),
		}
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	text := cleanText(result.Text)
	if text == "" {
		return stt.Result{}, stt.ErrNoSpeech
	}
	return stt.Result{Alternatives: []stt.Alternative{{Transcript: text}}}, nil
}

// cleanText trims whisper output and maps its silence placeholders to "".
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	for _, m := range blankMarkers {
		if strings.EqualFold(s, m) {
			return ""
		}
	}
	return s
}
