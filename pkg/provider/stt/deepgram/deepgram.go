// Package deepgram provides a Deepgram-backed STT recognizer using the
// Deepgram live WebSocket API. Each Recognize call opens one connection,
// streams the chunk, asks Deepgram to finalise with a CloseStream message and
// collects the final results until the server closes the connection.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MrWong99/voxscribe/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	providerName = "deepgram"

	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// writeChunkBytes bounds the size of one binary WebSocket message.
	writeChunkBytes = 32 * 1024
)

// Compile-time assertion that Recognizer implements stt.Recognizer.
var _ stt.Recognizer = (*Recognizer)(nil)

// Option is a functional option for configuring the Deepgram Recognizer.
type Option func(*Recognizer)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(r *Recognizer) {
		r.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(r *Recognizer) {
		r.language = language
	}
}

// WithKeywords sets vocabulary boosts sent with every request.
func WithKeywords(keywords []stt.KeywordBoost) Option {
	return func(r *Recognizer) {
		r.keywords = keywords
	}
}

// WithEndpoint overrides the WebSocket endpoint, e.g. for a self-hosted
// deployment.
func WithEndpoint(endpoint string) Option {
	return func(r *Recognizer) {
		r.endpoint = endpoint
	}
}

// Recognizer implements stt.Recognizer backed by the Deepgram live API.
type Recognizer struct {
	apiKey   string
	endpoint string
	model    string
	language string
	keywords []stt.KeywordBoost
}

// New creates a new Deepgram Recognizer. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Recognizer, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	r := &Recognizer{
		apiKey:   apiKey,
		endpoint: deepgramEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Recognize streams a to Deepgram and returns the concatenated final
// transcript. Confidence is the mean confidence of the non-empty finals.
func (r *Recognizer) Recognize(ctx context.Context, a stt.Audio) (stt.Result, error) {
	wsURL, err := r.buildURL(a)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.apiKey)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		reqErr := &stt.RequestError{Provider: providerName, Err: err}
		if resp != nil {
			reqErr.StatusCode = resp.StatusCode
		}
		return stt.Result{}, reqErr
	}
	defer conn.CloseNow()

	for off := 0; off < len(a.PCM); off += writeChunkBytes {
		end := min(off+writeChunkBytes, len(a.PCM))
		if err := conn.Write(ctx, websocket.MessageBinary, a.PCM[off:end]); err != nil {
			return stt.Result{}, &stt.RequestError{Provider: providerName, Err: err}
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return stt.Result{}, &stt.RequestError{Provider: providerName, Err: err}
	}

	var finals []finalResult
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, io.EOF) {
				break
			}
			return stt.Result{}, &stt.RequestError{Provider: providerName, Err: err}
		}
		f, done := parseDeepgramResponse(msg)
		if f != nil {
			finals = append(finals, *f)
		}
		if done {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")

	return combine(finals)
}

// buildURL constructs the Deepgram streaming endpoint URL for a.
func (r *Recognizer) buildURL(a stt.Audio) (string, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return "", err
	}

	lang := a.Language
	if lang == "" {
		lang = r.language
	}
	sr := a.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", r.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("channels", strconv.Itoa(max(a.Channels, 1)))

	for _, kw := range r.keywords {
		// Deepgram keyword format: word:boost (e.g., "Eldrinax:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure of a Deepgram live API message.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type finalResult struct {
	transcript string
	confidence float64
}

// parseDeepgramResponse extracts the best alternative of a final Results
// message. done reports the Metadata message Deepgram sends after the last
// result of a closed stream.
func parseDeepgramResponse(data []byte) (f *finalResult, done bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false
	}
	switch resp.Type {
	case "Metadata":
		return nil, true
	case "Results":
	default:
		return nil, false
	}
	if !resp.IsFinal || len(resp.Channel.Alternatives) == 0 {
		return nil, false
	}
	alt := resp.Channel.Alternatives[0]
	return &finalResult{transcript: strings.TrimSpace(alt.Transcript), confidence: alt.Confidence}, false
}

// combine merges the final results of one stream. No finals at all yields an
// empty result; finals that are all empty mean Deepgram heard no speech.
func combine(finals []finalResult) (stt.Result, error) {
	if len(finals) == 0 {
		return stt.Result{HasConfidence: true}, nil
	}
	var (
		parts []string
		sum   float64
	)
	for _, f := range finals {
		if f.transcript == "" {
			continue
		}
		parts = append(parts, f.transcript)
		sum += f.confidence
	}
	if len(parts) == 0 {
		return stt.Result{}, stt.ErrNoSpeech
	}
	return stt.Result{
		Alternatives: []stt.Alternative{{
			Transcript: strings.Join(parts, " "),
			Confidence: sum / float64(len(parts)),
		}},
		HasConfidence: true,
	}, nil
}
