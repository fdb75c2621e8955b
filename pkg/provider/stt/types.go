package stt

import (
	"errors"
	"fmt"
)

// ErrNoSpeech is returned by a Recognizer when the service found no
// intelligible speech in the audio.
var ErrNoSpeech = errors.New("stt: no speech recognized")

// Audio is one chunk of raw PCM handed to a Recognizer.
type Audio struct {
	// PCM holds interleaved signed little-endian samples.
	PCM []byte

	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// SampleWidth is the size of one sample in bytes. Always 2 in this module.
	SampleWidth int

	// Channels is the number of interleaved channels. 1 = mono.
	Channels int

	// Language is an optional BCP-47 hint (e.g., "en-US"). Empty uses the
	// recognizer's configured default.
	Language string
}

// Mono16 returns an Audio for 16-bit mono PCM at sampleRate.
func Mono16(pcm []byte, sampleRate int) Audio {
	return Audio{PCM: pcm, SampleRate: sampleRate, SampleWidth: 2, Channels: 1}
}

// Alternative is one candidate transcription.
type Alternative struct {
	Transcript string

	// Confidence is the service's score in [0.0, 1.0]. Only meaningful when
	// the owning Result has HasConfidence set.
	Confidence float64
}

// Result is the outcome of a successful Recognize call. Alternatives are
// ordered best first and may be empty.
type Result struct {
	Alternatives []Alternative

	// HasConfidence reports whether the service scores its alternatives.
	// Services such as whisper.cpp never do.
	HasConfidence bool
}

// Best returns the first alternative, or false when there is none.
func (r Result) Best() (Alternative, bool) {
	if len(r.Alternatives) == 0 {
		return Alternative{}, false
	}
	return r.Alternatives[0], true
}

// RequestError reports a failed request to a transcription service: a
// transport error, a non-success HTTP status, an exhausted deadline or an
// open circuit breaker.
type RequestError struct {
	// Provider names the backend, e.g. "google" or "deepgram".
	Provider string

	// StatusCode is the HTTP status returned by the service, or 0.
	StatusCode int

	Err error
}

// Error implements error.
func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: request failed with HTTP %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: request failed: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *RequestError) Unwrap() error { return e.Err }

// KeywordBoost represents a keyword to boost in STT recognition, used to
// improve recognition of domain vocabulary such as product or person names.
type KeywordBoost struct {
	// Keyword is the text to boost.
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}
