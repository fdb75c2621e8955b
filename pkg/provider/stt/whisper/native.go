// This file contains the NativeRecognizer implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MrWong99/voxscribe/pkg/provider/stt"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertion that NativeRecognizer satisfies stt.Recognizer.
var _ stt.Recognizer = (*NativeRecognizer)(nil)

// NativeRecognizer implements stt.Recognizer using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup and shared across all calls; every call gets its own context.
type NativeRecognizer struct {
	model    whisperlib.Model
	language string
}

// NativeOption is a functional option for configuring a NativeRecognizer.
type NativeOption func(*NativeRecognizer)

// WithNativeLanguage sets the language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(r *NativeRecognizer) { r.language = lang }
}

// NewNative creates a NativeRecognizer that loads the whisper.cpp model from
// the given file path. The caller must call Close when the recognizer is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeRecognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	r := &NativeRecognizer{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Close releases the whisper model.
func (r *NativeRecognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// Recognize runs inference on a. Inference itself cannot be interrupted; when
// ctx ends first the call returns a [*stt.RequestError] and the result of the
// still running inference is discarded.
func (r *NativeRecognizer) Recognize(ctx context.Context, a stt.Audio) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, &stt.RequestError{Provider: providerName, Err: err}
	}

	lang := a.Language
	if lang == "" {
		lang = r.language
	}

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, err := r.infer(modelInput(a), lang)
		done <- outcome{text, err}
	}()

	select {
	case <-ctx.Done():
		return stt.Result{}, &stt.RequestError{Provider: providerName, Err: ctx.Err()}
	case o := <-done:
		if o.err != nil {
			return stt.Result{}, o.err
		}
		text := cleanText(o.text)
		if text == "" {
			return stt.Result{}, stt.ErrNoSpeech
		}
		return stt.Result{Alternatives: []stt.Alternative{{Transcript: text}}}, nil
	}
}

// infer runs whisper.cpp inference on samples using a fresh context and
// returns the concatenated segment text.
func (r *NativeRecognizer) infer(samples []float32, lang string) (string, error) {
	// Contexts are not thread-safe; the model is.
	wctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
