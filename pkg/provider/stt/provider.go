// Package stt defines the Recognizer interface for Speech-to-Text backends.
//
// A Recognizer wraps a transcription service (Google Speech-to-Text, Deepgram,
// OpenAI, or a local whisper.cpp model) and exposes a uniform batch call: one
// chunk of raw PCM in, a ranked list of alternatives out.
//
// Expected recognizer outcomes are values, not failures: an empty
// [Result.Alternatives] list means the service returned nothing usable,
// [ErrNoSpeech] means it could not find speech in the audio, and a
// [*RequestError] reports a service or transport problem. Any other error is
// unexpected.
//
// Implementations must be safe for concurrent use; callers dispatch several
// chunks in parallel.
package stt

import "context"

// Recognizer is the abstraction over any STT backend.
type Recognizer interface {
	// Recognize transcribes one chunk of audio. The call must honour ctx
	// cancellation and deadlines; a deadline that expires while waiting on the
	// service should surface as a [*RequestError] wrapping ctx.Err().
	Recognize(ctx context.Context, a Audio) (Result, error)
}

// RecognizerFunc adapts an ordinary function to the [Recognizer] interface.
type RecognizerFunc func(ctx context.Context, a Audio) (Result, error)

// Recognize calls f(ctx, a).
func (f RecognizerFunc) Recognize(ctx context.Context, a Audio) (Result, error) {
	return f(ctx, a)
}
