// Package mock provides test doubles for the stt package interfaces.
//
// Use Recognizer to script transcription outcomes and inspect which audio
// chunks were submitted.
//
// Example:
//
//	rec := &mock.Recognizer{
//	    Result: stt.Result{
//	        Alternatives:  []stt.Alternative{{Transcript: "hello world", Confidence: 0.9}},
//	        HasConfidence: true,
//	    },
//	}
//	res, _ := rec.Recognize(ctx, stt.Mono16(pcm, 16000))
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxscribe/pkg/provider/stt"
)

// RecognizeCall records a single invocation of Recognizer.Recognize.
type RecognizeCall struct {
	// Ctx is the context passed to Recognize.
	Ctx context.Context

	// Audio is the chunk passed to Recognize. PCM is a copy.
	Audio stt.Audio
}

// Response is one scripted Recognize outcome.
type Response struct {
	Result stt.Result
	Err    error
}

// Recognizer is a mock implementation of stt.Recognizer. Outcomes are chosen
// in this order: Respond if set, then Script by call number, then Result/Err.
type Recognizer struct {
	mu sync.Mutex

	// Respond, if non-nil, computes the outcome of every call. call is the
	// zero-based call number.
	Respond func(ctx context.Context, call int, a stt.Audio) (stt.Result, error)

	// Script answers the n-th call with Script[n].
	Script []Response

	// Result and Err are returned once Script is exhausted.
	Result stt.Result
	Err    error

	// Calls records every call to Recognize in order of arrival.
	Calls []RecognizeCall
}

// Recognize records the call and returns the scripted outcome.
func (r *Recognizer) Recognize(ctx context.Context, a stt.Audio) (stt.Result, error) {
	r.mu.Lock()
	n := len(r.Calls)
	rec := a
	rec.PCM = append([]byte(nil), a.PCM...)
	r.Calls = append(r.Calls, RecognizeCall{Ctx: ctx, Audio: rec})
	respond := r.Respond
	var resp Response
	switch {
	case respond != nil:
	case n < len(r.Script):
		resp = r.Script[n]
	default:
		resp = Response{Result: r.Result, Err: r.Err}
	}
	r.mu.Unlock()

	if respond != nil {
		return respond(ctx, n, a)
	}
	return resp.Result, resp.Err
}

// CallCount returns the number of Recognize calls so far. Thread-safe.
func (r *Recognizer) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = nil
}

// Text returns a confident single-alternative Result for text.
func Text(text string, confidence float64) stt.Result {
	return stt.Result{
		Alternatives:  []stt.Alternative{{Transcript: text, Confidence: confidence}},
		HasConfidence: true,
	}
}

// Ensure Recognizer implements stt.Recognizer at compile time.
var _ stt.Recognizer = (*Recognizer)(nil)
