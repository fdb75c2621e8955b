package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/voxscribe/pkg/provider/stt"
)

// RecognizerFallback implements [stt.Recognizer] with automatic failover
// across several recognition backends, each guarded by its own circuit
// breaker.
//
// [stt.ErrNoSpeech] and caller cancellation are answers, not backend
// failures: they are returned at once and never trip a breaker. When every
// backend is skipped because its breaker is open the call fails with a
// [*stt.RequestError].
type RecognizerFallback struct {
	group *FallbackGroup[stt.Recognizer]
}

var _ stt.Recognizer = (*RecognizerFallback)(nil)

// NewRecognizerFallback creates a [RecognizerFallback] with primary as the
// preferred backend. cfg.Passthrough is ignored.
func NewRecognizerFallback(primary stt.Recognizer, primaryName string, cfg FallbackConfig) *RecognizerFallback {
	cfg.Passthrough = isRecognizerAnswer
	return &RecognizerFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (f *RecognizerFallback) AddFallback(name string, r stt.Recognizer) {
	f.group.AddFallback(name, r)
}

// States returns each backend's breaker state keyed by backend name.
func (f *RecognizerFallback) States() map[string]State {
	return f.group.States()
}

// Recognize submits a to the first healthy backend, failing over on error.
func (f *RecognizerFallback) Recognize(ctx context.Context, a stt.Audio) (stt.Result, error) {
	res, err := ExecuteWithResult(f.group, func(r stt.Recognizer) (stt.Result, error) {
		if err := ctx.Err(); err != nil {
			return stt.Result{}, err
		}
		return r.Recognize(ctx, a)
	})
	if err == nil || !errors.Is(err, ErrAllFailed) {
		return res, err
	}
	var reqErr *stt.RequestError
	if !errors.As(err, &reqErr) && errors.Is(err, ErrCircuitOpen) {
		return stt.Result{}, &stt.RequestError{Provider: "fallback", Err: err}
	}
	return stt.Result{}, err
}

func isRecognizerAnswer(err error) bool {
	return errors.Is(err, stt.ErrNoSpeech) || errors.Is(err, context.Canceled)
}
