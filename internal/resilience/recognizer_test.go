package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/voxscribe/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxscribe/pkg/provider/stt/mock"
)

func serviceErr(provider string) error {
	return &stt.RequestError{Provider: provider, StatusCode: 503, Err: errors.New("unavailable")}
}

func TestRecognizerFallback_PrimarySuccess(t *testing.T) {
	primary := &sttmock.Recognizer{Result: sttmock.Text("hello", 0.9)}
	secondary := &sttmock.Recognizer{}

	fb := NewRecognizerFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	res, err := fb.Recognize(context.Background(), stt.Mono16([]byte{1, 2}, 16000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best, _ := res.Best(); best.Transcript != "hello" {
		t.Fatalf("transcript = %q, want hello", best.Transcript)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 0 {
		t.Fatalf("calls = %d/%d, want 1/0", primary.CallCount(), secondary.CallCount())
	}
}

func TestRecognizerFallback_Failover(t *testing.T) {
	primary := &sttmock.Recognizer{Err: serviceErr("google")}
	secondary := &sttmock.Recognizer{Result: sttmock.Text("from whisper", 1)}

	fb := NewRecognizerFallback(primary, "google", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("whisper", secondary)

	res, err := fb.Recognize(context.Background(), stt.Mono16([]byte{1, 2}, 16000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best, _ := res.Best(); best.Transcript != "from whisper" {
		t.Fatalf("transcript = %q", best.Transcript)
	}
	if got := secondary.Calls[0].Audio.SampleRate; got != 16000 {
		t.Errorf("secondary sample rate = %d, want 16000", got)
	}
}

func TestRecognizerFallback_NoSpeechDoesNotFailOver(t *testing.T) {
	primary := &sttmock.Recognizer{Err: stt.ErrNoSpeech}
	secondary := &sttmock.Recognizer{Result: sttmock.Text("x", 1)}

	fb := NewRecognizerFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	fb.AddFallback("secondary", secondary)

	for range 3 {
		_, err := fb.Recognize(context.Background(), stt.Mono16(nil, 16000))
		if !errors.Is(err, stt.ErrNoSpeech) {
			t.Fatalf("err = %v, want ErrNoSpeech", err)
		}
	}
	if secondary.CallCount() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.CallCount())
	}
	if got := fb.States()["primary"]; got != StateClosed {
		t.Fatalf("primary state = %v, want closed", got)
	}
}

func TestRecognizerFallback_AllFailedKeepsRequestError(t *testing.T) {
	fb := NewRecognizerFallback(&sttmock.Recognizer{Err: serviceErr("google")}, "google", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 5},
	})
	fb.AddFallback("deepgram", &sttmock.Recognizer{Err: serviceErr("deepgram")})

	_, err := fb.Recognize(context.Background(), stt.Mono16(nil, 16000))
	var reqErr *stt.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %v, want *stt.RequestError", err)
	}
	if reqErr.Provider != "deepgram" {
		t.Errorf("provider = %q, want the last backend tried", reqErr.Provider)
	}
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed in chain", err)
	}
}

func TestRecognizerFallback_OpenBreakerIsRequestError(t *testing.T) {
	primary := &sttmock.Recognizer{Err: errors.New("boom")}
	fb := NewRecognizerFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})

	_, err := fb.Recognize(context.Background(), stt.Mono16(nil, 16000))
	var reqErr *stt.RequestError
	if errors.As(err, &reqErr) {
		t.Fatalf("first err = %v, unexpected errors must not become request errors", err)
	}

	_, err = fb.Recognize(context.Background(), stt.Mono16(nil, 16000))
	if !errors.As(err, &reqErr) || !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want *stt.RequestError wrapping ErrCircuitOpen", err)
	}
	if primary.CallCount() != 1 {
		t.Fatalf("primary called %d times, want 1", primary.CallCount())
	}
}

func TestRecognizerFallback_CanceledContext(t *testing.T) {
	primary := &sttmock.Recognizer{Result: sttmock.Text("x", 1)}
	fb := NewRecognizerFallback(primary, "primary", FallbackConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fb.Recognize(ctx, stt.Mono16(nil, 16000))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if primary.CallCount() != 0 {
		t.Fatal("recognizer ran with a canceled context")
	}
}
