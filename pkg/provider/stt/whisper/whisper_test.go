package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/voxscribe/pkg/audio"
	"github.com/MrWong99/voxscribe/pkg/provider/stt"
	"github.com/MrWong99/voxscribe/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// inferenceRequest captures the parts of an /inference upload the tests
// inspect.
type inferenceRequest struct {
	language string
	model    string
	wav      []byte
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing the provided responseText. Every matched request is
// recorded in *last and counted in *callCount.
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32, last *inferenceRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		if last != nil {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			f, _, err := r.FormFile("file")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(f)
			*last = inferenceRequest{
				language: r.FormValue("language"),
				model:    r.FormValue("model"),
				wav:      data,
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// makeSpeechPCM generates a sine-wave PCM buffer at 440 Hz. The buffer
// contains `samples` 16-bit little-endian signed samples.
func makeSpeechPCM(samples int) []byte {
	const amplitude = 10_000.0
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// makeSilencePCM generates a zero-valued PCM buffer of `samples` samples.
func makeSilencePCM(samples int) []byte {
	return make([]byte, samples*2)
}

// ---- construction -----------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	r, err := whisper.New("http://localhost:8080",
		whisper.WithModel("small"),
		whisper.WithLanguage("de"),
		whisper.WithHTTPClient(&http.Client{Timeout: time.Second}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r == nil {
		t.Fatal("expected non-nil Recognizer")
	}
}

// ---- recognition ------------------------------------------------------------

func TestRecognize_ReturnsTranscriptWithoutConfidence(t *testing.T) {
	var calls atomic.Int32
	var last inferenceRequest
	srv := newMockServer(t, " hello world \n", &calls, &last)

	r, _ := whisper.New(srv.URL, whisper.WithModel("base.en"))
	pcm := makeSpeechPCM(1600)
	res, err := r.Recognize(context.Background(), stt.Mono16(pcm, 16000))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}

	best, ok := res.Best()
	if !ok || best.Transcript != "hello world" {
		t.Errorf("best = %+v, ok = %v; want transcript %q", best, ok, "hello world")
	}
	if res.HasConfidence {
		t.Error("whisper results must not claim confidence")
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
	if last.language != "en" || last.model != "base.en" {
		t.Errorf("form fields language=%q model=%q", last.language, last.model)
	}

	decoded, err := audio.DecodeWAV(last.wav)
	if err != nil {
		t.Fatalf("uploaded file is not a WAV: %v", err)
	}
	if decoded.SampleRate != 16000 || decoded.Channels != 1 || len(decoded.Data) != len(pcm) {
		t.Errorf("uploaded WAV = %v with %d bytes, want 16000Hz mono with %d bytes",
			decoded.Format, len(decoded.Data), len(pcm))
	}
}

func TestRecognize_AudioLanguageOverridesDefault(t *testing.T) {
	var last inferenceRequest
	srv := newMockServer(t, "bonjour", nil, &last)

	r, _ := whisper.New(srv.URL)
	a := stt.Mono16(makeSpeechPCM(160), 16000)
	a.Language = "fr"
	if _, err := r.Recognize(context.Background(), a); err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if last.language != "fr" {
		t.Errorf("language = %q, want fr", last.language)
	}
}

func TestRecognize_EmptyText_ReturnsNoSpeech(t *testing.T) {
	for _, text := range []string{"", "   ", "[BLANK_AUDIO]"} {
		srv := newMockServer(t, text, nil, nil)
		r, _ := whisper.New(srv.URL)
		_, err := r.Recognize(context.Background(), stt.Mono16(makeSilencePCM(1600), 16000))
		if !errors.Is(err, stt.ErrNoSpeech) {
			t.Errorf("text %q: got %v, want ErrNoSpeech", text, err)
		}
	}
}

func TestRecognize_ServerError_ReturnsRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r, _ := whisper.New(srv.URL)
	_, err := r.Recognize(context.Background(), stt.Mono16(makeSpeechPCM(160), 16000))

	var reqErr *stt.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *stt.RequestError, got %v", err)
	}
	if reqErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", reqErr.StatusCode)
	}
	if reqErr.Provider != "whisper" {
		t.Errorf("provider = %q, want whisper", reqErr.Provider)
	}
}

func TestRecognize_Unreachable_ReturnsRequestError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r, _ := whisper.New(url)
	_, err := r.Recognize(context.Background(), stt.Mono16(makeSpeechPCM(160), 16000))
	var reqErr *stt.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *stt.RequestError, got %v", err)
	}
}

func TestRecognize_DeadlineExceeded_ReturnsRequestError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	r, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Recognize(ctx, stt.Mono16(makeSpeechPCM(160), 16000))
	var reqErr *stt.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *stt.RequestError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded in chain, got %v", err)
	}
}

func TestRecognize_MalformedJSON_IsNotARequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	r, _ := whisper.New(srv.URL)
	_, err := r.Recognize(context.Background(), stt.Mono16(makeSpeechPCM(160), 16000))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	var reqErr *stt.RequestError
	if errors.As(err, &reqErr) {
		t.Errorf("malformed body should be an unexpected error, got RequestError %v", err)
	}
}
