// Package transcribe sends aggregated chunks to a speech recognizer and turns
// each answer into a transcript fragment.
//
// Every chunk ends in exactly one [Outcome]. Recognizer failures are folded
// into the fragment and never abort the other chunks of a job; only caller
// cancellation stops [Dispatcher.DispatchAll].
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxscribe/internal/observe"
	"github.com/MrWong99/voxscribe/internal/segment"
	"github.com/MrWong99/voxscribe/internal/transcript"
	"github.com/MrWong99/voxscribe/pkg/provider/stt"
)

// Fragment markers.
const (
	MarkerUnintelligible = "[Unintelligible] "
	MarkerLowConfidence  = "[Low Confidence] "
)

const (
	// DefaultConfidenceThreshold is the score at or below which a recognized
	// transcript is replaced by [MarkerLowConfidence].
	DefaultConfidenceThreshold = 0.5

	// DefaultChunkTimeout bounds a single Recognize call.
	DefaultChunkTimeout = 30 * time.Second

	// DefaultConcurrency is the number of chunks recognized in parallel.
	DefaultConcurrency = 4
)

// Fragment is the transcript text produced for one chunk.
type Fragment struct {
	ChunkIndex int     `json:"chunk"`
	Outcome    Outcome `json:"outcome"`

	// Text is the fragment's contribution to the transcript, including its
	// trailing separator. It is empty for skipped chunks.
	Text string `json:"text"`

	// Confidence is the best alternative's score, or 0 when the recognizer
	// does not report one.
	Confidence float64 `json:"confidence,omitempty"`

	// Err is the recognizer or processing error behind a service error or
	// failed outcome.
	Err error `json:"-"`
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithConfidenceThreshold sets the low-confidence cut-off. Default: 0.5.
func WithConfidenceThreshold(t float64) Option {
	return func(d *Dispatcher) { d.threshold = t }
}

// WithChunkTimeout sets the deadline of each Recognize call. Zero disables
// the per-call deadline. Default: 30s.
func WithChunkTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithConcurrency sets how many chunks [Dispatcher.DispatchAll] recognizes
// at once. Default: 4.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) { d.concurrency = n }
}

// WithAnnotateServiceErrors makes service errors contribute an
// "[API error: <message>] " fragment instead of being skipped silently.
func WithAnnotateServiceErrors(on bool) Option {
	return func(d *Dispatcher) { d.annotate = on }
}

// WithCorrector rewrites recognized text before it is formatted.
func WithCorrector(c transcript.Corrector) Option {
	return func(d *Dispatcher) { d.corrector = c }
}

// WithLanguage sets the language hint passed to the recognizer.
func WithLanguage(lang string) Option {
	return func(d *Dispatcher) { d.language = lang }
}

// WithProviderName labels metrics and spans. Default: "stt".
func WithProviderName(name string) Option {
	return func(d *Dispatcher) { d.provider = name }
}

// WithMetrics records chunk outcomes to m. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher recognizes the chunks of one audio stream. It is safe for
// concurrent use.
type Dispatcher struct {
	rec        stt.Recognizer
	sampleRate int

	threshold   float64
	timeout     time.Duration
	concurrency int
	annotate    bool
	corrector   transcript.Corrector
	language    string
	provider    string
	metrics     *observe.Metrics
}

// New returns a [Dispatcher] that submits chunks of 16-bit mono PCM at
// sampleRate to rec.
func New(rec stt.Recognizer, sampleRate int, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		rec:         rec,
		sampleRate:  sampleRate,
		threshold:   DefaultConfidenceThreshold,
		timeout:     DefaultChunkTimeout,
		concurrency: DefaultConcurrency,
		provider:    "stt",
	}
	for _, o := range opts {
		o(d)
	}
	switch {
	case rec == nil:
		return nil, errors.New("transcribe: recognizer is nil")
	case sampleRate <= 0:
		return nil, fmt.Errorf("transcribe: sample rate must be positive, got %d", sampleRate)
	case d.threshold < 0 || d.threshold > 1:
		return nil, fmt.Errorf("transcribe: confidence threshold must be in [0, 1], got %v", d.threshold)
	case d.timeout < 0:
		return nil, fmt.Errorf("transcribe: chunk timeout must not be negative, got %s", d.timeout)
	case d.concurrency < 1:
		return nil, fmt.Errorf("transcribe: concurrency must be at least 1, got %d", d.concurrency)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d, nil
}

// Dispatch recognizes one chunk and interprets the answer. It never panics
// and never returns an error; failures are reported through the fragment's
// Outcome and Err.
func (d *Dispatcher) Dispatch(ctx context.Context, chunk segment.Chunk) (frag Fragment) {
	ctx, span := observe.StartSpan(ctx, "transcribe.chunk")
	defer span.End()
	log := observe.Logger(ctx).With("chunk", chunk.Index)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			frag = Fragment{
				ChunkIndex: chunk.Index,
				Outcome:    OutcomeFailed,
				Err:        fmt.Errorf("transcribe: recognizer panic: %v", r),
			}
			log.Error("transcribe: chunk failed", "err", frag.Err)
		}
		span.SetAttributes(
			attribute.Int("chunk.index", chunk.Index),
			attribute.Int("chunk.bytes", len(chunk.Data)),
			attribute.String("chunk.outcome", frag.Outcome.String()),
		)
		if frag.Err != nil {
			span.RecordError(frag.Err)
			span.SetStatus(codes.Error, frag.Outcome.String())
		}
		failed := frag.Outcome == OutcomeServiceError || frag.Outcome == OutcomeFailed
		d.metrics.RecordRecognition(ctx, d.provider, frag.Outcome.String(), time.Since(start), failed)
	}()

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	a := stt.Mono16(chunk.Data, d.sampleRate)
	a.Language = d.language
	res, err := d.rec.Recognize(callCtx, a)
	frag = d.interpret(ctx, callCtx, chunk.Index, res, err)

	switch frag.Outcome {
	case OutcomeServiceError:
		log.Warn("transcribe: recognition service error", "err", frag.Err)
	case OutcomeFailed:
		log.Error("transcribe: chunk failed", "err", frag.Err)
	default:
		log.Debug("transcribe: chunk recognized", "outcome", frag.Outcome.String(), "confidence", frag.Confidence)
	}
	return frag
}

// interpret maps a Recognize result onto a fragment. ctx is the caller's
// context and callCtx the per-call context derived from it.
func (d *Dispatcher) interpret(ctx, callCtx context.Context, idx int, res stt.Result, err error) Fragment {
	frag := Fragment{ChunkIndex: idx}
	var reqErr *stt.RequestError
	switch {
	case err == nil:
	case errors.Is(err, stt.ErrNoSpeech):
		frag.Outcome = OutcomeNoSpeech
		return frag
	case ctx.Err() != nil:
		frag.Outcome = OutcomeFailed
		frag.Err = fmt.Errorf("transcribe: chunk %d abandoned: %w", idx, ctx.Err())
		return frag
	case errors.As(err, &reqErr), errors.Is(callCtx.Err(), context.DeadlineExceeded):
		frag.Outcome = OutcomeServiceError
		frag.Err = err
		if d.annotate {
			frag.Text = "[API error: " + err.Error() + "] "
		}
		return frag
	default:
		frag.Outcome = OutcomeFailed
		frag.Err = err
		return frag
	}

	best, ok := res.Best()
	text := strings.TrimSpace(best.Transcript)
	if !ok || text == "" {
		frag.Outcome = OutcomeUnintelligible
		frag.Text = MarkerUnintelligible
		return frag
	}
	if res.HasConfidence {
		frag.Confidence = best.Confidence
		if best.Confidence <= d.threshold {
			frag.Outcome = OutcomeLowConfidence
			frag.Text = MarkerLowConfidence
			return frag
		}
	}
	if d.corrector != nil {
		text, _ = d.corrector.Correct(text)
	}
	frag.Outcome = OutcomeRecognized
	frag.Text = capitalize(text) + ". "
	return frag
}

// DispatchAll recognizes chunks with up to the configured concurrency and
// returns their fragments in chunk order. A failing chunk never stops the
// others. If ctx is canceled, chunks not yet started are skipped and
// ctx.Err() is returned together with the fragments collected so far; slots of
// skipped chunks hold zero fragments.
func (d *Dispatcher) DispatchAll(ctx context.Context, chunks []segment.Chunk) ([]Fragment, error) {
	frags := make([]Fragment, len(chunks))
	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)
	for i, c := range chunks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			frags[i] = d.Dispatch(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
	return frags, ctx.Err()
}

// capitalize upper-cases the first letter of s and leaves the rest as is.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
