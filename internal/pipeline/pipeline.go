// Package pipeline turns one buffer of mono 16-bit PCM into a transcript.
//
// A job runs the stages in order: the buffer is split into fixed frames, each
// frame is classified by a fresh VAD session, speech frames are assembled into
// segments, segments are batched into chunks, and every chunk is sent to the
// speech recognizer. The recognized fragments are joined in chunk order and
// normalized into the final transcript.
//
// Framing, classification, assembly and aggregation are lazy sequences that
// are pulled frame by frame; only the final chunk list is materialized before
// recognition starts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/voxscribe/internal/observe"
	"github.com/MrWong99/voxscribe/internal/segment"
	"github.com/MrWong99/voxscribe/internal/transcribe"
	"github.com/MrWong99/voxscribe/internal/transcript"
	"github.com/MrWong99/voxscribe/pkg/audio"
	"github.com/MrWong99/voxscribe/pkg/provider/stt"
	"github.com/MrWong99/voxscribe/pkg/provider/vad"
)

// Config holds the tunables of a [Pipeline]. Start from [DefaultConfig];
// the zero value is not usable.
type Config struct {
	// FrameDurationMs is the analysis frame length in milliseconds.
	FrameDurationMs int

	// VAD carries the classifier thresholds. SampleRate and FrameSizeMs are
	// filled in per job.
	VAD vad.Config

	// Policy selects the segmentation preset, Overrides adjusts it.
	Policy    segment.Policy
	Overrides segment.Overrides

	// MaxConsecutiveFailures aborts a job once this many frames in a row
	// failed to classify. Zero never aborts.
	MaxConsecutiveFailures int

	ConfidenceThreshold   float64
	ChunkTimeout          time.Duration
	Concurrency           int
	AnnotateServiceErrors bool
	Language              string

	// ProviderName labels recognition metrics.
	ProviderName string
}

// DefaultConfig returns the configuration used when nothing is overridden:
// 30 ms frames at VAD aggressiveness 1 with byte-batched chunks.
func DefaultConfig() Config {
	return Config{
		FrameDurationMs:     audio.DefaultFrameDurationMs,
		VAD:                 vad.Config{Aggressiveness: 1},
		Policy:              segment.PolicyBytes,
		ConfidenceThreshold: transcribe.DefaultConfidenceThreshold,
		ChunkTimeout:        transcribe.DefaultChunkTimeout,
		Concurrency:         transcribe.DefaultConcurrency,
		ProviderName:        "stt",
	}
}

// Validate reports every invalid field of c at once.
func (c Config) Validate() error {
	var errs []error
	if c.FrameDurationMs <= 0 {
		errs = append(errs, fmt.Errorf("frame duration must be positive, got %d ms", c.FrameDurationMs))
	}
	if c.MaxConsecutiveFailures < 0 {
		errs = append(errs, fmt.Errorf("max consecutive failures must not be negative, got %d", c.MaxConsecutiveFailures))
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("confidence threshold must be in [0, 1], got %v", c.ConfidenceThreshold))
	}
	if c.ChunkTimeout < 0 {
		errs = append(errs, fmt.Errorf("chunk timeout must not be negative, got %s", c.ChunkTimeout))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.VAD.Aggressiveness < 0 || c.VAD.Aggressiveness > vad.MaxAggressiveness {
		errs = append(errs, fmt.Errorf("vad aggressiveness must be in [0, %d], got %d", vad.MaxAggressiveness, c.VAD.Aggressiveness))
	}
	// A probe rate catches unknown policies and negative overrides early.
	if _, err := segment.Resolve(c.Policy, 16000, c.Overrides); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithCorrector applies c to every confidently recognized fragment.
func WithCorrector(c transcript.Corrector) Option {
	return func(p *Pipeline) { p.corrector = c }
}

// WithMetrics records into m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline transcribes PCM buffers. Jobs are independent and may run
// concurrently; each opens its own VAD session.
type Pipeline struct {
	cfg       Config
	engine    vad.Engine
	rec       stt.Recognizer
	corrector transcript.Corrector
	metrics   *observe.Metrics
}

// New validates cfg and returns a pipeline that classifies with engine and
// recognizes with rec.
func New(cfg Config, engine vad.Engine, rec stt.Recognizer, opts ...Option) (*Pipeline, error) {
	if engine == nil {
		return nil, errors.New("pipeline: vad engine is nil")
	}
	if rec == nil {
		return nil, errors.New("pipeline: recognizer is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: invalid config: %w", err)
	}
	p := &Pipeline{cfg: cfg, engine: engine, rec: rec}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}

// Result is the outcome of one job.
type Result struct {
	// Transcript is the normalized concatenation of all fragment texts.
	Transcript string

	// SpeechSegments is the number of segments the assembler produced,
	// before short segments were dropped.
	SpeechSegments int

	// Chunks is the number of chunks sent to the recognizer.
	Chunks int

	Frames           int
	SpeechFrames     int
	ClassifierErrors int

	// Fragments holds one entry per chunk in chunk order.
	Fragments []transcribe.Fragment

	// AudioDuration is the playback length of the input.
	AudioDuration time.Duration
}

// NoSpeech reports whether the job found no speech at all.
func (r *Result) NoSpeech() bool {
	return r.SpeechSegments == 0
}

// Transcribe runs one job over pcm, mono 16-bit little-endian samples at
// sampleRate. Input without speech yields a Result with an empty transcript
// and no error.
//
// Per-chunk recognition failures never fail the job; they are reported in
// the fragments. An error is returned for an invalid sample rate, when the
// VAD session cannot be opened, when classification fails persistently
// (wrapping [segment.ErrClassifierFailed]) and when ctx ends before the job
// completes. Partial results are discarded in every error case.
func (p *Pipeline) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (res *Result, err error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.transcribe")
	defer span.End()
	log := observe.Logger(ctx)

	start := time.Now()
	p.metrics.ActiveJobs.Add(ctx, 1)
	defer p.metrics.ActiveJobs.Add(ctx, -1)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transcription failed")
		}
	}()

	plan, err := segment.Resolve(p.cfg.Policy, sampleRate, p.cfg.Overrides)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	vcfg := p.cfg.VAD
	vcfg.SampleRate = sampleRate
	vcfg.FrameSizeMs = p.cfg.FrameDurationMs
	sess, err := p.engine.NewSession(vcfg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open vad session: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn("pipeline: close vad session", "err", cerr)
		}
	}()

	res = &Result{
		AudioDuration: audio.BytesDuration(len(pcm), audio.Format{SampleRate: sampleRate, Channels: 1}),
	}

	var stop error
	verdicts := segment.Classify(
		audio.Frames(pcm, sampleRate, p.cfg.FrameDurationMs),
		sess,
		segment.ClassifyPolicy{MaxConsecutiveFailures: p.cfg.MaxConsecutiveFailures, Logger: log},
	)
	counted := func(yield func(segment.Verdict) bool) {
		for v := range verdicts {
			if err := ctx.Err(); err != nil {
				stop = err
				return
			}
			res.Frames++
			if v.Err != nil {
				res.ClassifierErrors++
				if v.Fatal() {
					stop = v.Err
					return
				}
			}
			if v.Speech {
				res.SpeechFrames++
			}
			if !yield(v) {
				return
			}
		}
	}
	segments := func(yield func(segment.Segment) bool) {
		for s := range segment.Assemble(counted, plan.Strategy) {
			res.SpeechSegments++
			if !yield(s) {
				return
			}
		}
	}

	var chunks []segment.Chunk
	for c := range segment.Aggregate(segments, plan.Aggregate) {
		chunks = append(chunks, c)
	}
	if stop != nil {
		if ctx.Err() != nil {
			return nil, stop
		}
		return nil, fmt.Errorf("pipeline: %w", stop)
	}
	res.Chunks = len(chunks)

	if len(chunks) > 0 {
		d, err := transcribe.New(p.rec, sampleRate,
			transcribe.WithConfidenceThreshold(p.cfg.ConfidenceThreshold),
			transcribe.WithChunkTimeout(p.cfg.ChunkTimeout),
			transcribe.WithConcurrency(p.cfg.Concurrency),
			transcribe.WithAnnotateServiceErrors(p.cfg.AnnotateServiceErrors),
			transcribe.WithCorrector(p.corrector),
			transcribe.WithLanguage(p.cfg.Language),
			transcribe.WithProviderName(p.cfg.ProviderName),
			transcribe.WithMetrics(p.metrics),
		)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		frags, err := d.DispatchAll(ctx, chunks)
		if err != nil {
			return nil, err
		}
		res.Fragments = frags
	}

	texts := make([]string, len(res.Fragments))
	for i, f := range res.Fragments {
		texts[i] = f.Text
	}
	res.Transcript = transcript.Join(texts)

	elapsed := time.Since(start)
	p.metrics.RecordJob(ctx, observe.JobStats{
		Frames:           res.Frames,
		SpeechFrames:     res.SpeechFrames,
		ClassifierErrors: res.ClassifierErrors,
		Segments:         res.SpeechSegments,
		Chunks:           res.Chunks,
		Duration:         elapsed,
	})
	span.SetAttributes(
		attribute.Int("job.frames", res.Frames),
		attribute.Int("job.segments", res.SpeechSegments),
		attribute.Int("job.chunks", res.Chunks),
	)
	log.Info("pipeline: job finished",
		"audio", res.AudioDuration,
		"frames", res.Frames,
		"speech_frames", res.SpeechFrames,
		"segments", res.SpeechSegments,
		"chunks", res.Chunks,
		"elapsed", elapsed,
	)
	return res, nil
}
