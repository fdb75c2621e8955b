// Package segment turns a stream of analysis frames into speech segments and
// groups those segments into transcription-ready chunks.
//
// The three stages are lazy iterators that are composed in a single ordered
// pass:
//
//	verdicts := segment.Classify(audio.Frames(pcm, rate, 30), sess, policy)
//	segments := segment.Assemble(verdicts, segment.StrategyRun)
//	for chunk := range segment.Aggregate(segments, cfg) { ... }
package segment

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/MrWong99/voxscribe/pkg/audio"
	"github.com/MrWong99/voxscribe/pkg/provider/vad"
)

// ErrClassifierFailed is carried by the final [Verdict] of a [Classify]
// sequence when the consecutive failure limit of the [ClassifyPolicy] is hit.
var ErrClassifierFailed = errors.New("segment: classifier failed")

// Verdict is the classification of one frame.
type Verdict struct {
	Frame       audio.Frame
	Speech      bool
	Probability float64

	// Err is set when the classifier failed on this frame. The frame is then
	// reported as non-speech. If Err wraps [ErrClassifierFailed] the verdict
	// is the last one of its sequence and the stream must be abandoned.
	Err error
}

// Fatal reports whether v terminates its sequence with an escalated
// classifier failure.
func (v Verdict) Fatal() bool {
	return errors.Is(v.Err, ErrClassifierFailed)
}

// ClassifyPolicy controls how [Classify] reacts to classifier failures.
type ClassifyPolicy struct {
	// MaxConsecutiveFailures escalates to [ErrClassifierFailed] once this many
	// frames in a row failed to classify. Zero never escalates.
	MaxConsecutiveFailures int

	// Logger receives per-frame failure reports. Nil uses slog.Default().
	Logger *slog.Logger
}

// Classify runs every frame through sess and yields one [Verdict] per frame in
// stream order. A frame whose classification fails is logged and reported as
// non-speech; processing continues with the next frame unless the policy's
// failure limit is reached.
func Classify(frames iter.Seq[audio.Frame], sess vad.SessionHandle, policy ClassifyPolicy) iter.Seq[Verdict] {
	log := policy.Logger
	if log == nil {
		log = slog.Default()
	}
	return func(yield func(Verdict) bool) {
		failures := 0
		for f := range frames {
			ev, err := sess.ProcessFrame(f.Data)
			if err != nil {
				failures++
				log.Warn("segment: frame classification failed", "frame", f.Index, "consecutive", failures, "err", err)
				if policy.MaxConsecutiveFailures > 0 && failures >= policy.MaxConsecutiveFailures {
					yield(Verdict{
						Frame: f,
						Err:   fmt.Errorf("%w: %d consecutive failures ending at frame %d: %w", ErrClassifierFailed, failures, f.Index, err),
					})
					return
				}
				if !yield(Verdict{Frame: f, Err: err}) {
					return
				}
				continue
			}
			failures = 0
			if !yield(Verdict{Frame: f, Speech: ev.IsSpeech(), Probability: ev.Probability}) {
				return
			}
		}
	}
}
