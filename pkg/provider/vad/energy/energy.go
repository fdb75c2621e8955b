// Package energy implements a pure-Go [vad.Engine] that classifies frames by
// their RMS energy. Speech starts when the level reaches the speech threshold
// and ends once it drops below the lower silence threshold, so short dips
// inside an utterance do not flip the verdict.
//
// Thresholds are expressed as a fraction of full-scale RMS (0.0–1.0). When a
// [vad.Config] leaves them at zero the engine picks a preset from
// Config.Aggressiveness. Reported probabilities are the frame level scaled so
// that the speech threshold maps to 0.5.
package energy

import (
	"fmt"
	"math"
	"sync"

	"github.com/MrWong99/voxscribe/pkg/audio"
	"github.com/MrWong99/voxscribe/pkg/provider/vad"
)

// aggressivenessLevels maps Config.Aggressiveness to a speech threshold.
var aggressivenessLevels = [vad.MaxAggressiveness + 1]float64{0.004, 0.008, 0.015, 0.03}

// silenceRatio derives the silence threshold from the speech threshold when
// only the latter is known.
const silenceRatio = 0.6

// Option configures an [Engine].
type Option func(*Engine)

// WithStartFrames sets how many consecutive loud frames are needed before a
// session reports speech. Values below 1 are treated as 1.
func WithStartFrames(n int) Option {
	return func(e *Engine) { e.startFrames = max(n, 1) }
}

// WithHangoverFrames sets how many quiet frames a session tolerates inside an
// utterance before reporting its end.
func WithHangoverFrames(n int) Option {
	return func(e *Engine) { e.hangoverFrames = max(n, 0) }
}

// Engine creates energy-based VAD sessions. It is stateless and safe for
// concurrent use.
type Engine struct {
	startFrames    int
	hangoverFrames int
}

// New returns an Engine. By default a single loud frame starts speech and the
// first quiet frame ends it.
func New(opts ...Option) *Engine {
	e := &Engine{startFrames: 1}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// NewSession validates cfg and returns a fresh session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("energy vad: %w", err)
	}
	speech, silence := cfg.SpeechThreshold, cfg.SilenceThreshold
	if speech == 0 {
		speech = aggressivenessLevels[cfg.Aggressiveness]
	}
	if silence == 0 {
		silence = speech * silenceRatio
	}
	if silence > speech {
		return nil, fmt.Errorf("energy vad: silence threshold %g exceeds speech threshold %g", silence, speech)
	}
	return &session{
		frameBytes:     cfg.FrameBytes(),
		speech:         speech,
		silence:        silence,
		startFrames:    e.startFrames,
		hangoverFrames: e.hangoverFrames,
	}, nil
}

type session struct {
	mu sync.Mutex

	frameBytes     int
	speech         float64
	silence        float64
	startFrames    int
	hangoverFrames int

	inSpeech   bool
	loudCount  int
	quietCount int
	closed     bool
}

// Ensure session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*session)(nil)

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vad.VADEvent{}, vad.ErrSessionClosed
	}
	if len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("energy vad: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	level := audio.RMS(frame) / math.MaxInt16
	prob := min(level/s.speech*0.5, 1)

	if s.inSpeech {
		if level >= s.silence {
			s.quietCount = 0
			return vad.VADEvent{Type: vad.VADSpeechContinue, Probability: prob}, nil
		}
		s.quietCount++
		if s.quietCount <= s.hangoverFrames {
			return vad.VADEvent{Type: vad.VADSpeechContinue, Probability: prob}, nil
		}
		s.inSpeech = false
		s.quietCount = 0
		return vad.VADEvent{Type: vad.VADSpeechEnd, Probability: prob}, nil
	}

	if level < s.speech {
		s.loudCount = 0
		return vad.VADEvent{Type: vad.VADSilence, Probability: prob}, nil
	}
	s.loudCount++
	if s.loudCount < s.startFrames {
		return vad.VADEvent{Type: vad.VADSilence, Probability: prob}, nil
	}
	s.inSpeech = true
	s.loudCount = 0
	return vad.VADEvent{Type: vad.VADSpeechStart, Probability: prob}, nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSpeech = false
	s.loudCount = 0
	s.quietCount = 0
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
