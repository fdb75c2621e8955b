// Package vad defines the classifier contract used to decide, frame by frame,
// whether a PCM stream contains speech.
//
// An [Engine] hands out one [SessionHandle] per transcription job. Sessions
// carry the detector's running state (hysteresis counters, model buffers), so
// two jobs never observe each other's frames. Engines must allow concurrent
// NewSession calls; a session itself is used by one goroutine at a time.
package vad

import (
	"fmt"

	"github.com/MrWong99/voxscribe/pkg/audio"
)

// MaxAggressiveness is the highest accepted [Config.Aggressiveness] value.
const MaxAggressiveness = 3

// Config describes the stream a session classifies.
type Config struct {
	// SampleRate of the mono 16-bit PCM frames, in Hz.
	SampleRate int

	// FrameSizeMs is the frame duration. Frames passed to ProcessFrame are
	// exactly FrameBytes long.
	FrameSizeMs int

	// SpeechThreshold and SilenceThreshold are engine-scaled levels in
	// [0, 1]. Zero lets the engine derive them from Aggressiveness.
	SpeechThreshold  float64
	SilenceThreshold float64

	// Aggressiveness picks a preset from 0 (admits most frames as speech) to
	// [MaxAggressiveness] (rejects the most non-speech).
	Aggressiveness int
}

// FrameBytes returns the byte length of one frame, or 0 when the sample rate
// or frame size is not positive.
func (c Config) FrameBytes() int {
	return audio.FrameBytes(c.SampleRate, c.FrameSizeMs)
}

// Validate checks the fields every engine relies on. Engines may apply
// stricter rules of their own.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("vad: sample rate must be positive, got %d", c.SampleRate)
	case c.FrameBytes() == 0:
		return fmt.Errorf("vad: invalid frame size %d ms", c.FrameSizeMs)
	case c.Aggressiveness < 0 || c.Aggressiveness > MaxAggressiveness:
		return fmt.Errorf("vad: aggressiveness must be in [0, %d], got %d", MaxAggressiveness, c.Aggressiveness)
	case c.SpeechThreshold < 0 || c.SpeechThreshold > 1:
		return fmt.Errorf("vad: speech threshold must be in [0, 1], got %g", c.SpeechThreshold)
	case c.SilenceThreshold < 0 || c.SilenceThreshold > 1:
		return fmt.Errorf("vad: silence threshold must be in [0, 1], got %g", c.SilenceThreshold)
	}
	return nil
}

// SessionHandle classifies the frames of a single stream.
type SessionHandle interface {
	// ProcessFrame returns the verdict for one frame of FrameBytes length.
	// A non-nil error means this frame could not be classified; the session
	// stays usable for the next one.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset drops accumulated state so the next frame starts a fresh stream.
	Reset()

	// Close releases the session. ProcessFrame then returns
	// [ErrSessionClosed]. Close is idempotent.
	Close() error
}

// Engine creates sessions. It is the type registered under a provider name
// in the config registry.
type Engine interface {
	// NewSession validates cfg and returns a session ready for its first
	// frame.
	NewSession(cfg Config) (SessionHandle, error)
}
