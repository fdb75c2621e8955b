// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script per-frame VADEvent responses and inspect the frames
// that were submitted for processing.
//
// Example:
//
//	sess := mock.Script(
//	    vad.VADEvent{Type: vad.VADSilence},
//	    vad.VADEvent{Type: vad.VADSpeechStart, Probability: 0.9},
//	)
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"sync"

	"github.com/MrWong99/voxscribe/pkg/provider/vad"
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil, NewSession
	// returns a new default Session.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Reset clears all recorded calls. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Step is one scripted ProcessFrame response.
type Step struct {
	Event vad.VADEvent
	Err   error
}

// Script returns a Session that answers the n-th ProcessFrame call with
// events[n] and falls back to EventResult once the script is exhausted.
func Script(events ...vad.VADEvent) *Session {
	steps := make([]Step, len(events))
	for i, ev := range events {
		steps[i] = Step{Event: ev}
	}
	return &Session{Steps: steps, EventResult: vad.VADEvent{Type: vad.VADSilence}}
}

// Pattern returns a Session scripted from a compact pattern string: 'S' is a
// speech frame, 'E' a classifier error and any other rune a silent frame.
// Speech frames following a non-speech frame are reported as VADSpeechStart.
func Pattern(pattern string, err error) *Session {
	steps := make([]Step, 0, len(pattern))
	inSpeech := false
	for _, r := range pattern {
		switch r {
		case 'S':
			typ := vad.VADSpeechContinue
			if !inSpeech {
				typ = vad.VADSpeechStart
			}
			inSpeech = true
			steps = append(steps, Step{Event: vad.VADEvent{Type: typ, Probability: 0.9}})
		case 'E':
			inSpeech = false
			steps = append(steps, Step{Err: err})
		default:
			typ := vad.VADSilence
			if inSpeech {
				typ = vad.VADSpeechEnd
			}
			inSpeech = false
			steps = append(steps, Step{Event: vad.VADEvent{Type: typ, Probability: 0.1}})
		}
	}
	return &Session{Steps: steps, EventResult: vad.VADEvent{Type: vad.VADSilence}}
}

// ProcessFrameCall records a single invocation of Session.ProcessFrame.
type ProcessFrameCall struct {
	// Frame is a copy of the bytes passed to ProcessFrame.
	Frame []byte
}

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Steps, if non-empty, scripts the responses of successive ProcessFrame
	// calls. Calls beyond the script return EventResult, ProcessFrameErr.
	Steps []Step

	// EventResult is returned by ProcessFrame when no scripted step applies.
	EventResult vad.VADEvent

	// ProcessFrameErr, if non-nil, is returned when no scripted step applies.
	ProcessFrameErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// ProcessFrameCalls records every call to ProcessFrame in order.
	ProcessFrameCalls []ProcessFrameCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// ProcessFrame records the call and returns the next scripted step, or
// EventResult, ProcessFrameErr once the script is exhausted.
func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	n := len(s.ProcessFrameCalls)
	s.ProcessFrameCalls = append(s.ProcessFrameCalls, ProcessFrameCall{Frame: cp})
	if n < len(s.Steps) {
		st := s.Steps[n]
		return st.Event, st.Err
	}
	return s.EventResult, s.ProcessFrameErr
}

// Reset records the call by incrementing ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// ResetCalls clears all recorded call history. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProcessFrameCalls = nil
	s.ResetCallCount = 0
	s.CloseCallCount = 0
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)
