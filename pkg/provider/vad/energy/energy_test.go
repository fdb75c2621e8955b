package energy_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/voxscribe/pkg/provider/vad"
	"github.com/MrWong99/voxscribe/pkg/provider/vad/energy"
)

const frameBytes = 960 // 30 ms at 16 kHz

func constantFrame(v int16) []byte {
	buf := make([]byte, frameBytes)
	for i := 0; i < len(buf); i += 2 {
		binary.LittleEndian.PutUint16(buf[i:], uint16(v))
	}
	return buf
}

func defaultConfig() vad.Config {
	return vad.Config{SampleRate: 16000, FrameSizeMs: 30, Aggressiveness: 2}
}

func runPattern(t *testing.T, sess vad.SessionHandle, pattern string) []vad.VADEventType {
	t.Helper()
	loud, quiet := constantFrame(8000), constantFrame(0)
	var got []vad.VADEventType
	for _, r := range pattern {
		frame := quiet
		if r == 'S' {
			frame = loud
		}
		ev, err := sess.ProcessFrame(frame)
		if err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
		got = append(got, ev.Type)
	}
	return got
}

func TestSession_DefaultTransitions(t *testing.T) {
	sess, err := energy.New().NewSession(defaultConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	got := runPattern(t, sess, "_SS__S")
	want := []vad.VADEventType{
		vad.VADSilence,
		vad.VADSpeechStart,
		vad.VADSpeechContinue,
		vad.VADSpeechEnd,
		vad.VADSilence,
		vad.VADSpeechStart,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSession_StartFramesAndHangover(t *testing.T) {
	eng := energy.New(energy.WithStartFrames(2), energy.WithHangoverFrames(1))
	sess, err := eng.NewSession(defaultConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	got := runPattern(t, sess, "SSS_S__")
	want := []vad.VADEventType{
		vad.VADSilence, // first loud frame only arms the counter
		vad.VADSpeechStart,
		vad.VADSpeechContinue,
		vad.VADSpeechContinue, // tolerated dip
		vad.VADSpeechContinue,
		vad.VADSpeechContinue,
		vad.VADSpeechEnd,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSession_Hysteresis(t *testing.T) {
	sess, err := energy.New().NewSession(vad.Config{
		SampleRate:       16000,
		FrameSizeMs:      30,
		SpeechThreshold:  0.2,
		SilenceThreshold: 0.05,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	// 0.1 full scale sits between the two thresholds.
	mid := constantFrame(3277)
	ev, _ := sess.ProcessFrame(mid)
	if ev.IsSpeech() {
		t.Fatal("mid-level frame must not start speech")
	}
	ev, _ = sess.ProcessFrame(constantFrame(16000))
	if ev.Type != vad.VADSpeechStart {
		t.Fatalf("loud frame: got %v, want speech_start", ev.Type)
	}
	ev, _ = sess.ProcessFrame(mid)
	if ev.Type != vad.VADSpeechContinue {
		t.Errorf("mid-level frame inside speech: got %v, want speech_continue", ev.Type)
	}
	if ev.Probability <= 0 || ev.Probability >= 0.5 {
		t.Errorf("probability = %v, want in (0, 0.5)", ev.Probability)
	}
}

func TestSession_Reset(t *testing.T) {
	sess, _ := energy.New().NewSession(defaultConfig())
	runPattern(t, sess, "S")
	sess.Reset()
	got := runPattern(t, sess, "S")
	if got[0] != vad.VADSpeechStart {
		t.Errorf("after Reset: got %v, want speech_start", got[0])
	}
}

func TestSession_Errors(t *testing.T) {
	sess, _ := energy.New().NewSession(defaultConfig())

	if _, err := sess.ProcessFrame(make([]byte, 10)); err == nil {
		t.Error("expected error for wrong frame size")
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := sess.ProcessFrame(constantFrame(0)); !errors.Is(err, vad.ErrSessionClosed) {
		t.Errorf("ProcessFrame after Close: got %v, want ErrSessionClosed", err)
	}
}

func TestNewSession_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  vad.Config
	}{
		{"zero rate", vad.Config{FrameSizeMs: 30}},
		{"zero frame", vad.Config{SampleRate: 16000}},
		{"aggressiveness too high", vad.Config{SampleRate: 16000, FrameSizeMs: 30, Aggressiveness: 4}},
		{"negative aggressiveness", vad.Config{SampleRate: 16000, FrameSizeMs: 30, Aggressiveness: -1}},
		{"threshold above one", vad.Config{SampleRate: 16000, FrameSizeMs: 30, SpeechThreshold: 1.5}},
		{"silence above speech", vad.Config{SampleRate: 16000, FrameSizeMs: 30, SpeechThreshold: 0.1, SilenceThreshold: 0.2}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := energy.New().NewSession(tc.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAggressiveness_RaisesThreshold(t *testing.T) {
	// 0.01 full scale: speech for mode 0 and 1, silence for 2 and 3.
	frame := constantFrame(328)
	for mode, want := range []bool{true, true, false, false} {
		sess, err := energy.New().NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 30, Aggressiveness: mode})
		if err != nil {
			t.Fatalf("mode %d: %v", mode, err)
		}
		ev, _ := sess.ProcessFrame(frame)
		if ev.IsSpeech() != want {
			t.Errorf("mode %d: speech = %v, want %v", mode, ev.IsSpeech(), want)
		}
	}
}
