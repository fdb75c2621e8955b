package decode_test

import (
	"context"
	"encoding/binary"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/voxscribe/internal/decode"
	"github.com/MrWong99/voxscribe/pkg/audio"
)

type runCall struct {
	stdin []byte
	name  string
	args  []string
}

// fakeRunner records its invocation and answers with out, err.
func fakeRunner(calls *[]runCall, out []byte, err error) decode.CommandRunner {
	return func(_ context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, runCall{stdin: stdin, name: name, args: args})
		return out, err
	}
}

func samples(vs ...int16) []byte {
	b := make([]byte, 0, len(vs)*2)
	for _, v := range vs {
		b = binary.LittleEndian.AppendUint16(b, uint16(v))
	}
	return b
}

func TestDecode_WAVInProcess(t *testing.T) {
	t.Parallel()

	var calls []runCall
	d, err := decode.New(16000, decode.WithCommandRunner(fakeRunner(&calls, nil, errors.New("unused"))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// 8 kHz stereo, 4 sample frames.
	stereo := samples(100, 300, 100, 300, 100, 300, 100, 300)
	pcm, err := d.Decode(context.Background(), audio.EncodeWAV(stereo, 8000, 2), "audio/wav")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pcm.Format != (audio.Format{SampleRate: 16000, Channels: 1}) {
		t.Errorf("format = %v, want 16000Hz mono", pcm.Format)
	}
	if got := len(pcm.Data) / 2; got != 8 {
		t.Errorf("samples = %d, want 8", got)
	}
	if v := int16(binary.LittleEndian.Uint16(pcm.Data)); v != 200 {
		t.Errorf("first sample = %d, want 200", v)
	}
	if len(calls) != 0 {
		t.Errorf("ffmpeg invoked %d times for a plain wav", len(calls))
	}
}

func TestDecode_NonWAVUsesFFmpeg(t *testing.T) {
	t.Parallel()

	var calls []runCall
	raw := samples(1, 2, 3)
	d, _ := decode.New(16000,
		decode.WithFFmpeg("/opt/ffmpeg"),
		decode.WithCommandRunner(fakeRunner(&calls, raw, nil)),
	)

	input := []byte("ID3\x04fake mp3 payload")
	pcm, err := d.Decode(context.Background(), input, "audio/mpeg")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !slices.Equal(pcm.Data, raw) {
		t.Errorf("data = %v, want %v", pcm.Data, raw)
	}
	if pcm.SampleRate != 16000 || pcm.Channels != 1 {
		t.Errorf("format = %v", pcm.Format)
	}
	if len(calls) != 1 {
		t.Fatalf("ffmpeg invoked %d times, want 1", len(calls))
	}
	c := calls[0]
	if c.name != "/opt/ffmpeg" {
		t.Errorf("binary = %q", c.name)
	}
	if !slices.Equal(c.stdin, input) {
		t.Error("input was not piped to ffmpeg")
	}
	for _, pair := range [][2]string{{"-f", "s16le"}, {"-ac", "1"}, {"-ar", "16000"}, {"-i", "pipe:0"}} {
		i := slices.Index(c.args, pair[0])
		if i < 0 || i+1 >= len(c.args) || c.args[i+1] != pair[1] {
			t.Errorf("args %v missing %s %s", c.args, pair[0], pair[1])
		}
	}
}

func TestDecode_UnsupportedWAVFallsBackToFFmpeg(t *testing.T) {
	t.Parallel()

	wav := audio.EncodeWAV(samples(1, 2), 16000, 1)
	binary.LittleEndian.PutUint16(wav[20:22], 2) // ADPCM format tag

	var calls []runCall
	d, _ := decode.New(16000, decode.WithCommandRunner(fakeRunner(&calls, samples(9, 9), nil)))
	if _, err := d.Decode(context.Background(), wav, "audio/wav"); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("ffmpeg invoked %d times, want 1", len(calls))
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
		out   []byte
		err   error
	}{
		{"empty input", nil, nil, nil},
		{"ffmpeg fails", []byte("garbage"), nil, errors.New("exit status 1: Invalid data found")},
		{"ffmpeg yields nothing", []byte("garbage"), nil, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var calls []runCall
			d, _ := decode.New(16000, decode.WithCommandRunner(fakeRunner(&calls, tc.out, tc.err)))
			_, err := d.Decode(context.Background(), tc.input, "application/octet-stream")
			if !errors.Is(err, decode.ErrDecode) {
				t.Fatalf("err = %v, want ErrDecode", err)
			}
		})
	}
}

func TestDecode_OddByteOutputPadded(t *testing.T) {
	t.Parallel()

	var calls []runCall
	d, _ := decode.New(16000, decode.WithCommandRunner(fakeRunner(&calls, []byte{1, 0, 2}, nil)))
	pcm, err := d.Decode(context.Background(), []byte("aac"), "audio/aac")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !slices.Equal(pcm.Data, []byte{1, 0, 2, 0}) {
		t.Errorf("data = %v, want the trailing byte padded to a full sample", pcm.Data)
	}
}

func TestDecode_WAVSampleRateOutOfRange(t *testing.T) {
	t.Parallel()

	for _, rate := range []int{1, 100, audio.MinWAVSampleRate - 1, audio.MaxWAVSampleRate + 1} {
		var calls []runCall
		d, _ := decode.New(16000, decode.WithCommandRunner(fakeRunner(&calls, samples(1), nil)))
		pcm, err := d.Decode(context.Background(), audio.EncodeWAV(make([]byte, 20000), rate, 1), "audio/wav")
		if !errors.Is(err, decode.ErrDecode) || !errors.Is(err, audio.ErrWAVSampleRate) {
			t.Errorf("%d Hz: err = %v, want ErrDecode wrapping ErrWAVSampleRate", rate, err)
		}
		if len(pcm.Data) != 0 {
			t.Errorf("%d Hz: decoded %d bytes, want none", rate, len(pcm.Data))
		}
		if len(calls) != 0 {
			t.Errorf("%d Hz: ffmpeg ran %d times, want 0", rate, len(calls))
		}
	}
}

func TestDecode_MaxDuration(t *testing.T) {
	t.Parallel()

	// One second of 8 kHz mono upsamples to 32000 bytes at 16 kHz.
	oneSecond := audio.EncodeWAV(make([]byte, 16000), 8000, 1)

	tests := []struct {
		name    string
		limit   time.Duration
		input   []byte
		ffmpeg  []byte
		wantErr bool
	}{
		{"wav within limit", time.Second, oneSecond, nil, false},
		{"wav over limit", 500 * time.Millisecond, oneSecond, nil, true},
		{"ffmpeg within limit", time.Second, []byte("mp3"), make([]byte, 32000), false},
		{"ffmpeg over limit", time.Second, []byte("mp3"), make([]byte, 32002), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls []runCall
			d, _ := decode.New(16000,
				decode.WithMaxDuration(tc.limit),
				decode.WithCommandRunner(fakeRunner(&calls, tc.ffmpeg, nil)),
			)
			if got, want := d.MaxBytes(), int64(tc.limit.Seconds()*16000)*2; got != want {
				t.Errorf("MaxBytes = %d, want %d", got, want)
			}
			pcm, err := d.Decode(context.Background(), tc.input, "audio/mpeg")
			if tc.wantErr {
				if !errors.Is(err, decode.ErrDecode) || !errors.Is(err, decode.ErrTooLong) {
					t.Fatalf("err = %v, want ErrDecode wrapping ErrTooLong", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if int64(len(pcm.Data)) > d.MaxBytes() {
				t.Errorf("decoded %d bytes, limit %d", len(pcm.Data), d.MaxBytes())
			}
		})
	}
}

func TestWithMaxDuration_NonPositiveKeepsDefault(t *testing.T) {
	t.Parallel()
	d, _ := decode.New(16000, decode.WithMaxDuration(0))
	if got, want := d.MaxBytes(), int64(decode.DefaultMaxDuration.Seconds()*16000)*2; got != want {
		t.Errorf("MaxBytes = %d, want %d", got, want)
	}
}

func TestDecode_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d, _ := decode.New(16000, decode.WithCommandRunner(func(ctx context.Context, _ []byte, _ string, _ ...string) ([]byte, error) {
		return nil, ctx.Err()
	}))
	_, err := d.Decode(ctx, []byte("ogg"), "audio/ogg")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, decode.ErrDecode) {
		t.Error("cancellation must not be reported as a decode error")
	}
}

func TestNew_InvalidRate(t *testing.T) {
	t.Parallel()
	if _, err := decode.New(0); err == nil {
		t.Fatal("expected error")
	}
}

func TestCheck_MissingBinary(t *testing.T) {
	t.Parallel()
	d, _ := decode.New(16000, decode.WithFFmpeg("voxscribe-no-such-ffmpeg"))
	if err := d.Check(context.Background()); err == nil {
		t.Fatal("expected error for missing binary")
	}
}
