// Package decode turns uploaded audio files into mono 16-bit PCM at the
// pipeline's sample rate.
//
// RIFF/WAVE input is parsed in-process. Everything else (MP3, AAC, OGG, WAVE
// encodings the in-process reader does not handle) is piped through an
// ffmpeg child process.
package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/voxscribe/internal/observe"
	"github.com/MrWong99/voxscribe/pkg/audio"
)

const (
	// DefaultFFmpeg is the ffmpeg executable looked up on PATH.
	DefaultFFmpeg = "ffmpeg"

	// DefaultMaxDuration caps decoded audio unless [WithMaxDuration] says
	// otherwise.
	DefaultMaxDuration = 2 * time.Hour
)

var (
	// ErrDecode wraps every failure to turn input into PCM.
	ErrDecode = errors.New("decode: cannot decode audio")

	// ErrTooLong is wrapped together with [ErrDecode] when the decoded audio
	// would exceed the decoder's maximum duration.
	ErrTooLong = errors.New("decode: audio exceeds maximum duration")
)

// CommandRunner runs name with args, feeds stdin to the process and returns
// what it wrote to stdout.
type CommandRunner func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

// Option configures a [Decoder].
type Option func(*Decoder)

// WithFFmpeg sets the ffmpeg executable.
func WithFFmpeg(bin string) Option {
	return func(d *Decoder) {
		if bin != "" {
			d.ffmpeg = bin
		}
	}
}

// WithCommandRunner replaces process execution (for testing).
func WithCommandRunner(r CommandRunner) Option {
	return func(d *Decoder) { d.run = r }
}

// WithMaxDuration caps the length of decoded audio. Non-positive values keep
// [DefaultMaxDuration].
func WithMaxDuration(limit time.Duration) Option {
	return func(d *Decoder) {
		if limit > 0 {
			d.maxDuration = limit
		}
	}
}

// Decoder converts audio files to PCM. It is safe for concurrent use.
type Decoder struct {
	sampleRate  int
	maxDuration time.Duration
	ffmpeg      string
	run         CommandRunner
}

// New returns a Decoder producing mono PCM at sampleRate.
func New(sampleRate int, opts ...Option) (*Decoder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("decode: sample rate must be positive, got %d", sampleRate)
	}
	d := &Decoder{sampleRate: sampleRate, maxDuration: DefaultMaxDuration, ffmpeg: DefaultFFmpeg}
	for _, o := range opts {
		o(d)
	}
	if d.run == nil {
		d.run = d.runCapped
	}
	return d, nil
}

// SampleRate returns the rate of the PCM that Decode produces.
func (d *Decoder) SampleRate() int { return d.sampleRate }

// MaxBytes is the largest PCM payload Decode returns.
func (d *Decoder) MaxBytes() int64 {
	return int64(d.maxDuration.Seconds()*float64(d.sampleRate)) * audio.BytesPerSample
}

// Decode converts data to mono 16-bit PCM at the decoder's sample rate.
// contentType is only used for logging; the container is detected from the
// data itself.
func (d *Decoder) Decode(ctx context.Context, data []byte, contentType string) (audio.PCM, error) {
	if len(data) == 0 {
		return audio.PCM{}, fmt.Errorf("%w: empty input", ErrDecode)
	}
	log := observe.Logger(ctx)

	target := audio.Format{SampleRate: d.sampleRate, Channels: 1}
	pcm, err := audio.DecodeWAV(data)
	switch {
	case err == nil:
		if n := resampledBytes(pcm, d.sampleRate); n > d.MaxBytes() {
			return audio.PCM{}, fmt.Errorf("%w: %w: %s wav would decode to %d bytes", ErrDecode, ErrTooLong, pcm.Format, n)
		}
		conv := audio.Converter{Target: target}
		out := conv.Convert(pcm)
		log.Debug("decode: wav decoded in-process", "from", pcm.Format.String(), "bytes", len(out.Data))
		return out, nil
	case errors.Is(err, audio.ErrUnsupportedWAV):
		log.Debug("decode: wav encoding not handled in-process, using ffmpeg", "err", err)
	case !errors.Is(err, audio.ErrNotWAV):
		return audio.PCM{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	out, err := d.run(ctx, data, d.ffmpeg, d.ffmpegArgs()...)
	if errors.Is(err, ErrTooLong) || int64(len(out)) > d.MaxBytes() {
		return audio.PCM{}, fmt.Errorf("%w: %w: %s input", ErrDecode, ErrTooLong, contentType)
	}
	if err != nil {
		if ctx.Err() != nil {
			return audio.PCM{}, ctx.Err()
		}
		return audio.PCM{}, fmt.Errorf("%w: %s input: %w", ErrDecode, contentType, err)
	}
	if len(out) == 0 {
		return audio.PCM{}, fmt.Errorf("%w: %s input produced no audio", ErrDecode, contentType)
	}
	if len(out)%audio.BytesPerSample != 0 {
		out = append(out, 0)
	}
	log.Debug("decode: decoded with ffmpeg", "content_type", contentType, "bytes", len(out))
	return audio.PCM{Data: out, Format: target}, nil
}

func (d *Decoder) ffmpegArgs() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(d.sampleRate),
		"pipe:1",
	}
}

// Check reports whether the ffmpeg executable can be found.
func (d *Decoder) Check(context.Context) error {
	if _, err := exec.LookPath(d.ffmpeg); err != nil {
		return fmt.Errorf("decode: ffmpeg unavailable: %w", err)
	}
	return nil
}

// resampledBytes is the size of pcm once downmixed to mono at rate.
func resampledBytes(pcm audio.PCM, rate int) int64 {
	frameBytes := int64(audio.BytesPerSample * pcm.Format.Channels)
	frames := (int64(len(pcm.Data)) + frameBytes - 1) / frameBytes
	return frames * int64(rate) / int64(pcm.Format.SampleRate) * audio.BytesPerSample
}

// runCapped runs the command and kills it once stdout outgrows
// [Decoder.MaxBytes].
func (d *Decoder) runCapped(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	stdout := &cappedBuffer{limit: d.MaxBytes(), onOverflow: cancel}
	var stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if stdout.overflow {
		return nil, ErrTooLong
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.buf.Bytes(), nil
}

// cappedBuffer keeps at most limit bytes and drops the rest.
type cappedBuffer struct {
	buf        bytes.Buffer
	limit      int64
	overflow   bool
	onOverflow func()
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.overflow {
		return len(p), nil
	}
	if int64(b.buf.Len()+len(p)) > b.limit {
		b.overflow = true
		b.onOverflow()
		return len(p), nil
	}
	return b.buf.Write(p)
}
