package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// BytesPerSample is the width of one 16-bit PCM sample.
const BytesPerSample = 2

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "16000Hz mono".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// BytesPerSecond returns the byte rate of 16-bit PCM in this format.
// Returns 0 for an invalid format.
func (f Format) BytesPerSecond() int {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return f.SampleRate * f.Channels * BytesPerSample
}

// PCM is a buffer of interleaved 16-bit little-endian samples together with
// its format.
type PCM struct {
	Data []byte
	Format
}

// Duration returns the playback length of the buffer.
func (p PCM) Duration() time.Duration {
	return BytesDuration(len(p.Data), p.Format)
}

// BytesDuration converts a byte count of 16-bit PCM in format f to a duration.
func BytesDuration(n int, f Format) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// DurationBytes converts d to a byte count of 16-bit PCM in format f,
// rounded down to a whole sample frame.
func DurationBytes(d time.Duration, f Format) int {
	bps := f.BytesPerSecond()
	if bps == 0 || d <= 0 {
		return 0
	}
	n := int(int64(d) * int64(bps) / int64(time.Second))
	block := f.Channels * BytesPerSample
	return n - n%block
}

// RMS returns the root-mean-square energy of a 16-bit signed little-endian
// PCM buffer in sample units (0–32 767). Returns 0 for buffers shorter than
// one sample; a trailing odd byte is ignored.
func RMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
