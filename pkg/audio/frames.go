package audio

import (
	"iter"
	"math"
)

// DefaultFrameDurationMs is the analysis frame length used by the VAD
// front-end unless configured otherwise.
const DefaultFrameDurationMs = 30

// Frame is one fixed-size slice of a mono PCM stream. Index is the frame's
// position in the stream, starting at 0; it is the frame's only identity.
type Frame struct {
	Index int
	Data  []byte
}

// FrameBytes returns the byte length of a frameMs-long frame of mono 16-bit
// PCM at sampleRate: round(sampleRate*frameMs/1000) samples of 2 bytes each.
// Returns 0 when either argument is not positive.
func FrameBytes(sampleRate, frameMs int) int {
	if sampleRate <= 0 || frameMs <= 0 {
		return 0
	}
	samples := int(math.Round(float64(sampleRate) * float64(frameMs) / 1000))
	return samples * BytesPerSample
}

// FrameCount returns the number of frames [Frames] yields for n bytes of PCM
// with the given frame length: ceil(n / frameBytes).
func FrameCount(n, frameBytes int) int {
	if n <= 0 || frameBytes <= 0 {
		return 0
	}
	return (n + frameBytes - 1) / frameBytes
}

// Frames splits pcm into consecutive frames of [FrameBytes] bytes. The final
// frame is right-padded with zero bytes when len(pcm) is not a multiple of
// the frame length, so every yielded frame has exactly the same length.
//
// The returned sequence is lazy and may be ranged over any number of times;
// each pass yields the same frames in stream order. Full frames alias pcm,
// the padded final frame is a fresh copy. Zero-length input, or a sample
// rate/duration pair that produces an empty frame, yields nothing.
func Frames(pcm []byte, sampleRate, frameMs int) iter.Seq[Frame] {
	size := FrameBytes(sampleRate, frameMs)
	return func(yield func(Frame) bool) {
		if size == 0 {
			return
		}
		for i, off := 0, 0; off < len(pcm); i, off = i+1, off+size {
			end := off + size
			var data []byte
			if end <= len(pcm) {
				data = pcm[off:end:end]
			} else {
				data = make([]byte, size)
				copy(data, pcm[off:])
			}
			if !yield(Frame{Index: i, Data: data}) {
				return
			}
		}
	}
}
