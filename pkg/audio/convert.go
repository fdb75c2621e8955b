package audio

import (
	"log/slog"
	"sync"
)

// Converter converts PCM buffers to a target format. It logs a warning on the
// first format mismatch and on the first misaligned buffer it sees.
// Create one per stream; not designed for shared use across goroutines.
type Converter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert converts p to the target format. If the source format already
// matches the target, the buffer is returned unchanged (zero allocation).
//
// A buffer whose length is not a whole number of sample frames has its final
// partial sample padded with zero bytes, i.e. treated as silence.
// Conversion order: down-mix first, then resample, so that resampling always
// runs on the smaller buffer. Resampling is only performed for mono targets;
// the returned buffer's Format always reports what was actually produced.
func (c *Converter) Convert(p PCM) PCM {
	block := BytesPerSample * max(p.Channels, 1)
	if rem := len(p.Data) % block; rem != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: partial sample at end of PCM data, padding with silence",
				"bytes", len(p.Data),
				"format", p.Format.String(),
			)
		})
		padded := make([]byte, len(p.Data)+block-rem)
		copy(padded, p.Data)
		p.Data = padded
	}

	if p.Format == c.Target {
		return p
	}

	c.warnedMismatch.Do(func() {
		slog.Debug("audio format mismatch: converting",
			"from", p.Format.String(),
			"to", c.Target.String(),
		)
	})

	pcm := p.Data
	channels := p.Channels

	if channels != c.Target.Channels {
		switch {
		case channels > 1 && c.Target.Channels == 1:
			pcm = DownmixMono(pcm, channels)
		case channels == 1 && c.Target.Channels == 2:
			pcm = MonoToStereo(pcm)
		}
		channels = c.Target.Channels
	}

	rate := p.SampleRate
	if rate != c.Target.SampleRate && channels == 1 {
		pcm = ResampleMono16(pcm, rate, c.Target.SampleRate)
		rate = c.Target.SampleRate
	}

	return PCM{Data: pcm, Format: Format{SampleRate: rate, Channels: channels}}
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
// Input must be little-endian int16 PCM (2 bytes per sample).
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// DownmixMono averages all channels of interleaved 16-bit PCM into a single
// channel. Uses int32 arithmetic so the sum cannot overflow; the average of
// int16 values is always within int16 range.
func DownmixMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	stride := channels * BytesPerSample
	frames := len(pcm) / stride
	out := make([]byte, frames*BytesPerSample)
	for i := range frames {
		var sum int32
		for ch := range channels {
			idx := i*stride + ch*BytesPerSample
			sum += int32(int16(pcm[idx]) | int16(pcm[idx+1])<<8)
		}
		avg := sum / int32(channels)
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
func StereoToMono(pcm []byte) []byte {
	return DownmixMono(pcm, 2)
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. The input must be little-endian int16 samples. If srcRate ==
// dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}
