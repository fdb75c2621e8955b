package whisper

import (
	"encoding/binary"

	"github.com/MrWong99/voxscribe/pkg/audio"
	"github.com/MrWong99/voxscribe/pkg/provider/stt"
)

// modelSampleRate is the only input rate whisper models accept.
const modelSampleRate = 16000

// pcmToFloat32 converts 16-bit signed little-endian PCM audio to float32
// samples normalised to the range [-1.0, 1.0]. Any trailing odd byte is
// silently ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// modelInput turns a chunk into the mono 16 kHz float32 samples whisper
// expects, down-mixing and resampling as needed.
func modelInput(a stt.Audio) []float32 {
	pcm := audio.DownmixMono(a.PCM, a.Channels)
	if a.SampleRate > 0 && a.SampleRate != modelSampleRate {
		pcm = audio.ResampleMono16(pcm, a.SampleRate, modelSampleRate)
	}
	return pcmToFloat32(pcm)
}
