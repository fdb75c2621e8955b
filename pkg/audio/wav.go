package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE

	wavHeaderSize = 44
)

// Sample rates [DecodeWAV] accepts. Headers outside this range are treated as
// corrupt.
const (
	MinWAVSampleRate = 4000
	MaxWAVSampleRate = 384000
)

var (
	// ErrNotWAV is returned by [DecodeWAV] when the data does not start with
	// a RIFF/WAVE header.
	ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

	// ErrUnsupportedWAV is returned by [DecodeWAV] for WAVE encodings other
	// than integer PCM (8/16/24/32 bit) and 32-bit IEEE float.
	ErrUnsupportedWAV = errors.New("audio: unsupported WAVE encoding")

	// ErrWAVSampleRate is returned by [DecodeWAV] when the header declares a
	// sample rate outside [MinWAVSampleRate, MaxWAVSampleRate].
	ErrWAVSampleRate = errors.New("audio: WAVE sample rate out of range")
)

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. The returned byte slice is suitable for direct inclusion
// in a multipart form upload.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bps = BytesPerSample * 8
	byteRate := sampleRate * channels * BytesPerSample
	blockAlign := channels * BytesPerSample
	dataSize := len(pcm)

	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bps)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// wavFmt is the parsed content of a WAVE "fmt " chunk.
type wavFmt struct {
	format        uint16
	channels      int
	sampleRate    int
	bitsPerSample int
}

// DecodeWAV parses a RIFF/WAVE file and returns its samples as interleaved
// 16-bit PCM in the file's own sample rate and channel count. Integer PCM of
// 8, 16, 24 and 32 bits and 32-bit float are accepted; other encodings yield
// [ErrUnsupportedWAV]. A data chunk whose declared size runs past the end of
// the input is truncated to what is present.
func DecodeWAV(data []byte) (PCM, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return PCM{}, ErrNotWAV
	}

	var (
		fmtChunk *wavFmt
		payload  []byte
		found    bool
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		end := body + size
		if size < 0 || end > len(data) {
			end = len(data)
		}

		switch id {
		case "fmt ":
			f, err := parseWAVFmt(data[body:end])
			if err != nil {
				return PCM{}, err
			}
			fmtChunk = &f
		case "data":
			payload = data[body:end]
			found = true
		}
		if found && fmtChunk != nil {
			break
		}
		// Chunks are word aligned.
		off = end + size%2
	}

	if fmtChunk == nil {
		return PCM{}, fmt.Errorf("%w: missing fmt chunk", ErrNotWAV)
	}
	if !found {
		return PCM{}, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
	}

	pcm, err := toPCM16(payload, *fmtChunk)
	if err != nil {
		return PCM{}, err
	}
	return PCM{
		Data:   pcm,
		Format: Format{SampleRate: fmtChunk.sampleRate, Channels: fmtChunk.channels},
	}, nil
}

func parseWAVFmt(b []byte) (wavFmt, error) {
	if len(b) < 16 {
		return wavFmt{}, fmt.Errorf("%w: fmt chunk too short (%d bytes)", ErrNotWAV, len(b))
	}
	f := wavFmt{
		format:        binary.LittleEndian.Uint16(b[0:2]),
		channels:      int(binary.LittleEndian.Uint16(b[2:4])),
		sampleRate:    int(binary.LittleEndian.Uint32(b[4:8])),
		bitsPerSample: int(binary.LittleEndian.Uint16(b[14:16])),
	}
	if f.format == wavFormatExtensible && len(b) >= 26 {
		// The first two bytes of the sub-format GUID carry the real format tag.
		f.format = binary.LittleEndian.Uint16(b[24:26])
	}
	if f.channels <= 0 {
		return wavFmt{}, fmt.Errorf("%w: %d channels", ErrUnsupportedWAV, f.channels)
	}
	if f.sampleRate < MinWAVSampleRate || f.sampleRate > MaxWAVSampleRate {
		return wavFmt{}, fmt.Errorf("%w: %d Hz", ErrWAVSampleRate, f.sampleRate)
	}
	return f, nil
}

// toPCM16 converts a WAVE data payload to 16-bit signed little-endian PCM.
func toPCM16(payload []byte, f wavFmt) ([]byte, error) {
	switch {
	case f.format == wavFormatPCM && f.bitsPerSample == 16:
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil

	case f.format == wavFormatPCM && f.bitsPerSample == 8:
		// 8-bit WAVE is unsigned with a 128 bias.
		out := make([]byte, len(payload)*2)
		for i, v := range payload {
			s := int16(int(v)-128) << 8
			binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
		}
		return out, nil

	case f.format == wavFormatPCM && f.bitsPerSample == 24:
		n := len(payload) / 3
		out := make([]byte, n*2)
		for i := range n {
			// Keep the two most significant bytes.
			out[i*2] = payload[i*3+1]
			out[i*2+1] = payload[i*3+2]
		}
		return out, nil

	case f.format == wavFormatPCM && f.bitsPerSample == 32:
		n := len(payload) / 4
		out := make([]byte, n*2)
		for i := range n {
			out[i*2] = payload[i*4+2]
			out[i*2+1] = payload[i*4+3]
		}
		return out, nil

	case f.format == wavFormatFloat && f.bitsPerSample == 32:
		n := len(payload) / 4
		out := make([]byte, n*2)
		for i := range n {
			v := math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
			v = max(-1, min(1, v))
			binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*math.MaxInt16)))
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: format tag %d, %d bits", ErrUnsupportedWAV, f.format, f.bitsPerSample)
}
