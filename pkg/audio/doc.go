// Package audio provides the PCM primitives shared by the decoder, the VAD
// front-end and the speech-to-text backends.
//
// All audio handled by voxscribe is signed 16-bit little-endian PCM. The
// package offers:
//
//   - [Format] and [PCM] describing a buffer's sample rate and channel count.
//   - [Converter] which down-mixes and resamples arbitrary PCM to a target
//     [Format] (mono 16 kHz for the transcription pipeline).
//   - [EncodeWAV] and [DecodeWAV] for the RIFF/WAVE container.
//   - [Frames], the fixed-duration frame splitter feeding voice activity
//     detection. Every frame it yields has exactly [FrameBytes] bytes; the
//     final partial frame is zero-padded.
package audio
