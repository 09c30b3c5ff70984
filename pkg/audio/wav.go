// Package audio builds the canonical WAV envelope the STT client wraps
// captured PCM in before uploading it to a transcription endpoint.
package audio

import (
	"bytes"
	"encoding/binary"
)

// NewWavBuffer wraps pcm in a 44-byte canonical WAV header: RIFF/WAVE, a
// 16-byte PCM fmt chunk, and the data chunk. sampleRate, channels, and
// bitsPerSample describe the PCM layout; byteRate and blockAlign are
// derived, matching the fields the STT endpoints expect.
func NewWavBuffer(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	blockAlign := channels * (bitsPerSample / 8)
	byteRate := sampleRate * blockAlign

	buf := new(bytes.Buffer)
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
