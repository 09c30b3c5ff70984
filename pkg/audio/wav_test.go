package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestNewWavBuffer(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav := NewWavBuffer(pcm, 48000, 2, 16)

	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Errorf("expected RIFF prefix")
	}
	if !bytes.Contains(wav, []byte("WAVE")) {
		t.Errorf("expected WAVE format identifier")
	}

	expectedLen := 44 + len(pcm)
	if len(wav) != expectedLen {
		t.Errorf("expected length %d, got %d", expectedLen, len(wav))
	}

	channels := binary.LittleEndian.Uint16(wav[22:24])
	sampleRate := binary.LittleEndian.Uint32(wav[24:28])
	byteRate := binary.LittleEndian.Uint32(wav[28:32])
	blockAlign := binary.LittleEndian.Uint16(wav[32:34])
	bitsPerSample := binary.LittleEndian.Uint16(wav[34:36])

	if channels != 2 {
		t.Errorf("expected 2 channels, got %d", channels)
	}
	if sampleRate != 48000 {
		t.Errorf("expected sample rate 48000, got %d", sampleRate)
	}
	if byteRate != 192000 {
		t.Errorf("expected byte rate 192000, got %d", byteRate)
	}
	if blockAlign != 4 {
		t.Errorf("expected block align 4, got %d", blockAlign)
	}
	if bitsPerSample != 16 {
		t.Errorf("expected 16 bits per sample, got %d", bitsPerSample)
	}
}
