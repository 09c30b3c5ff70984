package ttscache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// hashFields joins fields with a separator unlikely to appear in any of
// them and returns the full hex SHA-256 digest; callers take a prefix.
func hashFields(fields ...string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(h.Sum(nil))
}

// Key computes spec.md §4.2's TTS cache key:
// sha256({provider,model,voice,instructions,text})[:12].
func Key(provider, model, voice, instructions, text string) string {
	return hashFields(provider, model, voice, instructions, text)[:12]
}

// ConfigHash computes spec.md §4.2's TTS config hash:
// sha256({provider,model,voice,instructions})[:16].
func ConfigHash(provider, model, voice, instructions string) string {
	return hashFields(provider, model, voice, instructions)[:16]
}
