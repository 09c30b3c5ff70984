package audiopipeline

import (
	"regexp"
	"strings"
)

var (
	fillerWordPattern = regexp.MustCompile(`(?i)^(um|uh|hmm|oh|ah|huh)\.?$`)
	nonWordPattern     = regexp.MustCompile(`^\W+$`)
)

// shouldFilterNoise reports whether transcript is a backchannel/noise
// utterance that should be dropped rather than sent to the chat model:
// two words or fewer, matching a filler-word or a non-word transcript.
func shouldFilterNoise(transcript string) bool {
	words := strings.Fields(transcript)
	if len(words) > 2 {
		return false
	}
	return fillerWordPattern.MatchString(transcript) || nonWordPattern.MatchString(transcript)
}
