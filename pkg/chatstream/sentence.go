package chatstream

import (
	"regexp"
	"strings"
)

// sentenceBoundary is spec.md §4.4's exact sentence-boundary rule: a run of
// non-terminator characters ending in `.`, `!`, `?` followed by whitespace,
// or a run of non-newline characters ending in a newline.
var sentenceBoundary = regexp.MustCompile(`[^.!?\n]*[.!?]\s+|[^\n]*\n`)

// SentenceSplitter buffers streaming deltas and yields completed sentences
// in production order, keeping the unterminated tail for the next Feed.
type SentenceSplitter struct {
	buf string
}

// Feed appends delta to the buffer and returns every sentence that newly
// completed. The residual (unterminated) tail is kept for the next call.
func (s *SentenceSplitter) Feed(delta string) []string {
	s.buf += delta
	matches := sentenceBoundary.FindAllString(s.buf, -1)
	if len(matches) == 0 {
		return nil
	}
	consumed := 0
	for _, m := range matches {
		consumed += len(m)
	}
	s.buf = s.buf[consumed:]
	return matches
}

// Flush returns and clears whatever unterminated tail remains, for use at
// stream end.
func (s *SentenceSplitter) Flush() string {
	tail := s.buf
	s.buf = ""
	return tail
}

var (
	fencedCodeBlock  = regexp.MustCompile("(?s)```.*?```")
	inlineBacktick   = regexp.MustCompile("`([^`]*)`")
	boldDoubleStar   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicSingleStar = regexp.MustCompile(`\*([^*]+)\*`)
	boldDoubleUnder  = regexp.MustCompile(`__([^_]+)__`)
	italicSingleUnd  = regexp.MustCompile(`_([^_]+)_`)
	markdownHeader   = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	markdownLink     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	listBullet       = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	emojiRanges      = regexp.MustCompile(`[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}\x{1F1E0}-\x{1F1FF}\x{2600}-\x{26FF}\x{2700}-\x{27BF}]`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
)

// CleanSentence applies spec.md §4.4's sentence-cleaning pipeline, in order,
// so the result is safe to hand to a TTS endpoint. An all-whitespace result
// is returned as "" so callers can discard it.
func CleanSentence(s string) string {
	s = fencedCodeBlock.ReplaceAllString(s, " (code omitted) ")
	s = inlineBacktick.ReplaceAllString(s, "$1")
	s = boldDoubleStar.ReplaceAllString(s, "$1")
	s = italicSingleStar.ReplaceAllString(s, "$1")
	s = boldDoubleUnder.ReplaceAllString(s, "$1")
	s = italicSingleUnd.ReplaceAllString(s, "$1")
	s = markdownHeader.ReplaceAllString(s, "")
	s = markdownLink.ReplaceAllString(s, "$1")
	s = listBullet.ReplaceAllString(s, "")
	s = emojiRanges.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
