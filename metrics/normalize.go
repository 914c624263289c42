package metrics

import (
	"regexp"
	"strings"
)

// Transcripts mark word boundaries with '_', silence with '@' and the
// end of an attention decoder's output with '>'.
var (
	garbageRe  = regexp.MustCompile(`[@>]+`)
	boundaryRe = regexp.MustCompile(`_+`)
)

// CleanReference strips sentinel tokens and collapses repeated word
// boundaries in a reference transcript.
func CleanReference(s string) string {
	s = garbageRe.ReplaceAllString(s, "")
	return boundaryRe.ReplaceAllString(s, "_")
}

// CleanHypothesis normalizes a decoded hypothesis. Attention decoders
// emit an explicit end-of-sequence marker, so their output is truncated
// at the first '>' before the usual cleanup.
func CleanHypothesis(s string, attention bool) string {
	if attention {
		if i := strings.IndexByte(s, '>'); i >= 0 {
			s = s[:i]
		}
	}
	return CleanReference(s)
}

// Chars splits a cleaned transcript into character tokens, dropping the
// word-boundary markers.
func Chars(s string) []string {
	s = strings.ReplaceAll(s, "_", "")
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// Words splits a cleaned transcript on word-boundary markers.
func Words(s string) []string {
	s = strings.Trim(s, "_")
	if s == "" {
		return nil
	}
	return strings.Split(s, "_")
}
