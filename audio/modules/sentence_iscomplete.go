package modules

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

type SegmenterConfig struct {
	// MinLength is the shortest sentence, in characters, emitted before the
	// end of the stream. Shorter pieces are merged into the next sentence.
	MinLength int
}

var abbreviations = map[string]struct{}{
	"mr.": {}, "mrs.": {}, "ms.": {}, "dr.": {}, "prof.": {}, "sr.": {}, "jr.": {},
	"st.": {}, "vs.": {}, "e.g.": {}, "i.e.": {}, "approx.": {}, "no.": {},
}

// Segment regroups streamed text fragments into complete sentences. It
// consumes fragments once, yields each sentence as soon as the text after
// its terminator shows it is finished, and flushes the remainder when the
// fragments run out.
func Segment(fragments iter.Seq[string], cfg SegmenterConfig) iter.Seq[string] {
	return func(yield func(string) bool) {
		var pending strings.Builder
		for frag := range fragments {
			pending.WriteString(frag)
			text := pending.String()
			for {
				cut := sentenceEnd(text, cfg.MinLength)
				if cut < 0 {
					break
				}
				sentence := strings.TrimSpace(text[:cut])
				text = text[cut:]
				if !yield(sentence) {
					return
				}
			}
			pending.Reset()
			pending.WriteString(text)
		}
		if rest := strings.TrimSpace(pending.String()); rest != "" {
			yield(rest)
		}
	}
}

// IsComplete reports whether text already reads as a finished sentence.
func IsComplete(text string) bool {
	t := strings.TrimRightFunc(strings.TrimSpace(text), isCloser)
	if t == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(t)
	return isTerminator(r) && !endsWithAbbreviation(t)
}

// sentenceEnd returns the byte offset just past the first acceptable
// sentence boundary in s, or -1.
func sentenceEnd(s string, minLen int) int {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		j := i + size
		if !isTerminator(r) {
			i = j
			continue
		}
		for j < len(s) {
			next, n := utf8.DecodeRuneInString(s[j:])
			if next == '\n' || !(isTerminator(next) || isCloser(next)) {
				break
			}
			j += n
		}

		boundary := r == '\n'
		if !boundary && j < len(s) {
			next, _ := utf8.DecodeRuneInString(s[j:])
			boundary = unicode.IsSpace(next)
		}
		if boundary {
			candidate := strings.TrimSpace(s[:j])
			if candidate != "" && utf8.RuneCountInString(candidate) >= minLen && !endsWithAbbreviation(candidate) {
				return j
			}
		}
		i = j
	}
	return -1
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '\n':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '»':
		return true
	}
	return false
}

func endsWithAbbreviation(s string) bool {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return false
	}
	last := strings.ToLower(fields[len(fields)-1])
	if _, ok := abbreviations[last]; ok {
		return true
	}
	// Single initial such as "J."
	r, _ := utf8.DecodeRuneInString(last)
	return utf8.RuneCountInString(last) == 2 && unicode.IsLetter(r) && strings.HasSuffix(last, ".")
}
