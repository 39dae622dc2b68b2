package chunking

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type span struct {
	start int
	end   int
}

// splitSentences returns trimmed sentence spans of text[start:end]. A boundary is
// terminal punctuation followed by whitespace and an upper-case letter, or a blank line.
func splitSentences(text string, start, end int) []span {
	var out []span
	cur := start
	i := start
	for i < end {
		r, size := utf8.DecodeRuneInString(text[i:end])
		next := i + size
		switch {
		case r == '.' || r == '!' || r == '?':
			ws := skipSpace(text, next, end)
			if ws > next && ws < end && opensSentence(text[ws:end]) {
				out = appendTrimmed(out, text, cur, next)
				cur = ws
				next = ws
			}
		case r == '\n':
			ws := skipSpace(text, next, end)
			if strings.Count(text[i:ws], "\n") >= 2 {
				out = appendTrimmed(out, text, cur, i)
				cur = ws
				next = ws
			}
		}
		i = next
	}
	return appendTrimmed(out, text, cur, end)
}

func opensSentence(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r) || r == '§' || r == '"' || r == '“'
}

func skipSpace(text string, i, end int) int {
	for i < end {
		r, size := utf8.DecodeRuneInString(text[i:end])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

func appendTrimmed(out []span, text string, start, end int) []span {
	for start < end {
		r, size := utf8.DecodeRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	if end > start {
		out = append(out, span{start: start, end: end})
	}
	return out
}

// normalizedLen counts runes after collapsing whitespace runs and trimming.
func normalizedLen(s string) int {
	n := 0
	pendingSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			pendingSpace = n > 0
			continue
		}
		if pendingSpace {
			n++
			pendingSpace = false
		}
		n++
	}
	return n
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// splitLong cuts sp into pieces whose normalized length is at most limit.
// Cuts land on whitespace when possible and never before floor.
func splitLong(text string, sp span, limit, floor int) []span {
	if limit <= 0 || normalizedLen(text[sp.start:sp.end]) <= limit {
		return []span{sp}
	}

	var out []span
	cur := sp.start
	for normalizedLen(text[cur:sp.end]) > limit {
		cut := cutPoint(text, cur, sp.end, limit, floor)
		out = appendTrimmed(out, text, cur, cut)
		cur = skipSpace(text, cut, sp.end)
		if cur >= sp.end {
			return out
		}
	}
	return appendTrimmed(out, text, cur, sp.end)
}

func cutPoint(text string, start, end, limit, floor int) int {
	n := 0
	pendingSpace := false
	lastSpace := -1
	i := start
	for i < end {
		r, size := utf8.DecodeRuneInString(text[i:end])
		if unicode.IsSpace(r) {
			if n > 0 && !pendingSpace && i > floor {
				lastSpace = i
			}
			pendingSpace = n > 0
			i += size
			continue
		}
		add := 1
		if pendingSpace {
			add = 2
		}
		if n+add > limit {
			break
		}
		n += add
		pendingSpace = false
		i += size
	}
	if lastSpace > start {
		return lastSpace
	}
	if i <= start {
		_, size := utf8.DecodeRuneInString(text[start:end])
		return start + size
	}
	return i
}
