package chunking

import (
	"iter"
	"regexp"
	"unicode/utf8"

	"github.com/gmontinny/ia-rag/internal/core/domain"
)

// Marker is a recognized structural heading inside a legal text.
// Start and End are byte offsets into the scanned text.
type Marker struct {
	Kind  domain.NodeKind
	Value string
	Start int
	End   int
}

var (
	articleRe   = regexp.MustCompile(`\b(?:Art|ART)\.\s*(\d+)(?:\s*[º°])?(?:\s*-\s*([A-Z])\b)?`)
	paragraphRe = regexp.MustCompile(`§\s*(\d+)(?:\s*[º°])?|(Parágrafo\s+[úu]nico|PARÁGRAFO\s+ÚNICO)`)
	incisoRe    = regexp.MustCompile(`\b([IVXLCDM]+)\s*[-–—]\s`)
	romanRe     = regexp.MustCompile(`^M{0,4}(CM|CD|D?C{0,3})(XC|XL|L?X{0,3})(IX|IV|V?I{0,3})$`)
)

type markerPattern struct {
	kind  domain.NodeKind
	re    *regexp.Regexp
	value func(text string, loc []int) (string, bool)
}

// MarkerDetector finds Article, Paragraph and Inciso markers.
// Patterns are kept in precedence order.
type MarkerDetector struct {
	patterns []markerPattern
}

func NewMarkerDetector() *MarkerDetector {
	return &MarkerDetector{
		patterns: []markerPattern{
			{kind: domain.KindArticle, re: articleRe, value: articleValue},
			{kind: domain.KindParagraph, re: paragraphRe, value: paragraphValue},
			{kind: domain.KindInciso, re: incisoRe, value: incisoValue},
		},
	}
}

// Markers scans text lazily. Every range over the returned sequence starts a fresh scan.
func (d *MarkerDetector) Markers(text string) iter.Seq[Marker] {
	return func(yield func(Marker) bool) {
		pending := make([]*Marker, len(d.patterns))
		exhausted := make([]bool, len(d.patterns))
		pos := 0
		for {
			best := -1
			for i, p := range d.patterns {
				if exhausted[i] {
					continue
				}
				if pending[i] == nil || pending[i].Start < pos {
					m, ok := p.find(text, pos)
					if !ok {
						exhausted[i] = true
						pending[i] = nil
						continue
					}
					pending[i] = &m
				}
				// strict comparison keeps the higher-precedence pattern on ties
				if best < 0 || pending[i].Start < pending[best].Start {
					best = i
				}
			}
			if best < 0 {
				return
			}
			m := *pending[best]
			pending[best] = nil
			if !yield(m) {
				return
			}
			pos = m.End
		}
	}
}

// Collect materializes all markers of text.
func (d *MarkerDetector) Collect(text string) []Marker {
	var out []Marker
	for m := range d.Markers(text) {
		out = append(out, m)
	}
	return out
}

func (p markerPattern) find(text string, from int) (Marker, bool) {
	for from < len(text) {
		loc := p.re.FindStringSubmatchIndex(text[from:])
		if loc == nil {
			return Marker{}, false
		}
		for i := range loc {
			if loc[i] >= 0 {
				loc[i] += from
			}
		}
		start, end := loc[0], loc[1]
		if structuralPosition(text, start) {
			if value, ok := p.value(text, loc); ok {
				return Marker{Kind: p.kind, Value: value, Start: start, End: end}, true
			}
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return Marker{}, false
}

// structuralPosition reports whether a match at start opens a new structural unit:
// it must begin the text or a line, or follow a terminator.
func structuralPosition(text string, start int) bool {
	i := start
	for i > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:i])
		switch r {
		case ' ', '\t', '\u00a0':
			i -= size
			continue
		case '\n', '\r', '.', ';', ':':
			return true
		default:
			return false
		}
	}
	return true
}

func articleValue(text string, loc []int) (string, bool) {
	value := text[loc[2]:loc[3]]
	if loc[4] >= 0 {
		value += text[loc[4]:loc[5]]
	}
	return value, true
}

func paragraphValue(text string, loc []int) (string, bool) {
	if loc[2] >= 0 {
		return text[loc[2]:loc[3]], true
	}
	return domain.SingleParagraph, true
}

func incisoValue(text string, loc []int) (string, bool) {
	value := text[loc[2]:loc[3]]
	if !romanRe.MatchString(value) {
		return "", false
	}
	return value, true
}
