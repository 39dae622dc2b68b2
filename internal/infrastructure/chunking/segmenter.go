package chunking

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/gmontinny/ia-rag/internal/core/domain"
)

type Options struct {
	MinChars         int
	MaxChars         int
	WindowSentences  int
	OverlapSentences int
}

func DefaultOptions() Options {
	return Options{
		MinChars:         50,
		MaxChars:         1500,
		WindowSentences:  6,
		OverlapSentences: 2,
	}
}

func (o Options) normalize() Options {
	def := DefaultOptions()
	if o.MaxChars <= 0 {
		o.MaxChars = def.MaxChars
	}
	if o.MinChars < 0 || o.MinChars >= o.MaxChars {
		o.MinChars = min(def.MinChars, o.MaxChars/4)
	}
	if o.WindowSentences <= 0 {
		o.WindowSentences = def.WindowSentences
	}
	if o.OverlapSentences < 0 || o.OverlapSentences >= o.WindowSentences {
		o.OverlapSentences = 0
	}
	return o
}

// Segmenter splits a law into structure-aware chunks: marker-delimited segments,
// sentence windows inside each segment, then length normalization.
type Segmenter struct {
	opts     Options
	detector *MarkerDetector
}

func NewSegmenter(opts Options) *Segmenter {
	return &Segmenter{
		opts:     opts.normalize(),
		detector: NewMarkerDetector(),
	}
}

// Fingerprint identifies the effective options. Chunks produced under
// different fingerprints are not interchangeable.
func (s *Segmenter) Fingerprint() string {
	o := s.opts
	return fmt.Sprintf("segmenter/v2 min=%d max=%d window=%d overlap=%d", o.MinChars, o.MaxChars, o.WindowSentences, o.OverlapSentences)
}

type segment struct {
	path      domain.LegalPath
	start     int
	end       int
	markerEnd int
}

// atom is an indivisible sentence (or sentence fragment) with its owner path.
type atom struct {
	span
	path domain.LegalPath
	seg  int
}

// piece covers atoms[lo:hi].
type piece struct {
	lo int
	hi int
}

func (s *Segmenter) Segment(doc domain.SourceDocument) (domain.Segmentation, error) {
	if err := domain.ValidateLawID(doc.Law.ID); err != nil {
		return domain.Segmentation{}, err
	}
	text := doc.Text
	out := domain.Segmentation{Law: doc.Law}

	segments, nodes := s.partition(doc.Law, text)
	out.Nodes = nodes

	atoms := s.atomize(text, segments)
	if len(atoms) == 0 {
		return out, nil
	}
	pieces := s.window(text, atoms)
	pieces = s.normalizeLengths(text, atoms, pieces)

	seqs := make(map[string]int)
	out.Chunks = make([]domain.Chunk, 0, len(pieces))
	for _, p := range pieces {
		path := pieceAncestor(atoms, p)
		nodeID := path.NodeID()
		seq := seqs[nodeID]
		seqs[nodeID] = seq + 1

		start, end := atoms[p.lo].start, atoms[p.hi-1].end
		out.Chunks = append(out.Chunks, domain.Chunk{
			ID:    domain.ChunkID(path, seq),
			Path:  path,
			Seq:   seq,
			Text:  normalizeText(text[start:end]),
			Start: start,
			End:   end,
		})
	}
	return out, nil
}

// partition cuts text at every marker and registers one node per distinct structural path.
func (s *Segmenter) partition(law domain.Law, text string) ([]segment, []domain.StructuralNode) {
	root := domain.LegalPath{LawID: law.ID}
	nodes := []domain.StructuralNode{{
		ID:    root.NodeID(),
		Kind:  domain.KindLaw,
		Label: law.Label(),
		Start: 0,
		End:   len(text),
	}}
	index := map[string]int{root.NodeID(): 0}

	var segments []segment
	cur := root
	segStart := 0
	markerEnd := 0
	for m := range s.detector.Markers(text) {
		if m.Start > segStart {
			segments = append(segments, segment{path: cur, start: segStart, end: m.Start, markerEnd: markerEnd})
		}

		switch m.Kind {
		case domain.KindArticle:
			cur = domain.LegalPath{LawID: law.ID, Article: m.Value}
		case domain.KindParagraph:
			cur = domain.LegalPath{LawID: law.ID, Article: cur.Article, Paragraph: m.Value}
		case domain.KindInciso:
			cur = domain.LegalPath{LawID: law.ID, Article: cur.Article, Paragraph: cur.Paragraph, Inciso: m.Value}
		}
		id := cur.NodeID()
		if _, ok := index[id]; !ok {
			index[id] = len(nodes)
			nodes = append(nodes, domain.StructuralNode{
				ID:       id,
				Kind:     m.Kind,
				ParentID: cur.Parent().NodeID(),
				Number:   m.Value,
				Label:    nodeLabel(m),
				Start:    m.Start,
				End:      m.End,
			})
		}
		segStart = m.Start
		markerEnd = m.End
	}
	if segStart < len(text) {
		segments = append(segments, segment{path: cur, start: segStart, end: len(text), markerEnd: markerEnd})
	}

	// Extend every node over the segments of its subtree.
	for _, seg := range segments {
		for p := seg.path; ; p = p.Parent() {
			if i, ok := index[p.NodeID()]; ok && nodes[i].End < seg.end {
				nodes[i].End = seg.end
			}
			if p.Kind() == domain.KindLaw {
				break
			}
		}
	}
	return segments, nodes
}

func nodeLabel(m Marker) string {
	switch m.Kind {
	case domain.KindArticle:
		return domain.ArticleLabel(m.Value)
	case domain.KindParagraph:
		return domain.ParagraphLabel(m.Value)
	default:
		return domain.IncisoLabel(m.Value)
	}
}

// atomLimit bounds a single atom so that a sub-minimum piece plus one atom, and the
// remainder of any full neighbor, both stay within [MinChars, MaxChars].
func (s *Segmenter) atomLimit() int {
	if limit := s.opts.MaxChars - 2*s.opts.MinChars - 2; limit > 0 {
		return limit
	}
	if limit := s.opts.MaxChars - s.opts.MinChars; limit > 0 {
		return limit
	}
	return s.opts.MaxChars
}

// atomize splits every segment into sentences and cuts sentences longer than atomLimit.
func (s *Segmenter) atomize(text string, segments []segment) []atom {
	limit := s.atomLimit()
	var out []atom
	for si, seg := range segments {
		sentences := splitSentences(text, seg.start, seg.end)
		if len(sentences) > 0 && headingOnly(text, seg, sentences[0]) {
			// A bare heading joins the sentence after it; alone it yields no chunk.
			if len(sentences) == 1 {
				continue
			}
			sentences[1].start = sentences[0].start
			sentences = sentences[1:]
		}
		for _, sentence := range sentences {
			floor := sentence.start
			if sentence.start == seg.start {
				floor = seg.markerEnd
			}
			for _, part := range splitLong(text, sentence, limit, floor) {
				out = append(out, atom{span: part, path: seg.path, seg: si})
			}
		}
	}
	return out
}

func headingOnly(text string, seg segment, sentence span) bool {
	if seg.markerEnd <= seg.start || sentence.start != seg.start {
		return false
	}
	if sentence.end <= seg.markerEnd {
		return true
	}
	return strings.IndexFunc(text[seg.markerEnd:sentence.end], isWordRune) < 0
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// window builds overlapping sentence windows per segment and splits oversized ones.
func (s *Segmenter) window(text string, atoms []atom) []piece {
	step := s.opts.WindowSentences - s.opts.OverlapSentences
	var out []piece

	lo := 0
	for lo < len(atoms) {
		hi := lo
		for hi < len(atoms) && atoms[hi].seg == atoms[lo].seg {
			hi++
		}
		covered := lo
		for i := lo; i < hi; i += step {
			end := min(i+s.opts.WindowSentences, hi)
			for _, p := range s.splitOversized(text, atoms, piece{lo: i, hi: end}) {
				// sub-pieces of a split window may repeat what the previous window already emitted
				if p.hi <= covered {
					continue
				}
				out = append(out, p)
				covered = p.hi
			}
			if end == hi {
				break
			}
		}
		lo = hi
	}
	return out
}

func (s *Segmenter) splitOversized(text string, atoms []atom, p piece) []piece {
	if s.length(text, atoms, p) <= s.opts.MaxChars {
		return []piece{p}
	}
	var out []piece
	cur := piece{lo: p.lo, hi: p.lo + 1}
	for i := p.lo + 1; i < p.hi; i++ {
		next := piece{lo: cur.lo, hi: i + 1}
		if s.length(text, atoms, next) > s.opts.MaxChars {
			out = append(out, cur)
			cur = piece{lo: i, hi: i + 1}
			continue
		}
		cur = next
	}
	return append(out, cur)
}

// normalizeLengths folds sub-minimum pieces into a neighbor: backward first, then
// forward, then by moving trailing sentences of the previous piece or leading
// sentences of the next one.
func (s *Segmenter) normalizeLengths(text string, atoms []atom, pieces []piece) []piece {
	minLen, maxLen := s.opts.MinChars, s.opts.MaxChars
	i := 0
	for i < len(pieces) {
		if s.length(text, atoms, pieces[i]) >= minLen {
			i++
			continue
		}
		if i > 0 {
			merged := union(pieces[i-1], pieces[i])
			if s.length(text, atoms, merged) <= maxLen {
				pieces[i-1] = merged
				pieces = append(pieces[:i], pieces[i+1:]...)
				continue
			}
		}
		if i+1 < len(pieces) {
			merged := union(pieces[i], pieces[i+1])
			if s.length(text, atoms, merged) <= maxLen {
				pieces[i] = merged
				pieces = append(pieces[:i+1], pieces[i+2:]...)
				continue
			}
		}
		if i > 0 {
			if head, tail, ok := s.rebalance(text, atoms, pieces[i-1], pieces[i]); ok {
				pieces[i-1], pieces[i] = head, tail
				i++
				continue
			}
		}
		if i+1 < len(pieces) {
			if head, tail, ok := s.rebalanceForward(text, atoms, pieces[i], pieces[i+1]); ok {
				pieces[i], pieces[i+1] = head, tail
				i++
				continue
			}
		}
		if len(pieces) == 1 {
			// The whole law is shorter than one chunk.
			return nil
		}
		i++
	}
	return pieces
}

func (s *Segmenter) rebalance(text string, atoms []atom, prev, cur piece) (piece, piece, bool) {
	combined := union(prev, cur)
	for k := cur.lo - 1; k > combined.lo; k-- {
		tail := piece{lo: k, hi: combined.hi}
		tailLen := s.length(text, atoms, tail)
		if tailLen > s.opts.MaxChars {
			break
		}
		if tailLen < s.opts.MinChars {
			continue
		}
		head := piece{lo: combined.lo, hi: k}
		if s.length(text, atoms, head) >= s.opts.MinChars {
			return head, tail, true
		}
	}
	return piece{}, piece{}, false
}

// rebalanceForward grows cur with the leading sentences of next until it reaches
// MinChars, provided what is left of next still does.
func (s *Segmenter) rebalanceForward(text string, atoms []atom, cur, next piece) (piece, piece, bool) {
	combined := union(cur, next)
	for k := cur.hi + 1; k < combined.hi; k++ {
		head := piece{lo: combined.lo, hi: k}
		headLen := s.length(text, atoms, head)
		if headLen > s.opts.MaxChars {
			break
		}
		if headLen < s.opts.MinChars {
			continue
		}
		tail := piece{lo: k, hi: combined.hi}
		if tailLen := s.length(text, atoms, tail); tailLen >= s.opts.MinChars && tailLen <= s.opts.MaxChars {
			return head, tail, true
		}
	}
	return piece{}, piece{}, false
}

func union(a, b piece) piece {
	return piece{lo: min(a.lo, b.lo), hi: max(a.hi, b.hi)}
}

func (s *Segmenter) length(text string, atoms []atom, p piece) int {
	return normalizedLen(text[atoms[p.lo].start:atoms[p.hi-1].end])
}

func pieceAncestor(atoms []atom, p piece) domain.LegalPath {
	path := atoms[p.lo].path
	for i := p.lo + 1; i < p.hi; i++ {
		path = path.CommonAncestor(atoms[i].path)
	}
	return path
}
