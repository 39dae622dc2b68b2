package chunking

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmontinny/ia-rag/internal/core/domain"
)

func chunkIDs(chunks []domain.Chunk) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.ID)
	}
	return out
}

func sampleLaw() string {
	var b strings.Builder
	b.WriteString("LEI Nº 9.784, DE 29 DE JANEIRO DE 1999.\nRegula o processo administrativo no âmbito da Administração Pública Federal.\n\n")
	for art := 1; art <= 6; art++ {
		fmt.Fprintf(&b, "Art. %d. ", art)
		for s := 0; s < 9; s++ {
			fmt.Fprintf(&b, "Esta é a frase número %d do artigo %d, que descreve deveres, prazos e condições aplicáveis aos interessados. ", s, art)
		}
		b.WriteString("\n")
		if art%2 == 0 {
			b.WriteString("I - apresentar documentos na forma prevista em regulamento específico;\n")
			b.WriteString("II - prestar informações;\n")
			fmt.Fprintf(&b, "§ 1º O descumprimento do disposto no art. %d sujeita o infrator às penalidades previstas nesta Lei.\n", art)
			b.WriteString("§ 2º Aplica-se o disposto neste artigo aos processos em curso na data de publicação desta Lei.\n")
		}
	}
	b.WriteString("Art. 7. (VETADO)\n")
	b.WriteString("Art. 8. Esta Lei entra em vigor na data de sua publicação e revoga as disposições em contrário.\n")
	return b.String()
}

func TestSegmentScenarioArticleAndParagraphChunks(t *testing.T) {
	seg := NewSegmenter(Options{MinChars: 20, MaxChars: 1500, WindowSentences: 6, OverlapSentences: 2})
	out, err := seg.Segment(domain.SourceDocument{
		Law:  domain.Law{ID: "L9784", Title: "Lei 9.784/1999"},
		Text: "Art. 15. As infrações... I - leves; II - graves; § 1º Consideram-se leves...",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"L9784:Art15:chunk_0", "L9784:Art15:§1:chunk_0"}, chunkIDs(out.Chunks))
	assert.Equal(t, "Art. 15. As infrações... I - leves; II - graves;", out.Chunks[0].Text)
	assert.Equal(t, "§ 1º Consideram-se leves...", out.Chunks[1].Text)

	nodeIDs := make([]string, 0, len(out.Nodes))
	for _, n := range out.Nodes {
		nodeIDs = append(nodeIDs, n.ID)
	}
	assert.Equal(t, []string{"L9784", "L9784:Art15", "L9784:Art15:I", "L9784:Art15:II", "L9784:Art15:§1"}, nodeIDs)
	assert.Equal(t, "L9784:Art15", out.Nodes[2].ParentID)
	assert.Equal(t, "Lei 9.784/1999", out.Nodes[0].Label)
}

func TestSegmentRespectsBoundsAndMarkers(t *testing.T) {
	opts := DefaultOptions()
	seg := NewSegmenter(opts)
	text := sampleLaw()
	out, err := seg.Segment(domain.SourceDocument{Law: domain.Law{ID: "L9784"}, Text: text})
	require.NoError(t, err)
	require.NotEmpty(t, out.Chunks)

	markers := NewMarkerDetector().Collect(text)
	seen := make(map[string]bool)
	for _, c := range out.Chunks {
		n := utf8.RuneCountInString(c.Text)
		assert.GreaterOrEqual(t, n, opts.MinChars, c.ID)
		assert.LessOrEqual(t, n, opts.MaxChars, c.ID)
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true

		assert.Equal(t, normalizeText(text[c.Start:c.End]), c.Text)
		for _, m := range markers {
			assert.False(t, c.Start > m.Start && c.Start < m.End, "chunk %s starts inside marker at %d", c.ID, m.Start)
			assert.False(t, c.End > m.Start && c.End < m.End, "chunk %s ends inside marker at %d", c.ID, m.Start)
		}
		assert.NoError(t, c.Payload().Validate())
	}
}

var romanNumerals = []string{"I", "II", "III", "IV", "V", "VI"}

func randomSentence(r *rand.Rand) string {
	words := 1 + r.IntN(40)
	if r.IntN(8) == 0 {
		words = 100 + r.IntN(250)
	}
	return "Norma" + strings.Repeat(" termo", words) + "."
}

func randomSentences(r *rand.Rand, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = randomSentence(r)
	}
	return strings.Join(parts, " ")
}

// randomLaw builds a law whose articles mix short and very long sentences,
// numbered paragraphs and incisos.
func randomLaw(r *rand.Rand) string {
	var b strings.Builder
	articles := 1 + r.IntN(5)
	for art := 1; art <= articles; art++ {
		fmt.Fprintf(&b, "Art. %d. %s\n", art, randomSentences(r, 1+r.IntN(8)))
		for inc := 0; inc < r.IntN(4); inc++ {
			fmt.Fprintf(&b, "%s - termo%s;\n", romanNumerals[inc], strings.Repeat(" termo", r.IntN(30)))
		}
		for par := 1; par <= r.IntN(3); par++ {
			fmt.Fprintf(&b, "§ %dº %s\n", par, randomSentences(r, 1+r.IntN(6)))
		}
	}
	return b.String()
}

func TestSegmentBoundsHoldForGeneratedLaws(t *testing.T) {
	optionSets := []Options{
		DefaultOptions(),
		{MinChars: 50, MaxChars: 300, WindowSentences: 6, OverlapSentences: 2},
		{MinChars: 120, MaxChars: 500, WindowSentences: 4, OverlapSentences: 1},
	}
	r := rand.New(rand.NewPCG(2025, 11))
	detector := NewMarkerDetector()

	for _, opts := range optionSets {
		seg := NewSegmenter(opts)
		for iter := 0; iter < 1000; iter++ {
			text := randomLaw(r)
			out, err := seg.Segment(domain.SourceDocument{Law: domain.Law{ID: "L1"}, Text: text})
			require.NoError(t, err)
			if normalizedLen(text) >= opts.MinChars {
				require.NotEmpty(t, out.Chunks, "iter %d: %q", iter, text)
			}

			markers := detector.Collect(text)
			seen := make(map[string]bool, len(out.Chunks))
			for _, c := range out.Chunks {
				n := utf8.RuneCountInString(c.Text)
				if n < opts.MinChars || n > opts.MaxChars {
					t.Fatalf("opts %+v iter %d: chunk %s has %d runes: %q\ninput: %q", opts, iter, c.ID, n, c.Text, text)
				}
				if seen[c.ID] {
					t.Fatalf("iter %d: duplicate chunk id %s", iter, c.ID)
				}
				seen[c.ID] = true
				for _, m := range markers {
					if (c.Start > m.Start && c.Start < m.End) || (c.End > m.Start && c.End < m.End) {
						t.Fatalf("iter %d: chunk %s [%d,%d) cuts marker %q", iter, c.ID, c.Start, c.End, text[m.Start:m.End])
					}
				}
			}
		}
	}
}

func TestSegmentShortLeadingArticleBorrowsFromNextParagraph(t *testing.T) {
	opts := DefaultOptions()
	sentences := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		sentences = append(sentences, "Norma"+strings.Repeat(" termo", 40)+".")
	}
	// The first paragraph window is too long to absorb the article sentence whole.
	text := "Art. 1. Norma termo termo termo. \n§ 1º " + strings.Join(sentences, " ")

	out, err := NewSegmenter(opts).Segment(domain.SourceDocument{Law: domain.Law{ID: "L1"}, Text: text})
	require.NoError(t, err)
	require.NotEmpty(t, out.Chunks)
	assert.Equal(t, "L1:Art1:chunk_0", out.Chunks[0].ID)
	assert.Equal(t, "Art. 1. Norma termo termo termo. § 1º "+sentences[0], out.Chunks[0].Text)
	for _, c := range out.Chunks {
		n := utf8.RuneCountInString(c.Text)
		assert.GreaterOrEqual(t, n, opts.MinChars, c.ID)
		assert.LessOrEqual(t, n, opts.MaxChars, c.ID)
	}
}

func TestSegmentIsDeterministic(t *testing.T) {
	seg := NewSegmenter(DefaultOptions())
	doc := domain.SourceDocument{Law: domain.Law{ID: "L9784"}, Text: sampleLaw()}

	first, err := seg.Segment(doc)
	require.NoError(t, err)
	second, err := seg.Segment(doc)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSegmentUsesOverlappingWindows(t *testing.T) {
	seg := NewSegmenter(Options{MinChars: 10, MaxChars: 5000, WindowSentences: 6, OverlapSentences: 2})
	var b strings.Builder
	b.WriteString("Art. 1º ")
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&b, "Frase de número %d com conteúdo normativo suficiente. ", i)
	}
	out, err := seg.Segment(domain.SourceDocument{Law: domain.Law{ID: "L1"}, Text: b.String()})
	require.NoError(t, err)

	require.Equal(t, []string{"L1:Art1:chunk_0", "L1:Art1:chunk_1", "L1:Art1:chunk_2"}, chunkIDs(out.Chunks))
	assert.Contains(t, out.Chunks[0].Text, "Frase de número 5")
	assert.True(t, strings.HasPrefix(out.Chunks[1].Text, "Frase de número 4"), out.Chunks[1].Text)
	assert.True(t, strings.HasPrefix(out.Chunks[2].Text, "Frase de número 8"), out.Chunks[2].Text)
}

func TestSegmentRecordsHeadingOnlyNodes(t *testing.T) {
	seg := NewSegmenter(DefaultOptions())
	text := "Art. 1º Esta Lei dispõe sobre a vigilância sanitária e dá outras providências relevantes.\nArt. 2º\nArt. 3º Compete à autoridade sanitária fiscalizar o cumprimento das normas desta Lei."
	out, err := seg.Segment(domain.SourceDocument{Law: domain.Law{ID: "L6437"}, Text: text})
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, n := range out.Nodes {
		ids[n.ID] = true
	}
	assert.True(t, ids["L6437:Art2"])
	assert.Equal(t, []string{"L6437:Art1:chunk_0", "L6437:Art3:chunk_0"}, chunkIDs(out.Chunks))
}

func TestSegmentWithoutMarkersAttachesToLaw(t *testing.T) {
	seg := NewSegmenter(DefaultOptions())
	text := strings.Repeat("Texto normativo sem marcação estrutural explícita. ", 8)
	out, err := seg.Segment(domain.SourceDocument{Law: domain.Law{ID: "RDC216"}, Text: text})
	require.NoError(t, err)

	require.NotEmpty(t, out.Chunks)
	for _, c := range out.Chunks {
		assert.Equal(t, domain.KindLaw, c.Path.Kind())
	}
	require.Len(t, out.Nodes, 1)
}

func TestSegmentSplitsOversizedSentences(t *testing.T) {
	opts := Options{MinChars: 50, MaxChars: 200, WindowSentences: 6, OverlapSentences: 2}
	seg := NewSegmenter(opts)
	text := "Art. 1º " + strings.Repeat("palavra ", 120) + "fim."
	out, err := seg.Segment(domain.SourceDocument{Law: domain.Law{ID: "L1"}, Text: text})
	require.NoError(t, err)

	require.Greater(t, len(out.Chunks), 1)
	for _, c := range out.Chunks {
		n := utf8.RuneCountInString(c.Text)
		assert.LessOrEqual(t, n, opts.MaxChars)
		assert.GreaterOrEqual(t, n, opts.MinChars)
	}
	assert.True(t, strings.HasPrefix(out.Chunks[0].Text, "Art. 1º palavra"))
}

func TestSegmentDropsDocumentsBelowMinimum(t *testing.T) {
	out, err := NewSegmenter(DefaultOptions()).Segment(domain.SourceDocument{Law: domain.Law{ID: "L1"}, Text: "Art. 1º Curto."})
	require.NoError(t, err)
	assert.Empty(t, out.Chunks)
	assert.Len(t, out.Nodes, 2)
}

func TestSegmentRejectsInvalidLawID(t *testing.T) {
	_, err := NewSegmenter(DefaultOptions()).Segment(domain.SourceDocument{Law: domain.Law{ID: "L:1"}, Text: "x"})
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))
}

func TestFingerprintTracksEffectiveOptions(t *testing.T) {
	base := NewSegmenter(DefaultOptions())
	assert.Equal(t, base.Fingerprint(), NewSegmenter(Options{}).Fingerprint(), "zero options normalize to the defaults")

	changed := DefaultOptions()
	changed.MaxChars = 1200
	assert.NotEqual(t, base.Fingerprint(), NewSegmenter(changed).Fingerprint())
}
