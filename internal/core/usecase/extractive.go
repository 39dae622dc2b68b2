package usecase

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/gmontinny/ia-rag/internal/core/domain"
)

const (
	extractiveMaxEvidence  = 5
	extractiveMaxSentences = 20
	extractiveMaxLines     = 12
	excerptEvidence        = 3
	excerptMaxRunes        = 500
	minSentenceRunes       = 4
	minQueryTokenRunes     = 4
)

const noEvidenceAnswer = "Não encontrei evidências suficientes na base para responder à pergunta.\n" +
	"Verifique se a ingestão foi executada (iarag ingest) e tente reformular a consulta."

// stopwords are dropped from query tokens before they join the salient terms.
var stopwords = map[string]struct{}{
	"qual": {}, "quais": {}, "quando": {}, "como": {}, "onde": {}, "para": {}, "pela": {}, "pelo": {},
	"sobre": {}, "entre": {}, "segundo": {}, "conforme": {}, "essa": {}, "esse": {}, "esta": {},
	"este": {}, "isso": {}, "isto": {}, "aquele": {}, "aquela": {}, "sendo": {}, "serão": {},
	"são": {}, "está": {}, "estão": {}, "pode": {}, "podem": {}, "deve": {}, "devem": {},
	"quem": {}, "porque": {}, "mais": {}, "menos": {}, "também": {}, "lei": {}, "artigo": {},
}

// salientTerms merges the configured vocabulary with content tokens of the query.
func salientTerms(configured []string, query string) []string {
	seen := make(map[string]struct{}, len(configured))
	out := make([]string, 0, len(configured)+4)
	add := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			return
		}
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	for _, term := range configured {
		add(term)
	}
	for _, token := range splitWordsLower(query) {
		if len([]rune(token)) < minQueryTokenRunes {
			continue
		}
		if _, stop := stopwords[token]; stop {
			continue
		}
		add(token)
	}
	return out
}

// extractiveAnswer composes an answer from evidence sentences without a generator.
// It fails only when there is no evidence.
func extractiveAnswer(evidence []domain.Evidence, terms []string) (string, error) {
	if len(evidence) == 0 {
		return "", domain.WrapError(domain.ErrUnanswerable, "extractive answer", fmt.Errorf("no evidence"))
	}

	var extracted []string
	var used []int
	for _, ev := range evidence[:min(extractiveMaxEvidence, len(evidence))] {
		sentences := evidenceSentences(ev.Text)
		for _, sentence := range sentences[:min(extractiveMaxSentences, len(sentences))] {
			if len(extracted) >= extractiveMaxLines {
				break
			}
			if !containsAny(strings.ToLower(sentence), terms) {
				continue
			}
			extracted = append(extracted, "- "+structuralPrefix(ev.Payload)+sentence)
			if len(used) == 0 || used[len(used)-1] != ev.Index {
				used = append(used, ev.Index)
			}
		}
		if len(extracted) >= extractiveMaxLines {
			break
		}
	}

	lines := []string{"Não foi possível gerar uma resposta automática com o modelo neste momento."}
	if len(extracted) > 0 {
		lines = append(lines, "Abaixo, um resumo extrativo conforme os trechos recuperados:", "")
		lines = append(lines, extracted...)
	} else {
		lines = append(lines, "Segue um resumo dos trechos mais relevantes encontrados na base:", "")
		used = used[:0]
		for _, ev := range evidence[:min(excerptEvidence, len(evidence))] {
			lines = append(lines,
				fmt.Sprintf("[%d] %s", ev.Index, citationTrail(ev)),
				`"` + excerpt(ev.Text, excerptMaxRunes) + `"`,
				"",
			)
			used = append(used, ev.Index)
		}
	}
	refs := make([]string, 0, len(used))
	for _, idx := range used {
		refs = append(refs, fmt.Sprintf("[%d]", idx))
	}
	lines = append(lines, "", "Referências: "+strings.Join(refs, ", "))
	return strings.Join(lines, "\n"), nil
}

// structuralPrefix renders "Art. 15 – § 1º – Inciso III: " for the levels present.
func structuralPrefix(p domain.ChunkPayload) string {
	var parts []string
	if p.Article != "" {
		parts = append(parts, domain.ArticleLabel(p.Article))
	}
	if p.Paragraph != "" {
		parts = append(parts, domain.ParagraphLabel(p.Paragraph))
	}
	if p.Inciso != "" {
		parts = append(parts, domain.IncisoLabel(p.Inciso))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " – ") + ": "
}

// evidenceSentences splits after terminal punctuation, at line breaks and at semicolons.
func evidenceSentences(text string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		b.Reset()
		if len([]rune(s)) >= minSentenceRunes {
			out = append(out, s)
		}
	}
	runes := []rune(strings.TrimSpace(text))
	for i, r := range runes {
		nextSpace := i+1 < len(runes) && unicode.IsSpace(runes[i+1])
		switch {
		case r == '\n':
			flush()
		case r == ';' && nextSpace:
			flush()
		case (r == '.' || r == '!' || r == '?') && nextSpace:
			b.WriteRune(r)
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return out
}

func excerpt(text string, maxRunes int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(s, term) {
			return true
		}
	}
	return false
}

func splitWordsLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
