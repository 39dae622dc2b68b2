package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gmontinny/ia-rag/internal/core/domain"
)

const (
	snippetRunes  = 400
	neighborRunes = 200
)

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func renderIngest(out io.Writer, stats []domain.IngestStats) {
	if len(stats) == 0 {
		fmt.Fprintln(out, "Nenhum documento ingerido.")
		return
	}
	chunks := 0
	for _, s := range stats {
		if s.Skipped {
			fmt.Fprintf(out, "= %s: conteúdo inalterado\n", s.LawID)
			continue
		}
		chunks += s.Chunks
		fmt.Fprintf(out, "+ %s: %d nós, %d chunks (%s)\n", s.LawID, s.Nodes, s.Chunks, s.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(out, "Ingestão concluída: %d leis, %d chunks.\n", len(stats), chunks)
}

func renderSearch(out io.Writer, query string, result *domain.SearchResult) {
	mode := result.Mode
	if mode == domain.ModeLexical || mode == domain.ModeAll {
		fmt.Fprintln(out, "\n=== Busca lexical (Elasticsearch) ===")
		fmt.Fprintf(out, "[ES] %d resultados para: '%s'\n", len(result.Lexical), query)
		for _, hit := range result.Lexical {
			fmt.Fprintf(out, "- id=%s score=%.3f title=%s\n", hit.LawID, hit.Score, hit.Title)
		}
	}
	if mode == domain.ModeSemantic || mode == domain.ModeAll {
		fmt.Fprintln(out, "\n=== Busca semântica (Qdrant) ===")
		renderChunkHits(out, query, result.Semantic)
	}
	if mode == domain.ModeHybrid || mode == domain.ModeAll {
		fmt.Fprintln(out, "\n=== Busca híbrida (ES → Qdrant) ===")
		if result.HybridFailOpen {
			fmt.Fprintln(out, "[Hybrid] sem candidatos lexicais; busca semântica sem filtro")
		}
		renderChunkHits(out, query, result.Hybrid)
	}

	if best := bestHit(result); best != nil && best.Trail != nil {
		fmt.Fprintln(out, "\n=== Contexto no grafo (Neo4j) ===")
		renderTrail(out, best)
		renderNeighbors(out, best.Neighbors)
	}
	for _, d := range result.Degraded {
		fmt.Fprintf(out, "[aviso] %s\n", d)
	}
}

func renderChunkHits(out io.Writer, query string, hits []domain.ChunkHit) {
	fmt.Fprintf(out, "[Qdrant] %d resultados para: '%s'\n", len(hits), query)
	for _, h := range hits {
		p := h.Payload
		fmt.Fprintf(out, "- score=%.4f law=%s art=%s par=%s inc=%s chunk_id=%s\n",
			h.Score, p.LawID, p.Article, p.Paragraph, p.Inciso, h.ChunkID)
	}
}

// bestHit is the top semantic hit, else the top hybrid hit.
func bestHit(result *domain.SearchResult) *domain.ChunkHit {
	if len(result.Semantic) > 0 {
		return &result.Semantic[0]
	}
	if len(result.Hybrid) > 0 {
		return &result.Hybrid[0]
	}
	return nil
}

func renderTrail(out io.Writer, hit *domain.ChunkHit) {
	if !hit.Trail.Known() {
		fmt.Fprintf(out, "[Neo4j] Trilha indisponível para %s: %s\n", hit.ChunkID, hit.TrailError)
		return
	}
	fmt.Fprintln(out, "[Neo4j] Trilha legal do chunk:")
	for _, kind := range []domain.NodeKind{domain.KindLaw, domain.KindArticle, domain.KindParagraph, domain.KindInciso} {
		if label := hit.Trail.Label(kind); label != "" {
			fmt.Fprintf(out, "- %s: %s\n", kindTitle(kind), label)
		}
	}
	if text := strings.TrimSpace(hit.Text); text != "" {
		fmt.Fprintf(out, "- Trecho: %s\n", snippet(text, snippetRunes))
	}
}

func renderNeighbors(out io.Writer, neighbors []domain.Neighbor) {
	if len(neighbors) == 0 {
		return
	}
	fmt.Fprintln(out, "- Vizinhos (mesmo Artigo):")
	for _, n := range neighbors {
		fmt.Fprintf(out, "  · %s → %s\n", n.ChunkID, snippet(n.Text, neighborRunes))
	}
}

func kindTitle(kind domain.NodeKind) string {
	switch kind {
	case domain.KindLaw:
		return "Lei"
	case domain.KindArticle:
		return "Artigo"
	case domain.KindParagraph:
		return "Parágrafo"
	case domain.KindInciso:
		return "Inciso"
	default:
		return string(kind)
	}
}

func renderAnswer(out io.Writer, answer *domain.Answer, debug bool) {
	if debug {
		fmt.Fprintf(out, "[RAG] Evidências recuperadas: %d\n", len(answer.Evidence))
		for _, ev := range answer.Evidence {
			fmt.Fprintf(out, "  - [%d] chunk=%s score=%.4f trilha=%s\n", ev.Index, ev.ChunkID, ev.Score, ev.Trail.String())
		}
		if answer.Prompt != nil {
			fmt.Fprintln(out, "===== SYSTEM PROMPT =====\n"+answer.Prompt.System)
			fmt.Fprintln(out, "\n===== USER PROMPT =====\n"+answer.Prompt.User)
		}
		for _, a := range answer.Attempts {
			status := "ok"
			if a.Error != "" {
				status = a.Error
			}
			fmt.Fprintf(out, "[RAG] %s (%s): %s\n", a.Strategy, a.Duration.Round(time.Millisecond), status)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, answer.Text)
	if len(answer.References) > 0 && !strings.Contains(answer.Text, "Referências:") {
		fmt.Fprintln(out, "\nReferências:")
		for _, ref := range answer.References {
			fmt.Fprintf(out, "[%d] %s (%s)\n", ref.Index, ref.Trail, ref.ChunkID)
		}
	}
	if answer.Strategy != domain.StrategyPrimary {
		fmt.Fprintf(out, "\n(estratégia: %s, provedor: %s)\n", answer.Strategy, answer.Provider)
	}
	for _, d := range answer.Degraded {
		fmt.Fprintf(out, "[aviso] %s\n", d)
	}
}

func renderLaws(out io.Writer, records []domain.LawRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "Nenhuma lei registrada.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTÍTULO\tCHUNKS\tNÓS\tINGERIDA EM")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", r.Law.ID, r.Law.Label(), r.ChunkCount, r.NodeCount, r.IngestedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + " ..."
}
