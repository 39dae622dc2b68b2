package qdrant

import (
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/gmontinny/ia-rag/internal/core/domain"
)

const (
	payloadLawID       = "law_id"
	payloadArticle     = "article"
	payloadParagraph   = "paragraph"
	payloadInciso      = "inciso"
	payloadChunkID     = "chunk_id"
	payloadStartOffset = "start_offset"
	payloadEndOffset   = "end_offset"
)

// PointID maps a chunk id to a stable UUID: SHA-1 name-based over the
// per-collection namespace derived from "qdrant:{collection}".
func PointID(collection, chunkID string) string {
	namespace := uuid.NewSHA1(uuid.NameSpaceURL, []byte("qdrant:"+collection))
	return uuid.NewSHA1(namespace, []byte(chunkID)).String()
}

func payloadValues(p domain.ChunkPayload) map[string]*qdrant.Value {
	values := map[string]any{
		payloadLawID:       p.LawID,
		payloadChunkID:     p.ChunkID,
		payloadStartOffset: int64(p.StartOffset),
		payloadEndOffset:   int64(p.EndOffset),
	}
	if p.Article != "" {
		values[payloadArticle] = p.Article
	}
	if p.Paragraph != "" {
		values[payloadParagraph] = p.Paragraph
	}
	if p.Inciso != "" {
		values[payloadInciso] = p.Inciso
	}
	return qdrant.NewValueMap(values)
}

func payloadFromValues(values map[string]*qdrant.Value) domain.ChunkPayload {
	return domain.ChunkPayload{
		LawID:       values[payloadLawID].GetStringValue(),
		Article:     values[payloadArticle].GetStringValue(),
		Paragraph:   values[payloadParagraph].GetStringValue(),
		Inciso:      values[payloadInciso].GetStringValue(),
		ChunkID:     values[payloadChunkID].GetStringValue(),
		StartOffset: int(values[payloadStartOffset].GetIntegerValue()),
		EndOffset:   int(values[payloadEndOffset].GetIntegerValue()),
	}
}

// buildFilter returns nil when the filter is empty. LawIDs and LawID are both must conditions.
func buildFilter(f domain.VectorFilter) *qdrant.Filter {
	var must []*qdrant.Condition
	if len(f.LawIDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords(payloadLawID, f.LawIDs...))
	}
	if f.LawID != "" {
		must = append(must, qdrant.NewMatch(payloadLawID, f.LawID))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}
