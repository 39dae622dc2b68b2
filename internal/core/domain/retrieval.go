package domain

import (
	"fmt"
	"strings"
)

type RetrievalMode string

const (
	ModeLexical  RetrievalMode = "lexical"
	ModeSemantic RetrievalMode = "semantic"
	ModeHybrid   RetrievalMode = "hybrid"
	ModeAll      RetrievalMode = "all"
)

func ParseRetrievalMode(raw string) (RetrievalMode, error) {
	switch RetrievalMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeAll:
		return ModeAll, nil
	case ModeLexical:
		return ModeLexical, nil
	case ModeSemantic:
		return ModeSemantic, nil
	case ModeHybrid:
		return ModeHybrid, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse retrieval mode", fmt.Errorf("unknown mode %q", raw))
	}
}

// VectorFilter restricts semantic search. Both conditions must hold when both are set.
type VectorFilter struct {
	LawIDs []string
	LawID  string
}

// DocHit is a full-text match on a whole law document.
type DocHit struct {
	LawID string  `json:"doc_id"`
	Title string  `json:"title,omitempty"`
	Score float64 `json:"score"`
}

// ChunkHit is a semantic match on a chunk, optionally enriched with its trail.
type ChunkHit struct {
	ChunkID    string       `json:"chunk_id"`
	Score      float64      `json:"score"`
	Payload    ChunkPayload `json:"payload"`
	Text       string       `json:"text,omitempty"`
	Trail      *Trail       `json:"trail,omitempty"`
	TrailError string       `json:"trail_error,omitempty"`
	// Neighbors are other chunks of the same article, filled for the explained hit only.
	Neighbors []Neighbor `json:"neighbors,omitempty"`
}

// Neighbor is a sibling chunk under the same article.
type Neighbor struct {
	ChunkID string `json:"chunk_id"`
	Text    string `json:"text"`
}

type SearchRequest struct {
	Query     string
	Mode      RetrievalMode
	Size      int
	Limit     int
	Explain   bool
	FilterLaw string
}

type SearchResult struct {
	Mode     RetrievalMode `json:"mode"`
	Lexical  []DocHit      `json:"lexical,omitempty"`
	Semantic []ChunkHit    `json:"semantic,omitempty"`
	Hybrid   []ChunkHit    `json:"hybrid,omitempty"`
	// HybridFailOpen is set when the hybrid branch fell back to unrestricted semantic search.
	HybridFailOpen bool     `json:"hybrid_fail_open,omitempty"`
	Degraded       []string `json:"degraded,omitempty"`
}

// TrailNode is one ancestor of a chunk in the legal hierarchy.
type TrailNode struct {
	Kind  NodeKind `json:"kind"`
	ID    string   `json:"id"`
	Label string   `json:"label"`
}

// Trail lists a chunk's ancestors, root first.
type Trail struct {
	Nodes []TrailNode `json:"nodes"`
}

const UnknownTrailLabel = "unknown"

func UnknownTrail() *Trail {
	return &Trail{}
}

func (t *Trail) Known() bool {
	return t != nil && len(t.Nodes) > 0
}

func (t *Trail) String() string {
	if !t.Known() {
		return UnknownTrailLabel
	}
	labels := make([]string, 0, len(t.Nodes))
	for _, node := range t.Nodes {
		labels = append(labels, node.Label)
	}
	return strings.Join(labels, " > ")
}

// Label returns the label of the first node of the given kind.
func (t *Trail) Label(kind NodeKind) string {
	if t == nil {
		return ""
	}
	for _, node := range t.Nodes {
		if node.Kind == kind {
			return node.Label
		}
	}
	return ""
}

var trailDepth = map[NodeKind]int{
	KindLaw:       0,
	KindArticle:   1,
	KindParagraph: 2,
	KindInciso:    3,
}

// Validate checks that the trail starts at a law and descends strictly.
func (t *Trail) Validate() error {
	if !t.Known() {
		return WrapError(ErrDataIntegrity, "validate trail", fmt.Errorf("chunk has no ancestors"))
	}
	if t.Nodes[0].Kind != KindLaw {
		return WrapError(ErrDataIntegrity, "validate trail", fmt.Errorf("trail root is %s, want %s", t.Nodes[0].Kind, KindLaw))
	}
	prev := -1
	for _, node := range t.Nodes {
		depth, ok := trailDepth[node.Kind]
		if !ok {
			return WrapError(ErrDataIntegrity, "validate trail", fmt.Errorf("unexpected node kind %q", node.Kind))
		}
		if depth <= prev {
			return WrapError(ErrDataIntegrity, "validate trail", fmt.Errorf("node %s breaks hierarchy order", node.ID))
		}
		prev = depth
	}
	return nil
}

// ChunkContext is what the graph returns for a chunk: its trail and stored text.
type ChunkContext struct {
	Trail Trail
	Text  string
}

// RetrieveRequest asks for enriched evidence for a question.
type RetrieveRequest struct {
	Query string
	TopK  int
	// Hybrid restricts semantic search to laws matched lexically.
	Hybrid    bool
	FilterLaw string
	// CandidateSize bounds the lexical candidate set. Zero means max(20, 3*TopK).
	CandidateSize int
}

// Retrieval is the evidence found for a question, numbered from 1.
type Retrieval struct {
	Evidence       []Evidence
	HybridFailOpen bool
	Degraded       []string
}
