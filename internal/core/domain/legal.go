package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type NodeKind string

const (
	KindLaw       NodeKind = "Law"
	KindArticle   NodeKind = "Article"
	KindParagraph NodeKind = "Paragraph"
	KindInciso    NodeKind = "Inciso"
	KindChunk     NodeKind = "Chunk"
)

// Graph edge types.
const (
	EdgeHasArticle   = "HAS_ARTICLE"
	EdgeHasParagraph = "HAS_PARAGRAPH"
	EdgeHasInciso    = "HAS_INCISO"
	EdgeHasChunk     = "HAS_CHUNK"
)

// SingleParagraph is the paragraph number recorded for "Parágrafo único".
const SingleParagraph = "unico"

const chunkSegmentPrefix = "chunk_"

// Law is the root of the legal hierarchy.
type Law struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title,omitempty" yaml:"title"`
	Type  string `json:"type,omitempty" yaml:"type"`
	Date  string `json:"date,omitempty" yaml:"date"`
}

func (l Law) Label() string {
	if strings.TrimSpace(l.Title) != "" {
		return strings.TrimSpace(l.Title)
	}
	return l.ID
}

func ValidateLawID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return WrapError(ErrInvalidInput, "validate law id", fmt.Errorf("law id is required"))
	}
	if strings.ContainsAny(id, ": \t\n") {
		return WrapError(ErrInvalidInput, "validate law id", fmt.Errorf("law id %q must not contain ':' or whitespace", id))
	}
	return nil
}

// LegalPath locates a structural node inside a law. Empty levels are absent.
type LegalPath struct {
	LawID     string `json:"law_id"`
	Article   string `json:"article,omitempty"`
	Paragraph string `json:"paragraph,omitempty"`
	Inciso    string `json:"inciso,omitempty"`
}

// Kind returns the kind of the most specific level present.
func (p LegalPath) Kind() NodeKind {
	switch {
	case p.Inciso != "":
		return KindInciso
	case p.Paragraph != "":
		return KindParagraph
	case p.Article != "":
		return KindArticle
	default:
		return KindLaw
	}
}

// NodeID renders identifiers such as L9784, L9784:Art15, L9784:Art15:§1 and L9784:Art15:§1:III.
func (p LegalPath) NodeID() string {
	var b strings.Builder
	b.WriteString(p.LawID)
	if p.Article != "" {
		b.WriteString(":Art")
		b.WriteString(p.Article)
	}
	if p.Paragraph != "" {
		b.WriteString(":§")
		b.WriteString(p.Paragraph)
	}
	if p.Inciso != "" {
		b.WriteString(":")
		b.WriteString(p.Inciso)
	}
	return b.String()
}

// Parent drops the most specific level. The parent of a law path is itself.
func (p LegalPath) Parent() LegalPath {
	switch {
	case p.Inciso != "":
		p.Inciso = ""
	case p.Paragraph != "":
		p.Paragraph = ""
	default:
		p.Article = ""
	}
	return p
}

// CommonAncestor returns the deepest path shared by p and other.
func (p LegalPath) CommonAncestor(other LegalPath) LegalPath {
	out := LegalPath{LawID: p.LawID}
	if p.LawID != other.LawID {
		return out
	}
	if p.Article != other.Article {
		return out
	}
	out.Article = p.Article
	if p.Paragraph != other.Paragraph {
		return out
	}
	out.Paragraph = p.Paragraph
	if p.Inciso != other.Inciso {
		return out
	}
	out.Inciso = p.Inciso
	return out
}

// Labels returns one display label per level, root first.
func (p LegalPath) Labels(law Law) []string {
	out := []string{law.Label()}
	if p.Article != "" {
		out = append(out, ArticleLabel(p.Article))
	}
	if p.Paragraph != "" {
		out = append(out, ParagraphLabel(p.Paragraph))
	}
	if p.Inciso != "" {
		out = append(out, IncisoLabel(p.Inciso))
	}
	return out
}

func ArticleLabel(number string) string {
	return "Art. " + ordinal(number)
}

func ParagraphLabel(number string) string {
	if number == SingleParagraph {
		return "Parágrafo único"
	}
	return "§ " + ordinal(number)
}

// ordinal follows legislative drafting: units take the ordinal sign, 10 onwards is cardinal.
func ordinal(number string) string {
	n, err := strconv.Atoi(number)
	if err != nil || n >= 10 {
		return number
	}
	return number + "º"
}

func IncisoLabel(numeral string) string {
	return "Inciso " + numeral
}

// ChunkID renders {node_id}:chunk_{seq}.
func ChunkID(path LegalPath, seq int) string {
	return path.NodeID() + ":" + chunkSegmentPrefix + strconv.Itoa(seq)
}

// ParseChunkID recovers the attachment path and sequence number from a chunk identifier.
func ParseChunkID(id string) (LegalPath, int, error) {
	parts := strings.Split(id, ":")
	if len(parts) < 2 {
		return LegalPath{}, 0, WrapError(ErrDataIntegrity, "parse chunk id", fmt.Errorf("malformed chunk id %q", id))
	}
	last := parts[len(parts)-1]
	if !strings.HasPrefix(last, chunkSegmentPrefix) {
		return LegalPath{}, 0, WrapError(ErrDataIntegrity, "parse chunk id", fmt.Errorf("malformed chunk id %q", id))
	}
	seq, err := strconv.Atoi(strings.TrimPrefix(last, chunkSegmentPrefix))
	if err != nil || seq < 0 {
		return LegalPath{}, 0, WrapError(ErrDataIntegrity, "parse chunk id", fmt.Errorf("malformed chunk sequence in %q", id))
	}

	path := LegalPath{LawID: parts[0]}
	if path.LawID == "" {
		return LegalPath{}, 0, WrapError(ErrDataIntegrity, "parse chunk id", fmt.Errorf("missing law id in %q", id))
	}
	for _, segment := range parts[1 : len(parts)-1] {
		switch {
		case strings.HasPrefix(segment, "Art") && path.Article == "" && path.Paragraph == "" && path.Inciso == "":
			path.Article = strings.TrimPrefix(segment, "Art")
		case strings.HasPrefix(segment, "§") && path.Paragraph == "" && path.Inciso == "":
			path.Paragraph = strings.TrimPrefix(segment, "§")
		case segment != "" && path.Inciso == "":
			path.Inciso = segment
		default:
			return LegalPath{}, 0, WrapError(ErrDataIntegrity, "parse chunk id", fmt.Errorf("unexpected segment %q in %q", segment, id))
		}
	}
	return path, seq, nil
}

// StructuralNode is a Law, Article, Paragraph or Inciso discovered during segmentation.
type StructuralNode struct {
	ID       string   `json:"id"`
	Kind     NodeKind `json:"kind"`
	ParentID string   `json:"parent_id,omitempty"`
	Number   string   `json:"number,omitempty"`
	Label    string   `json:"label"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
}

// Chunk is a retrievable unit of text attached to exactly one structural node.
type Chunk struct {
	ID     string    `json:"id"`
	Path   LegalPath `json:"path"`
	Seq    int       `json:"seq"`
	Text   string    `json:"text"`
	Start  int       `json:"start_offset"`
	End    int       `json:"end_offset"`
	Vector []float32 `json:"-"`
}

func (c Chunk) ParentID() string {
	return c.Path.NodeID()
}

func (c Chunk) Payload() ChunkPayload {
	return ChunkPayload{
		LawID:       c.Path.LawID,
		Article:     c.Path.Article,
		Paragraph:   c.Path.Paragraph,
		Inciso:      c.Path.Inciso,
		ChunkID:     c.ID,
		StartOffset: c.Start,
		EndOffset:   c.End,
	}
}

// ChunkPayload is the metadata stored next to each vector.
type ChunkPayload struct {
	LawID       string `json:"law_id"`
	Article     string `json:"article,omitempty"`
	Paragraph   string `json:"paragraph,omitempty"`
	Inciso      string `json:"inciso,omitempty"`
	ChunkID     string `json:"chunk_id"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

func (p ChunkPayload) Path() LegalPath {
	return LegalPath{LawID: p.LawID, Article: p.Article, Paragraph: p.Paragraph, Inciso: p.Inciso}
}

// Validate rejects payloads whose chunk id disagrees with the structural fields.
func (p ChunkPayload) Validate() error {
	if strings.TrimSpace(p.LawID) == "" {
		return WrapError(ErrDataIntegrity, "validate chunk payload", fmt.Errorf("law_id is empty"))
	}
	if strings.TrimSpace(p.ChunkID) == "" {
		return WrapError(ErrDataIntegrity, "validate chunk payload", fmt.Errorf("chunk_id is empty"))
	}
	if p.StartOffset < 0 || p.EndOffset <= p.StartOffset {
		return WrapError(ErrDataIntegrity, "validate chunk payload", fmt.Errorf("invalid offsets [%d,%d) for %s", p.StartOffset, p.EndOffset, p.ChunkID))
	}
	path, _, err := ParseChunkID(p.ChunkID)
	if err != nil {
		return err
	}
	if path != p.Path() {
		return WrapError(ErrDataIntegrity, "validate chunk payload", fmt.Errorf("chunk id %s does not match path %s", p.ChunkID, p.Path().NodeID()))
	}
	return nil
}

// SourceDocument is the extracted text of one law ready for segmentation.
type SourceDocument struct {
	Law        Law
	Text       string
	SourcePath string
}

// Segmentation is the segmenter output for one law.
type Segmentation struct {
	Law    Law              `json:"law"`
	Nodes  []StructuralNode `json:"nodes"`
	Chunks []Chunk          `json:"chunks"`
}
