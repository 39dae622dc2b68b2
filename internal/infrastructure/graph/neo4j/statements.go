package neo4j

import (
	"fmt"

	"github.com/gmontinny/ia-rag/internal/core/domain"
)

type statement struct {
	query  string
	params map[string]any
}

type edgeKey struct {
	parent domain.NodeKind
	child  domain.NodeKind
}

// buildReplaceStatements turns a segmentation into the ordered writes of one transaction:
// delete the old subtree, upsert nodes per label, link structural edges, then chunks.
func buildReplaceStatements(seg domain.Segmentation) ([]statement, error) {
	law := seg.Law
	kinds := make(map[string]domain.NodeKind, len(seg.Nodes))
	for _, n := range seg.Nodes {
		kinds[n.ID] = n.Kind
	}

	statements := []statement{
		{query: deleteSubtreeQuery, params: map[string]any{"law_id": law.ID}},
		{query: upsertLawQuery, params: map[string]any{
			"law_id": law.ID,
			"title":  law.Title,
			"type":   law.Type,
			"date":   law.Date,
			"label":  law.Label(),
		}},
	}

	nodeRows := make(map[domain.NodeKind][]map[string]any)
	edgeRows := make(map[edgeKey][]map[string]any)
	var edgeOrder []edgeKey
	for _, n := range seg.Nodes {
		if n.Kind == domain.KindLaw {
			continue
		}
		parentKind, ok := kinds[n.ParentID]
		if !ok {
			return nil, domain.WrapError(domain.ErrDataIntegrity, "neo4j replace law", fmt.Errorf("node %s has unknown parent %s", n.ID, n.ParentID))
		}
		nodeRows[n.Kind] = append(nodeRows[n.Kind], map[string]any{
			"id":    n.ID,
			"num":   n.Number,
			"label": n.Label,
			"start": int64(n.Start),
			"end":   int64(n.End),
		})
		key := edgeKey{parent: parentKind, child: n.Kind}
		if _, seen := edgeRows[key]; !seen {
			edgeOrder = append(edgeOrder, key)
		}
		edgeRows[key] = append(edgeRows[key], map[string]any{"parent": n.ParentID, "child": n.ID})
	}

	for _, kind := range structuralKinds[1:] {
		rows := nodeRows[kind]
		if len(rows) == 0 {
			continue
		}
		statements = append(statements, statement{
			query: fmt.Sprintf(`UNWIND $rows AS row
MERGE (n:%s {id: row.id})
SET n.law_id = $law_id, n.num = row.num, n.label = row.label, n.start = row.start, n.end = row.end`, kind),
			params: map[string]any{"rows": rows, "law_id": law.ID},
		})
	}

	for _, key := range edgeOrder {
		statements = append(statements, statement{
			query: fmt.Sprintf(`UNWIND $rows AS row
MATCH (p:%s {id: row.parent})
MATCH (c:%s {id: row.child})
MERGE (p)-[:%s]->(c)`, key.parent, key.child, edgeType(key.child)),
			params: map[string]any{"rows": edgeRows[key]},
		})
	}

	chunkRows := make(map[domain.NodeKind][]map[string]any)
	for _, ch := range seg.Chunks {
		if err := ch.Payload().Validate(); err != nil {
			return nil, err
		}
		parentID := ch.ParentID()
		parentKind, ok := kinds[parentID]
		if !ok {
			return nil, domain.WrapError(domain.ErrDataIntegrity, "neo4j replace law", fmt.Errorf("chunk %s has unknown parent %s", ch.ID, parentID))
		}
		chunkRows[parentKind] = append(chunkRows[parentKind], map[string]any{
			"id":     ch.ID,
			"parent": parentID,
			"text":   ch.Text,
			"start":  int64(ch.Start),
			"end":    int64(ch.End),
		})
	}
	for _, kind := range structuralKinds {
		rows := chunkRows[kind]
		if len(rows) == 0 {
			continue
		}
		statements = append(statements, statement{
			query: fmt.Sprintf(`UNWIND $rows AS row
MATCH (p:%s {id: row.parent})
MERGE (c:Chunk {id: row.id})
SET c.law_id = $law_id, c.text = row.text, c.start = row.start, c.end = row.end
MERGE (p)-[:%s]->(c)`, kind, domain.EdgeHasChunk),
			params: map[string]any{"rows": rows, "law_id": law.ID},
		})
	}
	return statements, nil
}

func edgeType(child domain.NodeKind) string {
	switch child {
	case domain.KindArticle:
		return domain.EdgeHasArticle
	case domain.KindParagraph:
		return domain.EdgeHasParagraph
	case domain.KindInciso:
		return domain.EdgeHasInciso
	default:
		return domain.EdgeHasChunk
	}
}

// contextFromRecord decodes the chunk context row. The trail is returned as stored;
// validating its shape is the caller's job.
func contextFromRecord(text, trail any) (*domain.ChunkContext, error) {
	out := &domain.ChunkContext{}
	if s, ok := text.(string); ok {
		out.Text = s
	}
	if trail == nil {
		return out, nil
	}
	items, ok := trail.([]any)
	if !ok {
		return nil, domain.WrapError(domain.ErrDataIntegrity, "decode chunk trail", fmt.Errorf("unexpected trail type %T", trail))
	}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, domain.WrapError(domain.ErrDataIntegrity, "decode chunk trail", fmt.Errorf("unexpected trail node type %T", item))
		}
		kind, _ := m["kind"].(string)
		id, _ := m["id"].(string)
		label, _ := m["label"].(string)
		out.Trail.Nodes = append(out.Trail.Nodes, domain.TrailNode{Kind: domain.NodeKind(kind), ID: id, Label: label})
	}
	return out, nil
}

func neighborFromValues(id, text any) (domain.Neighbor, error) {
	chunkID, ok := id.(string)
	if !ok || chunkID == "" {
		return domain.Neighbor{}, domain.WrapError(domain.ErrDataIntegrity, "neo4j neighbors", fmt.Errorf("neighbor without chunk id: %v", id))
	}
	body, _ := text.(string)
	return domain.Neighbor{ChunkID: chunkID, Text: body}, nil
}
