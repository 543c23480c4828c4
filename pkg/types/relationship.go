package types

import (
	"fmt"
	"time"
)

// Relationship is a directed typed edge between two entities. The
// (source, target, type) triple is the unique key; storing an existing triple
// replaces its properties (last write wins).
type Relationship struct {
	SourceID   string         `json:"source_entity_id"`
	TargetID   string         `json:"target_entity_id"`
	Type       string         `json:"relationship_type"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Key returns the unique identity of the edge.
func (r *Relationship) Key() string {
	return r.SourceID + "\x00" + r.TargetID + "\x00" + r.Type
}

// Validate checks the edge is structurally usable.
func (r *Relationship) Validate() error {
	if r.SourceID == "" || r.TargetID == "" {
		return fmt.Errorf("relationship is missing source or target id")
	}
	if r.Type == "" {
		return fmt.Errorf("relationship %s -> %s is missing a type", r.SourceID, r.TargetID)
	}
	if r.SourceID == r.TargetID {
		return fmt.Errorf("relationship on %s is self-referential", r.SourceID)
	}
	return nil
}

// GraphNode is one vertex of an extracted knowledge subgraph.
type GraphNode struct {
	ID     string        `json:"id"`
	Label  string        `json:"label"`
	Type   KnowledgeType `json:"type"`
	Domain Domain        `json:"domain"`
}

// GraphEdge is one edge of an extracted knowledge subgraph.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// KnowledgeGraph is the subgraph returned by a bounded breadth-first
// traversal: no duplicate nodes, edges restricted to traversed hops.
type KnowledgeGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}
