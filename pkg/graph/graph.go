// Package graph maintains the typed relationship graph between knowledge
// entities and answers bounded traversal queries over it.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/regulens/vectorkb/pkg/store"
	"github.com/regulens/vectorkb/pkg/types"
)

// MaxTraversalDepth bounds every breadth-first walk. Deeper requests are
// clamped rather than rejected; compliance graphs are shallow and a runaway
// depth on a cyclic graph would only burn CPU for no new nodes.
const MaxTraversalDepth = 5

// Manager owns relationship writes and graph traversals.
type Manager struct {
	store  *store.Store
	logger *slog.Logger
}

// NewManager wires the graph manager over the entity store.
func NewManager(st *store.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: st, logger: logger}
}

// CreateRelationship stores a directed typed edge. Both endpoints must exist;
// a dangling edge is rejected with ErrNotFound. Re-storing an existing
// (source, target, type) triple replaces its properties.
func (m *Manager) CreateRelationship(ctx context.Context, rel *types.Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	if _, err := m.store.Get(ctx, rel.SourceID); err != nil {
		return fmt.Errorf("relationship source: %w", err)
	}
	if _, err := m.store.Get(ctx, rel.TargetID); err != nil {
		return fmt.Errorf("relationship target: %w", err)
	}

	now := time.Now()
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = now
	}
	rel.UpdatedAt = now

	if err := m.store.Driver().UpsertRelationship(ctx, rel); err != nil {
		return fmt.Errorf("create relationship %s -> %s: %w", rel.SourceID, rel.TargetID, err)
	}
	return nil
}

// Related returns the entities reachable from entityID within maxDepth hops,
// in breadth-first discovery order. relType, when non-empty, restricts the
// traversal to edges of that type. The start entity itself is not included.
// A cyclic graph terminates because visited ids are never re-expanded.
func (m *Manager) Related(ctx context.Context, entityID, relType string, maxDepth int) ([]*types.KnowledgeEntity, error) {
	if maxDepth <= 0 {
		maxDepth = 1
	}
	if maxDepth > MaxTraversalDepth {
		maxDepth = MaxTraversalDepth
	}
	if _, err := m.store.Get(ctx, entityID); err != nil {
		return nil, fmt.Errorf("traversal root: %w", err)
	}

	visited := map[string]struct{}{entityID: {}}
	frontier := []string{entityID}
	var discovered []string

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			edges, err := m.store.Driver().RelationshipsFrom(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("expand %s: %w", id, err)
			}
			for _, edge := range edges {
				if relType != "" && edge.Type != relType {
					continue
				}
				if _, seen := visited[edge.TargetID]; seen {
					continue
				}
				visited[edge.TargetID] = struct{}{}
				discovered = append(discovered, edge.TargetID)
				next = append(next, edge.TargetID)
			}
		}
		frontier = next
	}

	if len(discovered) == 0 {
		return nil, nil
	}
	entities, err := m.store.GetBatch(ctx, discovered)
	if err != nil {
		return nil, fmt.Errorf("hydrate related entities: %w", err)
	}
	return orderByDiscovery(entities, discovered), nil
}

// Graph extracts the subgraph within radius hops of rootID: deduplicated
// nodes plus every traversed edge. Edges between two already-visited nodes
// are still recorded, so the subgraph is faithful to the stored topology.
func (m *Manager) Graph(ctx context.Context, rootID string, radius int) (*types.KnowledgeGraph, error) {
	if radius <= 0 {
		radius = 2
	}
	if radius > MaxTraversalDepth {
		radius = MaxTraversalDepth
	}
	root, err := m.store.Get(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("graph root: %w", err)
	}

	kg := &types.KnowledgeGraph{
		Nodes: []types.GraphNode{nodeFor(root)},
	}
	seenEdges := make(map[string]struct{})
	visited := map[string]struct{}{rootID: {}}
	frontier := []string{rootID}

	for depth := 0; depth < radius && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			edges, err := m.store.Driver().RelationshipsFrom(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("expand %s: %w", id, err)
			}
			for _, edge := range edges {
				if _, dup := seenEdges[edge.Key()]; dup {
					continue
				}
				seenEdges[edge.Key()] = struct{}{}
				kg.Edges = append(kg.Edges, types.GraphEdge{
					Source: edge.SourceID,
					Target: edge.TargetID,
					Type:   edge.Type,
				})

				if _, seen := visited[edge.TargetID]; seen {
					continue
				}
				visited[edge.TargetID] = struct{}{}
				target, err := m.store.Get(ctx, edge.TargetID)
				if err != nil {
					// Edge to a row deleted mid-walk; keep the edge out of
					// the node list and continue.
					m.logger.Warn("graph edge points at missing entity",
						"source", edge.SourceID, "target", edge.TargetID, "error", err)
					continue
				}
				kg.Nodes = append(kg.Nodes, nodeFor(target))
				next = append(next, edge.TargetID)
			}
		}
		frontier = next
	}
	return kg, nil
}

// Relationships lists the outgoing edges of one entity.
func (m *Manager) Relationships(ctx context.Context, entityID string) ([]*types.Relationship, error) {
	return m.store.Driver().RelationshipsFrom(ctx, entityID)
}

func nodeFor(entity *types.KnowledgeEntity) types.GraphNode {
	label := entity.Title
	if label == "" {
		label = entity.EntityID
	}
	return types.GraphNode{
		ID:     entity.EntityID,
		Label:  label,
		Type:   entity.KnowledgeType,
		Domain: entity.Domain,
	}
}

// orderByDiscovery restores breadth-first order after a batch hydrate, which
// may drop ids and does not preserve order.
func orderByDiscovery(entities []*types.KnowledgeEntity, order []string) []*types.KnowledgeEntity {
	byID := make(map[string]*types.KnowledgeEntity, len(entities))
	for _, entity := range entities {
		byID[entity.EntityID] = entity
	}
	out := make([]*types.KnowledgeEntity, 0, len(entities))
	for _, id := range order {
		if entity, ok := byID[id]; ok {
			out = append(out, entity)
		}
	}
	return out
}
