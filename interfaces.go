package vectorkb

import (
	"context"

	"github.com/regulens/vectorkb/pkg/types"
)

// This file defines focused interfaces following the Interface Segregation
// Principle. The KnowledgeBase interface composes them; consumers should
// depend on the smallest interface that meets their needs.

// EntityManager provides CRUD operations on knowledge entities.
type EntityManager interface {
	// StoreEntity persists an entity, generating id, timestamps, retention
	// expiry, and embedding as needed.
	StoreEntity(ctx context.Context, entity *types.KnowledgeEntity) error

	// StoreEntities persists a batch, aborting on the first failure.
	StoreEntities(ctx context.Context, entities []*types.KnowledgeEntity) error

	// GetEntity retrieves one entity; store.ErrNotFound when absent.
	GetEntity(ctx context.Context, entityID string) (*types.KnowledgeEntity, error)

	// GetEntities retrieves a batch, skipping missing ids.
	GetEntities(ctx context.Context, entityIDs []string) ([]*types.KnowledgeEntity, error)

	// UpdateEntity applies a partial update.
	UpdateEntity(ctx context.Context, entityID string, update types.EntityUpdate) error

	// UpdateEntityConfidence applies a clamped confidence delta and returns
	// the new score.
	UpdateEntityConfidence(ctx context.Context, entityID string, delta float64) (float64, error)

	// DeleteEntity removes an entity and cascades its relationships.
	DeleteEntity(ctx context.Context, entityID string) error
}

// Searcher provides the read-only query surface. Both methods degrade to an
// empty result list on backend failure instead of returning an error.
type Searcher interface {
	// Search runs a semantic similarity query.
	Search(ctx context.Context, query types.SemanticQuery) []types.QueryResult

	// HybridSearch merges vector and keyword rankings under fixed weights.
	HybridSearch(ctx context.Context, query types.SemanticQuery) []types.QueryResult
}

// GraphManager provides relationship writes and bounded graph traversals.
type GraphManager interface {
	// CreateRelationship stores a typed directed edge; both endpoints must exist.
	CreateRelationship(ctx context.Context, rel *types.Relationship) error

	// GetRelated returns entities within maxDepth hops, breadth-first.
	GetRelated(ctx context.Context, entityID, relType string, maxDepth int) ([]*types.KnowledgeEntity, error)

	// GetKnowledgeGraph extracts the deduplicated subgraph around an entity.
	GetKnowledgeGraph(ctx context.Context, entityID string, radius int) (*types.KnowledgeGraph, error)
}

// MemoryManager provides retention tiering and expiry sweeps.
type MemoryManager interface {
	// SetRetentionPolicy moves an entity to a tier, recomputing expiry.
	SetRetentionPolicy(ctx context.Context, entityID string, policy types.RetentionPolicy) error

	// CleanupExpired sweeps every tier once, returning deleted counts.
	CleanupExpired(ctx context.Context) map[types.RetentionPolicy]int

	// GetMemoryStatistics reports per-tier and backend counts.
	GetMemoryStatistics(ctx context.Context) (*MemoryStatistics, error)
}

// FeedbackManager provides the learning loop surface.
type FeedbackManager interface {
	// RecordInteraction feeds one usage outcome into the loop.
	RecordInteraction(ctx context.Context, interaction types.Interaction) error

	// ReinforceEntities nudges confidence up for confirmed-useful entities.
	ReinforceEntities(ctx context.Context, entityIDs []string) error

	// GetRecommendations surfaces heavily used, low-confidence entities,
	// optionally scoped to one domain.
	GetRecommendations(ctx context.Context, domain types.Domain) []*types.KnowledgeEntity
}

// SnapshotManager provides full export and all-or-nothing import.
type SnapshotManager interface {
	// Export produces a snapshot of all entities and relationships.
	Export(ctx context.Context) (*types.Snapshot, error)

	// Import loads a snapshot; either every record lands or none do.
	Import(ctx context.Context, snapshot *types.Snapshot) error
}

// Admin provides lifecycle and maintenance operations.
type Admin interface {
	// Initialize prepares the backend and warms indexes.
	Initialize(ctx context.Context) error

	// OptimizeStorage runs backend maintenance and index resync.
	OptimizeStorage(ctx context.Context) error

	// Close releases all resources.
	Close() error
}

// KnowledgeBase is the full engine surface.
type KnowledgeBase interface {
	EntityManager
	Searcher
	GraphManager
	MemoryManager
	FeedbackManager
	SnapshotManager
	Admin
}

// Compile-time check that Engine satisfies the composed interface.
var _ KnowledgeBase = (*Engine)(nil)
