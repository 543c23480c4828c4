package store

import (
	"context"
	"errors"
	"time"

	"github.com/regulens/vectorkb/pkg/types"
)

var (
	// ErrNotFound is returned when an entity or relationship does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConnection is returned when the storage backend is unreachable or
	// its connection pool is exhausted.
	ErrConnection = errors.New("storage connection failed")
	// ErrSerialization is returned when a stored record cannot be decoded.
	ErrSerialization = errors.New("stored record is corrupt")
)

// ScoredID is an entity id with a backend-computed similarity score.
type ScoredID struct {
	EntityID string
	Score    float64
}

// PolicyStats counts entities under one retention tier.
type PolicyStats struct {
	Total   int64 `json:"total_count"`
	Expired int64 `json:"expired_count"`
}

// DriverStats summarizes backend contents for memory statistics.
type DriverStats struct {
	Entities      int64                                 `json:"entities"`
	Relationships int64                                 `json:"relationships"`
	Interactions  int64                                 `json:"interactions"`
	ByPolicy      map[types.RetentionPolicy]PolicyStats `json:"by_policy"`
}

// Driver is the row-oriented storage backend contract: an entities table and
// a relationships table keyed as in the platform schema. Implementations
// translate backend errors into the package sentinels.
type Driver interface {
	// Initialize creates tables/buckets and indexes as needed.
	Initialize(ctx context.Context) error
	// Close releases backend resources.
	Close() error
	// Name identifies the backend ("postgres", "badger").
	Name() string

	// UpsertEntity inserts or fully replaces an entity row.
	UpsertEntity(ctx context.Context, entity *types.KnowledgeEntity) error
	// GetEntity loads one entity. Returns ErrNotFound if absent.
	GetEntity(ctx context.Context, entityID string) (*types.KnowledgeEntity, error)
	// GetEntities loads a batch; ids that are missing or corrupt are skipped.
	GetEntities(ctx context.Context, entityIDs []string) ([]*types.KnowledgeEntity, error)
	// DeleteEntity removes an entity and, atomically with it, every
	// relationship referencing it. Returns ErrNotFound if absent.
	DeleteEntity(ctx context.Context, entityID string) error
	// ScanEntities streams every decodable entity row; corrupt rows are
	// skipped after logging, per the serialization error policy.
	ScanEntities(ctx context.Context, fn func(*types.KnowledgeEntity) error) error
	// TouchEntities increments access_count and stamps last_accessed for the
	// given ids in one backend round trip.
	TouchEntities(ctx context.Context, entityIDs []string, accessedAt time.Time) error
	// UpdateConfidence applies a clamped confidence delta and returns the new
	// score. The clamp to [0,1] is mandatory on every implementation.
	UpdateConfidence(ctx context.Context, entityID string, delta float64) (float64, error)
	// SetRetention updates the retention tier and recomputed expiry.
	SetRetention(ctx context.Context, entityID string, policy types.RetentionPolicy, expiresAt time.Time) error
	// DeleteExpired removes every entity under the given policy whose expiry
	// is before now, cascading relationships, and returns the deleted ids.
	DeleteExpired(ctx context.Context, policy types.RetentionPolicy, now time.Time) ([]string, error)

	// UpsertRelationship inserts or replaces the (source, target, type) edge.
	UpsertRelationship(ctx context.Context, rel *types.Relationship) error
	// DeleteRelationship removes the (source, target, type) edge. Returns
	// ErrNotFound if absent.
	DeleteRelationship(ctx context.Context, sourceID, targetID, relType string) error
	// RelationshipsFrom lists outgoing edges of an entity.
	RelationshipsFrom(ctx context.Context, sourceID string) ([]*types.Relationship, error)
	// ScanRelationships streams every edge row.
	ScanRelationships(ctx context.Context, fn func(*types.Relationship) error) error

	// InsertInteraction appends a learning interaction record.
	InsertInteraction(ctx context.Context, interaction *types.Interaction) error

	// Stats reports backend row counts for memory statistics.
	Stats(ctx context.Context) (*DriverStats, error)
	// Optimize runs backend-specific maintenance (vacuum, value-log GC).
	Optimize(ctx context.Context) error
}

// VectorSearcher is an optional driver capability: native nearest-neighbor
// ordering by the backend's vector index. The search engine type-asserts for
// it and falls back to in-process scoring when unsupported.
type VectorSearcher interface {
	// SearchByEmbedding returns up to limit ids ranked by similarity under
	// the given metric, optionally restricted to one domain.
	SearchByEmbedding(ctx context.Context, embedding []float32, metric types.SimilarityMetric, domain types.Domain, limit int) ([]ScoredID, error)
}
