package vectorkb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/regulens/vectorkb/pkg/embedder"
	"github.com/regulens/vectorkb/pkg/graph"
	"github.com/regulens/vectorkb/pkg/learning"
	"github.com/regulens/vectorkb/pkg/lifecycle"
	"github.com/regulens/vectorkb/pkg/search"
	"github.com/regulens/vectorkb/pkg/store"
	"github.com/regulens/vectorkb/pkg/types"
)

// Config holds construction options for the Engine. The zero value (or nil)
// yields the standard configuration.
type Config struct {
	// Hybrid tunes the vector/keyword merge weights.
	Hybrid search.HybridConfig
	// Retention sets the expiry window per tier.
	Retention lifecycle.Windows
	// SweepInterval is the background expiry sweep cadence.
	SweepInterval time.Duration
	// DefaultRetention is assigned to entities stored without a tier.
	DefaultRetention types.RetentionPolicy
}

// Engine is the main implementation of the KnowledgeBase interface. Every
// dependency is injected; nothing here is a process-wide singleton, so tests
// and multi-tenant deployments can run engines side by side.
type Engine struct {
	store     *store.Store
	embedder  embedder.Client
	search    *search.Engine
	hybrid    *search.Hybrid
	graph     *graph.Manager
	lifecycle *lifecycle.Manager
	learning  *learning.Loop
	config    Config
	logger    *slog.Logger
}

// NewEngine creates an Engine over the given driver and embedding client.
func NewEngine(driver store.Driver, emb embedder.Client, config *Config, logger *slog.Logger) (*Engine, error) {
	if driver == nil {
		return nil, fmt.Errorf("vectorkb: storage driver is required")
	}
	if emb == nil {
		return nil, fmt.Errorf("vectorkb: embedding client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.Hybrid.VectorWeight <= 0 && cfg.Hybrid.KeywordWeight <= 0 {
		cfg.Hybrid = search.DefaultHybridConfig()
	}
	if cfg.Retention == (lifecycle.Windows{}) {
		cfg.Retention = lifecycle.DefaultWindows()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = lifecycle.DefaultSweepInterval
	}
	if !cfg.DefaultRetention.Valid() {
		cfg.DefaultRetention = types.RetentionPersistent
	}

	st := store.New(driver, emb.Dimensions(), logger)
	searchEngine := search.NewEngine(st, emb, logger)

	return &Engine{
		store:     st,
		embedder:  emb,
		search:    searchEngine,
		hybrid:    search.NewHybrid(searchEngine, st, cfg.Hybrid, logger),
		graph:     graph.NewManager(st, logger),
		lifecycle: lifecycle.NewManager(st, cfg.Retention, logger),
		learning:  learning.NewLoop(st, logger),
		config:    cfg,
		logger:    logger,
	}, nil
}

// Initialize prepares the backend schema and warms the in-memory indexes,
// then starts the background retention sweeper.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.store.Driver().Initialize(ctx); err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	if err := e.store.RebuildIndexes(ctx); err != nil {
		return fmt.Errorf("warm indexes: %w", err)
	}
	e.lifecycle.StartSweeper(e.config.SweepInterval)
	e.logger.Info("knowledge base initialized",
		"driver", e.store.Driver().Name(),
		"dimensions", e.store.Dimensions(),
		"entities", e.store.CacheStats().Entities)
	return nil
}

// Close stops the sweeper and releases backend and embedder resources.
func (e *Engine) Close() error {
	e.lifecycle.StopSweeper()
	if err := e.embedder.Close(); err != nil {
		e.logger.Warn("closing embedder failed", "error", err)
	}
	return e.store.Driver().Close()
}

// Store exposes the entity store for advanced callers and the HTTP facade.
func (e *Engine) Store() *store.Store { return e.store }

// StoreEntity persists a knowledge entity. Missing pieces are filled in: a
// generated id, timestamps, the default retention tier with its expiry, and
// an embedding computed from title and content.
func (e *Engine) StoreEntity(ctx context.Context, entity *types.KnowledgeEntity) error {
	if entity == nil {
		return fmt.Errorf("vectorkb: entity is nil")
	}
	if entity.EntityID == "" {
		entity.EntityID = uuid.NewString()
	}
	now := time.Now()
	isNew := entity.CreatedAt.IsZero()
	if isNew {
		entity.CreatedAt = now
	}
	if entity.LastAccessed.IsZero() {
		entity.LastAccessed = now
	}
	if entity.RetentionPolicy == "" {
		entity.RetentionPolicy = e.config.DefaultRetention
	}
	if entity.ExpiresAt.IsZero() {
		entity.ExpiresAt = e.lifecycle.ExpiryFor(entity.RetentionPolicy)
	}
	// Only brand-new records get the neutral default; a re-stored or imported
	// record may carry a deliberate zero score.
	if isNew && entity.ConfidenceScore == 0 {
		entity.ConfidenceScore = 0.5
	}

	if len(entity.Embedding) == 0 {
		text := entity.Title
		if entity.Content != "" {
			text = text + " " + entity.Content
		}
		embedding, err := e.embedder.EmbedSingle(ctx, text)
		if err != nil {
			return fmt.Errorf("embed entity %s: %w", entity.EntityID, err)
		}
		entity.Embedding = embedding
	}

	return e.store.Store(ctx, entity)
}

// StoreEntities persists a batch, aborting on the first failure.
func (e *Engine) StoreEntities(ctx context.Context, entities []*types.KnowledgeEntity) error {
	for _, entity := range entities {
		if err := e.StoreEntity(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

// GetEntity retrieves one entity. Returns store.ErrNotFound when absent.
func (e *Engine) GetEntity(ctx context.Context, entityID string) (*types.KnowledgeEntity, error) {
	return e.store.Get(ctx, entityID)
}

// GetEntities retrieves a batch, skipping missing ids.
func (e *Engine) GetEntities(ctx context.Context, entityIDs []string) ([]*types.KnowledgeEntity, error) {
	return e.store.GetBatch(ctx, entityIDs)
}

// UpdateEntity applies a partial update and re-persists the entity. A
// changed title or content leaves the stored embedding untouched; callers
// that need it refreshed clear it via RefreshEmbedding.
func (e *Engine) UpdateEntity(ctx context.Context, entityID string, update types.EntityUpdate) error {
	return e.store.Update(ctx, entityID, update)
}

// UpdateEntityConfidence applies a confidence delta, clamped to [0, 1], and
// returns the new score. Returns store.ErrNotFound for an unknown entity.
func (e *Engine) UpdateEntityConfidence(ctx context.Context, entityID string, delta float64) (float64, error) {
	return e.store.UpdateConfidence(ctx, entityID, delta)
}

// RefreshEmbedding recomputes an entity's embedding from its current text.
func (e *Engine) RefreshEmbedding(ctx context.Context, entityID string) error {
	entity, err := e.store.Get(ctx, entityID)
	if err != nil {
		return err
	}
	embedding, err := e.embedder.EmbedSingle(ctx, entity.Title+" "+entity.Content)
	if err != nil {
		return fmt.Errorf("embed entity %s: %w", entityID, err)
	}
	entity.Embedding = embedding
	return e.store.Store(ctx, entity)
}

// DeleteEntity removes an entity and every relationship referencing it.
func (e *Engine) DeleteEntity(ctx context.Context, entityID string) error {
	return e.store.Delete(ctx, entityID)
}

// Search runs a semantic similarity query. It degrades to an empty list on
// failure and never returns an error.
func (e *Engine) Search(ctx context.Context, query types.SemanticQuery) []types.QueryResult {
	return e.search.Search(ctx, query)
}

// HybridSearch merges vector and keyword rankings under the configured
// weights. Like Search it never returns an error.
func (e *Engine) HybridSearch(ctx context.Context, query types.SemanticQuery) []types.QueryResult {
	return e.hybrid.Search(ctx, query)
}

// CreateRelationship stores a typed directed edge between two entities.
func (e *Engine) CreateRelationship(ctx context.Context, rel *types.Relationship) error {
	return e.graph.CreateRelationship(ctx, rel)
}

// GetRelated returns entities reachable within maxDepth hops, breadth-first.
func (e *Engine) GetRelated(ctx context.Context, entityID, relType string, maxDepth int) ([]*types.KnowledgeEntity, error) {
	return e.graph.Related(ctx, entityID, relType, maxDepth)
}

// GetKnowledgeGraph extracts the subgraph around an entity.
func (e *Engine) GetKnowledgeGraph(ctx context.Context, entityID string, radius int) (*types.KnowledgeGraph, error) {
	return e.graph.Graph(ctx, entityID, radius)
}

// SetRetentionPolicy moves an entity to a tier and recomputes its expiry.
func (e *Engine) SetRetentionPolicy(ctx context.Context, entityID string, policy types.RetentionPolicy) error {
	return e.lifecycle.SetPolicy(ctx, entityID, policy)
}

// CleanupExpired sweeps every retention tier once, returning deleted counts.
func (e *Engine) CleanupExpired(ctx context.Context) map[types.RetentionPolicy]int {
	return e.lifecycle.CleanupExpired(ctx)
}

// RecordInteraction feeds one usage outcome into the learning loop.
func (e *Engine) RecordInteraction(ctx context.Context, interaction types.Interaction) error {
	return e.learning.RecordInteraction(ctx, interaction)
}

// ReinforceEntities nudges confidence up for entities confirmed useful.
func (e *Engine) ReinforceEntities(ctx context.Context, entityIDs []string) error {
	return e.learning.Reinforce(ctx, entityIDs)
}

// GetRecommendations surfaces heavily used, low-confidence entities for
// human curation. Empty domain means all domains.
func (e *Engine) GetRecommendations(ctx context.Context, domain types.Domain) []*types.KnowledgeEntity {
	return e.learning.Recommendations(ctx, domain)
}

// OptimizeStorage runs backend maintenance and resynchronizes the indexes.
func (e *Engine) OptimizeStorage(ctx context.Context) error {
	if err := e.store.Driver().Optimize(ctx); err != nil {
		return fmt.Errorf("optimize storage: %w", err)
	}
	return e.store.RebuildIndexes(ctx)
}
