package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/regulens/vectorkb/pkg/types"
)

// Store is the entity store: driver-backed persistence with a write-through,
// load-through in-memory mirror and synchronous inverted indexes.
type Store struct {
	driver     Driver
	logger     *slog.Logger
	slab       *slab
	dimensions int

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// CacheStats is a point-in-time view of the mirror's counters.
type CacheStats struct {
	Entities int   `json:"entities"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
}

// New creates a Store over the given driver. dimensions is the embedding
// width entities are validated against.
func New(driver Driver, dimensions int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if dimensions <= 0 {
		dimensions = types.DefaultEmbeddingDimensions
	}
	return &Store{
		driver:     driver,
		logger:     logger,
		slab:       newSlab(),
		dimensions: dimensions,
	}
}

// Driver exposes the underlying backend for capability assertions.
func (s *Store) Driver() Driver { return s.driver }

// Dimensions returns the embedding width the store validates against.
func (s *Store) Dimensions() int { return s.dimensions }

// Store persists an entity and mirrors it, updating all indexes in the same
// call.
func (s *Store) Store(ctx context.Context, entity *types.KnowledgeEntity) error {
	if err := entity.Validate(s.dimensions); err != nil {
		return err
	}
	if err := s.driver.UpsertEntity(ctx, entity); err != nil {
		return fmt.Errorf("store entity %s: %w", entity.EntityID, err)
	}
	s.slab.put(entity.Clone())
	return nil
}

// StoreBatch persists entities one by one; the first failure aborts and is
// returned, leaving earlier entities stored.
func (s *Store) StoreBatch(ctx context.Context, entities []*types.KnowledgeEntity) error {
	for _, entity := range entities {
		if err := s.Store(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

// Get loads an entity cache-first. Returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, entityID string) (*types.KnowledgeEntity, error) {
	if entity := s.slab.get(entityID); entity != nil {
		s.cacheHits.Add(1)
		return entity, nil
	}
	s.cacheMisses.Add(1)

	entity, err := s.driver.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	s.slab.put(entity.Clone())
	return entity, nil
}

// GetBatch loads a batch of entities, skipping ids that are missing.
func (s *Store) GetBatch(ctx context.Context, entityIDs []string) ([]*types.KnowledgeEntity, error) {
	out := make([]*types.KnowledgeEntity, 0, len(entityIDs))
	var missing []string
	for _, id := range entityIDs {
		if entity := s.slab.get(id); entity != nil {
			s.cacheHits.Add(1)
			out = append(out, entity)
			continue
		}
		s.cacheMisses.Add(1)
		missing = append(missing, id)
	}
	if len(missing) > 0 {
		loaded, err := s.driver.GetEntities(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, entity := range loaded {
			s.slab.put(entity.Clone())
			out = append(out, entity)
		}
	}
	return out, nil
}

// Update applies a partial update, re-persisting and re-indexing the entity.
func (s *Store) Update(ctx context.Context, entityID string, update types.EntityUpdate) error {
	entity, err := s.Get(ctx, entityID)
	if err != nil {
		return err
	}
	if update.Title != nil {
		entity.Title = *update.Title
	}
	if update.Content != nil {
		entity.Content = *update.Content
	}
	if update.Domain != nil {
		entity.Domain = *update.Domain
	}
	if update.KnowledgeType != nil {
		entity.KnowledgeType = *update.KnowledgeType
	}
	if update.Metadata != nil {
		entity.Metadata = *update.Metadata
	}
	if update.Tags != nil {
		entity.Tags = *update.Tags
	}
	return s.Store(ctx, entity)
}

// Delete removes an entity, its relationships (driver cascade), and its
// mirror and index entries, all in this call.
func (s *Store) Delete(ctx context.Context, entityID string) error {
	if err := s.driver.DeleteEntity(ctx, entityID); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.slab.remove(entityID)
		}
		return err
	}
	s.slab.remove(entityID)
	return nil
}

// UpdateConfidence applies a clamped confidence delta and returns the new
// score. The driver clamps; the mirror takes the clamped value.
func (s *Store) UpdateConfidence(ctx context.Context, entityID string, delta float64) (float64, error) {
	score, err := s.driver.UpdateConfidence(ctx, entityID, delta)
	if err != nil {
		return 0, err
	}
	s.slab.setConfidence(entityID, score)
	return score, nil
}

// SetRetention updates the retention tier and expiry in driver and mirror.
func (s *Store) SetRetention(ctx context.Context, entityID string, policy types.RetentionPolicy, expiresAt time.Time) error {
	if err := s.driver.SetRetention(ctx, entityID, policy, expiresAt); err != nil {
		return err
	}
	s.slab.setRetention(entityID, policy, expiresAt)
	return nil
}

// DeleteExpired removes expired entities under one policy and evicts them
// from the mirror, returning the deleted ids.
func (s *Store) DeleteExpired(ctx context.Context, policy types.RetentionPolicy, now time.Time) ([]string, error) {
	deleted, err := s.driver.DeleteExpired(ctx, policy, now)
	if err != nil {
		return nil, err
	}
	for _, id := range deleted {
		s.slab.remove(id)
	}
	return deleted, nil
}

// TouchAccessed batch-increments access counters for returned search results.
func (s *Store) TouchAccessed(ctx context.Context, entityIDs []string, accessedAt time.Time) error {
	if len(entityIDs) == 0 {
		return nil
	}
	if err := s.driver.TouchEntities(ctx, entityIDs, accessedAt); err != nil {
		return err
	}
	s.slab.touch(entityIDs, accessedAt)
	return nil
}

// Candidates returns the filtered, non-expired candidate set from the mirror.
func (s *Store) Candidates(filter CandidateFilter) []*types.KnowledgeEntity {
	return s.slab.candidates(filter)
}

// All returns every mirrored entity.
func (s *Store) All() []*types.KnowledgeEntity {
	return s.slab.all()
}

// RebuildIndexes scans the driver and resynchronizes mirror and indexes,
// healing any detected drift. Corrupt rows are skipped by the driver scan.
func (s *Store) RebuildIndexes(ctx context.Context) error {
	var entities []*types.KnowledgeEntity
	err := s.driver.ScanEntities(ctx, func(entity *types.KnowledgeEntity) error {
		entities = append(entities, entity)
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild indexes: %w", err)
	}
	s.slab.reset(entities)
	s.logger.Info("rebuilt entity indexes", "entities", len(entities))
	return nil
}

// CacheStats reports mirror size and hit/miss counters.
func (s *Store) CacheStats() CacheStats {
	return CacheStats{
		Entities: s.slab.len(),
		Hits:     s.cacheHits.Load(),
		Misses:   s.cacheMisses.Load(),
	}
}
