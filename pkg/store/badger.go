package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/regulens/vectorkb/pkg/types"
)

// Key layout. Ids may contain any byte except NUL, which is the separator.
//
//	ent\x00<id>                     -> entity JSON
//	rel\x00<src>\x00<type>\x00<dst> -> relationship JSON
//	rev\x00<dst>\x00<src>\x00<type> -> forward key (cascade index)
//	int\x00<rfc3339nano>\x00<uuid>  -> interaction JSON
var (
	entPrefix = []byte("ent\x00")
	relPrefix = []byte("rel\x00")
	revPrefix = []byte("rev\x00")
	intPrefix = []byte("int\x00")
)

// BadgerConfig configures the embedded driver.
type BadgerConfig struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM; used by tests and ephemeral deploys.
	InMemory bool
}

// BadgerDriver is the embedded storage backend on dgraph-io/badger. It has no
// native vector index, so search always takes the in-process scoring path.
type BadgerDriver struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBadgerDriver opens (or creates) the embedded store.
func NewBadgerDriver(cfg BadgerConfig, logger *slog.Logger) (*BadgerDriver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger at %q: %v", ErrConnection, cfg.Path, err)
	}
	return &BadgerDriver{db: db, logger: logger}, nil
}

// Initialize is a no-op; badger creates its structures on open.
func (b *BadgerDriver) Initialize(ctx context.Context) error { return nil }

// Close releases the database.
func (b *BadgerDriver) Close() error { return b.db.Close() }

// Name identifies the backend.
func (b *BadgerDriver) Name() string { return "badger" }

func entKey(id string) []byte { return append(append([]byte{}, entPrefix...), id...) }

func relKey(src, relType, dst string) []byte {
	return []byte(fmt.Sprintf("rel\x00%s\x00%s\x00%s", src, relType, dst))
}

func revKey(dst, src, relType string) []byte {
	return []byte(fmt.Sprintf("rev\x00%s\x00%s\x00%s", dst, src, relType))
}

// UpsertEntity inserts or fully replaces an entity row.
func (b *BadgerDriver) UpsertEntity(ctx context.Context, entity *types.KnowledgeEntity) error {
	payload, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("%w: encode entity %s: %v", ErrSerialization, entity.EntityID, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entKey(entity.EntityID), payload)
	})
	if err != nil {
		return fmt.Errorf("%w: put entity %s: %v", ErrConnection, entity.EntityID, err)
	}
	return nil
}

// GetEntity loads one entity.
func (b *BadgerDriver) GetEntity(ctx context.Context, entityID string) (*types.KnowledgeEntity, error) {
	var entity *types.KnowledgeEntity
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entKey(entityID))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		entity = &types.KnowledgeEntity{}
		if err := json.Unmarshal(raw, entity); err != nil {
			return fmt.Errorf("%w: decode entity %s: %v", ErrSerialization, entityID, err)
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("entity %s: %w", entityID, ErrNotFound)
	}
	if err != nil {
		if errors.Is(err, ErrSerialization) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: get entity %s: %v", ErrConnection, entityID, err)
	}
	return entity, nil
}

// GetEntities loads a batch; missing or corrupt ids are skipped.
func (b *BadgerDriver) GetEntities(ctx context.Context, entityIDs []string) ([]*types.KnowledgeEntity, error) {
	out := make([]*types.KnowledgeEntity, 0, len(entityIDs))
	for _, id := range entityIDs {
		entity, err := b.GetEntity(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrSerialization) {
				continue
			}
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

// DeleteEntity removes an entity and cascades its relationships in one
// transaction.
func (b *BadgerDriver) DeleteEntity(ctx context.Context, entityID string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		key := entKey(entityID)
		if _, err := txn.Get(key); err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return b.cascadeLocked(txn, entityID)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("entity %s: %w", entityID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: delete entity %s: %v", ErrConnection, entityID, err)
	}
	return nil
}

// cascadeLocked removes every edge touching entityID, both directions,
// within the caller's transaction.
func (b *BadgerDriver) cascadeLocked(txn *badger.Txn, entityID string) error {
	var doomed [][]byte

	collect := func(prefix []byte) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			doomed = append(doomed, it.Item().KeyCopy(nil))
			if bytes.HasPrefix(it.Item().Key(), revPrefix) {
				forward, err := it.Item().ValueCopy(nil)
				if err != nil {
					return err
				}
				doomed = append(doomed, forward)
			}
		}
		return nil
	}

	outgoing := []byte(fmt.Sprintf("rel\x00%s\x00", entityID))
	if err := collect(outgoing); err != nil {
		return err
	}
	incoming := []byte(fmt.Sprintf("rev\x00%s\x00", entityID))
	if err := collect(incoming); err != nil {
		return err
	}

	for _, key := range doomed {
		if err := txn.Delete(key); err != nil {
			return err
		}
		// Outgoing edges also have a reverse index entry to drop.
		if bytes.HasPrefix(key, relPrefix) {
			parts := bytes.SplitN(key[len(relPrefix):], []byte{0}, 3)
			if len(parts) == 3 {
				_ = txn.Delete(revKey(string(parts[2]), string(parts[0]), string(parts[1])))
			}
		}
	}
	return nil
}

// ScanEntities streams every decodable entity row, skipping corrupt ones.
func (b *BadgerDriver) ScanEntities(ctx context.Context, fn func(*types.KnowledgeEntity) error) error {
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: entPrefix, PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			entity := &types.KnowledgeEntity{}
			if err := json.Unmarshal(raw, entity); err != nil {
				b.logger.Warn("skipping corrupt entity row", "key", string(it.Item().Key()), "error", err)
				continue
			}
			if err := fn(entity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: scan entities: %v", ErrConnection, err)
	}
	return nil
}

// TouchEntities increments access counters for the given ids.
func (b *BadgerDriver) TouchEntities(ctx context.Context, entityIDs []string, accessedAt time.Time) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, id := range entityIDs {
			entity, err := getEntityTxn(txn, id)
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			entity.AccessCount++
			entity.LastAccessed = accessedAt
			if err := putEntityTxn(txn, entity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: touch entities: %v", ErrConnection, err)
	}
	return nil
}

// UpdateConfidence applies a clamped confidence delta.
func (b *BadgerDriver) UpdateConfidence(ctx context.Context, entityID string, delta float64) (float64, error) {
	var score float64
	err := b.db.Update(func(txn *badger.Txn) error {
		entity, err := getEntityTxn(txn, entityID)
		if err != nil {
			return err
		}
		score = types.ClampConfidence(entity.ConfidenceScore + delta)
		entity.ConfidenceScore = score
		return putEntityTxn(txn, entity)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, fmt.Errorf("entity %s: %w", entityID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: update confidence %s: %v", ErrConnection, entityID, err)
	}
	return score, nil
}

// SetRetention updates the retention tier and expiry.
func (b *BadgerDriver) SetRetention(ctx context.Context, entityID string, policy types.RetentionPolicy, expiresAt time.Time) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		entity, err := getEntityTxn(txn, entityID)
		if err != nil {
			return err
		}
		entity.RetentionPolicy = policy
		entity.ExpiresAt = expiresAt
		return putEntityTxn(txn, entity)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("entity %s: %w", entityID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: set retention %s: %v", ErrConnection, entityID, err)
	}
	return nil
}

// DeleteExpired removes expired entities under one policy, cascading edges.
func (b *BadgerDriver) DeleteExpired(ctx context.Context, policy types.RetentionPolicy, now time.Time) ([]string, error) {
	var doomed []string
	err := b.ScanEntities(ctx, func(entity *types.KnowledgeEntity) error {
		if entity.RetentionPolicy == policy && entity.Expired(now) {
			doomed = append(doomed, entity.EntityID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	deleted := make([]string, 0, len(doomed))
	for _, id := range doomed {
		if err := b.DeleteEntity(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return deleted, err
		}
		deleted = append(deleted, id)
	}
	return deleted, nil
}

// UpsertRelationship inserts or replaces the (source, target, type) edge.
func (b *BadgerDriver) UpsertRelationship(ctx context.Context, rel *types.Relationship) error {
	payload, err := json.Marshal(rel)
	if err != nil {
		return fmt.Errorf("%w: encode relationship: %v", ErrSerialization, err)
	}
	forward := relKey(rel.SourceID, rel.Type, rel.TargetID)
	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(forward, payload); err != nil {
			return err
		}
		return txn.Set(revKey(rel.TargetID, rel.SourceID, rel.Type), forward)
	})
	if err != nil {
		return fmt.Errorf("%w: put relationship: %v", ErrConnection, err)
	}
	return nil
}

// DeleteRelationship removes the (source, target, type) edge and its reverse
// index entry in one transaction.
func (b *BadgerDriver) DeleteRelationship(ctx context.Context, sourceID, targetID, relType string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		forward := relKey(sourceID, relType, targetID)
		if _, err := txn.Get(forward); err != nil {
			return err
		}
		if err := txn.Delete(forward); err != nil {
			return err
		}
		return txn.Delete(revKey(targetID, sourceID, relType))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("relationship %s -> %s: %w", sourceID, targetID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: delete relationship: %v", ErrConnection, err)
	}
	return nil
}

// RelationshipsFrom lists outgoing edges of an entity.
func (b *BadgerDriver) RelationshipsFrom(ctx context.Context, sourceID string) ([]*types.Relationship, error) {
	prefix := []byte(fmt.Sprintf("rel\x00%s\x00", sourceID))
	var out []*types.Relationship
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rel := &types.Relationship{}
			if err := json.Unmarshal(raw, rel); err != nil {
				b.logger.Warn("skipping corrupt relationship row", "key", string(it.Item().Key()), "error", err)
				continue
			}
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: relationships from %s: %v", ErrConnection, sourceID, err)
	}
	return out, nil
}

// ScanRelationships streams every edge row.
func (b *BadgerDriver) ScanRelationships(ctx context.Context, fn func(*types.Relationship) error) error {
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: relPrefix, PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rel := &types.Relationship{}
			if err := json.Unmarshal(raw, rel); err != nil {
				b.logger.Warn("skipping corrupt relationship row", "key", string(it.Item().Key()), "error", err)
				continue
			}
			if err := fn(rel); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: scan relationships: %v", ErrConnection, err)
	}
	return nil
}

// InsertInteraction appends a learning interaction record.
func (b *BadgerDriver) InsertInteraction(ctx context.Context, interaction *types.Interaction) error {
	payload, err := json.Marshal(interaction)
	if err != nil {
		return fmt.Errorf("%w: encode interaction: %v", ErrSerialization, err)
	}
	key := []byte(fmt.Sprintf("int\x00%s\x00%s",
		interaction.Timestamp.UTC().Format(time.RFC3339Nano), uuid.NewString()))
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	})
	if err != nil {
		return fmt.Errorf("%w: put interaction: %v", ErrConnection, err)
	}
	return nil
}

// Stats reports backend row counts.
func (b *BadgerDriver) Stats(ctx context.Context) (*DriverStats, error) {
	stats := &DriverStats{ByPolicy: make(map[types.RetentionPolicy]PolicyStats)}
	now := time.Now()
	err := b.ScanEntities(ctx, func(entity *types.KnowledgeEntity) error {
		stats.Entities++
		ps := stats.ByPolicy[entity.RetentionPolicy]
		ps.Total++
		if entity.Expired(now) {
			ps.Expired++
		}
		stats.ByPolicy[entity.RetentionPolicy] = ps
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = b.db.View(func(txn *badger.Txn) error {
		for _, prefix := range [][]byte{relPrefix, intPrefix} {
			it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
			for it.Rewind(); it.Valid(); it.Next() {
				if bytes.HasPrefix(prefix, relPrefix) {
					stats.Relationships++
				} else {
					stats.Interactions++
				}
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: stats: %v", ErrConnection, err)
	}
	return stats, nil
}

// Optimize runs a value-log garbage collection pass.
func (b *BadgerDriver) Optimize(ctx context.Context) error {
	err := b.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
		return fmt.Errorf("%w: value log gc: %v", ErrConnection, err)
	}
	return nil
}

func getEntityTxn(txn *badger.Txn, entityID string) (*types.KnowledgeEntity, error) {
	item, err := txn.Get(entKey(entityID))
	if err != nil {
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	entity := &types.KnowledgeEntity{}
	if err := json.Unmarshal(raw, entity); err != nil {
		return nil, fmt.Errorf("%w: decode entity %s: %v", ErrSerialization, entityID, err)
	}
	return entity, nil
}

func putEntityTxn(txn *badger.Txn, entity *types.KnowledgeEntity) error {
	payload, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("%w: encode entity %s: %v", ErrSerialization, entity.EntityID, err)
	}
	return txn.Set(entKey(entity.EntityID), payload)
}
