package vectorkb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/regulens/vectorkb/pkg/types"
)

// Export produces a full snapshot: metadata plus every entity and
// relationship. Entities come from the backend scan, not the cache, so the
// snapshot reflects durable state.
func (e *Engine) Export(ctx context.Context) (*types.Snapshot, error) {
	snapshot := &types.Snapshot{}

	domains := make(map[types.Domain]struct{})
	err := e.store.Driver().ScanEntities(ctx, func(entity *types.KnowledgeEntity) error {
		snapshot.Entities = append(snapshot.Entities, entity)
		domains[entity.Domain] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("export entities: %w", err)
	}

	err = e.store.Driver().ScanRelationships(ctx, func(rel *types.Relationship) error {
		snapshot.Relationships = append(snapshot.Relationships, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("export relationships: %w", err)
	}

	snapshot.Metadata = types.SnapshotMetadata{
		ExportedAt:        time.Now().UTC(),
		Version:           types.SnapshotVersion,
		EntityCount:       len(snapshot.Entities),
		RelationshipCount: len(snapshot.Relationships),
	}
	for _, d := range types.Domains {
		if _, ok := domains[d]; ok {
			snapshot.Metadata.Domains = append(snapshot.Metadata.Domains, d)
		}
	}
	return snapshot, nil
}

// ExportJSON serializes a full snapshot.
func (e *Engine) ExportJSON(ctx context.Context) ([]byte, error) {
	snapshot, err := e.Export(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(snapshot, "", "  ")
}

// Import loads a snapshot all-or-nothing: every record is validated before
// anything is written, and a mid-write failure rolls back the entities and
// relationships already written. Relationships referencing entities outside
// the snapshot must already exist in the store.
func (e *Engine) Import(ctx context.Context, snapshot *types.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("vectorkb: snapshot is nil")
	}

	// Validate everything up front so a bad record cannot leave a partial
	// import behind.
	for i, entity := range snapshot.Entities {
		if entity == nil {
			return fmt.Errorf("snapshot entity %d is nil", i)
		}
		if err := entity.Validate(e.store.Dimensions()); err != nil {
			return fmt.Errorf("snapshot entity %d: %w", i, err)
		}
	}
	for i, rel := range snapshot.Relationships {
		if rel == nil {
			return fmt.Errorf("snapshot relationship %d is nil", i)
		}
		if err := rel.Validate(); err != nil {
			return fmt.Errorf("snapshot relationship %d: %w", i, err)
		}
	}

	var stored []string
	var linked []*types.Relationship
	rollback := func() {
		// Edges first: entity deletes cascade their own edges, but an edge
		// between two pre-existing entities has no cascade to catch it.
		for _, rel := range linked {
			if err := e.store.Driver().DeleteRelationship(ctx, rel.SourceID, rel.TargetID, rel.Type); err != nil {
				e.logger.Warn("import rollback failed for relationship",
					"source_id", rel.SourceID, "target_id", rel.TargetID, "error", err)
			}
		}
		for _, id := range stored {
			if err := e.store.Delete(ctx, id); err != nil {
				e.logger.Warn("import rollback failed for entity", "entity_id", id, "error", err)
			}
		}
	}

	for _, entity := range snapshot.Entities {
		if err := e.StoreEntity(ctx, entity); err != nil {
			rollback()
			return fmt.Errorf("import entity %s: %w", entity.EntityID, err)
		}
		stored = append(stored, entity.EntityID)
	}
	for _, rel := range snapshot.Relationships {
		if err := e.graph.CreateRelationship(ctx, rel); err != nil {
			rollback()
			return fmt.Errorf("import relationship %s -> %s: %w", rel.SourceID, rel.TargetID, err)
		}
		linked = append(linked, rel)
	}

	e.logger.Info("imported snapshot",
		"entities", len(snapshot.Entities), "relationships", len(snapshot.Relationships))
	return nil
}

// ImportJSON parses and imports snapshot JSON. Malformed input gets one
// repair pass (trailing commas, unquoted keys, truncated tool output) before
// being rejected.
func (e *Engine) ImportJSON(ctx context.Context, data []byte) error {
	snapshot := &types.Snapshot{}
	if err := json.Unmarshal(data, snapshot); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(string(data))
		if repairErr != nil {
			return fmt.Errorf("snapshot JSON is malformed beyond repair: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), snapshot); err != nil {
			return fmt.Errorf("snapshot JSON is malformed after repair: %w", err)
		}
		e.logger.Warn("snapshot JSON required repair before import")
	}
	return e.Import(ctx, snapshot)
}
