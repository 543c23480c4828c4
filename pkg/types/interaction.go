package types

import "time"

// Interaction is one append-only learning record: a query, the entity the
// caller acted on, and a signed reward. The feedback loop turns these into
// confidence adjustments.
type Interaction struct {
	Query     string    `json:"query_text"`
	EntityID  string    `json:"selected_entity_id"`
	Reward    float64   `json:"reward_score"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the JSON export format: metadata plus full entity and
// relationship listings. Import of a snapshot is all-or-nothing.
type Snapshot struct {
	Metadata      SnapshotMetadata   `json:"metadata"`
	Entities      []*KnowledgeEntity `json:"entities"`
	Relationships []*Relationship    `json:"relationships"`
}

// SnapshotMetadata describes when and what was exported.
type SnapshotMetadata struct {
	ExportedAt        time.Time `json:"exported_at"`
	Version           string    `json:"version"`
	Domains           []Domain  `json:"domains,omitempty"`
	EntityCount       int       `json:"entity_count"`
	RelationshipCount int       `json:"relationship_count"`
}

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = "1.0"
