package types

import (
	"fmt"
	"time"
)

// DefaultEmbeddingDimensions is the vector width used when no provider
// overrides it. Matches the sentence-transformer family the platform
// standardized on.
const DefaultEmbeddingDimensions = 384

// Domain partitions the knowledge base by business area.
type Domain string

const (
	DomainRegulatoryCompliance  Domain = "regulatory-compliance"
	DomainTransactionMonitoring Domain = "transaction-monitoring"
	DomainAuditIntelligence     Domain = "audit-intelligence"
	DomainBusinessProcesses     Domain = "business-processes"
	DomainRiskManagement        Domain = "risk-management"
	DomainLegalFrameworks       Domain = "legal-frameworks"
	DomainFinancialInstruments  Domain = "financial-instruments"
	DomainMarketIntelligence    Domain = "market-intelligence"
)

// Domains lists every valid domain, in a stable order.
var Domains = []Domain{
	DomainRegulatoryCompliance,
	DomainTransactionMonitoring,
	DomainAuditIntelligence,
	DomainBusinessProcesses,
	DomainRiskManagement,
	DomainLegalFrameworks,
	DomainFinancialInstruments,
	DomainMarketIntelligence,
}

// Valid reports whether d is one of the known domains.
func (d Domain) Valid() bool {
	for _, known := range Domains {
		if d == known {
			return true
		}
	}
	return false
}

// ParseDomain maps a wire string to a Domain, defaulting to
// regulatory-compliance for unknown input.
func ParseDomain(s string) Domain {
	d := Domain(s)
	if d.Valid() {
		return d
	}
	return DomainRegulatoryCompliance
}

// KnowledgeType classifies what kind of knowledge an entity carries.
type KnowledgeType string

const (
	TypeFact         KnowledgeType = "fact"
	TypeRule         KnowledgeType = "rule"
	TypePattern      KnowledgeType = "pattern"
	TypeRelationship KnowledgeType = "relationship"
	TypeContext      KnowledgeType = "context"
	TypeExperience   KnowledgeType = "experience"
	TypeDecision     KnowledgeType = "decision"
	TypePrediction   KnowledgeType = "prediction"
)

// KnowledgeTypes lists every valid knowledge type, in a stable order.
var KnowledgeTypes = []KnowledgeType{
	TypeFact, TypeRule, TypePattern, TypeRelationship,
	TypeContext, TypeExperience, TypeDecision, TypePrediction,
}

// Valid reports whether t is one of the known knowledge types.
func (t KnowledgeType) Valid() bool {
	for _, known := range KnowledgeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseKnowledgeType maps a wire string to a KnowledgeType, defaulting to fact.
func ParseKnowledgeType(s string) KnowledgeType {
	t := KnowledgeType(s)
	if t.Valid() {
		return t
	}
	return TypeFact
}

// RetentionPolicy is the memory tier controlling automatic expiry.
type RetentionPolicy string

const (
	RetentionEphemeral  RetentionPolicy = "ephemeral"
	RetentionSession    RetentionPolicy = "session"
	RetentionPersistent RetentionPolicy = "persistent"
	RetentionArchival   RetentionPolicy = "archival"
)

// RetentionPolicies lists the tiers from shortest to longest lived.
var RetentionPolicies = []RetentionPolicy{
	RetentionEphemeral, RetentionSession, RetentionPersistent, RetentionArchival,
}

// Valid reports whether p is one of the known retention tiers.
func (p RetentionPolicy) Valid() bool {
	for _, known := range RetentionPolicies {
		if p == known {
			return true
		}
	}
	return false
}

// ParseRetentionPolicy maps a wire string to a RetentionPolicy, defaulting to
// persistent.
func ParseRetentionPolicy(s string) RetentionPolicy {
	p := RetentionPolicy(s)
	if p.Valid() {
		return p
	}
	return RetentionPersistent
}

// KnowledgeEntity is a stored unit of knowledge: text, semi-structured
// metadata, and a fixed-dimension embedding, plus the lifecycle and feedback
// fields the engine maintains.
type KnowledgeEntity struct {
	EntityID        string          `json:"entity_id"`
	Domain          Domain          `json:"domain"`
	KnowledgeType   KnowledgeType   `json:"knowledge_type"`
	Title           string          `json:"title"`
	Content         string          `json:"content"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	Embedding       []float32       `json:"embedding,omitempty"`
	RetentionPolicy RetentionPolicy `json:"retention_policy"`
	CreatedAt       time.Time       `json:"created_at"`
	LastAccessed    time.Time       `json:"last_accessed"`
	ExpiresAt       time.Time       `json:"expires_at"`
	AccessCount     int64           `json:"access_count"`
	ConfidenceScore float64         `json:"confidence_score"`
	Tags            []string        `json:"tags,omitempty"`
}

// Validate checks the structural invariants a stored entity must satisfy.
// dimensions is the engine's embedding width; a nil embedding is allowed
// (the engine computes one on store) but a wrong-width one is not.
func (e *KnowledgeEntity) Validate(dimensions int) error {
	if e.EntityID == "" {
		return fmt.Errorf("entity is missing entity_id")
	}
	if e.Title == "" && e.Content == "" {
		return fmt.Errorf("entity %s has neither title nor content", e.EntityID)
	}
	if !e.Domain.Valid() {
		return fmt.Errorf("entity %s has unknown domain %q", e.EntityID, e.Domain)
	}
	if !e.KnowledgeType.Valid() {
		return fmt.Errorf("entity %s has unknown knowledge type %q", e.EntityID, e.KnowledgeType)
	}
	if len(e.Embedding) != 0 && len(e.Embedding) != dimensions {
		return fmt.Errorf("entity %s embedding has %d dimensions, want %d",
			e.EntityID, len(e.Embedding), dimensions)
	}
	if e.ConfidenceScore < 0.0 || e.ConfidenceScore > 1.0 {
		return fmt.Errorf("entity %s confidence %.3f outside [0,1]", e.EntityID, e.ConfidenceScore)
	}
	return nil
}

// Expired reports whether the entity's expiry has passed at the given instant.
// A zero ExpiresAt means the entity never expires.
func (e *KnowledgeEntity) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && e.ExpiresAt.Before(now)
}

// Clone returns a deep copy. Callers receive clones from the store so cached
// entities are never shared mutable state.
func (e *KnowledgeEntity) Clone() *KnowledgeEntity {
	if e == nil {
		return nil
	}
	out := *e
	if e.Embedding != nil {
		out.Embedding = make([]float32, len(e.Embedding))
		copy(out.Embedding, e.Embedding)
	}
	if e.Tags != nil {
		out.Tags = make([]string, len(e.Tags))
		copy(out.Tags, e.Tags)
	}
	if e.Metadata != nil {
		out.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// EntityUpdate is a partial update applied by Store.Update. Nil fields are
// left untouched.
type EntityUpdate struct {
	Title         *string         `json:"title,omitempty"`
	Content       *string         `json:"content,omitempty"`
	Domain        *Domain         `json:"domain,omitempty"`
	KnowledgeType *KnowledgeType  `json:"knowledge_type,omitempty"`
	Metadata      *map[string]any `json:"metadata,omitempty"`
	Tags          *[]string       `json:"tags,omitempty"`
}

// ClampConfidence bounds a confidence score to [0, 1]. Every confidence
// mutation in the engine funnels through this.
func ClampConfidence(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
