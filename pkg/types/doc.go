// Package types defines the shared data model of the vector knowledge base:
// knowledge entities, semantic queries and their results, relationships,
// learning interactions, and the snapshot format used by export/import.
//
// The enums (Domain, KnowledgeType, RetentionPolicy, SimilarityMetric) are
// string-typed so they serialize naturally and round-trip through the storage
// drivers without lookup tables. Parse helpers accept the wire form and fall
// back to a documented default rather than failing, matching how the rest of
// the engine degrades on bad input.
package types
