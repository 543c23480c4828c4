package vectorkb_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vectorkb "github.com/regulens/vectorkb"
	"github.com/regulens/vectorkb/pkg/embedder"
	"github.com/regulens/vectorkb/pkg/store"
	"github.com/regulens/vectorkb/pkg/types"
)

func newTestEngine(t *testing.T) *vectorkb.Engine {
	t.Helper()
	driver, err := store.NewBadgerDriver(store.BadgerConfig{InMemory: true}, slog.Default())
	require.NoError(t, err)

	emb := embedder.NewHashClient(types.DefaultEmbeddingDimensions)
	kb, err := vectorkb.NewEngine(driver, emb, nil, slog.Default())
	require.NoError(t, err)
	require.NoError(t, kb.Initialize(context.Background()))
	t.Cleanup(func() { _ = kb.Close() })
	return kb
}

func minimalEntity(id, title, content string) *types.KnowledgeEntity {
	return &types.KnowledgeEntity{
		EntityID:      id,
		Domain:        types.DomainRegulatoryCompliance,
		KnowledgeType: types.TypeRule,
		Title:         title,
		Content:       content,
	}
}

func TestNewEngineValidatesDependencies(t *testing.T) {
	emb := embedder.NewHashClient(16)

	_, err := vectorkb.NewEngine(nil, emb, nil, nil)
	assert.Error(t, err)

	driver, err := store.NewBadgerDriver(store.BadgerConfig{InMemory: true}, slog.Default())
	require.NoError(t, err)
	defer driver.Close()

	_, err = vectorkb.NewEngine(driver, nil, nil, nil)
	assert.Error(t, err)
}

func TestStoreEntityFillsDefaults(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	entity := minimalEntity("", "Currency reporting", "transactions over the threshold are reported")
	require.NoError(t, kb.StoreEntity(ctx, entity))

	assert.NotEmpty(t, entity.EntityID, "a missing id is generated")
	assert.Equal(t, types.RetentionPersistent, entity.RetentionPolicy)
	assert.Len(t, entity.Embedding, types.DefaultEmbeddingDimensions)
	assert.Equal(t, 0.5, entity.ConfidenceScore)
	assert.False(t, entity.CreatedAt.IsZero())
	assert.False(t, entity.ExpiresAt.IsZero())

	// Persistent tier: expiry roughly seven years out.
	assert.WithinDuration(t, time.Now().Add(7*365*24*time.Hour), entity.ExpiresAt, time.Hour)

	got, err := kb.GetEntity(ctx, entity.EntityID)
	require.NoError(t, err)
	assert.Equal(t, entity.Title, got.Title)
}

func TestStoreEntityKeepsProvidedEmbedding(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	provided := make([]float32, types.DefaultEmbeddingDimensions)
	provided[0] = 1
	entity := minimalEntity("pre-embedded", "Title", "content")
	entity.Embedding = provided

	require.NoError(t, kb.StoreEntity(ctx, entity))
	got, err := kb.GetEntity(ctx, "pre-embedded")
	require.NoError(t, err)
	assert.Equal(t, provided, got.Embedding)
}

func TestStoreEntityPreservesZeroConfidence(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	// A record with provenance may legitimately carry a zero score; the 0.5
	// default is for brand-new entities only.
	entity := minimalEntity("distrusted", "Retracted guidance", "superseded by later ruling")
	entity.CreatedAt = time.Now().Add(-time.Hour)
	entity.ConfidenceScore = 0
	require.NoError(t, kb.StoreEntity(ctx, entity))

	got, err := kb.GetEntity(ctx, "distrusted")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.ConfidenceScore)
}

func TestUpdateEntityConfidence(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, kb.StoreEntity(ctx, minimalEntity("scored", "Scored entity", "content")))

	score, err := kb.UpdateEntityConfidence(ctx, "scored", 0.3)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, score, 1e-9)

	score, err = kb.UpdateEntityConfidence(ctx, "scored", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score, "confidence clamps at 1.0")

	got, err := kb.GetEntity(ctx, "scored")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.ConfidenceScore)

	_, err = kb.UpdateEntityConfidence(ctx, "ghost", 0.1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateAndRefreshEmbedding(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	entity := minimalEntity("doc", "Original title", "original content")
	require.NoError(t, kb.StoreEntity(ctx, entity))
	originalEmbedding := entity.Embedding

	title := "Revised title"
	require.NoError(t, kb.UpdateEntity(ctx, "doc", types.EntityUpdate{Title: &title}))

	got, err := kb.GetEntity(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "Revised title", got.Title)
	assert.Equal(t, originalEmbedding, got.Embedding, "update alone leaves the embedding untouched")

	require.NoError(t, kb.RefreshEmbedding(ctx, "doc"))
	got, err = kb.GetEntity(ctx, "doc")
	require.NoError(t, err)
	assert.NotEqual(t, originalEmbedding, got.Embedding, "refresh recomputes from the new text")
}

func TestSearchRoundTrip(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, kb.StoreEntities(ctx, []*types.KnowledgeEntity{
		minimalEntity("hit", "Sanctions list updates", "screen customers against updated sanctions lists daily"),
		minimalEntity("miss", "Office hours", "the office opens at nine"),
	}))

	results := kb.Search(ctx, types.SemanticQuery{
		Text: "screen customers against updated sanctions lists daily",
	})
	require.NotEmpty(t, results)
	assert.Equal(t, "hit", results[0].Entity.EntityID)

	hybrid := kb.HybridSearch(ctx, types.SemanticQuery{Text: "sanctions screening"})
	require.NotEmpty(t, hybrid)
	assert.Equal(t, "hit", hybrid[0].Entity.EntityID)
}

func TestDeleteEntityCascades(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, kb.StoreEntity(ctx, minimalEntity("src", "Source", "source content")))
	require.NoError(t, kb.StoreEntity(ctx, minimalEntity("dst", "Target", "target content")))
	require.NoError(t, kb.CreateRelationship(ctx, &types.Relationship{
		SourceID: "src", TargetID: "dst", Type: "cites",
	}))

	require.NoError(t, kb.DeleteEntity(ctx, "dst"))

	_, err := kb.GetEntity(ctx, "dst")
	assert.ErrorIs(t, err, store.ErrNotFound)

	rels, err := kb.Store().Driver().RelationshipsFrom(ctx, "src")
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestGraphTraversalThroughEngine(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	for _, id := range []string{"g1", "g2", "g3"} {
		require.NoError(t, kb.StoreEntity(ctx, minimalEntity(id, "Node "+id, "content "+id)))
	}
	require.NoError(t, kb.CreateRelationship(ctx, &types.Relationship{SourceID: "g1", TargetID: "g2", Type: "next"}))
	require.NoError(t, kb.CreateRelationship(ctx, &types.Relationship{SourceID: "g2", TargetID: "g3", Type: "next"}))

	related, err := kb.GetRelated(ctx, "g1", "", 2)
	require.NoError(t, err)
	require.Len(t, related, 2)

	kg, err := kb.GetKnowledgeGraph(ctx, "g1", 2)
	require.NoError(t, err)
	assert.Len(t, kg.Nodes, 3)
	assert.Len(t, kg.Edges, 2)
}

func TestRetentionLifecycleThroughEngine(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, kb.StoreEntity(ctx, minimalEntity("short-lived", "Temp", "temporary note")))
	require.NoError(t, kb.SetRetentionPolicy(ctx, "short-lived", types.RetentionEphemeral))

	got, err := kb.GetEntity(ctx, "short-lived")
	require.NoError(t, err)
	assert.Equal(t, types.RetentionEphemeral, got.RetentionPolicy)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), got.ExpiresAt, time.Minute)

	removed := kb.CleanupExpired(ctx)
	assert.Equal(t, 0, removed[types.RetentionEphemeral], "a fresh entity survives the sweep")
}

func TestLearningThroughEngine(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, kb.StoreEntity(ctx, minimalEntity("learned", "Pattern", "observed pattern")))
	require.NoError(t, kb.RecordInteraction(ctx, types.Interaction{
		Query:    "pattern lookup",
		EntityID: "learned",
		Reward:   1.0,
	}))

	got, err := kb.GetEntity(ctx, "learned")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, got.ConfidenceScore, 1e-9)

	require.NoError(t, kb.ReinforceEntities(ctx, []string{"learned"}))
	got, err = kb.GetEntity(ctx, "learned")
	require.NoError(t, err)
	assert.InDelta(t, 0.61, got.ConfidenceScore, 1e-9)
}

func TestSnapshotExportImportRoundTrip(t *testing.T) {
	source := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, source.StoreEntity(ctx, minimalEntity("s1", "First", "first content")))
	require.NoError(t, source.StoreEntity(ctx, minimalEntity("s2", "Second", "second content")))
	require.NoError(t, source.CreateRelationship(ctx, &types.Relationship{
		SourceID: "s1", TargetID: "s2", Type: "cites",
	}))

	data, err := source.ExportJSON(ctx)
	require.NoError(t, err)

	target := newTestEngine(t)
	require.NoError(t, target.ImportJSON(ctx, data))

	got, err := target.GetEntity(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "First", got.Title)

	rels, err := target.Store().Driver().RelationshipsFrom(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "s2", rels[0].TargetID)
}

func TestSnapshotMetadata(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	fraud := minimalEntity("f1", "Fraud pattern", "velocity anomaly")
	fraud.Domain = types.DomainTransactionMonitoring
	require.NoError(t, kb.StoreEntity(ctx, minimalEntity("c1", "Compliance rule", "reporting rule")))
	require.NoError(t, kb.StoreEntity(ctx, fraud))

	snapshot, err := kb.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.Metadata.EntityCount)
	assert.Equal(t, types.SnapshotVersion, snapshot.Metadata.Version)
	assert.Equal(t, []types.Domain{
		types.DomainRegulatoryCompliance,
		types.DomainTransactionMonitoring,
	}, snapshot.Metadata.Domains)
}

func TestImportRejectsInvalidSnapshot(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	bad := &types.Snapshot{
		Entities: []*types.KnowledgeEntity{
			minimalEntity("ok", "Fine", "fine content"),
			{EntityID: "broken", Domain: "not-a-domain", KnowledgeType: types.TypeFact, Title: "x"},
		},
	}
	require.Error(t, kb.Import(ctx, bad))

	// Nothing was written: validation happens before any store.
	_, err := kb.GetEntity(ctx, "ok")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestImportRollsBackOnDanglingRelationship(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	bad := &types.Snapshot{
		Entities: []*types.KnowledgeEntity{
			minimalEntity("only", "Only entity", "content"),
		},
		Relationships: []*types.Relationship{
			{SourceID: "only", TargetID: "nowhere", Type: "cites"},
		},
	}
	require.Error(t, kb.Import(ctx, bad))

	_, err := kb.GetEntity(ctx, "only")
	assert.ErrorIs(t, err, store.ErrNotFound, "stored entities roll back when a relationship fails")
}

func TestImportRollsBackEdgesBetweenExistingEntities(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	// Both endpoints exist before the import; the snapshot only adds an edge
	// between them, then fails on a dangling one.
	require.NoError(t, kb.StoreEntity(ctx, minimalEntity("ledger-a", "Ledger A", "content")))
	require.NoError(t, kb.StoreEntity(ctx, minimalEntity("ledger-b", "Ledger B", "content")))

	bad := &types.Snapshot{
		Relationships: []*types.Relationship{
			{SourceID: "ledger-a", TargetID: "ledger-b", Type: "cites"},
			{SourceID: "ledger-a", TargetID: "nowhere", Type: "cites"},
		},
	}
	require.Error(t, kb.Import(ctx, bad))

	// The successfully written edge rolls back too; entity deletion alone
	// would never cascade it, since neither endpoint was stored by the import.
	rels, err := kb.Store().Driver().RelationshipsFrom(ctx, "ledger-a")
	require.NoError(t, err)
	assert.Empty(t, rels)

	_, err = kb.GetEntity(ctx, "ledger-a")
	assert.NoError(t, err, "pre-existing entities survive the rollback")
	_, err = kb.GetEntity(ctx, "ledger-b")
	assert.NoError(t, err)
}

func TestImportPreservesZeroConfidence(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	zeroed := minimalEntity("zeroed", "Zeroed entity", "content")
	zeroed.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, kb.Import(ctx, &types.Snapshot{
		Entities: []*types.KnowledgeEntity{zeroed},
	}))

	got, err := kb.GetEntity(ctx, "zeroed")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.ConfidenceScore, "import does not rewrite a zero score")
}

func TestImportJSONRepairsMalformedInput(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	// Trailing comma: invalid JSON that the repair pass can fix.
	malformed := `{
		"metadata": {"version": "1.0"},
		"entities": [
			{
				"entity_id": "repaired",
				"domain": "regulatory-compliance",
				"knowledge_type": "fact",
				"title": "Repaired entity",
				"content": "survived a trailing comma",
			}
		]
	}`
	require.NoError(t, kb.ImportJSON(ctx, []byte(malformed)))

	got, err := kb.GetEntity(ctx, "repaired")
	require.NoError(t, err)
	assert.Equal(t, "Repaired entity", got.Title)
}

func TestDecisionContext(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	rule := minimalEntity("rule", "Reporting rule", "file reports for large cash transactions")
	fact := minimalEntity("fact", "Reporting fact", "file reports for large cash transactions")
	fact.KnowledgeType = types.TypeFact
	require.NoError(t, kb.StoreEntities(ctx, []*types.KnowledgeEntity{rule, fact}))

	results := kb.GetContextForDecision(ctx, types.DomainRegulatoryCompliance,
		"file reports for large cash transactions", 10)
	require.Len(t, results, 1, "facts are excluded from decision context")
	assert.Equal(t, "rule", results[0].Entity.EntityID)
}

func TestRelevantKnowledgeScopesByAgent(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	fraud := minimalEntity("fraud-note", "Transaction alert", "rapid transfers between new accounts")
	fraud.Domain = types.DomainTransactionMonitoring
	compliance := minimalEntity("compliance-note", "Transaction alert", "rapid transfers between new accounts")
	require.NoError(t, kb.StoreEntities(ctx, []*types.KnowledgeEntity{fraud, compliance}))

	results := kb.GetRelevantKnowledge(ctx, "fraud_detector", "rapid transfers between new accounts", 10)
	require.Len(t, results, 1)
	assert.Equal(t, "fraud-note", results[0].Entity.EntityID)

	// Unknown agent types search everywhere.
	all := kb.GetRelevantKnowledge(ctx, "unknown_agent", "rapid transfers between new accounts", 10)
	assert.Len(t, all, 2)
}

func TestMemoryStatistics(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, kb.StoreEntity(ctx, minimalEntity("m1", "One", "content one")))
	require.NoError(t, kb.StoreEntity(ctx, minimalEntity("m2", "Two", "content two")))
	_ = kb.Search(ctx, types.SemanticQuery{Text: "content one"})

	stats, err := kb.GetMemoryStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEntities)
	assert.Equal(t, int64(1), stats.Searches)
	assert.Equal(t, int64(2), stats.ByPolicy[types.RetentionPersistent].Total)
	assert.Equal(t, 2, stats.Cache.Entities)
}

func TestDomainStatistics(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	a := minimalEntity("d1", "A", "content a")
	a.ConfidenceScore = 0.4
	b := minimalEntity("d2", "B", "content b")
	b.ConfidenceScore = 0.8
	b.KnowledgeType = types.TypePattern
	require.NoError(t, kb.StoreEntities(ctx, []*types.KnowledgeEntity{a, b}))

	stats := kb.GetDomainStatistics(types.DomainRegulatoryCompliance)
	assert.Equal(t, 2, stats.EntityCount)
	assert.Equal(t, 1, stats.ByType[types.TypeRule])
	assert.Equal(t, 1, stats.ByType[types.TypePattern])
	assert.InDelta(t, 0.6, stats.AverageConfidence, 1e-9)
}

func TestPopularEntitiesWeighting(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	distrusted := minimalEntity("distrusted", "Hot but shaky", "content")
	distrusted.AccessCount = 100
	distrusted.ConfidenceScore = 0.1
	trusted := minimalEntity("trusted", "Solid", "content")
	trusted.AccessCount = 50
	trusted.ConfidenceScore = 0.9
	require.NoError(t, kb.StoreEntities(ctx, []*types.KnowledgeEntity{distrusted, trusted}))

	popular := kb.GetPopularEntities("", 10)
	require.Len(t, popular, 2)
	assert.Equal(t, "trusted", popular[0].EntityID, "45 weighted beats 10 weighted")
}

func TestConfidenceDistribution(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	low := minimalEntity("low", "Low", "content")
	low.ConfidenceScore = 0.05
	mid := minimalEntity("mid", "Mid", "content")
	mid.ConfidenceScore = 0.55
	top := minimalEntity("top", "Top", "content")
	top.ConfidenceScore = 1.0
	require.NoError(t, kb.StoreEntities(ctx, []*types.KnowledgeEntity{low, mid, top}))

	dist := kb.GetConfidenceDistribution("")
	assert.Equal(t, 1, dist[0])
	assert.Equal(t, 1, dist[5])
	assert.Equal(t, 1, dist[9], "a perfect score lands in the last bucket")
}

func TestOptimizeStorage(t *testing.T) {
	kb := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, kb.StoreEntity(ctx, minimalEntity("opt", "Kept", "content")))
	require.NoError(t, kb.OptimizeStorage(ctx))

	got, err := kb.GetEntity(ctx, "opt")
	require.NoError(t, err)
	assert.Equal(t, "Kept", got.Title)
}
