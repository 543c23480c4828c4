package store_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regulens/vectorkb/pkg/store"
	"github.com/regulens/vectorkb/pkg/types"
)

const testDimensions = 4

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	driver, err := store.NewBadgerDriver(store.BadgerConfig{InMemory: true}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	return store.New(driver, testDimensions, slog.Default())
}

func testEntity(id string) *types.KnowledgeEntity {
	now := time.Now().UTC()
	return &types.KnowledgeEntity{
		EntityID:        id,
		Domain:          types.DomainRegulatoryCompliance,
		KnowledgeType:   types.TypeRule,
		Title:           "Entity " + id,
		Content:         "content for " + id,
		Embedding:       []float32{0.5, 0.5, 0.5, 0.5},
		RetentionPolicy: types.RetentionPersistent,
		CreatedAt:       now,
		LastAccessed:    now,
		ConfidenceScore: 0.5,
		Tags:            []string{"aml"},
	}
}

func TestStoreAndGetRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	original := testEntity("rule-001")
	require.NoError(t, st.Store(ctx, original))

	got, err := st.Get(ctx, "rule-001")
	require.NoError(t, err)
	assert.Equal(t, original.EntityID, got.EntityID)
	assert.Equal(t, original.Title, got.Title)
	assert.Equal(t, original.Embedding, got.Embedding)
	assert.Equal(t, original.Tags, got.Tags)

	// Clones: mutating a returned entity must not affect the cache.
	got.Title = "mutated"
	again, err := st.Get(ctx, "rule-001")
	require.NoError(t, err)
	assert.Equal(t, "Entity rule-001", again.Title)
}

func TestGetMissingEntity(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Get(context.Background(), "no-such-entity")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStoreRejectsInvalidEntity(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	t.Run("missing id", func(t *testing.T) {
		e := testEntity("")
		assert.Error(t, st.Store(ctx, e))
	})
	t.Run("wrong embedding width", func(t *testing.T) {
		e := testEntity("bad-width")
		e.Embedding = []float32{1, 2}
		assert.Error(t, st.Store(ctx, e))
	})
	t.Run("confidence out of range", func(t *testing.T) {
		e := testEntity("bad-conf")
		e.ConfidenceScore = 1.5
		assert.Error(t, st.Store(ctx, e))
	})
}

func TestCacheHitMissCounters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Store(ctx, testEntity("cached")))

	// Stored entities are mirrored, so the first read is already a hit.
	_, err := st.Get(ctx, "cached")
	require.NoError(t, err)
	_, err = st.Get(ctx, "cached")
	require.NoError(t, err)
	_, _ = st.Get(ctx, "missing")

	stats := st.CacheStats()
	assert.Equal(t, 1, stats.Entities)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestUpdateAppliesPartialFields(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Store(ctx, testEntity("upd")))

	title := "Updated title"
	tags := []string{"kyc", "onboarding"}
	require.NoError(t, st.Update(ctx, "upd", types.EntityUpdate{Title: &title, Tags: &tags}))

	got, err := st.Get(ctx, "upd")
	require.NoError(t, err)
	assert.Equal(t, "Updated title", got.Title)
	assert.Equal(t, tags, got.Tags)
	assert.Equal(t, "content for upd", got.Content, "unset fields stay untouched")
}

func TestUpdateConfidenceClamps(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	e := testEntity("conf")
	e.ConfidenceScore = 0.95
	require.NoError(t, st.Store(ctx, e))

	score, err := st.UpdateConfidence(ctx, "conf", 0.1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score, "confidence must clamp at 1.0")

	score, err = st.UpdateConfidence(ctx, "conf", -2.0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score, "confidence must clamp at 0.0")

	got, err := st.Get(ctx, "conf")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.ConfidenceScore)

	_, err = st.UpdateConfidence(ctx, "missing", 0.1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCandidatesFilters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	compliance := testEntity("c1")
	fraud := testEntity("f1")
	fraud.Domain = types.DomainTransactionMonitoring
	fraud.KnowledgeType = types.TypePattern
	fraud.Tags = []string{"fraud", "velocity"}
	expired := testEntity("x1")
	expired.ExpiresAt = time.Now().Add(-time.Hour)

	require.NoError(t, st.StoreBatch(ctx, []*types.KnowledgeEntity{compliance, fraud, expired}))

	t.Run("no filter returns everything", func(t *testing.T) {
		assert.Len(t, st.Candidates(store.CandidateFilter{}), 3)
	})
	t.Run("domain filter", func(t *testing.T) {
		got := st.Candidates(store.CandidateFilter{Domain: types.DomainTransactionMonitoring})
		require.Len(t, got, 1)
		assert.Equal(t, "f1", got[0].EntityID)
	})
	t.Run("type filter", func(t *testing.T) {
		got := st.Candidates(store.CandidateFilter{Types: []types.KnowledgeType{types.TypePattern}})
		require.Len(t, got, 1)
		assert.Equal(t, "f1", got[0].EntityID)
	})
	t.Run("tag filter", func(t *testing.T) {
		got := st.Candidates(store.CandidateFilter{Tags: []string{"velocity"}})
		require.Len(t, got, 1)
		assert.Equal(t, "f1", got[0].EntityID)
	})
	t.Run("expired entities drop when Now is set", func(t *testing.T) {
		got := st.Candidates(store.CandidateFilter{Now: time.Now()})
		assert.Len(t, got, 2)
		for _, e := range got {
			assert.NotEqual(t, "x1", e.EntityID)
		}
	})
}

func TestDeleteCascadesRelationships(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Store(ctx, testEntity("src")))
	require.NoError(t, st.Store(ctx, testEntity("dst")))

	now := time.Now().UTC()
	rel := &types.Relationship{
		SourceID: "src", TargetID: "dst", Type: "depends_on",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.Driver().UpsertRelationship(ctx, rel))

	edges, err := st.Driver().RelationshipsFrom(ctx, "src")
	require.NoError(t, err)
	require.Len(t, edges, 1)

	// Deleting the target removes the incoming edge too.
	require.NoError(t, st.Delete(ctx, "dst"))

	edges, err = st.Driver().RelationshipsFrom(ctx, "src")
	require.NoError(t, err)
	assert.Empty(t, edges)

	_, err = st.Get(ctx, "dst")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, st.Delete(ctx, "dst"), store.ErrNotFound)
}

func TestDeleteRelationship(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Store(ctx, testEntity("src")))
	require.NoError(t, st.Store(ctx, testEntity("dst")))

	now := time.Now().UTC()
	rel := &types.Relationship{
		SourceID: "src", TargetID: "dst", Type: "cites",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.Driver().UpsertRelationship(ctx, rel))

	require.NoError(t, st.Driver().DeleteRelationship(ctx, "src", "dst", "cites"))

	edges, err := st.Driver().RelationshipsFrom(ctx, "src")
	require.NoError(t, err)
	assert.Empty(t, edges)

	// Both endpoints survive; only the edge goes.
	_, err = st.Get(ctx, "src")
	assert.NoError(t, err)
	_, err = st.Get(ctx, "dst")
	assert.NoError(t, err)

	// The reverse index entry went with it: deleting the target afterwards
	// must not trip over a dangling cascade pointer.
	require.NoError(t, st.Delete(ctx, "dst"))

	err = st.Driver().DeleteRelationship(ctx, "src", "dst", "cites")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteExpired(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	stale := testEntity("stale")
	stale.RetentionPolicy = types.RetentionEphemeral
	stale.ExpiresAt = time.Now().Add(-time.Minute)
	fresh := testEntity("fresh")
	fresh.RetentionPolicy = types.RetentionEphemeral
	fresh.ExpiresAt = time.Now().Add(time.Hour)
	other := testEntity("other")
	other.ExpiresAt = time.Now().Add(-time.Minute)

	require.NoError(t, st.StoreBatch(ctx, []*types.KnowledgeEntity{stale, fresh, other}))

	deleted, err := st.DeleteExpired(ctx, types.RetentionEphemeral, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, deleted, "only the expired entity under the swept tier goes")

	_, err = st.Get(ctx, "stale")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.Get(ctx, "fresh")
	assert.NoError(t, err)
	_, err = st.Get(ctx, "other")
	assert.NoError(t, err, "a different tier is untouched even when past expiry")
}

func TestDeleteExpiredBoundary(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	deadline := time.Now().UTC()
	boundary := testEntity("boundary")
	boundary.RetentionPolicy = types.RetentionEphemeral
	boundary.ExpiresAt = deadline
	require.NoError(t, st.Store(ctx, boundary))

	// Expiry is strict: an entity whose expires_at equals the sweep instant
	// is still live.
	deleted, err := st.DeleteExpired(ctx, types.RetentionEphemeral, deadline)
	require.NoError(t, err)
	assert.Empty(t, deleted)

	deleted, err = st.DeleteExpired(ctx, types.RetentionEphemeral, deadline.Add(time.Nanosecond))
	require.NoError(t, err)
	assert.Equal(t, []string{"boundary"}, deleted)
}

func TestTouchAccessed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Store(ctx, testEntity("touched")))

	accessedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.TouchAccessed(ctx, []string{"touched"}, accessedAt))
	require.NoError(t, st.TouchAccessed(ctx, []string{"touched"}, accessedAt))

	got, err := st.Get(ctx, "touched")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AccessCount)
	assert.WithinDuration(t, accessedAt, got.LastAccessed, time.Second)

	assert.NoError(t, st.TouchAccessed(ctx, nil, accessedAt), "empty batch is a no-op")
}

func TestRebuildIndexesHealsDrift(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Write through the driver directly so the mirror never sees it.
	direct := testEntity("direct")
	require.NoError(t, st.Driver().UpsertEntity(ctx, direct))

	assert.Empty(t, st.Candidates(store.CandidateFilter{Domain: direct.Domain}))

	require.NoError(t, st.RebuildIndexes(ctx))

	got := st.Candidates(store.CandidateFilter{Domain: direct.Domain})
	require.Len(t, got, 1)
	assert.Equal(t, "direct", got[0].EntityID)
}

func TestSetRetention(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Store(ctx, testEntity("ret")))

	expires := time.Now().Add(24 * time.Hour).UTC()
	require.NoError(t, st.SetRetention(ctx, "ret", types.RetentionEphemeral, expires))

	got, err := st.Get(ctx, "ret")
	require.NoError(t, err)
	assert.Equal(t, types.RetentionEphemeral, got.RetentionPolicy)
	assert.WithinDuration(t, expires, got.ExpiresAt, time.Second)
}

func TestDriverStats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Store(ctx, testEntity("s1")))
	require.NoError(t, st.Store(ctx, testEntity("s2")))
	require.NoError(t, st.Driver().InsertInteraction(ctx, &types.Interaction{
		Query:     "wire transfer threshold",
		EntityID:  "s1",
		Reward:    1.0,
		Timestamp: time.Now().UTC(),
	}))

	stats, err := st.Driver().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Entities)
	assert.Equal(t, int64(1), stats.Interactions)
	assert.Equal(t, int64(2), stats.ByPolicy[types.RetentionPersistent].Total)
}
