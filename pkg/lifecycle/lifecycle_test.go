package lifecycle_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regulens/vectorkb/pkg/lifecycle"
	"github.com/regulens/vectorkb/pkg/store"
	"github.com/regulens/vectorkb/pkg/types"
)

func newLifecycleFixture(t *testing.T, windows lifecycle.Windows) (*store.Store, *lifecycle.Manager) {
	t.Helper()
	driver, err := store.NewBadgerDriver(store.BadgerConfig{InMemory: true}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })

	st := store.New(driver, 4, slog.Default())
	return st, lifecycle.NewManager(st, windows, slog.Default())
}

func seedWithExpiry(t *testing.T, st *store.Store, id string, policy types.RetentionPolicy, expiresAt time.Time) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, st.Store(context.Background(), &types.KnowledgeEntity{
		EntityID:        id,
		Domain:          types.DomainRegulatoryCompliance,
		KnowledgeType:   types.TypeFact,
		Title:           "Entity " + id,
		Content:         "content",
		RetentionPolicy: policy,
		CreatedAt:       now,
		LastAccessed:    now,
		ExpiresAt:       expiresAt,
		ConfidenceScore: 0.5,
	}))
}

func TestWindowsValidate(t *testing.T) {
	tests := []struct {
		name    string
		windows lifecycle.Windows
		wantErr bool
	}{
		{"defaults are valid", lifecycle.DefaultWindows(), false},
		{"zero ephemeral", lifecycle.Windows{Session: time.Hour, Persistent: 2 * time.Hour, Archival: 3 * time.Hour}, true},
		{"session not above ephemeral", lifecycle.Windows{Ephemeral: time.Hour, Session: time.Hour, Persistent: 2 * time.Hour, Archival: 3 * time.Hour}, true},
		{"persistent not above session", lifecycle.Windows{Ephemeral: time.Hour, Session: 2 * time.Hour, Persistent: time.Hour, Archival: 3 * time.Hour}, true},
		{"archival not above persistent", lifecycle.Windows{Ephemeral: time.Hour, Session: 2 * time.Hour, Persistent: 3 * time.Hour, Archival: 3 * time.Hour}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.windows.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultWindowTiers(t *testing.T) {
	w := lifecycle.DefaultWindows()
	assert.Equal(t, 24*time.Hour, w.For(types.RetentionEphemeral))
	assert.Equal(t, 30*24*time.Hour, w.For(types.RetentionSession))
	assert.Equal(t, 7*365*24*time.Hour, w.For(types.RetentionPersistent))
	assert.Equal(t, 10*365*24*time.Hour, w.For(types.RetentionArchival))
	assert.Equal(t, w.Persistent, w.For(types.RetentionPolicy("unknown")), "unknown tiers fall back to persistent")
}

func TestInvalidWindowsFallBackToDefaults(t *testing.T) {
	_, lm := newLifecycleFixture(t, lifecycle.Windows{Ephemeral: -time.Hour})
	assert.Equal(t, lifecycle.DefaultWindows(), lm.Windows())
}

func TestSetPolicyRecomputesExpiry(t *testing.T) {
	st, lm := newLifecycleFixture(t, lifecycle.DefaultWindows())
	ctx := context.Background()
	seedWithExpiry(t, st, "e1", types.RetentionPersistent, time.Time{})

	require.NoError(t, lm.SetPolicy(ctx, "e1", types.RetentionEphemeral))

	got, err := st.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, types.RetentionEphemeral, got.RetentionPolicy)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), got.ExpiresAt, time.Minute)

	t.Run("unknown policy rejected", func(t *testing.T) {
		assert.Error(t, lm.SetPolicy(ctx, "e1", types.RetentionPolicy("forever")))
	})
	t.Run("missing entity", func(t *testing.T) {
		err := lm.SetPolicy(ctx, "ghost", types.RetentionSession)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestCleanupExpired(t *testing.T) {
	st, lm := newLifecycleFixture(t, lifecycle.DefaultWindows())
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	seedWithExpiry(t, st, "eph-old", types.RetentionEphemeral, past)
	seedWithExpiry(t, st, "eph-new", types.RetentionEphemeral, future)
	seedWithExpiry(t, st, "ses-old", types.RetentionSession, past)
	seedWithExpiry(t, st, "per-keep", types.RetentionPersistent, future)

	removed := lm.CleanupExpired(ctx)
	assert.Equal(t, 1, removed[types.RetentionEphemeral])
	assert.Equal(t, 1, removed[types.RetentionSession])
	assert.Equal(t, 0, removed[types.RetentionPersistent])

	_, err := st.Get(ctx, "eph-old")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.Get(ctx, "eph-new")
	assert.NoError(t, err)
	_, err = st.Get(ctx, "per-keep")
	assert.NoError(t, err)
}

func TestSweeperStartStop(t *testing.T) {
	_, lm := newLifecycleFixture(t, lifecycle.DefaultWindows())

	lm.StartSweeper(time.Hour)
	lm.StartSweeper(time.Hour) // second start is a no-op

	done := make(chan struct{})
	go func() {
		lm.StopSweeper()
		lm.StopSweeper() // second stop is a no-op
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("StopSweeper did not return")
	}
}

func TestSweeperRemovesExpiredEntities(t *testing.T) {
	st, lm := newLifecycleFixture(t, lifecycle.DefaultWindows())
	ctx := context.Background()
	seedWithExpiry(t, st, "doomed", types.RetentionEphemeral, time.Now().Add(-time.Minute))

	lm.StartSweeper(50 * time.Millisecond)
	defer lm.StopSweeper()

	assert.Eventually(t, func() bool {
		_, err := st.Get(ctx, "doomed")
		return err != nil
	}, 3*time.Second, 25*time.Millisecond, "sweeper should remove the expired entity")
}
