// Package lifecycle manages retention tiers: assigning expiry windows,
// sweeping expired entities, and running the background sweeper.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/regulens/vectorkb/pkg/store"
	"github.com/regulens/vectorkb/pkg/types"
)

// Default retention windows, shortest to longest lived. Persistent and
// archival use 365-day years; regulatory retention is specified in years,
// not leap-exact days.
const (
	DefaultEphemeralWindow  = 24 * time.Hour
	DefaultSessionWindow    = 30 * 24 * time.Hour
	DefaultPersistentWindow = 7 * 365 * 24 * time.Hour
	DefaultArchivalWindow   = 10 * 365 * 24 * time.Hour
)

// DefaultSweepInterval is how often the background sweeper runs.
const DefaultSweepInterval = time.Hour

// Windows maps each retention tier to its expiry window.
type Windows struct {
	Ephemeral  time.Duration `json:"ephemeral" mapstructure:"ephemeral"`
	Session    time.Duration `json:"session" mapstructure:"session"`
	Persistent time.Duration `json:"persistent" mapstructure:"persistent"`
	Archival   time.Duration `json:"archival" mapstructure:"archival"`
}

// DefaultWindows returns the standard 24h / 30d / 7y / 10y tiers.
func DefaultWindows() Windows {
	return Windows{
		Ephemeral:  DefaultEphemeralWindow,
		Session:    DefaultSessionWindow,
		Persistent: DefaultPersistentWindow,
		Archival:   DefaultArchivalWindow,
	}
}

// Validate checks every window is positive and the tiers are strictly
// increasing, so promoting an entity always extends its life.
func (w Windows) Validate() error {
	if w.Ephemeral <= 0 {
		return fmt.Errorf("ephemeral window must be positive, got %s", w.Ephemeral)
	}
	if w.Session <= w.Ephemeral {
		return fmt.Errorf("session window %s must exceed ephemeral %s", w.Session, w.Ephemeral)
	}
	if w.Persistent <= w.Session {
		return fmt.Errorf("persistent window %s must exceed session %s", w.Persistent, w.Session)
	}
	if w.Archival <= w.Persistent {
		return fmt.Errorf("archival window %s must exceed persistent %s", w.Archival, w.Persistent)
	}
	return nil
}

// For returns the window of one tier.
func (w Windows) For(policy types.RetentionPolicy) time.Duration {
	switch policy {
	case types.RetentionEphemeral:
		return w.Ephemeral
	case types.RetentionSession:
		return w.Session
	case types.RetentionArchival:
		return w.Archival
	default:
		return w.Persistent
	}
}

// Manager owns retention assignment and expiry sweeps.
type Manager struct {
	store   *store.Store
	windows Windows
	logger  *slog.Logger

	// now is a test hook.
	now func() time.Time

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

// NewManager wires the lifecycle manager. Invalid windows fall back to the
// defaults after logging.
func NewManager(st *store.Store, windows Windows, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if err := windows.Validate(); err != nil {
		logger.Warn("invalid retention windows, using defaults", "error", err)
		windows = DefaultWindows()
	}
	return &Manager{store: st, windows: windows, logger: logger, now: time.Now}
}

// Windows returns the configured tiers.
func (m *Manager) Windows() Windows { return m.windows }

// ExpiryFor computes the expiry instant a policy assigns from now.
func (m *Manager) ExpiryFor(policy types.RetentionPolicy) time.Time {
	return m.now().Add(m.windows.For(policy))
}

// SetPolicy moves an entity to a retention tier, recomputing its expiry from
// the current time.
func (m *Manager) SetPolicy(ctx context.Context, entityID string, policy types.RetentionPolicy) error {
	if !policy.Valid() {
		return fmt.Errorf("unknown retention policy %q", policy)
	}
	return m.store.SetRetention(ctx, entityID, policy, m.ExpiryFor(policy))
}

// CleanupExpired sweeps every tier once and returns deleted counts per tier.
// A failing tier is logged and skipped so one bad sweep cannot block the rest.
func (m *Manager) CleanupExpired(ctx context.Context) map[types.RetentionPolicy]int {
	now := m.now()
	removed := make(map[types.RetentionPolicy]int, len(types.RetentionPolicies))
	for _, policy := range types.RetentionPolicies {
		deleted, err := m.store.DeleteExpired(ctx, policy, now)
		if err != nil {
			m.logger.Error("expiry sweep failed", "policy", policy, "error", err)
			continue
		}
		removed[policy] = len(deleted)
		if len(deleted) > 0 {
			m.logger.Info("swept expired entities", "policy", policy, "count", len(deleted))
		}
	}
	return removed
}

// StartSweeper runs CleanupExpired on the given interval until StopSweeper.
// Starting an already-running sweeper is a no-op.
func (m *Manager) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	m.stopped = make(chan struct{})

	go func(stop, stopped chan struct{}) {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.CleanupExpired(context.Background())
			case <-stop:
				return
			}
		}
	}(m.stop, m.stopped)

	m.logger.Info("retention sweeper started", "interval", interval)
}

// StopSweeper stops the background sweeper and waits for it to exit.
func (m *Manager) StopSweeper() {
	m.mu.Lock()
	stop, stopped := m.stop, m.stopped
	m.stop, m.stopped = nil, nil
	m.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-stopped
	m.logger.Info("retention sweeper stopped")
}
