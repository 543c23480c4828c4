// Package learning is the feedback loop: interaction outcomes nudge entity
// confidence, and usage patterns surface entities worth human review.
package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/regulens/vectorkb/pkg/store"
	"github.com/regulens/vectorkb/pkg/types"
)

const (
	// RewardScale converts a raw reward in [-1, 1] into a confidence delta.
	// A single interaction moves confidence by at most 0.1.
	RewardScale = 0.1

	// ReinforceDelta is the small positive nudge applied when a batch of
	// entities is confirmed useful without an explicit reward.
	ReinforceDelta = 0.01

	// Recommendation thresholds: heavily used entities the loop still
	// distrusts are the ones worth human curation.
	recommendMinAccess     = 5
	recommendMaxConfidence = 0.7
	recommendLimit         = 10
)

// Loop is the learning feedback loop over the entity store.
type Loop struct {
	store  *store.Store
	logger *slog.Logger
}

// NewLoop wires the feedback loop.
func NewLoop(st *store.Store, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{store: st, logger: logger}
}

// RecordInteraction appends the interaction and, when it names an entity,
// adjusts that entity's confidence by reward*RewardScale, clamped to [0, 1].
// The interaction record is written even when the confidence update fails,
// so the audit trail never loses feedback.
func (l *Loop) RecordInteraction(ctx context.Context, interaction types.Interaction) error {
	if interaction.Timestamp.IsZero() {
		interaction.Timestamp = time.Now()
	}
	if err := l.store.Driver().InsertInteraction(ctx, &interaction); err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	if interaction.EntityID == "" {
		return nil
	}
	score, err := l.store.UpdateConfidence(ctx, interaction.EntityID, interaction.Reward*RewardScale)
	if err != nil {
		return fmt.Errorf("apply feedback to %s: %w", interaction.EntityID, err)
	}
	l.logger.Debug("applied interaction feedback",
		"entity_id", interaction.EntityID, "reward", interaction.Reward, "confidence", score)
	return nil
}

// Reinforce applies a small positive confidence nudge to each entity.
// Missing entities are skipped; other failures abort.
func (l *Loop) Reinforce(ctx context.Context, entityIDs []string) error {
	for _, id := range entityIDs {
		if _, err := l.store.UpdateConfidence(ctx, id, ReinforceDelta); err != nil {
			if isNotFound(err) {
				continue
			}
			return fmt.Errorf("reinforce %s: %w", id, err)
		}
	}
	return nil
}

// Recommendations returns up to 10 heavily used, low-confidence entities:
// access count above 5 and confidence below 0.7, ordered by access count
// descending then confidence ascending, entity id breaking remaining ties.
// Empty domain means all domains.
func (l *Loop) Recommendations(ctx context.Context, domain types.Domain) []*types.KnowledgeEntity {
	var picked []*types.KnowledgeEntity
	for _, entity := range l.store.Candidates(store.CandidateFilter{Domain: domain}) {
		if entity.AccessCount > recommendMinAccess && entity.ConfidenceScore < recommendMaxConfidence {
			picked = append(picked, entity)
		}
	}
	sort.Slice(picked, func(i, j int) bool {
		if picked[i].AccessCount != picked[j].AccessCount {
			return picked[i].AccessCount > picked[j].AccessCount
		}
		if picked[i].ConfidenceScore != picked[j].ConfidenceScore {
			return picked[i].ConfidenceScore < picked[j].ConfidenceScore
		}
		return picked[i].EntityID < picked[j].EntityID
	})
	if len(picked) > recommendLimit {
		picked = picked[:recommendLimit]
	}
	return picked
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
