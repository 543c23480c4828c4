package store

import (
	"sync"
	"time"

	"github.com/regulens/vectorkb/pkg/types"
)

// slab is the in-memory mirror: entities live in a dense arena addressed by
// integer index, one guarded id-to-index map, and domain/type/tag inverted
// indexes holding arena indices rather than id strings. A single RWMutex
// guards the whole structure so an update is atomic with respect to its own
// index adjustments.
type slab struct {
	mu      sync.RWMutex
	arena   []*types.KnowledgeEntity
	free    []int
	byID    map[string]int
	byDomain map[types.Domain]map[int]struct{}
	byType   map[types.KnowledgeType]map[int]struct{}
	byTag    map[string]map[int]struct{}
}

func newSlab() *slab {
	return &slab{
		byID:     make(map[string]int),
		byDomain: make(map[types.Domain]map[int]struct{}),
		byType:   make(map[types.KnowledgeType]map[int]struct{}),
		byTag:    make(map[string]map[int]struct{}),
	}
}

// CandidateFilter selects entities for the search candidate set. Zero fields
// do not filter.
type CandidateFilter struct {
	Domain       types.Domain
	Types        []types.KnowledgeType
	Tags         []string
	CreatedAfter time.Time
	Now          time.Time
}

// put inserts or replaces an entity, keeping all indexes in step. The slab
// takes ownership of the given entity; callers pass clones.
func (s *slab) put(entity *types.KnowledgeEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.byID[entity.EntityID]; ok {
		s.unindexLocked(idx)
		s.arena[idx] = entity
		s.indexLocked(idx, entity)
		return
	}

	var idx int
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
		s.arena[idx] = entity
	} else {
		idx = len(s.arena)
		s.arena = append(s.arena, entity)
	}
	s.byID[entity.EntityID] = idx
	s.indexLocked(idx, entity)
}

// get returns a clone of the cached entity, or nil on miss.
func (s *slab) get(entityID string) *types.KnowledgeEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.byID[entityID]; ok {
		return s.arena[idx].Clone()
	}
	return nil
}

// remove evicts an entity and its index entries. Reports whether it was held.
func (s *slab) remove(entityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[entityID]
	if !ok {
		return false
	}
	s.unindexLocked(idx)
	s.arena[idx] = nil
	s.free = append(s.free, idx)
	delete(s.byID, entityID)
	return true
}

// touch bumps access counters on the cached copies.
func (s *slab) touch(entityIDs []string, accessedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range entityIDs {
		if idx, ok := s.byID[id]; ok {
			s.arena[idx].AccessCount++
			s.arena[idx].LastAccessed = accessedAt
		}
	}
}

// setConfidence updates the cached confidence score, if present.
func (s *slab) setConfidence(entityID string, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.byID[entityID]; ok {
		s.arena[idx].ConfidenceScore = score
	}
}

// setRetention updates the cached retention tier and expiry, if present.
func (s *slab) setRetention(entityID string, policy types.RetentionPolicy, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.byID[entityID]; ok {
		s.arena[idx].RetentionPolicy = policy
		s.arena[idx].ExpiresAt = expiresAt
	}
}

// candidates returns clones of every live entity passing the filter. The
// domain index narrows the walk when a domain is set; everything else is
// checked per entity.
func (s *slab) candidates(filter CandidateFilter) []*types.KnowledgeEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.KnowledgeEntity
	consider := func(idx int) {
		entity := s.arena[idx]
		if entity == nil || !s.matchLocked(entity, filter) {
			return
		}
		out = append(out, entity.Clone())
	}

	if filter.Domain != "" {
		for idx := range s.byDomain[filter.Domain] {
			consider(idx)
		}
		return out
	}
	for _, idx := range s.byID {
		consider(idx)
	}
	return out
}

// all returns clones of every live entity.
func (s *slab) all() []*types.KnowledgeEntity {
	return s.candidates(CandidateFilter{})
}

// reset replaces the entire mirror, used by index rebuilds. Entities are
// owned by the slab afterwards.
func (s *slab) reset(entities []*types.KnowledgeEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arena = s.arena[:0]
	s.free = s.free[:0]
	s.byID = make(map[string]int, len(entities))
	s.byDomain = make(map[types.Domain]map[int]struct{})
	s.byType = make(map[types.KnowledgeType]map[int]struct{})
	s.byTag = make(map[string]map[int]struct{})
	for _, entity := range entities {
		idx := len(s.arena)
		s.arena = append(s.arena, entity)
		s.byID[entity.EntityID] = idx
		s.indexLocked(idx, entity)
	}
}

// len reports the number of live entries.
func (s *slab) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *slab) matchLocked(entity *types.KnowledgeEntity, filter CandidateFilter) bool {
	if !filter.Now.IsZero() && entity.Expired(filter.Now) {
		return false
	}
	if filter.Domain != "" && entity.Domain != filter.Domain {
		return false
	}
	if len(filter.Types) > 0 {
		matched := false
		for _, t := range filter.Types {
			if entity.KnowledgeType == t {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(filter.Tags) > 0 {
		matched := false
	tagLoop:
		for _, want := range filter.Tags {
			for _, have := range entity.Tags {
				if want == have {
					matched = true
					break tagLoop
				}
			}
		}
		if !matched {
			return false
		}
	}
	if !filter.CreatedAfter.IsZero() && entity.CreatedAt.Before(filter.CreatedAfter) {
		return false
	}
	return true
}

func (s *slab) indexLocked(idx int, entity *types.KnowledgeEntity) {
	if s.byDomain[entity.Domain] == nil {
		s.byDomain[entity.Domain] = make(map[int]struct{})
	}
	s.byDomain[entity.Domain][idx] = struct{}{}

	if s.byType[entity.KnowledgeType] == nil {
		s.byType[entity.KnowledgeType] = make(map[int]struct{})
	}
	s.byType[entity.KnowledgeType][idx] = struct{}{}

	for _, tag := range entity.Tags {
		if s.byTag[tag] == nil {
			s.byTag[tag] = make(map[int]struct{})
		}
		s.byTag[tag][idx] = struct{}{}
	}
}

func (s *slab) unindexLocked(idx int) {
	entity := s.arena[idx]
	if entity == nil {
		return
	}
	delete(s.byDomain[entity.Domain], idx)
	delete(s.byType[entity.KnowledgeType], idx)
	for _, tag := range entity.Tags {
		delete(s.byTag[tag], idx)
		if len(s.byTag[tag]) == 0 {
			delete(s.byTag, tag)
		}
	}
}
