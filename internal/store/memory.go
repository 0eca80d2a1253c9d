package store

import (
	"context"
	"sort"
	"sync"

	"github.com/ppiankov/verdict/internal/model"
)

// MemoryStore implements Store in memory.
// Thread-safe via RWMutex; values are copied in and out.
type MemoryStore struct {
	mu         sync.RWMutex
	claims     map[string]*model.Claim
	votes      map[string]map[string]*model.ContestVote // claim id -> voter -> vote
	reputation map[string]*model.ReputationRecord
	events     map[string][]*model.ReputationEvent // identity -> ordered events
	eventKeys  map[string]bool
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		claims:     make(map[string]*model.Claim),
		votes:      make(map[string]map[string]*model.ContestVote),
		reputation: make(map[string]*model.ReputationRecord),
		events:     make(map[string][]*model.ReputationEvent),
		eventKeys:  make(map[string]bool),
	}
}

// InsertClaim stores a copy of c at version 1
func (s *MemoryStore) InsertClaim(ctx context.Context, c *model.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[c.ID]; ok {
		return ErrDuplicate
	}
	c.Version = 1
	s.claims[c.ID] = c.Clone()
	return nil
}

// GetClaim returns a copy of the stored claim
func (s *MemoryStore) GetClaim(ctx context.Context, id string) (*model.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

// UpdateClaim replaces the claim when c.Version matches the stored version
func (s *MemoryStore) UpdateClaim(ctx context.Context, c *model.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.claims[c.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != c.Version {
		return ErrConflict
	}
	c.Version++
	s.claims[c.ID] = c.Clone()
	return nil
}

// ListUnfinalized returns resolved, unfinalized claims oldest resolution first
func (s *MemoryStore) ListUnfinalized(ctx context.Context, limit int) ([]*model.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Claim
	for _, c := range s.claims {
		if c.IsResolved() && !c.IsFinalized {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ResolvedAt.Equal(*out[j].ResolvedAt) {
			return out[i].ResolvedAt.Before(*out[j].ResolvedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetVote returns the voter's current vote on a claim
func (s *MemoryStore) GetVote(ctx context.Context, claimID string, voter model.Identity) (*model.ContestVote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.votes[claimID][voter.String()]
	if !ok {
		return nil, ErrNotFound
	}
	val := *v
	return &val, nil
}

// PutVote inserts or replaces the voter's vote
func (s *MemoryStore) PutVote(ctx context.Context, v *model.ContestVote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byVoter, ok := s.votes[v.ClaimID]
	if !ok {
		byVoter = make(map[string]*model.ContestVote)
		s.votes[v.ClaimID] = byVoter
	}
	val := *v
	if existing, ok := byVoter[v.Voter.String()]; ok {
		val.ID = existing.ID
		val.CastAt = existing.CastAt
	}
	byVoter[v.Voter.String()] = &val
	return nil
}

// DeleteVote removes the voter's vote; a missing vote is not an error
func (s *MemoryStore) DeleteVote(ctx context.Context, claimID string, voter model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.votes[claimID], voter.String())
	return nil
}

// SumVotes returns the net of all vote values on a claim
func (s *MemoryStore) SumVotes(ctx context.Context, claimID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := 0
	for _, v := range s.votes[claimID] {
		sum += v.Value
	}
	return sum, nil
}

// ListVotes returns the claim's votes in cast order
func (s *MemoryStore) ListVotes(ctx context.Context, claimID string) ([]*model.ContestVote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.ContestVote, 0, len(s.votes[claimID]))
	for _, v := range s.votes[claimID] {
		val := *v
		out = append(out, &val)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CastAt.Equal(out[j].CastAt) {
			return out[i].CastAt.Before(out[j].CastAt)
		}
		return out[i].Voter.String() < out[j].Voter.String()
	})
	return out, nil
}

// GetReputation returns the identity's record, or a fresh one if none is stored
func (s *MemoryStore) GetReputation(ctx context.Context, id model.Identity) (*model.ReputationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recordLocked(id), nil
}

// recordLocked returns a copy of the stored record or a fresh one; caller holds mu
func (s *MemoryStore) recordLocked(id model.Identity) *model.ReputationRecord {
	if rec, ok := s.reputation[id.String()]; ok {
		return rec.Clone()
	}
	return model.NewReputationRecord(id)
}

// ApplyEvent applies ev once per (identity, kind, claim) and appends it to the log
func (s *MemoryStore) ApplyEvent(ctx context.Context, ev *model.ReputationEvent, apply ApplyFunc) (*model.ReputationRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordLocked(ev.Identity)
	if s.eventKeys[ev.Key()] {
		return rec, false, nil
	}

	points, err := apply(rec)
	if err != nil {
		return nil, false, err
	}
	ev.Points = points
	rec.Version++

	evCopy := *ev
	s.events[ev.Identity.String()] = append(s.events[ev.Identity.String()], &evCopy)
	s.eventKeys[ev.Key()] = true
	s.reputation[ev.Identity.String()] = rec.Clone()
	return rec, true, nil
}

// GetEvent returns the logged event for (identity, kind, claim)
func (s *MemoryStore) GetEvent(ctx context.Context, id model.Identity, kind model.EventKind, claimID string) (*model.ReputationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events[id.String()] {
		if ev.Kind == kind && ev.ClaimID == claimID {
			val := *ev
			return &val, nil
		}
	}
	return nil, ErrNotFound
}

// ListEvents returns the identity's events in application order
func (s *MemoryStore) ListEvents(ctx context.Context, id model.Identity) ([]*model.ReputationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eventsLocked(id), nil
}

func (s *MemoryStore) eventsLocked(id model.Identity) []*model.ReputationEvent {
	stored := s.events[id.String()]
	out := make([]*model.ReputationEvent, len(stored))
	for i, ev := range stored {
		val := *ev
		out[i] = &val
	}
	return out
}

// Rebuild replaces the identity's record with fold over its event log
func (s *MemoryStore) Rebuild(ctx context.Context, id model.Identity, fold FoldFunc) (*model.ReputationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.recordLocked(id)
	rec, err := fold(id, s.eventsLocked(id))
	if err != nil {
		return nil, err
	}
	rec.Identity = id
	rec.Version = current.Version + 1
	s.reputation[id.String()] = rec.Clone()
	return rec, nil
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }
