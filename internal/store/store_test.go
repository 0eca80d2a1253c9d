package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/verdict/internal/model"
)

type storeFactory func(t *testing.T) Store

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			s, err := Open(context.Background(), model.StoreConfig{Driver: model.DriverSQLite, DSN: ":memory:"})
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

var t0 = time.Date(2026, 5, 1, 9, 30, 0, 123456789, time.UTC)

func newClaim(id string) *model.Claim {
	return &model.Claim{
		ID:          id,
		Author:      model.AccountID("author"),
		Statement:   "Rates are cut in June",
		Category:    "finance",
		CreatedAt:   t0,
		ContentHash: "bafkreitest",
		Outcome:     model.OutcomePending,
	}
}

func TestStore_Claims(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			c := newClaim("c-1")
			require.NoError(t, s.InsertClaim(ctx, c))
			assert.Equal(t, int64(1), c.Version)

			err := s.InsertClaim(ctx, newClaim("c-1"))
			assert.ErrorIs(t, err, ErrDuplicate)

			got, err := s.GetClaim(ctx, "c-1")
			require.NoError(t, err)
			assert.Equal(t, c.Statement, got.Statement)
			assert.Equal(t, c.Author, got.Author)
			assert.True(t, got.CreatedAt.Equal(t0))
			assert.Nil(t, got.ResolvedAt)

			_, err = s.GetClaim(ctx, "missing")
			assert.True(t, IsNotFound(err))

			// Resolve through a versioned update
			resolved := t0.Add(time.Hour)
			windowEnd := resolved.Add(48 * time.Hour)
			deadline := resolved.Add(168 * time.Hour)
			got.Outcome = model.OutcomeCorrect
			got.ResolvedAt = &resolved
			got.DisputeWindowEnd = &windowEnd
			got.FinalizationDeadline = &deadline
			got.EvidenceGrade = model.GradeA
			got.EvidenceScore = 90
			got.Evidence = []model.EvidenceItem{{Index: 0, Type: model.ItemLink, URL: "https://reuters.com/a", Domain: model.DomainReputable}}
			require.NoError(t, s.UpdateClaim(ctx, got))
			assert.Equal(t, int64(2), got.Version)

			// A stale writer loses
			stale := got.Clone()
			stale.Version = 1
			stale.WeightedNet = 5
			assert.ErrorIs(t, s.UpdateClaim(ctx, stale), ErrConflict)

			missing := newClaim("nope")
			missing.Version = 1
			assert.ErrorIs(t, s.UpdateClaim(ctx, missing), ErrNotFound)

			reloaded, err := s.GetClaim(ctx, "c-1")
			require.NoError(t, err)
			assert.Equal(t, model.OutcomeCorrect, reloaded.Outcome)
			assert.Equal(t, 0, reloaded.WeightedNet)
			require.NotNil(t, reloaded.DisputeWindowEnd)
			assert.True(t, reloaded.DisputeWindowEnd.Equal(windowEnd))
			require.Len(t, reloaded.Evidence, 1)
			assert.Equal(t, model.DomainReputable, reloaded.Evidence[0].Domain)
		})
	}
}

func TestStore_ListUnfinalized(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			for i := 0; i < 4; i++ {
				c := newClaim(fmt.Sprintf("c-%d", i))
				require.NoError(t, s.InsertClaim(ctx, c))
				if i == 0 {
					continue // Stays pending
				}
				resolved := t0.Add(time.Duration(4-i) * time.Hour)
				c.Outcome = model.OutcomeCorrect
				c.ResolvedAt = &resolved
				if i == 3 {
					c.IsFinalized = true
				}
				require.NoError(t, s.UpdateClaim(ctx, c))
			}

			list, err := s.ListUnfinalized(ctx, 0)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "c-2", list[0].ID, "earliest resolution first")
			assert.Equal(t, "c-1", list[1].ID)

			limited, err := s.ListUnfinalized(ctx, 1)
			require.NoError(t, err)
			assert.Len(t, limited, 1)
		})
	}
}

func TestStore_Votes(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			alice := model.AccountID("alice")
			bob := model.AnonID("bob")

			_, err := s.GetVote(ctx, "c-1", alice)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.PutVote(ctx, &model.ContestVote{ID: "v-1", ClaimID: "c-1", Voter: alice, Value: 1, ReputationSnapshot: 200, CastAt: t0, UpdatedAt: t0}))
			require.NoError(t, s.PutVote(ctx, &model.ContestVote{ID: "v-2", ClaimID: "c-1", Voter: bob, Value: -1, ReputationSnapshot: 60, CastAt: t0.Add(time.Second), UpdatedAt: t0.Add(time.Second)}))

			sum, err := s.SumVotes(ctx, "c-1")
			require.NoError(t, err)
			assert.Equal(t, 0, sum)

			// Replacing keeps one row per voter with the original id
			later := t0.Add(time.Minute)
			require.NoError(t, s.PutVote(ctx, &model.ContestVote{ID: "v-3", ClaimID: "c-1", Voter: alice, Value: -1, ReputationSnapshot: 250, CastAt: later, UpdatedAt: later}))

			v, err := s.GetVote(ctx, "c-1", alice)
			require.NoError(t, err)
			assert.Equal(t, "v-1", v.ID)
			assert.Equal(t, -1, v.Value)
			assert.Equal(t, 250, v.ReputationSnapshot)
			assert.True(t, v.CastAt.Equal(t0))
			assert.True(t, v.UpdatedAt.Equal(later))

			votes, err := s.ListVotes(ctx, "c-1")
			require.NoError(t, err)
			require.Len(t, votes, 2)
			assert.Equal(t, alice, votes[0].Voter)

			sum, err = s.SumVotes(ctx, "c-1")
			require.NoError(t, err)
			assert.Equal(t, -2, sum)

			require.NoError(t, s.DeleteVote(ctx, "c-1", alice))
			require.NoError(t, s.DeleteVote(ctx, "c-1", alice), "deleting a missing vote is not an error")

			sum, err = s.SumVotes(ctx, "c-1")
			require.NoError(t, err)
			assert.Equal(t, -1, sum)

			sum, err = s.SumVotes(ctx, "other")
			require.NoError(t, err)
			assert.Equal(t, 0, sum)
		})
	}
}

func addPoints(n int) ApplyFunc {
	return func(rec *model.ReputationRecord) (int, error) {
		rec.TotalPoints += n
		rec.LocksCount++
		rec.CategoryStats["tech"] = model.CategoryStat{Correct: 1, Total: rec.LocksCount}
		return n, nil
	}
}

func TestStore_ApplyEvent(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			id := model.AccountID("42")

			empty, err := s.GetReputation(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 0, empty.TotalPoints)
			assert.NotNil(t, empty.CategoryStats)

			ev := &model.ReputationEvent{ID: "e-1", Identity: id, Kind: model.EventLock, ClaimID: "c-1", At: t0}
			rec, applied, err := s.ApplyEvent(ctx, ev, addPoints(10))
			require.NoError(t, err)
			assert.True(t, applied)
			assert.Equal(t, 10, rec.TotalPoints)
			assert.Equal(t, 10, ev.Points)

			dup := &model.ReputationEvent{ID: "e-2", Identity: id, Kind: model.EventLock, ClaimID: "c-1", At: t0}
			rec, applied, err = s.ApplyEvent(ctx, dup, addPoints(10))
			require.NoError(t, err)
			assert.False(t, applied)
			assert.Equal(t, 10, rec.TotalPoints)

			// Same claim, different kind is a new event
			pen := &model.ReputationEvent{ID: "e-3", Identity: id, Kind: model.EventPenalty, ClaimID: "c-1", At: t0.Add(time.Second)}
			rec, applied, err = s.ApplyEvent(ctx, pen, addPoints(-4))
			require.NoError(t, err)
			assert.True(t, applied)
			assert.Equal(t, 6, rec.TotalPoints)

			stored, err := s.GetReputation(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 6, stored.TotalPoints)
			assert.Equal(t, 2, stored.LocksCount)
			assert.Equal(t, model.CategoryStat{Correct: 1, Total: 2}, stored.CategoryStats["tech"])

			got, err := s.GetEvent(ctx, id, model.EventPenalty, "c-1")
			require.NoError(t, err)
			assert.Equal(t, -4, got.Points)
			_, err = s.GetEvent(ctx, id, model.EventResolve, "c-1")
			assert.ErrorIs(t, err, ErrNotFound)

			events, err := s.ListEvents(ctx, id)
			require.NoError(t, err)
			require.Len(t, events, 2)
			assert.Equal(t, model.EventLock, events[0].Kind)
			assert.Equal(t, model.EventPenalty, events[1].Kind)
		})
	}
}

func TestStore_ListEventsApplicationOrder(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			id := model.AccountID("7")

			// Timestamps run backwards; the log keeps the order events were applied.
			for i, claim := range []string{"c-3", "c-1", "c-2"} {
				ev := &model.ReputationEvent{ID: fmt.Sprintf("z-%d", i), Identity: id, Kind: model.EventLock, ClaimID: claim, At: t0.Add(-time.Duration(i) * time.Minute)}
				_, applied, err := s.ApplyEvent(ctx, ev, addPoints(1))
				require.NoError(t, err)
				require.True(t, applied)
			}

			events, err := s.ListEvents(ctx, id)
			require.NoError(t, err)
			require.Len(t, events, 3)
			assert.Equal(t, "c-3", events[0].ClaimID)
			assert.Equal(t, "c-1", events[1].ClaimID)
			assert.Equal(t, "c-2", events[2].ClaimID)
		})
	}
}

func TestStore_ApplyEventErrorLeavesNoTrace(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			id := model.AnonID("x")

			boom := errors.New("boom")
			_, _, err := s.ApplyEvent(ctx, &model.ReputationEvent{ID: "e-1", Identity: id, Kind: model.EventLock, ClaimID: "c-1", At: t0},
				func(rec *model.ReputationRecord) (int, error) {
					rec.TotalPoints = 999
					return 0, boom
				})
			assert.ErrorIs(t, err, boom)

			rec, err := s.GetReputation(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 0, rec.TotalPoints)

			events, err := s.ListEvents(ctx, id)
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}

func TestStore_ApplyEventConcurrentOnce(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			id := model.AccountID("7")

			var applied int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					ev := &model.ReputationEvent{ID: fmt.Sprintf("e-%d", i), Identity: id, Kind: model.EventPenalty, ClaimID: "c-1", At: t0}
					_, ok, err := s.ApplyEvent(ctx, ev, addPoints(-25))
					if err == nil && ok {
						atomic.AddInt32(&applied, 1)
					}
				}(i)
			}
			wg.Wait()

			assert.Equal(t, int32(1), applied)
			events, err := s.ListEvents(ctx, id)
			require.NoError(t, err)
			assert.Len(t, events, 1)
		})
	}
}

func TestStore_Rebuild(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			id := model.AccountID("9")

			for i, pts := range []int{10, 20, 30} {
				ev := &model.ReputationEvent{ID: fmt.Sprintf("e-%d", i), Identity: id, Kind: model.EventLock, ClaimID: fmt.Sprintf("c-%d", i), At: t0.Add(time.Duration(i) * time.Second)}
				_, _, err := s.ApplyEvent(ctx, ev, addPoints(pts))
				require.NoError(t, err)
			}

			var seen []int
			rec, err := s.Rebuild(ctx, id, func(id model.Identity, events []*model.ReputationEvent) (*model.ReputationRecord, error) {
				out := model.NewReputationRecord(id)
				for _, ev := range events {
					seen = append(seen, ev.Points)
					out.TotalPoints += ev.Points * 2
				}
				return out, nil
			})
			require.NoError(t, err)
			assert.Equal(t, []int{10, 20, 30}, seen)
			assert.Equal(t, 120, rec.TotalPoints)

			stored, err := s.GetReputation(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 120, stored.TotalPoints)
			assert.Equal(t, int64(4), stored.Version)
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), model.StoreConfig{Driver: "mongo"})
	assert.Error(t, err)

	_, err = Open(context.Background(), model.StoreConfig{Driver: model.DriverPostgres})
	assert.Error(t, err, "postgres without dsn")

	s, err := Open(context.Background(), model.StoreConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}
