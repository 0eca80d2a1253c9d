package contest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/verdict/internal/model"
	"github.com/ppiankov/verdict/internal/store"
	"github.com/ppiankov/verdict/internal/throttle"
)

type pointsTable struct {
	mu     sync.Mutex
	points map[model.Identity]int
}

func (p *pointsTable) Get(ctx context.Context, id model.Identity) (*model.ReputationRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := model.NewReputationRecord(id)
	rec.TotalPoints = p.points[id]
	return rec, nil
}

func (p *pointsTable) set(id model.Identity, points int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.points[id] = points
}

var (
	author = model.AccountID("author")
	alice  = model.AccountID("alice")
	bob    = model.AnonID("bob")
	newbie = model.AnonID("newbie")
)

func newTestAggregator(t *testing.T, opts ...Option) (*Aggregator, *store.MemoryStore, *pointsTable) {
	t.Helper()
	s := store.NewMemoryStore()
	points := &pointsTable{points: map[model.Identity]int{
		author: 1000,
		alice:  500,
		bob:    100,
		newbie: 0,
	}}
	return NewAggregator(s, s, points, nil, opts...), s, points
}

func insertClaim(t *testing.T, s *store.MemoryStore, id string, outcome model.Outcome, finalized bool) {
	t.Helper()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	c := &model.Claim{
		ID:        id,
		Author:    author,
		Statement: "statement " + id,
		CreatedAt: now,
		Outcome:   outcome,
	}
	if outcome != model.OutcomePending {
		windowEnd := now.Add(48 * time.Hour)
		c.ResolvedAt = &now
		c.DisputeWindowEnd = &windowEnd
	}
	c.IsFinalized = finalized
	require.NoError(t, s.InsertClaim(context.Background(), c))
}

func TestAggregator_AddUpdateRemove(t *testing.T) {
	ctx := context.Background()
	a, s, _ := newTestAggregator(t)
	insertClaim(t, s, "c-1", model.OutcomeCorrect, false)

	res, err := a.CastVote(ctx, "c-1", alice, -1)
	require.NoError(t, err)
	assert.Equal(t, model.VoteAdded, res.Action)
	assert.Equal(t, -1, res.WeightedNet)
	require.NotNil(t, res.Vote)
	assert.Equal(t, 500, res.Vote.ReputationSnapshot)
	firstID := res.Vote.ID

	res, err = a.CastVote(ctx, "c-1", alice, 1)
	require.NoError(t, err)
	assert.Equal(t, model.VoteUpdated, res.Action)
	assert.Equal(t, 1, res.WeightedNet)
	assert.Equal(t, firstID, res.Vote.ID, "update keeps the row")

	res, err = a.CastVote(ctx, "c-1", bob, -1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.WeightedNet)

	res, err = a.CastVote(ctx, "c-1", alice, 1)
	require.NoError(t, err)
	assert.Equal(t, model.VoteRemoved, res.Action)
	assert.Nil(t, res.Vote)
	assert.Equal(t, -1, res.WeightedNet)

	votes, err := a.Votes(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, bob, votes[0].Voter)

	c, err := s.GetClaim(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, -1, c.WeightedNet)
}

func TestAggregator_SameVoteTwiceRestoresBaseline(t *testing.T) {
	ctx := context.Background()
	a, s, _ := newTestAggregator(t)
	insertClaim(t, s, "c-1", model.OutcomeIncorrect, false)

	_, err := a.CastVote(ctx, "c-1", bob, -1)
	require.NoError(t, err)

	added, err := a.CastVote(ctx, "c-1", alice, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, added.WeightedNet)

	removed, err := a.CastVote(ctx, "c-1", alice, 1)
	require.NoError(t, err)
	assert.Equal(t, -1, removed.WeightedNet)
}

func TestAggregator_SelfVote(t *testing.T) {
	ctx := context.Background()
	a, s, _ := newTestAggregator(t)
	insertClaim(t, s, "c-1", model.OutcomeCorrect, false)

	_, err := a.CastVote(ctx, "c-1", author, 1)
	assert.ErrorIs(t, err, model.ErrSelfVote)
	assert.True(t, model.IsKind(err, model.KindPrecondition))

	_, err = s.GetVote(ctx, "c-1", author)
	assert.True(t, store.IsNotFound(err), "no row written")

	c, err := s.GetClaim(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.WeightedNet)
	assert.Equal(t, int64(1), c.Version, "claim untouched")
}

func TestAggregator_ReputationGate(t *testing.T) {
	ctx := context.Background()
	a, s, points := newTestAggregator(t)
	insertClaim(t, s, "c-1", model.OutcomeCorrect, false)

	// 100 points: enough to dispute, not to support
	_, err := a.CastVote(ctx, "c-1", bob, 1)
	assert.ErrorIs(t, err, model.ErrInsufficientReputation)

	res, err := a.CastVote(ctx, "c-1", bob, -1)
	require.NoError(t, err)
	assert.Equal(t, model.VoteAdded, res.Action)

	_, err = a.CastVote(ctx, "c-1", newbie, -1)
	assert.ErrorIs(t, err, model.ErrInsufficientReputation)

	// Removing one's own vote is allowed after losing reputation
	points.set(bob, 0)
	res, err = a.CastVote(ctx, "c-1", bob, -1)
	require.NoError(t, err)
	assert.Equal(t, model.VoteRemoved, res.Action)
	assert.Equal(t, 0, res.WeightedNet)
}

func TestAggregator_NotContestable(t *testing.T) {
	ctx := context.Background()
	a, s, _ := newTestAggregator(t)
	insertClaim(t, s, "pending", model.OutcomePending, false)
	insertClaim(t, s, "final", model.OutcomeCorrect, true)
	insertClaim(t, s, "invalid", model.OutcomeInvalid, false)

	for _, id := range []string{"pending", "final", "invalid"} {
		_, err := a.CastVote(ctx, id, alice, -1)
		assert.ErrorIs(t, err, model.ErrClaimNotContestable, id)
	}

	_, err := a.CastVote(ctx, "missing", alice, -1)
	assert.ErrorIs(t, err, model.ErrClaimNotFound)
}

func TestAggregator_InvalidInput(t *testing.T) {
	ctx := context.Background()
	a, s, _ := newTestAggregator(t)
	insertClaim(t, s, "c-1", model.OutcomeCorrect, false)

	for _, dir := range []int{0, 2, -2} {
		_, err := a.CastVote(ctx, "c-1", alice, dir)
		assert.ErrorIs(t, err, model.ErrInvalidDirection)
		assert.True(t, model.IsKind(err, model.KindValidation))
	}

	_, err := a.CastVote(ctx, "c-1", model.Identity{}, 1)
	assert.ErrorIs(t, err, model.ErrInvalidIdentity)
}

func TestAggregator_RateLimited(t *testing.T) {
	ctx := context.Background()
	a, s, _ := newTestAggregator(t, WithLimiter(throttle.NewLocalLimiter(1, 1)))
	insertClaim(t, s, "c-1", model.OutcomeCorrect, false)
	insertClaim(t, s, "c-2", model.OutcomeCorrect, false)

	_, err := a.CastVote(ctx, "c-1", alice, -1)
	require.NoError(t, err)

	_, err = a.CastVote(ctx, "c-2", alice, -1)
	assert.ErrorIs(t, err, model.ErrRateLimited)

	_, err = a.CastVote(ctx, "c-2", bob, -1)
	assert.NoError(t, err, "throttle is per voter")
}

func TestAggregator_RejectedVotesKeepThrottleBudget(t *testing.T) {
	ctx := context.Background()
	a, s, points := newTestAggregator(t, WithLimiter(throttle.NewLocalLimiter(1, 1)))
	insertClaim(t, s, "c-1", model.OutcomeCorrect, false)

	// bob has 100 points, below the support minimum
	for i := 0; i < 3; i++ {
		_, err := a.CastVote(ctx, "c-1", bob, 1)
		assert.ErrorIs(t, err, model.ErrInsufficientReputation)
	}

	points.set(bob, 200)
	res, err := a.CastVote(ctx, "c-1", bob, 1)
	require.NoError(t, err)
	assert.Equal(t, model.VoteAdded, res.Action)

	_, err = a.CastVote(ctx, "c-1", bob, -1)
	assert.ErrorIs(t, err, model.ErrRateLimited)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return false, errors.New("connection refused")
}

func TestAggregator_LimiterFailureAllows(t *testing.T) {
	ctx := context.Background()
	a, s, _ := newTestAggregator(t, WithLimiter(brokenLimiter{}))
	insertClaim(t, s, "c-1", model.OutcomeCorrect, false)

	_, err := a.CastVote(ctx, "c-1", alice, -1)
	assert.NoError(t, err)
}

type finalizingStore struct {
	*store.MemoryStore
	once sync.Once
}

// SumVotes finalizes the claim underneath the first cast
func (f *finalizingStore) SumVotes(ctx context.Context, claimID string) (int, error) {
	f.once.Do(func() {
		c, _ := f.MemoryStore.GetClaim(ctx, claimID)
		c.IsFinalized = true
		_ = f.MemoryStore.UpdateClaim(ctx, c)
	})
	return f.MemoryStore.SumVotes(ctx, claimID)
}

func TestAggregator_FinalizedDuringCastReverts(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	insertClaim(t, mem, "c-1", model.OutcomeCorrect, false)
	s := &finalizingStore{MemoryStore: mem}
	points := &pointsTable{points: map[model.Identity]int{alice: 500}}
	a := NewAggregator(s, s, points, nil)

	_, err := a.CastVote(ctx, "c-1", alice, -1)
	require.ErrorIs(t, err, model.ErrClaimNotContestable)

	_, err = mem.GetVote(ctx, "c-1", alice)
	assert.True(t, store.IsNotFound(err), "vote row reverted")
}

func TestAggregator_ConcurrentVotersNoLostUpdates(t *testing.T) {
	ctx := context.Background()
	a, s, points := newTestAggregator(t)
	insertClaim(t, s, "c-1", model.OutcomeCorrect, false)

	const voters = 24
	expected := 0
	for i := 0; i < voters; i++ {
		points.set(model.AccountID(fmt.Sprintf("v-%d", i)), 200)
		if i%3 == 0 {
			expected++
		} else {
			expected--
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dir := -1
			if i%3 == 0 {
				dir = 1
			}
			_, err := a.CastVote(ctx, "c-1", model.AccountID(fmt.Sprintf("v-%d", i)), dir)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	c, err := s.GetClaim(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, expected, c.WeightedNet)

	sum, err := s.SumVotes(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, sum, c.WeightedNet)
}
