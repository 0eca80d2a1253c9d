package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/verdict/internal/canonical"
	"github.com/ppiankov/verdict/internal/model"
	"github.com/ppiankov/verdict/internal/store"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPenalizer struct {
	calls atomic.Int32
	err   error
}

func (p *recordingPenalizer) ApplyOverrulePenalty(ctx context.Context, id model.Identity, claimID string) (*model.PenaltyResult, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return &model.PenaltyResult{Identity: id, Applied: p.calls.Load() == 1, NewTotal: 75}, nil
}

type fixture struct {
	machine   *Machine
	store     *store.MemoryStore
	clock     *testClock
	penalizer *recordingPenalizer
}

func newFixture(t *testing.T, config *model.LifecycleConfig) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	clock := &testClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	p := &recordingPenalizer{}
	return &fixture{
		machine:   NewMachine(s, p, config, WithClock(clock.Now)),
		store:     s,
		clock:     clock,
		penalizer: p,
	}
}

var author = model.AccountID("author")

func (f *fixture) resolved(t *testing.T, outcome model.Outcome) *model.Claim {
	t.Helper()
	ctx := context.Background()
	c, err := f.machine.Create(ctx, author, "It will rain on Friday", "Weather")
	require.NoError(t, err)
	c, err = f.machine.Resolve(ctx, c.ID, outcome, model.EvidenceScore{Score: 90, Grade: model.GradeA}, nil)
	require.NoError(t, err)
	return c
}

func (f *fixture) setNet(t *testing.T, claimID string, net int) {
	t.Helper()
	ctx := context.Background()
	c, err := f.store.GetClaim(ctx, claimID)
	require.NoError(t, err)
	c.WeightedNet = net
	require.NoError(t, f.store.UpdateClaim(ctx, c))
}

func TestMachine_Create(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	c, err := f.machine.Create(ctx, author, "  The bill passes  ", "Politics")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "The bill passes", c.Statement)
	assert.Equal(t, "politics", c.Category)
	assert.Equal(t, model.OutcomePending, c.Outcome)
	assert.Equal(t, int64(1), c.Version)

	ok, err := canonical.VerifyClaim(c)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.machine.Create(ctx, model.Identity{}, "x", "")
	assert.ErrorIs(t, err, model.ErrInvalidIdentity)

	_, err = f.machine.Create(ctx, author, "   ", "")
	assert.ErrorIs(t, err, model.ErrInvalidClaim)
}

func TestMachine_Resolve(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := f.clock.Now()

	c := f.resolved(t, model.OutcomeCorrect)
	assert.Equal(t, model.OutcomeCorrect, c.Outcome)
	assert.Equal(t, model.GradeA, c.EvidenceGrade)
	assert.Equal(t, 90, c.EvidenceScore)
	require.NotNil(t, c.DisputeWindowEnd)
	require.NotNil(t, c.FinalizationDeadline)
	assert.Equal(t, now.Add(48*time.Hour), *c.DisputeWindowEnd)
	assert.Equal(t, now.Add(168*time.Hour), *c.FinalizationDeadline)

	_, err := f.machine.Resolve(ctx, c.ID, model.OutcomeIncorrect, model.EvidenceScore{Grade: model.GradeD}, nil)
	assert.ErrorIs(t, err, model.ErrAlreadyResolved)

	stored, err := f.machine.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCorrect, stored.Outcome, "second resolve must not change the outcome")

	_, err = f.machine.Resolve(ctx, "missing", model.OutcomeCorrect, model.EvidenceScore{}, nil)
	assert.ErrorIs(t, err, model.ErrClaimNotFound)

	_, err = f.machine.Resolve(ctx, c.ID, model.OutcomePending, model.EvidenceScore{}, nil)
	assert.ErrorIs(t, err, model.ErrInvalidOutcome)
}

func TestMachine_ResolveConcurrentOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c, err := f.machine.Create(ctx, author, "claim", "")
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		outcome := model.OutcomeCorrect
		if i%2 == 1 {
			outcome = model.OutcomeIncorrect
		}
		go func() {
			defer wg.Done()
			if _, err := f.machine.Resolve(ctx, c.ID, outcome, model.EvidenceScore{Grade: model.GradeB}, nil); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, model.ErrAlreadyResolved)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestEvaluate(t *testing.T) {
	config := model.DefaultConfig().Lifecycle
	resolvedAt := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := resolvedAt.Add(config.DisputeWindow)
	deadline := resolvedAt.Add(config.FinalizationDeadline)

	claim := func(net int) *model.Claim {
		return &model.Claim{
			ID:                   "c",
			Outcome:              model.OutcomeCorrect,
			ResolvedAt:           &resolvedAt,
			DisputeWindowEnd:     &windowEnd,
			FinalizationDeadline: &deadline,
			WeightedNet:          net,
		}
	}

	tests := []struct {
		name     string
		claim    *model.Claim
		at       time.Time
		expected model.Status
	}{
		{"pending", &model.Claim{ID: "p", Outcome: model.OutcomePending}, resolvedAt, model.StatusNotResolved},
		{"finalized", &model.Claim{ID: "f", IsFinalized: true}, resolvedAt, model.StatusFinalized},
		{"window open", claim(-50), resolvedAt.Add(time.Hour), model.StatusDisputeWindow},
		{"window end is exclusive", claim(-50), windowEnd, model.StatusThresholdMet},
		{"positive threshold", claim(12), windowEnd.Add(time.Hour), model.StatusThresholdMet},
		{"negative threshold", claim(-12), windowEnd.Add(time.Hour), model.StatusThresholdMet},
		{"below threshold", claim(11), windowEnd.Add(time.Hour), model.StatusContested},
		{"timeout", claim(-3), deadline, model.StatusTimeout},
		{"threshold beats timeout", claim(-20), deadline.Add(time.Hour), model.StatusThresholdMet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Evaluate(tt.claim, config, tt.at)
			assert.Equal(t, tt.expected, st.Status)
			assert.Equal(t, tt.expected.CanFinalize(), st.CanFinalize)
			assert.Equal(t, config.FinalizeThreshold, st.Threshold)
		})
	}
}

func TestDecide(t *testing.T) {
	negative := model.DefaultConfig().Lifecycle
	threshold := negative
	threshold.TimeoutRule = model.TimeoutRuleThreshold

	tests := []struct {
		name      string
		config    model.LifecycleConfig
		outcome   model.Outcome
		net       int
		status    model.Status
		final     model.Outcome
		overruled bool
	}{
		{"threshold upholds", negative, model.OutcomeCorrect, 12, model.StatusThresholdMet, model.OutcomeCorrect, false},
		{"threshold overrules", negative, model.OutcomeCorrect, -12, model.StatusThresholdMet, model.OutcomeIncorrect, true},
		{"threshold overrules incorrect", negative, model.OutcomeIncorrect, -30, model.StatusThresholdMet, model.OutcomeCorrect, true},
		{"timeout negative rule", negative, model.OutcomeCorrect, -1, model.StatusTimeout, model.OutcomeIncorrect, true},
		{"timeout zero stands", negative, model.OutcomeCorrect, 0, model.StatusTimeout, model.OutcomeCorrect, false},
		{"timeout positive stands", negative, model.OutcomeIncorrect, 5, model.StatusTimeout, model.OutcomeIncorrect, false},
		{"timeout threshold rule stands", threshold, model.OutcomeCorrect, -11, model.StatusTimeout, model.OutcomeCorrect, false},
		{"timeout threshold rule overrules", threshold, model.OutcomeCorrect, -12, model.StatusTimeout, model.OutcomeIncorrect, true},
		{"invalid never flips", negative, model.OutcomeInvalid, -40, model.StatusThresholdMet, model.OutcomeInvalid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &model.Claim{Outcome: tt.outcome, WeightedNet: tt.net}
			final, overruled := Decide(c, tt.config, tt.status)
			assert.Equal(t, tt.final, final)
			assert.Equal(t, tt.overruled, overruled)
		})
	}
}

func TestMachine_Finalize_NotReady(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	pending, err := f.machine.Create(ctx, author, "pending claim", "")
	require.NoError(t, err)
	_, err = f.machine.Finalize(ctx, pending.ID)
	assert.ErrorIs(t, err, model.ErrNotResolvedYet)

	c := f.resolved(t, model.OutcomeCorrect)
	_, err = f.machine.Finalize(ctx, c.ID)
	assert.ErrorIs(t, err, model.ErrNotReady)
	assert.True(t, model.IsKind(err, model.KindPrecondition))

	f.clock.Advance(49 * time.Hour)
	st, err := f.machine.Status(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusContested, st.Status)
	_, err = f.machine.Finalize(ctx, c.ID)
	assert.ErrorIs(t, err, model.ErrNotReady)

	_, err = f.machine.Finalize(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrClaimNotFound)
}

func TestMachine_Finalize_Timeout(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.resolved(t, model.OutcomeCorrect)

	f.clock.Advance(168 * time.Hour)
	res, err := f.machine.Finalize(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.Overruled)
	assert.Equal(t, model.OutcomeCorrect, res.FinalOutcome)
	assert.Nil(t, res.Penalty)
	assert.Equal(t, int32(0), f.penalizer.calls.Load())

	again, err := f.machine.Finalize(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, res.FinalizedAt, again.FinalizedAt)
}

func TestMachine_Finalize_Overrule(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.resolved(t, model.OutcomeCorrect)
	f.setNet(t, c.ID, -15)

	f.clock.Advance(48 * time.Hour)
	res, err := f.machine.Finalize(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, res.Overruled)
	assert.Equal(t, model.OutcomeIncorrect, res.FinalOutcome)
	require.NotNil(t, res.Penalty)
	assert.True(t, res.Penalty.Applied)
	assert.Equal(t, author, res.Penalty.Identity)

	stored, err := f.machine.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsFinalized)
	assert.Equal(t, model.OutcomeCorrect, stored.Outcome, "the author's outcome is preserved")
	assert.Equal(t, model.OutcomeIncorrect, stored.FinalOutcome)
}

func TestMachine_Finalize_InvalidOutcomeStands(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.resolved(t, model.OutcomeInvalid)

	f.clock.Advance(200 * time.Hour)
	res, err := f.machine.Finalize(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeInvalid, res.FinalOutcome)
	assert.False(t, res.Overruled)
}

func TestMachine_Finalize_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.resolved(t, model.OutcomeCorrect)
	f.setNet(t, c.ID, -20)
	f.clock.Advance(72 * time.Hour)

	var changed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.machine.Finalize(ctx, c.ID)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, model.OutcomeIncorrect, res.FinalOutcome)
			if res.Changed {
				changed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), changed.Load())
	assert.Equal(t, int32(1), f.penalizer.calls.Load(), "only the winning finalizer applies the penalty")
}

func TestMachine_Finalize_PenaltyFailureSurfaced(t *testing.T) {
	f := newFixture(t, nil)
	f.penalizer.err = errors.New("ledger offline")
	ctx := context.Background()
	c := f.resolved(t, model.OutcomeIncorrect)
	f.setNet(t, c.ID, -12)
	f.clock.Advance(48 * time.Hour)

	res, err := f.machine.Finalize(ctx, c.ID)
	require.NoError(t, err, "finalization stands when the penalty fails")
	assert.True(t, res.Overruled)
	require.NotNil(t, res.Penalty)
	assert.False(t, res.Penalty.Applied)
	assert.Contains(t, res.Penalty.Error, "ledger offline")

	_, err = f.machine.Finalize(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.penalizer.calls.Load(), "a finalized claim is not penalized again")

	_, err = f.machine.RetryOverrulePenalty(ctx, c.ID)
	assert.ErrorIs(t, err, model.ErrPenaltyFailed)
	assert.True(t, model.IsKind(err, model.KindDependency))

	f.penalizer.err = nil
	retry, err := f.machine.RetryOverrulePenalty(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, author, retry.Identity)
}

func TestMachine_RetryOverrulePenalty_Preconditions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.resolved(t, model.OutcomeCorrect)

	_, err := f.machine.RetryOverrulePenalty(ctx, c.ID)
	assert.ErrorIs(t, err, model.ErrNotResolvedYet)

	f.clock.Advance(168 * time.Hour)
	_, err = f.machine.Finalize(ctx, c.ID)
	require.NoError(t, err)

	_, err = f.machine.RetryOverrulePenalty(ctx, c.ID)
	assert.ErrorIs(t, err, model.ErrNotOverruled)
}

func TestMachine_ThresholdTimeoutRule(t *testing.T) {
	config := model.DefaultConfig().Lifecycle
	config.TimeoutRule = model.TimeoutRuleThreshold
	f := newFixture(t, &config)
	ctx := context.Background()

	c := f.resolved(t, model.OutcomeCorrect)
	f.setNet(t, c.ID, -5)
	f.clock.Advance(168 * time.Hour)

	res, err := f.machine.Finalize(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, res.Overruled)
	assert.Equal(t, model.OutcomeCorrect, res.FinalOutcome)
}
