// Package contest validates and tallies contest votes on resolved claims.
//
// Each (claim, voter) pair holds at most one row. The claim's weighted net is
// always recomputed from the full vote set and written with a version check,
// so concurrent voters never lose each other's updates.
package contest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/verdict/internal/model"
	"github.com/ppiankov/verdict/internal/store"
	"github.com/ppiankov/verdict/internal/telemetry"
	"github.com/ppiankov/verdict/internal/throttle"
)

const maxNetAttempts = 64

// ReputationReader looks up a voter's current record
type ReputationReader interface {
	Get(ctx context.Context, id model.Identity) (*model.ReputationRecord, error)
}

// Aggregator casts contest votes and maintains each claim's weighted net
type Aggregator struct {
	claims     store.ClaimStore
	votes      store.VoteStore
	reputation ReputationReader
	limiter    throttle.Limiter
	config     model.ContestConfig
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithLimiter throttles casts per voter
func WithLimiter(l throttle.Limiter) Option {
	return func(a *Aggregator) { a.limiter = l }
}

// WithMetrics records cast and rejected votes
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithLogger replaces the component logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

// NewAggregator creates an aggregator. A nil config uses the defaults.
func NewAggregator(claims store.ClaimStore, votes store.VoteStore, reputation ReputationReader, config *model.ContestConfig, opts ...Option) *Aggregator {
	if config == nil {
		config = &model.DefaultConfig().Contest
	}
	a := &Aggregator{
		claims:     claims,
		votes:      votes,
		reputation: reputation,
		limiter:    throttle.Unlimited{},
		config:     *config,
		logger:     slog.Default().With("component", "contest"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CastVote applies voter's vote of direction (+1 or -1) to claimID.
//
// A first vote is added, the same value again removes it and the opposite
// value updates the row in place with a fresh reputation snapshot.
func (a *Aggregator) CastVote(ctx context.Context, claimID string, voter model.Identity, direction int) (*model.VoteResult, error) {
	res, err := a.cast(ctx, claimID, voter, direction)
	if err != nil {
		a.metrics.VoteRejected(ctx, rejectCode(err))
		a.logger.DebugContext(ctx, "vote rejected",
			"claim_id", claimID, "voter", voter.String(), "direction", direction, "error", err)
		return nil, err
	}
	a.metrics.VoteCast(ctx, string(res.Action))
	a.logger.InfoContext(ctx, "vote cast",
		"claim_id", claimID, "voter", voter.String(), "direction", direction,
		"action", string(res.Action), "weighted_net", res.WeightedNet)
	return res, nil
}

func (a *Aggregator) cast(ctx context.Context, claimID string, voter model.Identity, direction int) (*model.VoteResult, error) {
	value, err := model.ParseDirection(direction)
	if err != nil {
		return nil, err
	}
	if voter.IsZero() {
		return nil, model.ErrInvalidIdentity.WithMessage("voter identity is required")
	}

	claim, err := a.getClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if err := contestable(claim); err != nil {
		return nil, err
	}
	if claim.Author == voter {
		return nil, model.Errorf(model.ErrSelfVote, "%s authored claim %s", voter, claimID)
	}

	prev, err := a.votes.GetVote(ctx, claimID, voter)
	if store.IsNotFound(err) {
		prev, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vote: %w", err)
	}

	now := a.now().UTC()
	result := &model.VoteResult{ClaimID: claimID}

	// The throttle only spends budget on casts that pass every other check
	if prev != nil && prev.Value == value {
		if err := a.allow(ctx, voter); err != nil {
			return nil, err
		}
		if err := a.votes.DeleteVote(ctx, claimID, voter); err != nil {
			return nil, fmt.Errorf("delete vote: %w", err)
		}
		result.Action = model.VoteRemoved
	} else {
		points, err := a.gate(ctx, voter, value)
		if err != nil {
			return nil, err
		}
		if err := a.allow(ctx, voter); err != nil {
			return nil, err
		}
		v := &model.ContestVote{
			ID:                 uuid.Must(uuid.NewV7()).String(),
			ClaimID:            claimID,
			Voter:              voter,
			Value:              value,
			ReputationSnapshot: points,
			CastAt:             now,
			UpdatedAt:          now,
		}
		result.Action = model.VoteAdded
		if prev != nil {
			v.ID = prev.ID
			v.CastAt = prev.CastAt
			result.Action = model.VoteUpdated
		}
		if err := a.votes.PutVote(ctx, v); err != nil {
			return nil, fmt.Errorf("put vote: %w", err)
		}
		result.Vote = v
	}

	net, err := a.recomputeNet(ctx, claimID)
	if err != nil {
		if errors.Is(err, model.ErrClaimNotContestable) {
			a.revert(ctx, claimID, voter, prev)
		}
		return nil, err
	}
	result.WeightedNet = net
	return result, nil
}

// Votes lists the current votes on a claim
func (a *Aggregator) Votes(ctx context.Context, claimID string) ([]*model.ContestVote, error) {
	if _, err := a.getClaim(ctx, claimID); err != nil {
		return nil, err
	}
	votes, err := a.votes.ListVotes(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	return votes, nil
}

// recomputeNet writes the sum of all vote rows to the claim.
// The claim version is read before summing, so a write that commits is never
// older than a concurrently committed vote row.
func (a *Aggregator) recomputeNet(ctx context.Context, claimID string) (int, error) {
	for attempt := 0; attempt < maxNetAttempts; attempt++ {
		claim, err := a.getClaim(ctx, claimID)
		if err != nil {
			return 0, err
		}
		if claim.IsFinalized {
			return 0, model.Errorf(model.ErrClaimNotContestable, "claim %s was finalized", claimID)
		}

		net, err := a.votes.SumVotes(ctx, claimID)
		if err != nil {
			return 0, fmt.Errorf("sum votes: %w", err)
		}
		// Written even when unchanged: the version bump fences out stale sums
		claim.WeightedNet = net
		err = a.claims.UpdateClaim(ctx, claim)
		if errors.Is(err, store.ErrConflict) {
			a.logger.DebugContext(ctx, "net update lost a version race, retrying", "claim_id", claimID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("update claim: %w", err)
		}
		return net, nil
	}
	return 0, model.Errorf(model.ErrVersionConflict, "update weighted net of claim %s: too many concurrent updates", claimID)
}

// revert restores the voter's row after the claim finalized underneath the cast
func (a *Aggregator) revert(ctx context.Context, claimID string, voter model.Identity, prev *model.ContestVote) {
	var err error
	if prev != nil {
		err = a.votes.PutVote(ctx, prev)
	} else {
		err = a.votes.DeleteVote(ctx, claimID, voter)
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to revert vote on finalized claim",
			"claim_id", claimID, "voter", voter.String(), "error", err)
	}
}

// gate enforces the direction-specific reputation minimum and returns the voter's points
func (a *Aggregator) gate(ctx context.Context, voter model.Identity, value int) (int, error) {
	rec, err := a.reputation.Get(ctx, voter)
	if err != nil {
		return 0, fmt.Errorf("get voter reputation: %w", err)
	}
	required := a.config.MinDisputeReputation
	if value > 0 {
		required = a.config.MinSupportReputation
	}
	if rec.TotalPoints < required {
		return 0, model.Errorf(model.ErrInsufficientReputation,
			"%s has %d points, %+d votes require %d", voter, rec.TotalPoints, value, required)
	}
	return rec.TotalPoints, nil
}

// allow consults the throttle. A limiter backend failure lets the vote through.
func (a *Aggregator) allow(ctx context.Context, voter model.Identity) error {
	ok, err := a.limiter.Allow(ctx, voter.String())
	if err != nil {
		a.logger.WarnContext(ctx, "vote throttle unavailable", "voter", voter.String(), "error", err)
		return nil
	}
	if !ok {
		return model.Errorf(model.ErrRateLimited, "%s is casting votes too quickly", voter)
	}
	return nil
}

func (a *Aggregator) getClaim(ctx context.Context, claimID string) (*model.Claim, error) {
	c, err := a.claims.GetClaim(ctx, claimID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, model.Errorf(model.ErrClaimNotFound, "claim %s not found", claimID)
		}
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return c, nil
}

func contestable(c *model.Claim) error {
	switch {
	case !c.IsResolved():
		return model.Errorf(model.ErrClaimNotContestable, "claim %s has not been resolved", c.ID)
	case c.IsFinalized:
		return model.Errorf(model.ErrClaimNotContestable, "claim %s is finalized", c.ID)
	case c.Outcome == model.OutcomeInvalid:
		return model.Errorf(model.ErrClaimNotContestable, "claim %s was resolved invalid", c.ID)
	}
	return nil
}

func rejectCode(err error) string {
	if code := model.CodeOf(err); code != "" {
		return code
	}
	return "internal"
}
