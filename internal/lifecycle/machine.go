// Package lifecycle drives a claim from creation through resolution, the
// dispute window and finalization.
//
// Status is never stored; it is derived from the claim's timestamps and
// weighted net at read time. Transitions are compare-and-set writes on the
// claim version, so exactly one concurrent finalizer wins.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/verdict/internal/canonical"
	"github.com/ppiankov/verdict/internal/model"
	"github.com/ppiankov/verdict/internal/store"
	"github.com/ppiankov/verdict/internal/telemetry"
)

const maxWriteAttempts = 16

// Penalizer deducts the overrule penalty from a claim author
type Penalizer interface {
	ApplyOverrulePenalty(ctx context.Context, id model.Identity, claimID string) (*model.PenaltyResult, error)
}

// Machine applies lifecycle transitions to stored claims
type Machine struct {
	claims    store.ClaimStore
	penalizer Penalizer
	config    model.LifecycleConfig
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Machine
type Option func(*Machine)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithMetrics records lifecycle transitions
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Machine) { m.metrics = metrics }
}

// WithLogger replaces the component logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

// NewMachine creates a lifecycle machine. A nil config uses the defaults.
func NewMachine(claims store.ClaimStore, penalizer Penalizer, config *model.LifecycleConfig, opts ...Option) *Machine {
	if config == nil {
		config = &model.DefaultConfig().Lifecycle
	}
	m := &Machine{
		claims:    claims,
		penalizer: penalizer,
		config:    *config,
		logger:    slog.Default().With("component", "lifecycle"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective lifecycle configuration
func (m *Machine) Config() model.LifecycleConfig {
	return m.config
}

// Create stores a new pending claim and fixes its content hash
func (m *Machine) Create(ctx context.Context, author model.Identity, statement, category string) (*model.Claim, error) {
	if author.IsZero() {
		return nil, model.ErrInvalidIdentity.WithMessage("claim author is required")
	}
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return nil, model.Errorf(model.ErrInvalidClaim, "claim statement is required")
	}

	c := &model.Claim{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Author:    author,
		Statement: statement,
		Category:  strings.ToLower(strings.TrimSpace(category)),
		CreatedAt: m.now().UTC(),
		Outcome:   model.OutcomePending,
	}
	hash, err := canonical.ClaimHash(c)
	if err != nil {
		return nil, fmt.Errorf("hash claim: %w", err)
	}
	c.ContentHash = hash

	if err := m.claims.InsertClaim(ctx, c); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, model.Errorf(model.ErrDuplicateClaim, "claim %s already exists", c.ID)
		}
		return nil, fmt.Errorf("insert claim: %w", err)
	}

	m.metrics.ClaimCreated(ctx)
	m.logger.InfoContext(ctx, "claim created", "claim_id", c.ID, "author", author.String(), "category", c.Category)
	return c, nil
}

// Get returns the stored claim
func (m *Machine) Get(ctx context.Context, claimID string) (*model.Claim, error) {
	c, err := m.claims.GetClaim(ctx, claimID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, model.Errorf(model.ErrClaimNotFound, "claim %s not found", claimID)
		}
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return c, nil
}

// Resolve records the author's outcome and opens the dispute window.
// A claim resolves exactly once.
func (m *Machine) Resolve(ctx context.Context, claimID string, outcome model.Outcome, score model.EvidenceScore, items []model.EvidenceItem) (*model.Claim, error) {
	if !outcome.IsResolution() {
		return nil, model.Errorf(model.ErrInvalidOutcome, "invalid outcome %q: must be correct, incorrect or invalid", outcome)
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		c, err := m.Get(ctx, claimID)
		if err != nil {
			return nil, err
		}
		if c.IsResolved() {
			return nil, model.Errorf(model.ErrAlreadyResolved, "claim %s already resolved as %s", claimID, c.Outcome)
		}

		now := m.now().UTC()
		windowEnd := now.Add(m.config.DisputeWindow)
		deadline := now.Add(m.config.FinalizationDeadline)

		c.Outcome = outcome
		c.ResolvedAt = &now
		c.EvidenceGrade = score.Grade
		c.EvidenceScore = score.Score
		c.Evidence = items
		c.DisputeWindowEnd = &windowEnd
		c.FinalizationDeadline = &deadline

		err = m.claims.UpdateClaim(ctx, c)
		if errors.Is(err, store.ErrConflict) {
			m.logger.DebugContext(ctx, "resolve lost a version race, retrying", "claim_id", claimID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update claim: %w", err)
		}

		m.metrics.ClaimResolved(ctx, string(outcome))
		m.logger.InfoContext(ctx, "claim resolved",
			"claim_id", claimID, "outcome", string(outcome), "grade", string(score.Grade),
			"score", score.Score, "dispute_window_end", windowEnd)
		return c, nil
	}
	return nil, model.Errorf(model.ErrVersionConflict, "resolve claim %s: too many concurrent updates", claimID)
}

// Status derives the claim's finalization status at the current time
func (m *Machine) Status(ctx context.Context, claimID string) (*model.FinalizationStatus, error) {
	c, err := m.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	st := Evaluate(c, m.config, m.now().UTC())
	return &st, nil
}

// Finalize fixes the claim's final outcome once it is ready.
//
// Finalizing an already finalized claim returns the stored result with
// Changed false. Only the caller whose write commits applies the overrule
// penalty; a penalty failure is logged and reported in the result while the
// finalization stands.
func (m *Machine) Finalize(ctx context.Context, claimID string) (*model.FinalizeResult, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		c, err := m.Get(ctx, claimID)
		if err != nil {
			return nil, err
		}
		if c.IsFinalized {
			return finalizedResult(c, false), nil
		}

		now := m.now().UTC()
		st := Evaluate(c, m.config, now)
		if st.Status == model.StatusNotResolved {
			return nil, model.Errorf(model.ErrNotResolvedYet, "claim %s has not been resolved", claimID)
		}
		if !st.CanFinalize {
			return nil, model.Errorf(model.ErrNotReady, "claim %s is not ready to finalize: %s", claimID, st.Status)
		}

		final, overruled := Decide(c, m.config, st.Status)
		c.IsFinalized = true
		c.FinalOutcome = final
		c.Overruled = overruled
		c.FinalizedAt = &now

		err = m.claims.UpdateClaim(ctx, c)
		if errors.Is(err, store.ErrConflict) {
			m.logger.DebugContext(ctx, "finalize lost a version race, retrying", "claim_id", claimID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update claim: %w", err)
		}

		m.metrics.ClaimFinalized(ctx, overruled)
		m.logger.InfoContext(ctx, "claim finalized",
			"claim_id", claimID, "status", string(st.Status), "final_outcome", string(final),
			"overruled", overruled, "weighted_net", c.WeightedNet)

		result := finalizedResult(c, true)
		if overruled {
			result.Penalty = m.penalize(ctx, c)
		}
		return result, nil
	}
	return nil, model.Errorf(model.ErrVersionConflict, "finalize claim %s: too many concurrent updates", claimID)
}

// RetryOverrulePenalty re-applies the overrule penalty for a finalized,
// overruled claim. The penalty is keyed by claim, so retries never double-apply.
func (m *Machine) RetryOverrulePenalty(ctx context.Context, claimID string) (*model.PenaltyResult, error) {
	c, err := m.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !c.IsFinalized {
		return nil, model.Errorf(model.ErrNotResolvedYet, "claim %s has not been finalized", claimID)
	}
	if !c.Overruled {
		return nil, model.Errorf(model.ErrNotOverruled, "claim %s was not overruled", claimID)
	}
	if m.penalizer == nil {
		return nil, model.ErrPenaltyFailed.WithMessage("no penalizer configured")
	}

	res, err := m.penalizer.ApplyOverrulePenalty(ctx, c.Author, claimID)
	if err != nil {
		return nil, model.Errorf(model.ErrPenaltyFailed, "overrule penalty for claim %s", claimID).Wrap(err)
	}
	return res, nil
}

func (m *Machine) penalize(ctx context.Context, c *model.Claim) *model.PenaltyResult {
	if m.penalizer == nil || c.Author.IsZero() {
		return nil
	}
	res, err := m.penalizer.ApplyOverrulePenalty(ctx, c.Author, c.ID)
	if err != nil {
		m.logger.ErrorContext(ctx, "overrule penalty failed, finalization stands",
			"claim_id", c.ID, "author", c.Author.String(), "error", err)
		return &model.PenaltyResult{Identity: c.Author, Error: err.Error()}
	}
	return res
}

func finalizedResult(c *model.Claim, changed bool) *model.FinalizeResult {
	res := &model.FinalizeResult{
		ClaimID:      c.ID,
		FinalOutcome: c.FinalOutcome,
		Overruled:    c.Overruled,
		WeightedNet:  c.WeightedNet,
		Changed:      changed,
	}
	if c.FinalizedAt != nil {
		res.FinalizedAt = *c.FinalizedAt
	}
	return res
}
