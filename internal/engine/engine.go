// Package engine wires the scorer, ledger, lifecycle machine and vote
// aggregator over one store and exposes the claim resolution operations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ppiankov/verdict/internal/cache"
	"github.com/ppiankov/verdict/internal/contest"
	"github.com/ppiankov/verdict/internal/lifecycle"
	"github.com/ppiankov/verdict/internal/model"
	"github.com/ppiankov/verdict/internal/reputation"
	"github.com/ppiankov/verdict/internal/score"
	"github.com/ppiankov/verdict/internal/store"
	"github.com/ppiankov/verdict/internal/telemetry"
	"github.com/ppiankov/verdict/internal/throttle"
	"github.com/ppiankov/verdict/internal/validate"
	"github.com/ppiankov/verdict/internal/worker"
)

// Engine orchestrates claim resolution and reputation
type Engine struct {
	config    *model.Config
	store     store.Store
	validator *validate.Validator
	scorer    *score.Scorer
	ledger    *reputation.Ledger
	machine   *lifecycle.Machine
	contest   *contest.Aggregator
	sweeper   *worker.Sweeper
	limiter   throttle.Limiter
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

type options struct {
	store   store.Store
	limiter throttle.Limiter
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures an Engine
type Option func(*options)

// WithStore uses s instead of opening the configured store
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithLimiter overrides the configured vote throttle
func WithLimiter(l throttle.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithClock overrides the wall clock for every component
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the base logger each component derives its own from
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New builds an engine from cfg. A nil cfg uses the defaults.
func New(ctx context.Context, cfg *model.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	validator, err := validate.NewValidator(&cfg.Authority)
	if err != nil {
		return nil, fmt.Errorf("create validator: %w", err)
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.Global {
			metrics, err = telemetry.NewGlobal()
		} else {
			metrics, err = telemetry.New()
		}
		if err != nil {
			return nil, fmt.Errorf("create metrics: %w", err)
		}
	}

	var scoreOpts []score.Option
	if cfg.Cache.Enabled {
		var c cache.Cache = cache.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.CleanupInterval)
		if cfg.Cache.Dir != "" {
			c = cache.NewPersistentCache(cfg.Cache.TTL, cfg.Cache.CleanupInterval, cfg.Cache.Dir)
		}
		scoreOpts = append(scoreOpts, score.WithCache(c, cfg.Cache.TTL))
	}

	s := o.store
	if s == nil {
		opened, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s = opened
	}

	limiter := o.limiter
	if limiter == nil {
		limiter = throttle.New(cfg.Contest)
	}

	ledger := reputation.NewLedger(s, &cfg.Reputation, &cfg.Scoring,
		reputation.WithClock(o.now),
		reputation.WithMetrics(metrics),
		reputation.WithLogger(o.logger.With("component", "reputation")))
	machine := lifecycle.NewMachine(s, ledger, &cfg.Lifecycle,
		lifecycle.WithClock(o.now),
		lifecycle.WithMetrics(metrics),
		lifecycle.WithLogger(o.logger.With("component", "lifecycle")))
	aggregator := contest.NewAggregator(s, s, ledger, &cfg.Contest,
		contest.WithClock(o.now),
		contest.WithLimiter(limiter),
		contest.WithMetrics(metrics),
		contest.WithLogger(o.logger.With("component", "contest")))

	return &Engine{
		config:    cfg,
		store:     s,
		validator: validator,
		scorer:    score.NewScorer(&cfg.Scoring, scoreOpts...),
		ledger:    ledger,
		machine:   machine,
		contest:   aggregator,
		sweeper:   worker.NewSweeper(s, machine, cfg.Sweep.Workers, cfg.Sweep.Limit),
		limiter:   limiter,
		metrics:   metrics,
		logger:    o.logger.With("component", "engine"),
		now:       o.now,
	}, nil
}

// Config returns the effective configuration
func (e *Engine) Config() *model.Config {
	return e.config
}

// Metrics returns the telemetry instruments (nil when disabled)
func (e *Engine) Metrics() *telemetry.Metrics {
	return e.metrics
}

// Validator returns the evidence validator
func (e *Engine) Validator() *validate.Validator {
	return e.validator
}

// ScoreEvidence validates and scores an evidence bundle
func (e *Engine) ScoreEvidence(ctx context.Context, items []model.EvidenceItem) (*model.EvidenceReport, error) {
	validated, err := e.validator.Evidence(items)
	if err != nil {
		return nil, err
	}
	bundle := e.scorer.NewBundle(validated...)
	result := bundle.Score()
	e.metrics.EvidenceScored(ctx, string(result.Grade))

	return &model.EvidenceReport{
		Items:      bundle.Items(),
		Score:      result,
		Principles: model.DefaultPrinciples(),
		ScoredAt:   e.now().UTC(),
	}, nil
}

// CreateClaim stores a new claim and awards the author's lock points
func (e *Engine) CreateClaim(ctx context.Context, author model.Identity, statement, category string) (*model.CreateResult, error) {
	c, err := e.machine.Create(ctx, author, statement, category)
	if err != nil {
		return nil, err
	}

	result := &model.CreateResult{Claim: c}
	points, err := e.ledger.AwardLock(ctx, author, c.ID)
	if err != nil {
		e.logger.ErrorContext(ctx, "lock award failed, claim stands",
			"claim_id", c.ID, "identity", author.String(), "error", err)
		result.PointsError = err.Error()
		return result, nil
	}
	result.LockPoints = points
	return result, nil
}

// GetClaim returns a stored claim
func (e *Engine) GetClaim(ctx context.Context, claimID string) (*model.Claim, error) {
	return e.machine.Get(ctx, claimID)
}

// ResolveClaim sets the author's outcome, scores the evidence and awards resolve points.
// grade is optional; when given it must match the grade computed from items.
func (e *Engine) ResolveClaim(ctx context.Context, claimID, outcome, grade string, items []model.EvidenceItem) (*model.ResolveResult, error) {
	parsedOutcome, parsedGrade, err := validate.Resolution(outcome, grade)
	if err != nil {
		return nil, err
	}
	validated, err := e.validator.Evidence(items)
	if err != nil {
		return nil, err
	}

	bundle := e.scorer.NewBundle(validated...)
	evidence := bundle.Score()
	if parsedGrade != "" && parsedGrade != evidence.Grade {
		return nil, model.Errorf(model.ErrInvalidGrade,
			"evidence grade %s does not match the submitted evidence (scored %d, grade %s)",
			parsedGrade, evidence.Score, evidence.Grade)
	}
	e.metrics.EvidenceScored(ctx, string(evidence.Grade))

	c, err := e.machine.Resolve(ctx, claimID, parsedOutcome, evidence, bundle.Items())
	if err != nil {
		return nil, err
	}

	result := &model.ResolveResult{
		ClaimID:              c.ID,
		Outcome:              c.Outcome,
		ResolvedAt:           *c.ResolvedAt,
		DisputeWindowEnd:     *c.DisputeWindowEnd,
		FinalizationDeadline: *c.FinalizationDeadline,
		Evidence:             evidence,
	}

	correct := parsedOutcome == model.OutcomeCorrect
	points, err := e.ledger.AwardResolve(ctx, c.Author, c.ID, correct, c.Category, evidence.Grade)
	if err != nil {
		e.logger.ErrorContext(ctx, "resolve award failed, resolution stands",
			"claim_id", c.ID, "identity", c.Author.String(), "error", err)
		result.PointsError = err.Error()
		return result, nil
	}
	result.Points = points
	return result, nil
}

// ResolveClaimJSON resolves from a JSON resolution document
func (e *Engine) ResolveClaimJSON(ctx context.Context, data []byte) (*model.ResolveResult, error) {
	in, err := e.validator.DecodeResolution(data)
	if err != nil {
		return nil, err
	}
	return e.ResolveClaim(ctx, in.ClaimID, in.Outcome, in.Grade, in.Evidence)
}

// CastContestVote casts, updates or toggles off voter's vote on a claim
func (e *Engine) CastContestVote(ctx context.Context, claimID string, voter model.Identity, direction int) (*model.VoteResult, error) {
	return e.contest.CastVote(ctx, claimID, voter, direction)
}

// Votes lists the current votes on a claim
func (e *Engine) Votes(ctx context.Context, claimID string) ([]*model.ContestVote, error) {
	return e.contest.Votes(ctx, claimID)
}

// GetFinalizationStatus derives the claim's status without side effects
func (e *Engine) GetFinalizationStatus(ctx context.Context, claimID string) (*model.FinalizationStatus, error) {
	return e.machine.Status(ctx, claimID)
}

// FinalizeClaim finalizes a ready claim, or returns the stored result if already finalized
func (e *Engine) FinalizeClaim(ctx context.Context, claimID string) (*model.FinalizeResult, error) {
	return e.machine.Finalize(ctx, claimID)
}

// AwardLockPoints awards lock points for claimID (0 if already awarded)
func (e *Engine) AwardLockPoints(ctx context.Context, id model.Identity, claimID string) (int, error) {
	return e.ledger.AwardLock(ctx, id, claimID)
}

// AwardResolvePoints awards resolve points for claimID (0 if already awarded)
func (e *Engine) AwardResolvePoints(ctx context.Context, id model.Identity, claimID string, correct bool, category, grade string) (int, error) {
	g, err := model.ParseGrade(grade)
	if err != nil {
		return 0, err
	}
	return e.ledger.AwardResolve(ctx, id, claimID, correct, category, g)
}

// ApplyOverrulePenalty deducts the overrule penalty for claimID at most once
func (e *Engine) ApplyOverrulePenalty(ctx context.Context, id model.Identity, claimID string) (*model.PenaltyResult, error) {
	return e.ledger.ApplyOverrulePenalty(ctx, id, claimID)
}

// RetryOverrulePenalty re-applies the penalty for a finalized, overruled claim.
// A penalty already on the author's log is reported without another write.
func (e *Engine) RetryOverrulePenalty(ctx context.Context, claimID string) (*model.PenaltyResult, error) {
	c, err := e.machine.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if c.IsFinalized && c.Overruled && !c.Author.IsZero() {
		applied, err := e.ledger.PenaltyApplied(ctx, c.Author, claimID)
		if err != nil {
			return nil, model.Errorf(model.ErrPenaltyFailed, "overrule penalty for claim %s", claimID).Wrap(err)
		}
		if applied {
			rec, err := e.ledger.Get(ctx, c.Author)
			if err != nil {
				return nil, err
			}
			e.logger.InfoContext(ctx, "overrule penalty already applied", "claim_id", claimID, "identity", c.Author.String())
			return &model.PenaltyResult{Identity: c.Author, NewTotal: rec.TotalPoints}, nil
		}
	}
	return e.machine.RetryOverrulePenalty(ctx, claimID)
}

// Reputation returns an identity's record with accuracy and milestone progress
func (e *Engine) Reputation(ctx context.Context, id model.Identity) (*model.ReputationSummary, error) {
	rec, err := e.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.summarize(rec), nil
}

// History returns an identity's reputation events in order
func (e *Engine) History(ctx context.Context, id model.Identity) ([]*model.ReputationEvent, error) {
	return e.ledger.History(ctx, id)
}

// Recompute rebuilds an identity's record from its event log
func (e *Engine) Recompute(ctx context.Context, id model.Identity) (*model.ReputationSummary, error) {
	rec, err := e.ledger.Recompute(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.summarize(rec), nil
}

// Sweep finalizes every eligible claim
func (e *Engine) Sweep(ctx context.Context) (*worker.SweepReport, error) {
	return e.sweeper.Sweep(ctx)
}

// FinalizeFile finalizes the claims listed in a file
func (e *Engine) FinalizeFile(ctx context.Context, path string) (*worker.SweepReport, error) {
	return e.sweeper.FinalizeFile(ctx, path)
}

// Close releases the store, throttle and telemetry
func (e *Engine) Close() error {
	var errs []error
	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if c, ok := e.limiter.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close limiter: %w", err))
		}
	}
	if e.metrics != nil {
		if err := e.metrics.Shutdown(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("shutdown metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) summarize(rec *model.ReputationRecord) *model.ReputationSummary {
	return &model.ReputationSummary{
		Record:    rec,
		Accuracy:  rec.Accuracy(),
		Milestone: e.ledger.MilestoneFor(rec.TotalPoints),
	}
}
