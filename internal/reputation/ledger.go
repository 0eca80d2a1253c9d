// Package reputation keeps per-identity point totals, streaks, category
// breakdowns and milestones.
//
// Every change is an event with a unique (identity, kind, claim) key, applied
// atomically with the record update. The same per-event rule drives incremental
// awards and Recompute, so replaying an identity's log reproduces its record.
package reputation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/verdict/internal/model"
	"github.com/ppiankov/verdict/internal/store"
	"github.com/ppiankov/verdict/internal/telemetry"
)

// Ledger applies reputation events to identities
type Ledger struct {
	store       store.ReputationStore
	config      model.ReputationConfig
	multipliers map[model.Grade]float64
	metrics     *telemetry.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithMetrics records awarded points and penalties
func WithMetrics(m *telemetry.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithLogger replaces the component logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger creates a ledger. Nil configs use the defaults; grade multipliers come from the scoring table.
func NewLedger(s store.ReputationStore, config *model.ReputationConfig, scoring *model.ScoringConfig, opts ...Option) *Ledger {
	defaults := model.DefaultConfig()
	if config == nil {
		config = &defaults.Reputation
	}
	if scoring == nil {
		scoring = &defaults.Scoring
	}

	l := &Ledger{
		store:       s,
		config:      *config,
		multipliers: make(map[model.Grade]float64, len(scoring.Grades)),
		logger:      slog.Default().With("component", "reputation"),
		now:         time.Now,
	}
	for _, g := range scoring.Grades {
		l.multipliers[g.Grade] = g.Multiplier
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AwardLock awards the fixed lock points for creating claimID.
// A repeated award for the same claim is a no-op returning 0.
func (l *Ledger) AwardLock(ctx context.Context, id model.Identity, claimID string) (int, error) {
	if err := checkKey(id, claimID); err != nil {
		return 0, err
	}
	ev := l.newEvent(id, model.EventLock, claimID)
	return l.record(ctx, ev)
}

// AwardResolve applies the points for resolving claimID and updates streaks
// and category stats. It returns the signed point delta (before the zero floor).
// A repeated award for the same claim is a no-op returning 0.
func (l *Ledger) AwardResolve(ctx context.Context, id model.Identity, claimID string, correct bool, category string, grade model.Grade) (int, error) {
	if err := checkKey(id, claimID); err != nil {
		return 0, err
	}
	if _, ok := l.multipliers[grade]; !ok {
		return 0, model.Errorf(model.ErrInvalidGrade, "invalid evidence grade %q", grade)
	}
	ev := l.newEvent(id, model.EventResolve, claimID)
	ev.Correct = correct
	ev.Category = normalizeCategory(category)
	ev.Grade = grade
	return l.record(ctx, ev)
}

// ApplyOverrulePenalty deducts the overrule penalty for claimID at most once.
// When the penalty was already applied the current total is returned with Applied false.
func (l *Ledger) ApplyOverrulePenalty(ctx context.Context, id model.Identity, claimID string) (*model.PenaltyResult, error) {
	if err := checkKey(id, claimID); err != nil {
		return nil, err
	}
	ev := l.newEvent(id, model.EventPenalty, claimID)

	rec, applied, err := l.store.ApplyEvent(ctx, ev, func(rec *model.ReputationRecord) (int, error) {
		return l.apply(rec, ev)
	})
	if err != nil {
		l.metrics.Penalty(ctx, "failed")
		return nil, fmt.Errorf("apply overrule penalty: %w", err)
	}

	result := &model.PenaltyResult{
		Identity: id,
		Applied:  applied,
		NewTotal: rec.TotalPoints,
	}
	if !applied {
		l.metrics.Penalty(ctx, "duplicate")
		l.logger.InfoContext(ctx, "overrule penalty already applied",
			"identity", id.String(), "claim_id", claimID, "total_points", rec.TotalPoints)
		return result, nil
	}

	l.metrics.Penalty(ctx, "applied")
	l.metrics.PointsApplied(ctx, string(model.EventPenalty), ev.Points)
	l.logger.InfoContext(ctx, "overrule penalty applied",
		"identity", id.String(), "claim_id", claimID, "points", ev.Points, "total_points", rec.TotalPoints)
	return result, nil
}

// Get returns the identity's record (empty if it has no events)
func (l *Ledger) Get(ctx context.Context, id model.Identity) (*model.ReputationRecord, error) {
	if id.IsZero() {
		return nil, model.ErrInvalidIdentity
	}
	rec, err := l.store.GetReputation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get reputation: %w", err)
	}
	return rec, nil
}

// History returns the identity's events in application order
func (l *Ledger) History(ctx context.Context, id model.Identity) ([]*model.ReputationEvent, error) {
	if id.IsZero() {
		return nil, model.ErrInvalidIdentity
	}
	events, err := l.store.ListEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list reputation events: %w", err)
	}
	return events, nil
}

// PenaltyApplied reports whether the overrule penalty for claimID was recorded
func (l *Ledger) PenaltyApplied(ctx context.Context, id model.Identity, claimID string) (bool, error) {
	_, err := l.store.GetEvent(ctx, id, model.EventPenalty, claimID)
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get penalty event: %w", err)
	}
	return true, nil
}

// Recompute rebuilds the identity's record by replaying its event log
func (l *Ledger) Recompute(ctx context.Context, id model.Identity) (*model.ReputationRecord, error) {
	if id.IsZero() {
		return nil, model.ErrInvalidIdentity
	}
	rec, err := l.store.Rebuild(ctx, id, l.Fold)
	if err != nil {
		return nil, fmt.Errorf("recompute reputation: %w", err)
	}
	l.logger.InfoContext(ctx, "reputation recomputed",
		"identity", id.String(), "total_points", rec.TotalPoints, "version", rec.Version)
	return rec, nil
}

// Fold replays events in order onto an empty record
func (l *Ledger) Fold(id model.Identity, events []*model.ReputationEvent) (*model.ReputationRecord, error) {
	rec := model.NewReputationRecord(id)
	for _, ev := range events {
		if _, err := l.apply(rec, ev); err != nil {
			return nil, fmt.Errorf("replay event %s: %w", ev.ID, err)
		}
	}
	return rec, nil
}

func (l *Ledger) record(ctx context.Context, ev *model.ReputationEvent) (int, error) {
	rec, applied, err := l.store.ApplyEvent(ctx, ev, func(rec *model.ReputationRecord) (int, error) {
		return l.apply(rec, ev)
	})
	if err != nil {
		return 0, fmt.Errorf("apply %s event: %w", ev.Kind, err)
	}
	if !applied {
		l.logger.DebugContext(ctx, "reputation event already recorded",
			"identity", ev.Identity.String(), "kind", string(ev.Kind), "claim_id", ev.ClaimID)
		return 0, nil
	}

	l.metrics.PointsApplied(ctx, string(ev.Kind), ev.Points)
	l.logger.DebugContext(ctx, "reputation event applied",
		"identity", ev.Identity.String(), "kind", string(ev.Kind), "claim_id", ev.ClaimID,
		"points", ev.Points, "total_points", rec.TotalPoints)
	return ev.Points, nil
}

// apply mutates rec for one event and returns the signed delta
func (l *Ledger) apply(rec *model.ReputationRecord, ev *model.ReputationEvent) (int, error) {
	if rec.CategoryStats == nil {
		rec.CategoryStats = make(map[string]model.CategoryStat)
	}

	var delta int
	switch ev.Kind {
	case model.EventLock:
		delta = l.config.LockPoints
		rec.LocksCount++
		rec.ClaimsCount++

	case model.EventResolve:
		multiplier, ok := l.multipliers[ev.Grade]
		if !ok {
			return 0, model.Errorf(model.ErrInvalidGrade, "invalid evidence grade %q", ev.Grade)
		}
		rec.TotalResolves++
		stat := rec.CategoryStats[ev.Category]
		stat.Total++
		if ev.Correct {
			delta = correctPoints(l.config.CorrectBase, multiplier)
			rec.CorrectResolves++
			rec.CurrentStreak++
			stat.Correct++
		} else {
			delta = -l.config.IncorrectPenalty
			rec.IncorrectResolves++
			rec.CurrentStreak = 0
		}
		if rec.CurrentStreak > rec.BestStreak {
			rec.BestStreak = rec.CurrentStreak
		}
		rec.CategoryStats[ev.Category] = stat

	case model.EventPenalty:
		delta = -l.config.OverrulePenalty
		rec.PenaltiesCount++

	default:
		return 0, fmt.Errorf("unknown reputation event kind %q", ev.Kind)
	}

	rec.TotalPoints += delta
	if rec.TotalPoints < 0 {
		rec.TotalPoints = 0
	}
	rec.UpdatedAt = ev.At
	return delta, nil
}

// correctPoints is floor(base * multiplier), tolerant of binary float error
func correctPoints(base int, multiplier float64) int {
	return int(math.Floor(float64(base)*multiplier + 1e-9))
}

func (l *Ledger) newEvent(id model.Identity, kind model.EventKind, claimID string) *model.ReputationEvent {
	return &model.ReputationEvent{
		ID:       uuid.Must(uuid.NewV7()).String(),
		Identity: id,
		Kind:     kind,
		ClaimID:  claimID,
		At:       l.now().UTC(),
	}
}

func checkKey(id model.Identity, claimID string) error {
	if id.IsZero() {
		return model.ErrInvalidIdentity
	}
	if strings.TrimSpace(claimID) == "" {
		return model.Errorf(model.ErrInvalidClaim, "claim id is required")
	}
	return nil
}

func normalizeCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" {
		return "general"
	}
	return c
}
