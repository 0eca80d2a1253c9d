package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ppiankov/verdict/internal/model"
)

// Finalizer finalizes one claim
type Finalizer interface {
	Finalize(ctx context.Context, claimID string) (*model.FinalizeResult, error)
}

// Lister finds claims awaiting finalization
type Lister interface {
	ListUnfinalized(ctx context.Context, limit int) ([]*model.Claim, error)
}

// FinalizeJob finalizes a single claim
type FinalizeJob struct {
	ClaimID   string
	Finalizer Finalizer
}

// Execute executes the finalize job
func (j *FinalizeJob) Execute(ctx context.Context) Result {
	result, err := j.Finalizer.Finalize(ctx, j.ClaimID)
	return &FinalizeOutcome{
		ClaimID: j.ClaimID,
		Result:  result,
		Error:   err,
	}
}

// FinalizeOutcome represents the result of a finalize job
type FinalizeOutcome struct {
	ClaimID string                `json:"claim_id"`
	Result  *model.FinalizeResult `json:"result,omitempty"`
	Error   error                 `json:"-"`
}

// GetError returns the error from the finalize job
func (r *FinalizeOutcome) GetError() error {
	return r.Error
}

// Skipped reports whether the claim was simply not ready yet
func (r *FinalizeOutcome) Skipped() bool {
	return errors.Is(r.Error, model.ErrNotReady)
}

// SweepReport summarizes one sweep
type SweepReport struct {
	Scanned         int                `json:"scanned"`
	Finalized       int                `json:"finalized"`
	Overruled       int                `json:"overruled"`
	Skipped         int                `json:"skipped"` // Not ready yet or already finalized
	Failed          int                `json:"failed"`
	PenaltyFailures int                `json:"penalty_failures"`
	Outcomes        []*FinalizeOutcome `json:"outcomes,omitempty"`
}

// Sweeper finalizes eligible claims concurrently
type Sweeper struct {
	claims      Lister
	finalizer   Finalizer
	concurrency int
	limit       int
	logger      *slog.Logger
}

// NewSweeper creates a sweeper. limit bounds how many claims one sweep inspects (0 means no bound).
func NewSweeper(claims Lister, finalizer Finalizer, concurrency, limit int) *Sweeper {
	return &Sweeper{
		claims:      claims,
		finalizer:   finalizer,
		concurrency: concurrency,
		limit:       limit,
		logger:      slog.Default().With("component", "sweep"),
	}
}

// Sweep finalizes every listed claim that is ready
func (s *Sweeper) Sweep(ctx context.Context) (*SweepReport, error) {
	claims, err := s.claims.ListUnfinalized(ctx, s.limit)
	if err != nil {
		return nil, fmt.Errorf("list unfinalized claims: %w", err)
	}

	ids := make([]string, len(claims))
	for i, c := range claims {
		ids[i] = c.ID
	}
	return s.FinalizeIDs(ctx, ids), nil
}

// FinalizeIDs attempts to finalize the given claims concurrently
func (s *Sweeper) FinalizeIDs(ctx context.Context, ids []string) *SweepReport {
	report := &SweepReport{Outcomes: []*FinalizeOutcome{}}
	if len(ids) == 0 {
		return report
	}

	pool := NewPool(ctx, s.concurrency)
	pool.Start()

	for _, id := range ids {
		if !pool.Submit(&FinalizeJob{ClaimID: id, Finalizer: s.finalizer}) {
			break
		}
	}

	for _, r := range pool.Wait() {
		outcome := r.(*FinalizeOutcome)
		report.add(outcome)
		if outcome.Error != nil && !outcome.Skipped() {
			s.logger.ErrorContext(ctx, "finalize failed", "claim_id", outcome.ClaimID, "error", outcome.Error)
		}
	}

	s.logger.InfoContext(ctx, "sweep complete",
		"scanned", report.Scanned, "finalized", report.Finalized, "overruled", report.Overruled,
		"skipped", report.Skipped, "failed", report.Failed, "penalty_failures", report.PenaltyFailures)
	return report
}

// FinalizeFile reads claim ids from a file and finalizes them
func (s *Sweeper) FinalizeFile(ctx context.Context, filePath string) (*SweepReport, error) {
	ids, err := ReadIDsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read claim ids: %w", err)
	}

	return s.FinalizeIDs(ctx, ids), nil
}

func (r *SweepReport) add(o *FinalizeOutcome) {
	r.Scanned++
	r.Outcomes = append(r.Outcomes, o)

	switch {
	case o.Skipped():
		r.Skipped++
	case o.Error != nil:
		r.Failed++
	case !o.Result.Changed:
		r.Skipped++
	default:
		r.Finalized++
		if o.Result.Overruled {
			r.Overruled++
		}
		if o.Result.Penalty != nil && o.Result.Penalty.Error != "" {
			r.PenaltyFailures++
		}
	}
}

// ReadIDsFromFile reads claim ids from a file (one per line)
func ReadIDsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var ids []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			ids = append(ids, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return ids, nil
}
