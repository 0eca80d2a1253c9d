package model

import (
	"fmt"
	"strings"
	"time"
)

// Claim is an immutable statement plus the mutable resolution state owned by the lifecycle.
type Claim struct {
	ID          string    `json:"id"`
	Author      Identity  `json:"author"`
	Statement   string    `json:"statement"`
	Category    string    `json:"category,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ContentHash string    `json:"content_hash"` // Computed once at creation, never recomputed

	// Resolution, written when the author sets an outcome
	Outcome       Outcome        `json:"outcome"`
	ResolvedAt    *time.Time     `json:"resolved_at,omitempty"`
	EvidenceGrade Grade          `json:"evidence_grade,omitempty"`
	EvidenceScore int            `json:"evidence_score"`
	Evidence      []EvidenceItem `json:"evidence,omitempty"`

	// Finalization
	IsFinalized          bool       `json:"is_finalized"`
	Overruled            bool       `json:"overruled"`
	FinalOutcome         Outcome    `json:"final_outcome,omitempty"`
	FinalizedAt          *time.Time `json:"finalized_at,omitempty"`
	WeightedNet          int        `json:"weighted_net"`
	DisputeWindowEnd     *time.Time `json:"dispute_window_end,omitempty"`
	FinalizationDeadline *time.Time `json:"finalization_deadline,omitempty"`

	Version int64 `json:"version"` // Optimistic concurrency token, bumped by every store write
}

// IsResolved reports whether the author has submitted an outcome
func (c *Claim) IsResolved() bool {
	return c.ResolvedAt != nil
}

// Clone returns a deep copy so callers can mutate without aliasing stored state
func (c *Claim) Clone() *Claim {
	if c == nil {
		return nil
	}
	out := *c
	out.ResolvedAt = cloneTime(c.ResolvedAt)
	out.FinalizedAt = cloneTime(c.FinalizedAt)
	out.DisputeWindowEnd = cloneTime(c.DisputeWindowEnd)
	out.FinalizationDeadline = cloneTime(c.FinalizationDeadline)
	if c.Evidence != nil {
		out.Evidence = make([]EvidenceItem, len(c.Evidence))
		copy(out.Evidence, c.Evidence)
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Outcome is the author's (or the community's) verdict on a claim
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
	OutcomeInvalid   Outcome = "invalid"
)

// ParseOutcome parses a submitted outcome; "pending" is not a resolution and is rejected.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(s))); o {
	case OutcomeCorrect, OutcomeIncorrect, OutcomeInvalid:
		return o, nil
	default:
		return "", ErrInvalidOutcome.WithMessage(fmt.Sprintf("invalid outcome %q: must be correct, incorrect or invalid", s))
	}
}

// IsResolution reports whether the outcome can be set by a resolution
func (o Outcome) IsResolution() bool {
	return o == OutcomeCorrect || o == OutcomeIncorrect || o == OutcomeInvalid
}

// Opposite returns the outcome of the other polarity.
// Invalid has no polarity and returns false.
func (o Outcome) Opposite() (Outcome, bool) {
	switch o {
	case OutcomeCorrect:
		return OutcomeIncorrect, true
	case OutcomeIncorrect:
		return OutcomeCorrect, true
	default:
		return o, false
	}
}

// CreateResult is returned when a claim is created.
// PointsError is set when the claim committed but the lock award did not.
type CreateResult struct {
	Claim       *Claim `json:"claim"`
	LockPoints  int    `json:"lock_points"`
	PointsError string `json:"points_error,omitempty"`
}

// ResolveResult is returned when a claim is resolved.
// PointsError is set when the resolution committed but the author's award did not.
type ResolveResult struct {
	ClaimID              string        `json:"claim_id"`
	Outcome              Outcome       `json:"outcome"`
	ResolvedAt           time.Time     `json:"resolved_at"`
	DisputeWindowEnd     time.Time     `json:"dispute_window_end"`
	FinalizationDeadline time.Time     `json:"finalization_deadline"`
	Evidence             EvidenceScore `json:"evidence"`
	Points               int           `json:"points"`
	PointsError          string        `json:"points_error,omitempty"`
}
