package model

import "time"

// Status is the derived finalization phase of a claim
type Status string

const (
	StatusFinalized     Status = "finalized"
	StatusNotResolved   Status = "not_resolved"
	StatusDisputeWindow Status = "dispute_window_active"
	StatusThresholdMet  Status = "ready_threshold_met"
	StatusTimeout       Status = "ready_timeout"
	StatusContested     Status = "contested"
)

// CanFinalize reports whether finalization is permitted in this phase
func (s Status) CanFinalize() bool {
	return s == StatusThresholdMet || s == StatusTimeout
}

// FinalizationStatus is the read-only view returned by status checks
type FinalizationStatus struct {
	ClaimID              string     `json:"claim_id"`
	Status               Status     `json:"status"`
	CanFinalize          bool       `json:"can_finalize"`
	WeightedNet          int        `json:"weighted_net"`
	Threshold            int        `json:"threshold"`
	DisputeWindowEnd     *time.Time `json:"dispute_window_end,omitempty"`
	FinalizationDeadline *time.Time `json:"finalization_deadline,omitempty"`
	EvaluatedAt          time.Time  `json:"evaluated_at"`
}

// FinalizeResult is the outcome of a finalize call
type FinalizeResult struct {
	ClaimID      string         `json:"claim_id"`
	FinalOutcome Outcome        `json:"final_outcome"`
	Overruled    bool           `json:"overruled"`
	WeightedNet  int            `json:"weighted_net"`
	FinalizedAt  time.Time      `json:"finalized_at"`
	Changed      bool           `json:"changed"` // False when the claim was already finalized
	Penalty      *PenaltyResult `json:"penalty,omitempty"`
}

// PenaltyResult reports the overrule penalty applied (or attempted) for a claim
type PenaltyResult struct {
	Identity Identity `json:"identity"`
	Applied  bool     `json:"applied"` // False when already applied earlier
	NewTotal int      `json:"new_total"`
	Error    string   `json:"error,omitempty"`
}
