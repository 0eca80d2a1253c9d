package model

import "time"

// CategoryStat counts resolutions within one category
type CategoryStat struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// ReputationRecord is the per-identity point ledger
type ReputationRecord struct {
	Identity          Identity                `json:"identity"`
	TotalPoints       int                     `json:"total_points"` // Clamped to >= 0 at write time
	CorrectResolves   int                     `json:"correct_resolves"`
	IncorrectResolves int                     `json:"incorrect_resolves"` // Incorrect and invalid
	TotalResolves     int                     `json:"total_resolves"`
	CurrentStreak     int                     `json:"current_streak"`
	BestStreak        int                     `json:"best_streak"`
	CategoryStats     map[string]CategoryStat `json:"category_stats"`
	LocksCount        int                     `json:"locks_count"`
	ClaimsCount       int                     `json:"claims_count"`
	PenaltiesCount    int                     `json:"penalties_count"`
	UpdatedAt         time.Time               `json:"updated_at"`
	Version           int64                   `json:"version"`
}

// NewReputationRecord returns an empty record for id
func NewReputationRecord(id Identity) *ReputationRecord {
	return &ReputationRecord{
		Identity:      id,
		CategoryStats: make(map[string]CategoryStat),
	}
}

// Accuracy returns the share of correct resolutions (0 when none)
func (r *ReputationRecord) Accuracy() float64 {
	if r.TotalResolves == 0 {
		return 0
	}
	return float64(r.CorrectResolves) / float64(r.TotalResolves)
}

// Clone returns a deep copy
func (r *ReputationRecord) Clone() *ReputationRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.CategoryStats = make(map[string]CategoryStat, len(r.CategoryStats))
	for k, v := range r.CategoryStats {
		out.CategoryStats[k] = v
	}
	return &out
}

// EventKind names the operation that produced a reputation event
type EventKind string

const (
	EventLock    EventKind = "lock"    // Claim creation
	EventResolve EventKind = "resolve" // Outcome set by the author
	EventPenalty EventKind = "penalty" // Resolution overruled at finalization
)

// ReputationEvent is one entry of an identity's append-only point history.
// (Identity, Kind, ClaimID) is unique.
type ReputationEvent struct {
	ID       string    `json:"id"`
	Identity Identity  `json:"identity"`
	Kind     EventKind `json:"kind"`
	ClaimID  string    `json:"claim_id"`
	Correct  bool      `json:"correct,omitempty"`
	Category string    `json:"category,omitempty"`
	Grade    Grade     `json:"grade,omitempty"`
	Points   int       `json:"points"` // Signed delta before clamping
	At       time.Time `json:"at"`
}

// Key returns the uniqueness key of the event
func (e ReputationEvent) Key() string {
	return e.Identity.String() + "|" + string(e.Kind) + "|" + e.ClaimID
}

// Milestone is a named point threshold
type Milestone struct {
	Name      string `json:"name" yaml:"name" mapstructure:"name"`
	MinPoints int    `json:"min_points" yaml:"min_points" mapstructure:"min_points"`
}

// MilestoneProgress places a point total within the milestone table
type MilestoneProgress struct {
	Current   Milestone  `json:"current"`
	Next      *Milestone `json:"next,omitempty"` // Nil at the top tier
	Remaining int        `json:"remaining"`      // Points until Next
}

// ReputationSummary is a record with its derived views
type ReputationSummary struct {
	Record    *ReputationRecord `json:"record"`
	Accuracy  float64           `json:"accuracy"`
	Milestone MilestoneProgress `json:"milestone"`
}
