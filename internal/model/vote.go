package model

import (
	"fmt"
	"time"
)

// ContestVote is one signed vote by a non-author identity on a resolved claim.
// One row per (ClaimID, Voter).
type ContestVote struct {
	ID                 string    `json:"id"`
	ClaimID            string    `json:"claim_id"`
	Voter              Identity  `json:"voter"`
	Value              int       `json:"value"`               // +1 supports the author, -1 disputes
	ReputationSnapshot int       `json:"reputation_snapshot"` // Voter points at cast time
	CastAt             time.Time `json:"cast_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// VoteAction reports what a cast did to the voter's row
type VoteAction string

const (
	VoteAdded   VoteAction = "added"
	VoteUpdated VoteAction = "updated"
	VoteRemoved VoteAction = "removed"
)

// ParseDirection validates a vote value
func ParseDirection(v int) (int, error) {
	if v != 1 && v != -1 {
		return 0, ErrInvalidDirection.WithMessage(fmt.Sprintf("invalid vote direction %d: must be +1 or -1", v))
	}
	return v, nil
}

// VoteResult is the outcome of a cast
type VoteResult struct {
	ClaimID     string       `json:"claim_id"`
	Action      VoteAction   `json:"action"`
	WeightedNet int          `json:"weighted_net"`   // Sum of all current vote values after the cast
	Vote        *ContestVote `json:"vote,omitempty"` // Nil when the vote was removed
}
