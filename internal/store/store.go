// Package store persists claims, contest votes and reputation records.
//
// Every mutation is a single atomic read-modify-write: claims use an optimistic
// version check, votes are unique per (claim, voter), and reputation changes are
// applied together with an event row whose (identity, kind, claim) key is unique.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ppiankov/verdict/internal/model"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrConflict  = errors.New("store: version conflict")
	ErrDuplicate = errors.New("store: duplicate key")
)

// IsNotFound reports whether err wraps ErrNotFound
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// ClaimStore persists claims
type ClaimStore interface {
	// InsertClaim stores a new claim with version 1, ErrDuplicate if the id exists
	InsertClaim(ctx context.Context, c *model.Claim) error
	// GetClaim returns a copy of the stored claim, ErrNotFound if absent
	GetClaim(ctx context.Context, id string) (*model.Claim, error)
	// UpdateClaim writes c if the stored version still equals c.Version,
	// bumping c.Version on success and returning ErrConflict otherwise
	UpdateClaim(ctx context.Context, c *model.Claim) error
	// ListUnfinalized returns resolved, unfinalized claims ordered by resolution time
	ListUnfinalized(ctx context.Context, limit int) ([]*model.Claim, error)
}

// VoteStore persists contest votes
type VoteStore interface {
	// GetVote returns the voter's row on a claim, ErrNotFound if absent
	GetVote(ctx context.Context, claimID string, voter model.Identity) (*model.ContestVote, error)
	// PutVote inserts the row or replaces value, snapshot and UpdatedAt of the existing one
	PutVote(ctx context.Context, v *model.ContestVote) error
	// DeleteVote removes the voter's row; deleting a missing row is not an error
	DeleteVote(ctx context.Context, claimID string, voter model.Identity) error
	// SumVotes returns the sum of all vote values on a claim
	SumVotes(ctx context.Context, claimID string) (int, error)
	ListVotes(ctx context.Context, claimID string) ([]*model.ContestVote, error)
}

// ApplyFunc mutates rec for ev and returns the signed point delta it applied
type ApplyFunc func(rec *model.ReputationRecord) (int, error)

// FoldFunc rebuilds a record from an identity's ordered event log
type FoldFunc func(id model.Identity, events []*model.ReputationEvent) (*model.ReputationRecord, error)

// ReputationStore persists reputation records and their event log
type ReputationStore interface {
	// GetReputation returns the identity's record, or an empty one if none exists
	GetReputation(ctx context.Context, id model.Identity) (*model.ReputationRecord, error)
	// ApplyEvent atomically records ev and applies it to the identity's record.
	// If an event with the same key exists nothing changes and applied is false.
	ApplyEvent(ctx context.Context, ev *model.ReputationEvent, apply ApplyFunc) (rec *model.ReputationRecord, applied bool, err error)
	// GetEvent returns the event with the given key, ErrNotFound if absent
	GetEvent(ctx context.Context, id model.Identity, kind model.EventKind, claimID string) (*model.ReputationEvent, error)
	// ListEvents returns the identity's events in application order
	ListEvents(ctx context.Context, id model.Identity) ([]*model.ReputationEvent, error)
	// Rebuild atomically replaces the identity's record with fold over its event log
	Rebuild(ctx context.Context, id model.Identity, fold FoldFunc) (*model.ReputationRecord, error)
}

// Store is the full persistence surface used by the engine
type Store interface {
	ClaimStore
	VoteStore
	ReputationStore
	Close() error
}

// Open returns the store selected by cfg
func Open(ctx context.Context, cfg model.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", model.DriverMemory:
		return NewMemoryStore(), nil
	case model.DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "verdict.db"
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		// One connection serializes writers and keeps ":memory:" databases shared
		db.SetMaxOpenConns(1)
		return NewSQLStore(ctx, db, DialectSQLite)
	case model.DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres store requires a dsn")
		}
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return NewSQLStore(ctx, db, DialectPostgres)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
