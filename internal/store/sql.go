package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/verdict/internal/model"
)

// Dialect selects placeholder syntax
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// timeLayout is fixed-width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// maxApplyRetries bounds optimistic retries of a reputation write
const maxApplyRetries = 8

// SQLStore implements Store on database/sql (SQLite or PostgreSQL)
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps db and creates the schema if needed
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}
	return s, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		author TEXT NOT NULL DEFAULT '',
		statement TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		resolved_at TEXT,
		evidence_grade TEXT NOT NULL DEFAULT '',
		evidence_score INTEGER NOT NULL DEFAULT 0,
		evidence TEXT NOT NULL DEFAULT '[]',
		is_finalized INTEGER NOT NULL DEFAULT 0,
		overruled INTEGER NOT NULL DEFAULT 0,
		final_outcome TEXT NOT NULL DEFAULT '',
		finalized_at TEXT,
		weighted_net INTEGER NOT NULL DEFAULT 0,
		dispute_window_end TEXT,
		finalization_deadline TEXT,
		version BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS claims_unfinalized ON claims (is_finalized, resolved_at)`,
	`CREATE TABLE IF NOT EXISTS contest_votes (
		id TEXT PRIMARY KEY,
		claim_id TEXT NOT NULL,
		voter TEXT NOT NULL,
		value INTEGER NOT NULL,
		reputation_snapshot INTEGER NOT NULL,
		cast_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (claim_id, voter)
	)`,
	`CREATE TABLE IF NOT EXISTS reputation (
		identity TEXT PRIMARY KEY,
		total_points INTEGER NOT NULL,
		correct_resolves INTEGER NOT NULL,
		incorrect_resolves INTEGER NOT NULL,
		total_resolves INTEGER NOT NULL,
		current_streak INTEGER NOT NULL,
		best_streak INTEGER NOT NULL,
		category_stats TEXT NOT NULL,
		locks_count INTEGER NOT NULL,
		claims_count INTEGER NOT NULL,
		penalties_count INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		version BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reputation_events (
		id TEXT PRIMARY KEY,
		identity TEXT NOT NULL,
		kind TEXT NOT NULL,
		claim_id TEXT NOT NULL,
		correct INTEGER NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT '',
		grade TEXT NOT NULL DEFAULT '',
		points INTEGER NOT NULL,
		at TEXT NOT NULL,
		seq BIGINT NOT NULL DEFAULT 0,
		UNIQUE (identity, kind, claim_id)
	)`,
	`CREATE INDEX IF NOT EXISTS reputation_events_order ON reputation_events (identity, seq)`,
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $N for PostgreSQL
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// --- claims ---

const claimColumns = `id, author, statement, category, created_at, content_hash, outcome, resolved_at,
		evidence_grade, evidence_score, evidence, is_finalized, overruled, final_outcome, finalized_at,
		weighted_net, dispute_window_end, finalization_deadline, version`

// InsertClaim inserts c at version 1; an existing id is ErrDuplicate
func (s *SQLStore) InsertClaim(ctx context.Context, c *model.Claim) error {
	evidence, err := json.Marshal(nonNilEvidence(c.Evidence))
	if err != nil {
		return fmt.Errorf("failed to encode evidence: %w", err)
	}
	query := `INSERT INTO claims (` + claimColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, s.rebind(query),
		c.ID, c.Author.String(), c.Statement, c.Category, formatTime(c.CreatedAt), c.ContentHash, string(c.Outcome),
		formatTimePtr(c.ResolvedAt), string(c.EvidenceGrade), c.EvidenceScore, string(evidence),
		boolToInt(c.IsFinalized), boolToInt(c.Overruled), string(c.FinalOutcome), formatTimePtr(c.FinalizedAt),
		c.WeightedNet, formatTimePtr(c.DisputeWindowEnd), formatTimePtr(c.FinalizationDeadline), int64(1),
	)
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}
	c.Version = 1
	return nil
}

// GetClaim loads one claim
func (s *SQLStore) GetClaim(ctx context.Context, id string) (*model.Claim, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+claimColumns+` FROM claims WHERE id = ?`), id)
	c, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return c, nil
}

// UpdateClaim writes c when its version still matches the row
func (s *SQLStore) UpdateClaim(ctx context.Context, c *model.Claim) error {
	evidence, err := json.Marshal(nonNilEvidence(c.Evidence))
	if err != nil {
		return fmt.Errorf("failed to encode evidence: %w", err)
	}
	query := `UPDATE claims SET
			outcome = ?, resolved_at = ?, evidence_grade = ?, evidence_score = ?, evidence = ?,
			is_finalized = ?, overruled = ?, final_outcome = ?, finalized_at = ?,
			weighted_net = ?, dispute_window_end = ?, finalization_deadline = ?, version = ?
		WHERE id = ? AND version = ?`
	res, err := s.db.ExecContext(ctx, s.rebind(query),
		string(c.Outcome), formatTimePtr(c.ResolvedAt), string(c.EvidenceGrade), c.EvidenceScore, string(evidence),
		boolToInt(c.IsFinalized), boolToInt(c.Overruled), string(c.FinalOutcome), formatTimePtr(c.FinalizedAt),
		c.WeightedNet, formatTimePtr(c.DisputeWindowEnd), formatTimePtr(c.FinalizationDeadline), c.Version+1,
		c.ID, c.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM claims WHERE id = ?`), c.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check claim: %w", err)
		}
		return ErrConflict
	}
	c.Version++
	return nil
}

// ListUnfinalized returns resolved, unfinalized claims oldest resolution first
func (s *SQLStore) ListUnfinalized(ctx context.Context, limit int) ([]*model.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims
		WHERE is_finalized = 0 AND resolved_at IS NOT NULL
		ORDER BY resolved_at, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClaim(row scanner) (*model.Claim, error) {
	var (
		c                                          model.Claim
		author, createdAt, outcome, grade, finalOc string
		evidence                                   string
		resolvedAt, finalizedAt, windowEnd         sql.NullString
		deadline                                   sql.NullString
		finalized, overruled                       int
	)
	err := row.Scan(&c.ID, &author, &c.Statement, &c.Category, &createdAt, &c.ContentHash, &outcome, &resolvedAt,
		&grade, &c.EvidenceScore, &evidence, &finalized, &overruled, &finalOc, &finalizedAt,
		&c.WeightedNet, &windowEnd, &deadline, &c.Version)
	if err != nil {
		return nil, err
	}

	if author != "" {
		if c.Author, err = model.ParseIdentity(author); err != nil {
			return nil, err
		}
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	c.Outcome = model.Outcome(outcome)
	c.EvidenceGrade = model.Grade(grade)
	c.FinalOutcome = model.Outcome(finalOc)
	c.IsFinalized = finalized != 0
	c.Overruled = overruled != 0
	if err := json.Unmarshal([]byte(evidence), &c.Evidence); err != nil {
		return nil, fmt.Errorf("decode evidence: %w", err)
	}
	if len(c.Evidence) == 0 {
		c.Evidence = nil
	}
	for _, f := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{resolvedAt, &c.ResolvedAt},
		{finalizedAt, &c.FinalizedAt},
		{windowEnd, &c.DisputeWindowEnd},
		{deadline, &c.FinalizationDeadline},
	} {
		if *f.dst, err = parseTimePtr(f.src); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// --- votes ---

const voteColumns = `id, claim_id, voter, value, reputation_snapshot, cast_at, updated_at`

// GetVote loads the voter's vote on a claim
func (s *SQLStore) GetVote(ctx context.Context, claimID string, voter model.Identity) (*model.ContestVote, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+voteColumns+` FROM contest_votes WHERE claim_id = ? AND voter = ?`),
		claimID, voter.String())
	v, err := scanVote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}
	return v, nil
}

// PutVote upserts on (claim_id, voter), keeping the original id and cast time
func (s *SQLStore) PutVote(ctx context.Context, v *model.ContestVote) error {
	query := `INSERT INTO contest_votes (` + voteColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (claim_id, voter) DO UPDATE SET
			value = EXCLUDED.value,
			reputation_snapshot = EXCLUDED.reputation_snapshot,
			updated_at = EXCLUDED.updated_at`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		v.ID, v.ClaimID, v.Voter.String(), v.Value, v.ReputationSnapshot, formatTime(v.CastAt), formatTime(v.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to persist vote: %w", err)
	}
	return nil
}

// DeleteVote removes the voter's vote if present
func (s *SQLStore) DeleteVote(ctx context.Context, claimID string, voter model.Identity) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM contest_votes WHERE claim_id = ? AND voter = ?`),
		claimID, voter.String())
	if err != nil {
		return fmt.Errorf("failed to delete vote: %w", err)
	}
	return nil
}

// SumVotes returns the net vote value on a claim
func (s *SQLStore) SumVotes(ctx context.Context, claimID string) (int, error) {
	var sum int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COALESCE(SUM(value), 0) FROM contest_votes WHERE claim_id = ?`),
		claimID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum votes: %w", err)
	}
	return sum, nil
}

// ListVotes returns the claim's votes in cast order
func (s *SQLStore) ListVotes(ctx context.Context, claimID string) ([]*model.ContestVote, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+voteColumns+` FROM contest_votes WHERE claim_id = ? ORDER BY cast_at, voter`), claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*model.ContestVote{}
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVote(row scanner) (*model.ContestVote, error) {
	var (
		v                        model.ContestVote
		voter, castAt, updatedAt string
	)
	if err := row.Scan(&v.ID, &v.ClaimID, &voter, &v.Value, &v.ReputationSnapshot, &castAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if v.Voter, err = model.ParseIdentity(voter); err != nil {
		return nil, err
	}
	if v.CastAt, err = parseTime(castAt); err != nil {
		return nil, err
	}
	if v.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// --- reputation ---

const reputationColumns = `identity, total_points, correct_resolves, incorrect_resolves, total_resolves,
		current_streak, best_streak, category_stats, locks_count, claims_count, penalties_count, updated_at, version`

const eventColumns = `id, identity, kind, claim_id, correct, category, grade, points, at`

// GetReputation loads the identity's record, or a fresh one if none exists
func (s *SQLStore) GetReputation(ctx context.Context, id model.Identity) (*model.ReputationRecord, error) {
	return s.getReputation(ctx, s.db, id)
}

func (s *SQLStore) getReputation(ctx context.Context, q queryer, id model.Identity) (*model.ReputationRecord, error) {
	row := q.QueryRowContext(ctx, s.rebind(`SELECT `+reputationColumns+` FROM reputation WHERE identity = ?`), id.String())
	var (
		rec             model.ReputationRecord
		identity, stats string
		updatedAt       string
	)
	err := row.Scan(&identity, &rec.TotalPoints, &rec.CorrectResolves, &rec.IncorrectResolves, &rec.TotalResolves,
		&rec.CurrentStreak, &rec.BestStreak, &stats, &rec.LocksCount, &rec.ClaimsCount, &rec.PenaltiesCount,
		&updatedAt, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewReputationRecord(id), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reputation: %w", err)
	}
	rec.Identity = id
	rec.CategoryStats = make(map[string]model.CategoryStat)
	if err := json.Unmarshal([]byte(stats), &rec.CategoryStats); err != nil {
		return nil, fmt.Errorf("decode category stats: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// putReputation writes rec if its stored version is still prev (0 means absent)
func (s *SQLStore) putReputation(ctx context.Context, q queryer, rec *model.ReputationRecord, prev int64) error {
	stats, err := json.Marshal(rec.CategoryStats)
	if err != nil {
		return fmt.Errorf("encode category stats: %w", err)
	}

	var res sql.Result
	if prev == 0 {
		query := `INSERT INTO reputation (` + reputationColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (identity) DO NOTHING`
		res, err = q.ExecContext(ctx, s.rebind(query),
			rec.Identity.String(), rec.TotalPoints, rec.CorrectResolves, rec.IncorrectResolves, rec.TotalResolves,
			rec.CurrentStreak, rec.BestStreak, string(stats), rec.LocksCount, rec.ClaimsCount, rec.PenaltiesCount,
			formatTime(rec.UpdatedAt), prev+1)
	} else {
		query := `UPDATE reputation SET
				total_points = ?, correct_resolves = ?, incorrect_resolves = ?, total_resolves = ?,
				current_streak = ?, best_streak = ?, category_stats = ?, locks_count = ?, claims_count = ?,
				penalties_count = ?, updated_at = ?, version = ?
			WHERE identity = ? AND version = ?`
		res, err = q.ExecContext(ctx, s.rebind(query),
			rec.TotalPoints, rec.CorrectResolves, rec.IncorrectResolves, rec.TotalResolves,
			rec.CurrentStreak, rec.BestStreak, string(stats), rec.LocksCount, rec.ClaimsCount,
			rec.PenaltiesCount, formatTime(rec.UpdatedAt), prev+1,
			rec.Identity.String(), prev)
	}
	if err != nil {
		return fmt.Errorf("failed to persist reputation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to persist reputation: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	rec.Version = prev + 1
	return nil
}

// ApplyEvent applies ev in one transaction, retrying version conflicts
func (s *SQLStore) ApplyEvent(ctx context.Context, ev *model.ReputationEvent, apply ApplyFunc) (*model.ReputationRecord, bool, error) {
	for attempt := 0; attempt < maxApplyRetries; attempt++ {
		rec, applied, err := s.applyEventOnce(ctx, ev, apply)
		if errors.Is(err, ErrConflict) {
			continue
		}
		return rec, applied, err
	}
	return nil, false, fmt.Errorf("apply reputation event %s: %w", ev.Key(), ErrConflict)
}

func (s *SQLStore) applyEventOnce(ctx context.Context, ev *model.ReputationEvent, apply ApplyFunc) (*model.ReputationRecord, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := s.getReputation(ctx, tx, ev.Identity)
	if err != nil {
		return nil, false, err
	}
	prev := rec.Version

	var exists int
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT 1 FROM reputation_events WHERE identity = ? AND kind = ? AND claim_id = ?`),
		ev.Identity.String(), string(ev.Kind), ev.ClaimID).Scan(&exists)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to check reputation event: %w", err)
	}

	points, err := apply(rec)
	if err != nil {
		return nil, false, err
	}
	ev.Points = points

	// seq is the record version this event produces. The version check in
	// putReputation serializes writers, so seq follows application order even
	// when event timestamps do not.
	query := `INSERT INTO reputation_events (` + eventColumns + `, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (identity, kind, claim_id) DO NOTHING`
	res, err := tx.ExecContext(ctx, s.rebind(query),
		ev.ID, ev.Identity.String(), string(ev.Kind), ev.ClaimID, boolToInt(ev.Correct), ev.Category,
		string(ev.Grade), ev.Points, formatTime(ev.At), prev+1)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert reputation event: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// A concurrent writer recorded the same event first
		current, err := s.getReputation(ctx, tx, ev.Identity)
		if err != nil {
			return nil, false, err
		}
		return current, false, nil
	}

	if err := s.putReputation(ctx, tx, rec, prev); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit reputation event: %w", err)
	}
	return rec, true, nil
}

// GetEvent loads the event logged for (identity, kind, claim)
func (s *SQLStore) GetEvent(ctx context.Context, id model.Identity, kind model.EventKind, claimID string) (*model.ReputationEvent, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+eventColumns+` FROM reputation_events WHERE identity = ? AND kind = ? AND claim_id = ?`),
		id.String(), string(kind), claimID)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reputation event: %w", err)
	}
	return ev, nil
}

// ListEvents returns the identity's events in application order
func (s *SQLStore) ListEvents(ctx context.Context, id model.Identity) ([]*model.ReputationEvent, error) {
	return s.listEvents(ctx, s.db, id)
}

func (s *SQLStore) listEvents(ctx context.Context, q queryer, id model.Identity) ([]*model.ReputationEvent, error) {
	rows, err := q.QueryContext(ctx,
		s.rebind(`SELECT `+eventColumns+` FROM reputation_events WHERE identity = ? ORDER BY seq, id`), id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list reputation events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*model.ReputationEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reputation event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanEvent(row scanner) (*model.ReputationEvent, error) {
	var (
		ev                 model.ReputationEvent
		identity, kind, at string
		grade              string
		correct            int
	)
	if err := row.Scan(&ev.ID, &identity, &kind, &ev.ClaimID, &correct, &ev.Category, &grade, &ev.Points, &at); err != nil {
		return nil, err
	}
	var err error
	if ev.Identity, err = model.ParseIdentity(identity); err != nil {
		return nil, err
	}
	if ev.At, err = parseTime(at); err != nil {
		return nil, err
	}
	ev.Kind = model.EventKind(kind)
	ev.Grade = model.Grade(grade)
	ev.Correct = correct != 0
	return &ev, nil
}

// Rebuild folds the identity's event log into a new record version
func (s *SQLStore) Rebuild(ctx context.Context, id model.Identity, fold FoldFunc) (*model.ReputationRecord, error) {
	for attempt := 0; attempt < maxApplyRetries; attempt++ {
		rec, err := s.rebuildOnce(ctx, id, fold)
		if errors.Is(err, ErrConflict) {
			continue
		}
		return rec, err
	}
	return nil, fmt.Errorf("rebuild reputation %s: %w", id, ErrConflict)
}

func (s *SQLStore) rebuildOnce(ctx context.Context, id model.Identity, fold FoldFunc) (*model.ReputationRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.getReputation(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	events, err := s.listEvents(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	rec, err := fold(id, events)
	if err != nil {
		return nil, err
	}
	rec.Identity = id
	if err := s.putReputation(ctx, tx, rec, current.Version); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rebuild: %w", err)
	}
	return rec, nil
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// --- encoding helpers ---

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNilEvidence(items []model.EvidenceItem) []model.EvidenceItem {
	if items == nil {
		return []model.EvidenceItem{}
	}
	return items
}
