package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ppiankov/verdict/internal/model"
)

// mockFinalizer returns canned results per claim id
type mockFinalizer struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string]*model.FinalizeResult
	errs    map[string]error
}

func newMockFinalizer() *mockFinalizer {
	return &mockFinalizer{
		calls:   make(map[string]int),
		results: make(map[string]*model.FinalizeResult),
		errs:    make(map[string]error),
	}
}

func (m *mockFinalizer) Finalize(ctx context.Context, claimID string) (*model.FinalizeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[claimID]++
	if err, ok := m.errs[claimID]; ok {
		return nil, err
	}
	if res, ok := m.results[claimID]; ok {
		return res, nil
	}
	return &model.FinalizeResult{ClaimID: claimID, FinalOutcome: model.OutcomeCorrect, Changed: true}, nil
}

type mockLister struct {
	claims []*model.Claim
	err    error
	limit  int
}

func (l *mockLister) ListUnfinalized(ctx context.Context, limit int) ([]*model.Claim, error) {
	l.limit = limit
	return l.claims, l.err
}

func TestSweeper_Sweep(t *testing.T) {
	finalizer := newMockFinalizer()
	finalizer.errs["waiting"] = model.Errorf(model.ErrNotReady, "claim waiting is not ready")
	finalizer.errs["broken"] = errors.New("store offline")
	finalizer.results["flipped"] = &model.FinalizeResult{
		ClaimID:   "flipped",
		Overruled: true,
		Changed:   true,
		Penalty:   &model.PenaltyResult{Error: "ledger offline"},
	}
	finalizer.results["done"] = &model.FinalizeResult{ClaimID: "done", Changed: false}

	lister := &mockLister{}
	for _, id := range []string{"ok", "waiting", "broken", "flipped", "done"} {
		lister.claims = append(lister.claims, &model.Claim{ID: id})
	}

	sweeper := NewSweeper(lister, finalizer, 3, 50)
	report, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if lister.limit != 50 {
		t.Errorf("expected limit 50 passed to lister, got %d", lister.limit)
	}
	if report.Scanned != 5 {
		t.Errorf("expected 5 scanned, got %d", report.Scanned)
	}
	if report.Finalized != 2 {
		t.Errorf("expected 2 finalized, got %d", report.Finalized)
	}
	if report.Overruled != 1 {
		t.Errorf("expected 1 overruled, got %d", report.Overruled)
	}
	if report.Skipped != 2 {
		t.Errorf("expected 2 skipped, got %d", report.Skipped)
	}
	if report.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", report.Failed)
	}
	if report.PenaltyFailures != 1 {
		t.Errorf("expected 1 penalty failure, got %d", report.PenaltyFailures)
	}
	if len(report.Outcomes) != 5 {
		t.Errorf("expected 5 outcomes, got %d", len(report.Outcomes))
	}
}

func TestSweeper_ListError(t *testing.T) {
	sweeper := NewSweeper(&mockLister{err: errors.New("boom")}, newMockFinalizer(), 2, 0)
	if _, err := sweeper.Sweep(context.Background()); err == nil {
		t.Error("expected list error to be returned")
	}
}

func TestSweeper_Empty(t *testing.T) {
	sweeper := NewSweeper(&mockLister{}, newMockFinalizer(), 2, 0)
	report, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Scanned != 0 || report.Outcomes == nil {
		t.Errorf("expected empty non-nil report, got %+v", report)
	}
}

func TestSweeper_EachClaimOnce(t *testing.T) {
	finalizer := newMockFinalizer()
	sweeper := NewSweeper(&mockLister{}, finalizer, 8, 0)

	var ids []string
	for i := 0; i < 100; i++ {
		ids = append(ids, fmt.Sprintf("c-%d", i))
	}
	report := sweeper.FinalizeIDs(context.Background(), ids)

	if report.Finalized != 100 {
		t.Errorf("expected 100 finalized, got %d", report.Finalized)
	}
	for _, id := range ids {
		if finalizer.calls[id] != 1 {
			t.Errorf("expected %s finalized once, got %d", id, finalizer.calls[id])
		}
	}
}

func TestReadIDsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	content := "# pending claims\nc-1\n\n  c-2  \nc-1\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	ids, err := ReadIDsFromFile(path)
	if err != nil {
		t.Fatalf("ReadIDsFromFile failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "c-1" || ids[1] != "c-2" {
		t.Errorf("expected [c-1 c-2], got %v", ids)
	}

	if _, err := ReadIDsFromFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSweeper_FinalizeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	if err := os.WriteFile(path, []byte("a\nb\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	sweeper := NewSweeper(&mockLister{}, newMockFinalizer(), 2, 0)
	report, err := sweeper.FinalizeFile(context.Background(), path)
	if err != nil {
		t.Fatalf("FinalizeFile failed: %v", err)
	}
	if report.Finalized != 2 {
		t.Errorf("expected 2 finalized, got %d", report.Finalized)
	}
}
