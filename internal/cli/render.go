package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/ppiankov/verdict/internal/canonical"
	"github.com/ppiankov/verdict/internal/model"
	"github.com/ppiankov/verdict/internal/worker"
)

const rule = "═══════════════════════════════════════════════════════════"

// printJSON writes v to stdout as indented JSON
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func header(title string) {
	fmt.Println(rule)
	fmt.Printf("  %s\n", title)
	fmt.Println(rule)
}

func statusBadge(s model.Status) string {
	switch s {
	case model.StatusFinalized:
		return color.CyanString(string(s))
	case model.StatusThresholdMet, model.StatusTimeout:
		return color.GreenString(string(s))
	case model.StatusDisputeWindow, model.StatusContested:
		return color.YellowString(string(s))
	default:
		return color.WhiteString(string(s))
	}
}

func outcomeBadge(o model.Outcome) string {
	switch o {
	case model.OutcomeCorrect:
		return color.GreenString(string(o))
	case model.OutcomeIncorrect:
		return color.RedString(string(o))
	case model.OutcomeInvalid:
		return color.MagentaString(string(o))
	default:
		return color.WhiteString(string(o))
	}
}

func tierBadge(t model.Tier) string {
	switch t {
	case model.TierStrong:
		return color.GreenString(string(t))
	case model.TierSolid:
		return color.CyanString(string(t))
	case model.TierBasic:
		return color.YellowString(string(t))
	default:
		return color.RedString(string(t))
	}
}

// hashBadge recomputes the content hash to show whether the stored claim was altered
func hashBadge(c *model.Claim) string {
	ok, err := canonical.VerifyClaim(c)
	switch {
	case err != nil:
		return color.YellowString("(unverifiable)")
	case ok:
		return color.GreenString("(verified)")
	default:
		return color.RedString("(MISMATCH)")
	}
}

func signedPoints(n int) string {
	switch {
	case n > 0:
		return color.GreenString("%+d", n)
	case n < 0:
		return color.RedString("%+d", n)
	default:
		return "0"
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04 MST")
}

func renderEvidence(r *model.EvidenceReport) {
	header("Evidence Score")
	fmt.Printf("  Score:      %d/100\n", r.Score.Score)
	fmt.Printf("  Tier:       %s\n", tierBadge(r.Score.Tier))
	fmt.Printf("  Grade:      %s (x%.1f)\n", r.Score.Grade, r.Score.Multiplier)
	fmt.Printf("  Items:      %d\n", r.Score.Items)
	fmt.Println()
	for _, s := range r.Score.Signals {
		fmt.Printf("  - [%s] %s\n", s.Severity, s.Description)
	}
	if len(r.Items) > 0 {
		fmt.Println()
		for _, item := range r.Items {
			ref := item.URL
			if ref == "" {
				ref = item.SignalID
			}
			fmt.Printf("  %2d. %-10s %-9s %s\n", item.Index, item.Type, item.Domain, ref)
		}
	}
	fmt.Println(rule)
}

func renderClaim(c *model.Claim, votes []*model.ContestVote) {
	header("Claim " + c.ID)
	fmt.Printf("  Statement:  %s\n", c.Statement)
	fmt.Printf("  Author:     %s\n", c.Author)
	if c.Category != "" {
		fmt.Printf("  Category:   %s\n", c.Category)
	}
	fmt.Printf("  Created:    %s\n", formatTime(&c.CreatedAt))
	fmt.Printf("  Hash:       %s %s\n", c.ContentHash, hashBadge(c))
	fmt.Printf("  Outcome:    %s\n", outcomeBadge(c.Outcome))
	if c.IsResolved() {
		fmt.Printf("  Evidence:   %d/100, grade %s\n", c.EvidenceScore, c.EvidenceGrade)
		fmt.Printf("  Resolved:   %s\n", formatTime(c.ResolvedAt))
		fmt.Printf("  Window end: %s\n", formatTime(c.DisputeWindowEnd))
		fmt.Printf("  Deadline:   %s\n", formatTime(c.FinalizationDeadline))
		fmt.Printf("  Net votes:  %+d (%d cast)\n", c.WeightedNet, len(votes))
	}
	if c.IsFinalized {
		fmt.Printf("  Final:      %s", outcomeBadge(c.FinalOutcome))
		if c.Overruled {
			fmt.Print(color.RedString(" (overruled)"))
		}
		fmt.Println()
	}
	fmt.Println(rule)
}

func renderStatus(st *model.FinalizationStatus) {
	header("Finalization Status")
	fmt.Printf("  Claim:        %s\n", st.ClaimID)
	fmt.Printf("  Status:       %s\n", statusBadge(st.Status))
	fmt.Printf("  Can finalize: %v\n", st.CanFinalize)
	fmt.Printf("  Net votes:    %+d (threshold ±%d)\n", st.WeightedNet, st.Threshold)
	fmt.Printf("  Window end:   %s\n", formatTime(st.DisputeWindowEnd))
	fmt.Printf("  Deadline:     %s\n", formatTime(st.FinalizationDeadline))
	fmt.Println(rule)
}

func renderFinalize(r *model.FinalizeResult) {
	if !r.Changed {
		fmt.Printf("Claim %s was already finalized as %s\n", r.ClaimID, outcomeBadge(r.FinalOutcome))
		return
	}
	fmt.Printf("%s Finalized %s as %s (net %+d)\n", color.GreenString("✓"), r.ClaimID, outcomeBadge(r.FinalOutcome), r.WeightedNet)
	if r.Overruled {
		fmt.Println(color.RedString("  Author's resolution was overruled"))
	}
	renderPenalty(r.Penalty)
}

func renderPenalty(p *model.PenaltyResult) {
	if p == nil {
		return
	}
	switch {
	case p.Error != "":
		fmt.Printf("  %s overrule penalty for %s failed: %s\n", color.RedString("✗"), p.Identity, p.Error)
		fmt.Println("    Retry with: verdict penalty retry <claim-id>")
	case p.Applied:
		fmt.Printf("  Overrule penalty applied to %s, new total %d\n", p.Identity, p.NewTotal)
	default:
		fmt.Printf("  Overrule penalty already applied to %s, total %d\n", p.Identity, p.NewTotal)
	}
}

func renderReputation(s *model.ReputationSummary, history []*model.ReputationEvent) {
	rec := s.Record
	header("Reputation " + rec.Identity.String())
	fmt.Printf("  Points:     %d\n", rec.TotalPoints)
	fmt.Printf("  Milestone:  %s", color.CyanString(s.Milestone.Current.Name))
	if s.Milestone.Next != nil {
		fmt.Printf(" (%d to %s)", s.Milestone.Remaining, s.Milestone.Next.Name)
	}
	fmt.Println()
	fmt.Printf("  Resolves:   %d (%d correct, %.0f%% accuracy)\n", rec.TotalResolves, rec.CorrectResolves, s.Accuracy*100)
	fmt.Printf("  Streak:     %d (best %d)\n", rec.CurrentStreak, rec.BestStreak)
	fmt.Printf("  Claims:     %d\n", rec.ClaimsCount)
	fmt.Printf("  Penalties:  %d\n", rec.PenaltiesCount)
	if len(rec.CategoryStats) > 0 {
		fmt.Println()
		for _, name := range sortedKeys(rec.CategoryStats) {
			stat := rec.CategoryStats[name]
			fmt.Printf("  %-14s %d/%d\n", name, stat.Correct, stat.Total)
		}
	}
	if len(history) > 0 {
		fmt.Println()
		for _, ev := range history {
			fmt.Printf("  %s  %-8s %6s  %s\n", ev.At.Local().Format("2006-01-02 15:04"), ev.Kind, signedPoints(ev.Points), ev.ClaimID)
		}
	}
	fmt.Println(rule)
}

func renderSweep(r *worker.SweepReport) {
	header("Sweep")
	fmt.Printf("  Scanned:    %d\n", r.Scanned)
	fmt.Printf("  Finalized:  %s\n", color.GreenString("%d", r.Finalized))
	fmt.Printf("  Overruled:  %d\n", r.Overruled)
	fmt.Printf("  Skipped:    %d\n", r.Skipped)
	if r.Failed > 0 {
		fmt.Printf("  Failed:     %s\n", color.RedString("%d", r.Failed))
	}
	if r.PenaltyFailures > 0 {
		fmt.Printf("  Penalty failures: %s\n", color.RedString("%d", r.PenaltyFailures))
	}
	for _, o := range r.Outcomes {
		if o.Error != nil && !o.Skipped() {
			fmt.Printf("  %s %s: %v\n", color.RedString("✗"), o.ClaimID, o.Error)
		}
	}
	fmt.Println(rule)
}

func sortedKeys(m map[string]model.CategoryStat) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
