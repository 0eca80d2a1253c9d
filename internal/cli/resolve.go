package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ppiankov/verdict/internal/model"
)

var (
	resolveInput       string
	resolveClaim       string
	resolveOutcome     string
	resolveGrade       string
	resolveScreenshots int
	resolveFiles       int
	resolveSignals     []string
)

// resolveCmd represents the resolve command
var resolveCmd = &cobra.Command{
	Use:   "resolve [urls...]",
	Short: "Resolve a claim with an outcome and evidence",
	Long: `Resolve a claim as correct, incorrect or invalid. The evidence is scored,
the dispute window opens and the author receives resolve points.

A resolution document may be given with --input; --claim overrides its claim_id.

Examples:
  verdict resolve --claim <id> --outcome correct https://www.reuters.com/article
  verdict resolve --claim <id> --outcome incorrect --grade B --screenshots 1 https://apnews.com/x
  verdict resolve --input resolution.json`,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVarP(&resolveInput, "input", "i", "", "JSON resolution document")
	resolveCmd.Flags().StringVar(&resolveClaim, "claim", "", "claim id")
	resolveCmd.Flags().StringVar(&resolveOutcome, "outcome", "", "outcome (correct, incorrect, invalid)")
	resolveCmd.Flags().StringVar(&resolveGrade, "grade", "", "expected evidence grade (A-D), checked against the computed grade")
	resolveCmd.Flags().IntVar(&resolveScreenshots, "screenshots", 0, "number of screenshot attachments")
	resolveCmd.Flags().IntVar(&resolveFiles, "files", 0, "number of file attachments")
	resolveCmd.Flags().StringSliceVar(&resolveSignals, "signal", nil, "linked intelligence signal id (repeatable)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	claimID, outcome, grade := resolveClaim, resolveOutcome, resolveGrade
	var items []model.EvidenceItem

	if resolveInput != "" {
		data, err := os.ReadFile(resolveInput)
		if err != nil {
			return fmt.Errorf("error reading input: %w", err)
		}
		in, err := e.Validator().DecodeResolution(data)
		if err != nil {
			return err
		}
		if claimID == "" {
			claimID = in.ClaimID
		}
		if outcome == "" {
			outcome = in.Outcome
		}
		if grade == "" {
			grade = in.Grade
		}
		items = in.Evidence
	}

	items, err = appendFlagEvidence(items, args, resolveScreenshots, resolveFiles, resolveSignals)
	if err != nil {
		return err
	}
	if claimID == "" {
		return fmt.Errorf("--claim is required")
	}

	res, err := e.ResolveClaim(ctx, claimID, outcome, grade, items)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}

	fmt.Printf("%s Resolved %s as %s\n", color.GreenString("✓"), res.ClaimID, outcomeBadge(res.Outcome))
	fmt.Printf("  Evidence:   %d/100, %s, grade %s (x%.1f)\n",
		res.Evidence.Score, tierBadge(res.Evidence.Tier), res.Evidence.Grade, res.Evidence.Multiplier)
	fmt.Printf("  Window end: %s\n", formatTime(&res.DisputeWindowEnd))
	fmt.Printf("  Deadline:   %s\n", formatTime(&res.FinalizationDeadline))
	if res.PointsError != "" {
		fmt.Printf("  %s resolve points not awarded: %s\n", color.RedString("✗"), res.PointsError)
	} else {
		fmt.Printf("  Points:     %s\n", signedPoints(res.Points))
	}
	return nil
}
