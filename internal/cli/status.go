package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ppiankov/verdict/internal/model"
	"github.com/ppiankov/verdict/internal/worker"
)

var (
	finalizeFile string
	sweepMetrics bool
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status <claim-id>",
	Short: "Show the finalization status of a claim",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

// finalizeCmd represents the finalize command
var finalizeCmd = &cobra.Command{
	Use:   "finalize [claim-ids...]",
	Short: "Finalize claims that are ready",
	Long: `Finalize one or more claims. A claim is ready once its dispute window has
closed and either the vote threshold is met or the finalization deadline
has passed. Finalizing an already finalized claim is a no-op.

Examples:
  verdict finalize <id>
  verdict finalize --file ids.txt`,
	RunE: runFinalize,
}

// sweepCmd represents the sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Finalize every resolved claim that is ready",
	Long: `Scan unfinalized resolved claims and finalize the ready ones concurrently.
Intended to run from cron or a scheduler.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(finalizeCmd)
	rootCmd.AddCommand(sweepCmd)

	finalizeCmd.Flags().StringVarP(&finalizeFile, "file", "f", "", "file with one claim id per line")
	sweepCmd.Flags().BoolVar(&sweepMetrics, "metrics", false, "print engine counters after the sweep")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	st, err := e.GetFinalizationStatus(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(st)
	}
	renderStatus(st)
	return nil
}

func runFinalize(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && finalizeFile == "" {
		return fmt.Errorf("provide claim ids or --file")
	}

	ctx := cmd.Context()
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if finalizeFile != "" {
		report, err := e.FinalizeFile(ctx, finalizeFile)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(report)
		}
		renderSweep(report)
		return failedErr(report)
	}

	var results []*model.FinalizeResult
	failed := 0
	for _, id := range args {
		res, err := e.FinalizeClaim(ctx, id)
		if err != nil {
			failed++
			if !jsonOutput {
				fmt.Printf("%s %s: %v\n", color.RedString("✗"), id, err)
			}
			continue
		}
		results = append(results, res)
		if !jsonOutput {
			renderFinalize(res)
		}
	}
	if jsonOutput {
		if err := printJSON(results); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d claims could not be finalized", failed, len(args))
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	report, err := e.Sweep(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		out := map[string]any{"sweep": report}
		if sweepMetrics {
			points, err := e.Metrics().Snapshot(ctx)
			if err != nil {
				return err
			}
			out["metrics"] = points
		}
		return printJSON(out)
	}

	renderSweep(report)
	if sweepMetrics {
		points, err := e.Metrics().Snapshot(ctx)
		if err != nil {
			return err
		}
		for _, p := range points {
			fmt.Printf("  %-32s %v %d\n", p.Name, p.Attributes, p.Value)
		}
	}
	return failedErr(report)
}

func failedErr(r *worker.SweepReport) error {
	if r.Failed > 0 {
		return fmt.Errorf("%d of %d claims failed to finalize", r.Failed, r.Scanned)
	}
	return nil
}
