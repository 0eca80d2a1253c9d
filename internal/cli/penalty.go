package cli

import (
	"github.com/spf13/cobra"
)

// penaltyCmd represents the penalty command
var penaltyCmd = &cobra.Command{
	Use:   "penalty",
	Short: "Manage overrule penalties",
}

var penaltyRetryCmd = &cobra.Command{
	Use:   "retry <claim-id>",
	Short: "Apply an overrule penalty that failed during finalization",
	Long: `Apply the overrule penalty for a finalized, overruled claim. The penalty is
keyed by claim, so retrying a penalty that was already applied changes nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: runPenaltyRetry,
}

func init() {
	rootCmd.AddCommand(penaltyCmd)
	penaltyCmd.AddCommand(penaltyRetryCmd)
}

func runPenaltyRetry(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	res, err := e.RetryOverrulePenalty(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}
	renderPenalty(res)
	return nil
}
