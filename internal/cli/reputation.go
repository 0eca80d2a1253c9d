package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/verdict/internal/model"
)

var reputationHistory bool

// reputationCmd represents the reputation command
var reputationCmd = &cobra.Command{
	Use:     "reputation",
	Aliases: []string{"rep"},
	Short:   "Inspect reputation records",
}

var reputationShowCmd = &cobra.Command{
	Use:   "show <identity>",
	Short: "Show points, accuracy and milestone progress",
	Long: `Show the reputation record of an identity (anon:<id> or account:<id>).

Examples:
  verdict reputation show account:42
  verdict rep show anon:7f3c --history`,
	Args: cobra.ExactArgs(1),
	RunE: runReputationShow,
}

var reputationRecomputeCmd = &cobra.Command{
	Use:   "recompute <identity>",
	Short: "Rebuild a record from its event history",
	Args:  cobra.ExactArgs(1),
	RunE:  runReputationRecompute,
}

func init() {
	rootCmd.AddCommand(reputationCmd)
	reputationCmd.AddCommand(reputationShowCmd)
	reputationCmd.AddCommand(reputationRecomputeCmd)

	reputationShowCmd.Flags().BoolVar(&reputationHistory, "history", false, "include the point history")
}

func runReputationShow(cmd *cobra.Command, args []string) error {
	id, err := parseIdentity("identity", args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	summary, err := e.Reputation(ctx, id)
	if err != nil {
		return err
	}
	var history []*model.ReputationEvent
	if reputationHistory {
		if history, err = e.History(ctx, id); err != nil {
			return err
		}
	}

	if jsonOutput {
		if reputationHistory {
			return printJSON(map[string]any{"reputation": summary, "history": history})
		}
		return printJSON(summary)
	}
	renderReputation(summary, history)
	return nil
}

func runReputationRecompute(cmd *cobra.Command, args []string) error {
	id, err := parseIdentity("identity", args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	summary, err := e.Recompute(ctx, id)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(summary)
	}
	renderReputation(summary, nil)
	return nil
}
