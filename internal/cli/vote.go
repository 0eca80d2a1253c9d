package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var voteVoter string

// voteCmd represents the vote command
var voteCmd = &cobra.Command{
	Use:   "vote <claim-id> <up|down>",
	Short: "Cast a contest vote on a resolved claim",
	Long: `Support (up, +1) or dispute (down, -1) an author's resolution.

Casting the same vote again removes it; casting the opposite vote replaces it.
Supporting requires more reputation than disputing.

Examples:
  verdict vote <id> down --voter account:17
  verdict vote <id> +1 --voter anon:c0ffee
  verdict vote <id> --voter anon:c0ffee -- -1`,
	Args: cobra.ExactArgs(2),
	RunE: runVote,
}

func init() {
	rootCmd.AddCommand(voteCmd)

	voteCmd.Flags().StringVar(&voteVoter, "voter", "", "voter identity (anon:<id> or account:<id>)")
}

func parseDirection(s string) (int, error) {
	switch s {
	case "up", "+1", "1", "support":
		return 1, nil
	case "down", "-1", "dispute":
		return -1, nil
	default:
		return 0, fmt.Errorf("invalid vote %q: use up or down", s)
	}
}

func runVote(cmd *cobra.Command, args []string) error {
	voter, err := parseIdentity("voter", voteVoter)
	if err != nil {
		return err
	}
	direction, err := parseDirection(args[1])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	res, err := e.CastContestVote(ctx, args[0], voter, direction)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}

	fmt.Printf("%s Vote %s on %s\n", color.GreenString("✓"), res.Action, res.ClaimID)
	fmt.Printf("  Net votes: %+d\n", res.WeightedNet)
	return nil
}
