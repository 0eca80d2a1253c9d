package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	claimAuthor   string
	claimCategory string
)

// claimCmd represents the claim command
var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Create and inspect claims",
}

var claimCreateCmd = &cobra.Command{
	Use:   "create <statement>",
	Short: "Lock a new claim",
	Long: `Lock a new claim for an author. The statement is hashed once at creation
and the author receives lock points.

Examples:
  verdict claim create --author account:42 --category markets "BTC closes above 100k on Friday"
  verdict claim create --author anon:7f3c "The bridge reopens before June"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClaimCreate,
}

var claimShowCmd = &cobra.Command{
	Use:   "show <claim-id>",
	Short: "Show a claim and its contest votes",
	Args:  cobra.ExactArgs(1),
	RunE:  runClaimShow,
}

func init() {
	rootCmd.AddCommand(claimCmd)
	claimCmd.AddCommand(claimCreateCmd)
	claimCmd.AddCommand(claimShowCmd)

	claimCreateCmd.Flags().StringVar(&claimAuthor, "author", "", "author identity (anon:<id> or account:<id>)")
	claimCreateCmd.Flags().StringVar(&claimCategory, "category", "", "claim category")
}

func runClaimCreate(cmd *cobra.Command, args []string) error {
	author, err := parseIdentity("author", claimAuthor)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	res, err := e.CreateClaim(ctx, author, strings.Join(args, " "), claimCategory)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}

	fmt.Printf("%s Locked claim %s\n", color.GreenString("✓"), res.Claim.ID)
	fmt.Printf("  Hash:   %s\n", res.Claim.ContentHash)
	if res.PointsError != "" {
		fmt.Printf("  %s lock points not awarded: %s\n", color.RedString("✗"), res.PointsError)
	} else {
		fmt.Printf("  Points: %s\n", signedPoints(res.LockPoints))
	}
	return nil
}

func runClaimShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	c, err := e.GetClaim(ctx, args[0])
	if err != nil {
		return err
	}
	votes, err := e.Votes(ctx, c.ID)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(map[string]any{"claim": c, "votes": votes})
	}
	renderClaim(c, votes)
	return nil
}
