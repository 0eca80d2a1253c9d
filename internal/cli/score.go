package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/verdict/internal/model"
)

var (
	scoreScreenshots int
	scoreFiles       int
	scoreSignals     []string
	scoreInput       string
)

// scoreCmd represents the score command
var scoreCmd = &cobra.Command{
	Use:   "score [urls...]",
	Short: "Score an evidence bundle",
	Long: `Score the structure of an evidence bundle without touching any claim.

Links are classified by domain (reputable, social, unknown). Attachments and
linked intelligence signals add fixed bonuses. Nothing about the content is
evaluated.

Examples:
  verdict score https://www.reuters.com/article https://x.com/post/1
  verdict score --screenshots 2 --signal sig-123 https://apnews.com/story
  verdict score --input evidence.json`,
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().IntVar(&scoreScreenshots, "screenshots", 0, "number of screenshot attachments")
	scoreCmd.Flags().IntVar(&scoreFiles, "files", 0, "number of file attachments")
	scoreCmd.Flags().StringSliceVar(&scoreSignals, "signal", nil, "linked intelligence signal id (repeatable)")
	scoreCmd.Flags().StringVarP(&scoreInput, "input", "i", "", "JSON file with an array of evidence items")
}

func runScore(cmd *cobra.Command, args []string) error {
	var items []model.EvidenceItem
	if scoreInput != "" {
		data, err := os.ReadFile(scoreInput)
		if err != nil {
			return fmt.Errorf("error reading input: %w", err)
		}
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("error parsing input: %w", err)
		}
	}
	items, err := appendFlagEvidence(items, args, scoreScreenshots, scoreFiles, scoreSignals)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	report, err := e.ScoreEvidence(ctx, items)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(report)
	}
	renderEvidence(report)
	return nil
}

// appendFlagEvidence appends items built from link arguments, attachment counts
// and signal ids, indexed after the highest index already present
func appendFlagEvidence(items []model.EvidenceItem, links []string, screenshots, files int, signals []string) ([]model.EvidenceItem, error) {
	if screenshots < 0 || files < 0 {
		return nil, fmt.Errorf("attachment counts must not be negative")
	}
	next := 0
	for _, item := range items {
		if item.Index >= next {
			next = item.Index + 1
		}
	}
	if next == 1 {
		// Unindexed documents are ordered by position
		for i := range items {
			items[i].Index = i
		}
		next = len(items)
	}
	add := func(item model.EvidenceItem) {
		item.Index = next
		next++
		items = append(items, item)
	}
	for _, u := range links {
		add(model.EvidenceItem{Type: model.ItemLink, URL: u})
	}
	for i := 0; i < screenshots; i++ {
		add(model.EvidenceItem{Type: model.ItemScreenshot})
	}
	for i := 0; i < files; i++ {
		add(model.EvidenceItem{Type: model.ItemFile})
	}
	for _, id := range signals {
		add(model.EvidenceItem{Type: model.ItemSignal, SignalID: id})
	}
	return items, nil
}
