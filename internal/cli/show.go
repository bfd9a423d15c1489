package cli

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/ppiankov/veracity/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	showClaim      bool
	showTranscript bool
	showFeedback   bool
	showJSON       bool
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stored analysis or claim",
	Long: `Show prints a stored analysis with its sources. With --claim the id is a
claim id and every analysis of the claim is listed, oldest first.

Example:
  veracity show 0b6e...
  veracity show 0b6e... --transcript --feedback
  veracity show 6f1c... --claim --json`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().BoolVar(&showClaim, "claim", false, "treat the id as a claim id")
	showCmd.Flags().BoolVar(&showTranscript, "transcript", false, "include the model conversation")
	showCmd.Flags().BoolVar(&showFeedback, "feedback", false, "include user feedback")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "print JSON instead of text")
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid id: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	rt, err := pipeline.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if showClaim {
		claim, err := rt.GetClaim(ctx, id)
		if err != nil {
			return err
		}
		analyses, err := rt.ClaimAnalyses(ctx, id)
		if err != nil {
			return err
		}
		if showJSON {
			return writeJSON("-", map[string]any{"claim": claim, "analyses": analyses})
		}
		banner(os.Stdout, "Claim "+claim.ID.String())
		fmt.Printf("  %s\n\n", claim.Text)
		fmt.Printf("  Status:    %s\n", claim.Status)
		fmt.Printf("  Language:  %s\n", claim.Language)
		fmt.Printf("  Owner:     %s\n", claim.UserID)
		fmt.Printf("  Analyses:  %d\n", len(analyses))
		for _, a := range analyses {
			fmt.Printf("    %s  %-10s veracity %s\n", a.ID, a.Status, percent(a.VeracityScore))
		}
		fmt.Println()
		return nil
	}

	a, err := rt.GetAnalysis(ctx, id, true, showFeedback)
	if err != nil {
		return err
	}

	if showJSON {
		if !showTranscript {
			return writeJSON("-", a)
		}
		msgs, err := rt.Transcript(ctx, id)
		if err != nil {
			return err
		}
		return writeJSON("-", map[string]any{"analysis": a, "transcript": msgs})
	}

	printAnalysis(os.Stdout, a)
	if showTranscript {
		msgs, err := rt.Transcript(ctx, id)
		if err != nil {
			return err
		}
		printTranscript(os.Stdout, msgs)
	}
	return nil
}
