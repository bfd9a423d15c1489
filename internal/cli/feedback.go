package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/spf13/cobra"
)

var (
	feedbackRating  float64
	feedbackComment string

	statsFrom string
	statsTo   string
	statsLang string
)

// feedbackCmd represents the feedback command
var feedbackCmd = &cobra.Command{
	Use:   "feedback <analysis-id>",
	Short: "Rate an analysis from 1 to 5",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid analysis id: %w", err)
		}
		rt, err := openStoreRuntime(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		f, err := rt.SubmitFeedback(cmd.Context(), id, userID, feedbackRating, feedbackComment)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Recorded feedback %s (%.1f/5)\n", f.ID, f.Rating)
		return nil
	},
}

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Average veracity of analyzed claims",
	Long: `Stats prints the mean veracity of completed analyses for claims created in
[from, to) in one language. Dates are YYYY-MM-DD; the window defaults to
the last 30 days.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, err := model.ParseLanguage(statsLang)
		if err != nil {
			return err
		}
		to := time.Now().UTC().Add(24 * time.Hour).Truncate(24 * time.Hour)
		from := to.AddDate(0, 0, -30)
		if statsFrom != "" {
			if from, err = time.Parse(time.DateOnly, statsFrom); err != nil {
				return model.Validationf("invalid --from %q", statsFrom)
			}
		}
		if statsTo != "" {
			if to, err = time.Parse(time.DateOnly, statsTo); err != nil {
				return model.Validationf("invalid --to %q", statsTo)
			}
		}

		rt, err := openStoreRuntime(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		avg, err := rt.AverageVeracity(cmd.Context(), from, to, lang)
		if err != nil {
			return err
		}
		fmt.Printf("%.4f\n", avg)
		fmt.Fprintf(os.Stderr, "  %s claims from %s to %s\n", lang, from.Format(time.DateOnly), to.Format(time.DateOnly))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(statsCmd)

	feedbackCmd.Flags().Float64Var(&feedbackRating, "rating", 0, "rating between 1 and 5")
	feedbackCmd.Flags().StringVar(&feedbackComment, "comment", "", "optional comment")
	_ = feedbackCmd.MarkFlagRequired("rating")

	statsCmd.Flags().StringVar(&statsFrom, "from", "", "window start (inclusive)")
	statsCmd.Flags().StringVar(&statsTo, "to", "", "window end (exclusive)")
	statsCmd.Flags().StringVar(&statsLang, "lang", "english", "claim language")
}
