package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/pipeline"
	"github.com/ppiankov/veracity/internal/search"
	"github.com/ppiankov/veracity/internal/stream"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	claimContext   string
	claimLang      string
	claimID        string
	streamFormat   string
	publishDates   bool
	dateRange      string
	numResults     int
	outJSON        string
	analyzeTimeout time.Duration
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [statement]",
	Short: "Verify a single claim",
	Long: `Analyze submits a claim and runs the verification loop:
- The model reasons about the claim and requests searches one at a time
- Each search result is stored with its domain credibility
- Once the model is ready, a verdict with a veracity score is synthesized
- Confidence is derived from the verdict's token probabilities

Progress can be streamed as NDJSON or Server-Sent Events. Interrupting a
streamed run lets the in-flight model or search call finish, marks the
analysis failed and returns the claim to pending.

Example:
  veracity analyze "The Eiffel Tower was completed in 1889"
  veracity analyze "La Tour Eiffel mesure 330 mètres" --lang fr
  veracity analyze "Inflation fell in 2023" --date-range "2023-01-01 to 2023-12-31"
  veracity analyze "Water boils at 90C at sea level" --stream ndjson
  veracity analyze --claim 6f1c... --json result.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	// Claim flags
	analyzeCmd.Flags().StringVar(&claimContext, "context", "", "free-form context for the claim")
	analyzeCmd.Flags().StringVar(&claimLang, "lang", "english", "claim language (english, french, en, fr)")
	analyzeCmd.Flags().StringVar(&claimID, "claim", "", "analyze an existing pending claim instead of submitting a new one")

	// Search flags
	analyzeCmd.Flags().BoolVar(&publishDates, "publish-dates", false, "attach publish dates to sources")
	analyzeCmd.Flags().StringVar(&dateRange, "date-range", "", `restrict results to "<start> to <end>" (english only)`)
	analyzeCmd.Flags().IntVar(&numResults, "num-results", 0, "results per search (default from config)")

	// Output flags
	analyzeCmd.Flags().StringVar(&streamFormat, "stream", "", "stream progress events to stdout (ndjson, sse)")
	analyzeCmd.Flags().StringVar(&outJSON, "json", "", "write the finished analysis as JSON (- for stdout)")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 10*time.Minute, "overall analysis timeout")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if (len(args) == 0) == (claimID == "") {
		return errors.New("give either a statement or --claim")
	}
	streamFormat = strings.ToLower(streamFormat)
	if streamFormat != "" && streamFormat != "ndjson" && streamFormat != "sse" {
		return fmt.Errorf("unknown stream format %q (ndjson, sse)", streamFormat)
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

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, analyzeTimeout)
	defer cancel()

	rt, err := pipeline.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	id, err := resolveClaim(ctx, rt, args)
	if err != nil {
		return err
	}
	opts, err := runOptions()
	if err != nil {
		return err
	}

	if streamFormat != "" {
		events := rt.Stream(ctx, id, userID, opts)
		write := stream.WriteNDJSON
		if streamFormat == "sse" {
			write = stream.WriteSSE
		}
		if err := write(os.Stdout, events); err != nil {
			return fmt.Errorf("write stream: %w", err)
		}
		if ctx.Err() != nil {
			fmt.Fprintf(os.Stderr, "✗ analysis stopped: %v\n", context.Cause(ctx))
		}
		return nil
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "⚙️  Analyzing claim %s with %s/%s...\n", id, cfg.LLM.Provider, cfg.LLM.Model)
	}
	a, err := rt.Analyze(ctx, id, userID, opts)
	if err != nil {
		log.Debug("analysis failed", zap.Stringer("claim_id", id), zap.Error(err))
		return fmt.Errorf("analysis failed: %w", err)
	}

	if outJSON != "" {
		if err := writeJSON(outJSON, a); err != nil {
			return err
		}
		if outJSON == "-" {
			return nil
		}
	}
	printAnalysis(os.Stdout, a)
	return nil
}

// resolveClaim submits the statement or parses --claim
func resolveClaim(ctx context.Context, rt *pipeline.Runtime, args []string) (uuid.UUID, error) {
	if claimID != "" {
		id, err := uuid.Parse(claimID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid claim id: %w", err)
		}
		return id, nil
	}

	lang, err := model.ParseLanguage(claimLang)
	if err != nil {
		return uuid.Nil, err
	}
	claim, err := rt.SubmitClaim(ctx, userID, args[0], claimContext, lang)
	if err != nil {
		return uuid.Nil, err
	}
	fmt.Fprintf(os.Stderr, "✓ Claim %s submitted\n", claim.ID)
	return claim.ID, nil
}

func runOptions() (pipeline.RunOptions, error) {
	opts := pipeline.RunOptions{NumResults: numResults}
	if publishDates {
		opts.SearchOptions |= search.OptionDateCreated
	}
	if dateRange != "" {
		if _, err := search.ParseDateRange(dateRange); err != nil {
			return opts, err
		}
		opts.SearchOptions |= search.OptionDateRange
		opts.DateRange = dateRange
	}
	return opts, nil
}
