package cli

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/ppiankov/veracity/internal/pipeline"
	"github.com/ppiankov/veracity/internal/rewrite"
	"github.com/spf13/cobra"
)

var (
	assertDirection string
	assertStream    bool
)

// assertCmd represents the assert command
var assertCmd = &cobra.Command{
	Use:   "assert <analysis-id>",
	Short: "Rephrase a verdict more or less assertively",
	Long: `Assert rewrites the explanation of a completed analysis in a more or less
assertive register. The rewrite always starts from the originally synthesized
explanation, keeps its length and evidence, and never changes the scores.

Example:
  veracity assert 0b6e... --direction more
  veracity assert 0b6e... --direction less --stream`,
	Args: cobra.ExactArgs(1),
	RunE: runAssert,
}

func init() {
	rootCmd.AddCommand(assertCmd)

	assertCmd.Flags().StringVar(&assertDirection, "direction", "more", "more_assertive (more, high) or less_assertive (less, low)")
	assertCmd.Flags().BoolVar(&assertStream, "stream", false, "print the rewrite as it is generated")
}

func runAssert(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid analysis id: %w", err)
	}
	dir, err := rewrite.ParseDirection(assertDirection)
	if err != nil {
		return err
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

	rt, err := pipeline.OpenModel(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if assertStream {
		_, err := rt.VaryAssertivenessStream(ctx, id, dir, func(chunk string) error {
			_, err := fmt.Fprint(os.Stdout, chunk)
			return err
		})
		if err != nil {
			return fmt.Errorf("rewrite failed: %w", err)
		}
		fmt.Println()
		return nil
	}

	a, err := rt.VaryAssertiveness(ctx, id, dir)
	if err != nil {
		return fmt.Errorf("rewrite failed: %w", err)
	}
	printAnalysis(os.Stdout, a)
	return nil
}
