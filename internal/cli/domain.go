package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	domainScore       float64
	domainUnknown     bool
	domainReliable    bool
	domainDescription string
)

// domainCmd groups domain credibility moderation
var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Inspect and moderate domain credibility",
	Long: `Domains are created the first time a search returns one of their pages.
Their credibility starts unknown unless the domain is on the primary or
secondary authority lists. Moderation changes future sources only: sources
already stored keep the credibility they had when fetched.`,
}

var domainLookupCmd = &cobra.Command{
	Use:   "lookup <domain-or-url>",
	Short: "Show the stored credibility of a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openStoreRuntime(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		d, err := rt.Domains.Lookup(cmd.Context(), args[0])
		if errors.Is(err, model.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "Domain not seen yet: %s\n", args[0])
			return nil
		}
		if err != nil {
			return err
		}
		printDomain(d)
		return nil
	},
}

var domainSetCmd = &cobra.Command{
	Use:   "set <domain-or-url>",
	Short: "Set the credibility of a domain",
	Long: `Set the credibility (0-1) and reliability of a domain.

Example:
  veracity domain set nasa.gov --score 0.95 --reliable --description "US space agency"
  veracity domain set example.com --unknown`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var score *float64
		switch {
		case domainUnknown && cmd.Flags().Changed("score"):
			return errors.New("--score and --unknown are mutually exclusive")
		case cmd.Flags().Changed("score"):
			score = model.Float(domainScore)
		case !domainUnknown:
			return errors.New("give --score or --unknown")
		}

		rt, err := openStoreRuntime(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		d, err := rt.Domains.Moderate(cmd.Context(), args[0], score, domainReliable, domainDescription)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Updated %s\n", d.Name)
		printDomain(d)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(domainCmd)
	domainCmd.AddCommand(domainLookupCmd)
	domainCmd.AddCommand(domainSetCmd)

	domainSetCmd.Flags().Float64Var(&domainScore, "score", 0, "credibility between 0 and 1")
	domainSetCmd.Flags().BoolVar(&domainUnknown, "unknown", false, "mark the credibility as unknown")
	domainSetCmd.Flags().BoolVar(&domainReliable, "reliable", false, "flag the domain as reliable")
	domainSetCmd.Flags().StringVar(&domainDescription, "description", "", "description shown to the model with search results")
}

func printDomain(d *model.Domain) {
	fmt.Printf("  Domain:       %s\n", d.Name)
	fmt.Printf("  Credibility:  %s\n", percent(d.CredibilityScore))
	fmt.Printf("  Reliable:     %v\n", d.IsReliable)
	if d.Description != "" {
		fmt.Printf("  Description:  %s\n", d.Description)
	}
}

// openStoreRuntime opens the database without a model or search backend
func openStoreRuntime(cmd *cobra.Command) (*pipeline.Runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	return pipeline.OpenStore(cmd.Context(), cfg, log)
}
