package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Veracity configuration",
	Long: `Manage Veracity configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (VERACITY_*)
3. Config file (~/.veracity/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration after merging defaults, config file, environment and flags. API keys are never printed.

With --check the configured model provider is contacted to confirm it answers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		configFile := viper.ConfigFileUsed()
		if configFile != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println("  Current Configuration")
		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println()

		if err := writeConfigYAML(os.Stdout, cfg); err != nil {
			return err
		}

		fmt.Println()
		fmt.Printf("  llm api key:    %s\n", keyState(cfg.LLM.APIKey, cfg.LLM.Provider))
		fmt.Printf("  search api key: %s\n", keyState(cfg.Search.APIKey, ""))
		if checkProvider {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			fmt.Printf("  llm reachable:  %s\n", providerState(ctx, cfg, pipeline.ProviderReachable))
		}
		fmt.Println()
		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println()
		fmt.Println("Configuration hierarchy (highest to lowest priority):")
		fmt.Println("  1. CLI flags")
		fmt.Println("  2. Environment variables (VERACITY_*, OPENAI_API_KEY, GOOGLE_SEARCH_API_KEY, ...)")
		fmt.Println("  3. Config file (~/.veracity/config.yaml)")
		fmt.Println("  4. Defaults")
		fmt.Println()

		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long:  `Create a default configuration file at ~/.veracity/config.yaml with all available options.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error finding home directory: %w", err)
		}

		configDir := filepath.Join(home, ".veracity")
		configPath := filepath.Join(configDir, "config.yaml")

		// Check if config already exists
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists: %s\nUse 'veracity config show' to view it, or delete it first to recreate", configPath)
		}

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("error creating config file: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close config file: %w", closeErr)
			}
		}()

		if err := writeDefaultConfig(f); err != nil {
			return err
		}

		fmt.Printf("✓ Created default configuration: %s\n", configPath)
		fmt.Printf("\nTo view the configuration:\n")
		fmt.Printf("  veracity config show\n")
		fmt.Printf("\nTo customize, edit the file with your preferred editor:\n")
		fmt.Printf("  $EDITOR %s\n", configPath)
		fmt.Printf("\n")

		return nil
	},
}

var checkProvider bool

func init() {
	configShowCmd.Flags().BoolVar(&checkProvider, "check", false, "Contact the model provider to confirm it is reachable")
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func writeConfigYAML(w io.Writer, cfg model.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	return enc.Close()
}

// writeDefaultConfig writes the commented default configuration file
func writeDefaultConfig(w io.Writer) error {
	var err error
	printf := func(format string, a ...any) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(w, format, a...)
	}

	printf("# Veracity Configuration File\n")
	printf("#\n")
	printf("# Configuration hierarchy (highest to lowest priority):\n")
	printf("#   1. CLI flags\n")
	printf("#   2. Environment variables (VERACITY_*, e.g. VERACITY_AGENT_MAX_TURNS=6)\n")
	printf("#   3. This config file\n")
	printf("#   4. Built-in defaults\n\n")
	if err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}

	if err := writeConfigYAML(w, model.DefaultConfig()); err != nil {
		return err
	}

	printf("\n# API keys are read from the environment:\n")
	printf("#   export OPENAI_API_KEY=sk-...\n")
	printf("#   export TOGETHER_API_KEY=...\n")
	printf("#   export ANTHROPIC_API_KEY=sk-ant-...\n")
	printf("#   export GEMINI_API_KEY=...\n")
	printf("#   export OLLAMA_BASE_URL=http://localhost:11434\n")
	printf("#   export GOOGLE_SEARCH_API_KEY=...\n")
	printf("#   export GOOGLE_SEARCH_ENGINE_ID=...\n")
	if err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	return nil
}

type reachabilityCheck func(ctx context.Context, cfg model.Config, log *zap.Logger) (string, bool, error)

// providerState runs check and renders the answer for config show
func providerState(ctx context.Context, cfg model.Config, check reachabilityCheck) string {
	name, ok, err := check(ctx, cfg, nil)
	switch {
	case err != nil:
		return "not configured (" + err.Error() + ")"
	case ok:
		return "yes (" + name + ")"
	default:
		return "no (" + name + " did not answer)"
	}
}

// keyState reports whether a secret is set without revealing it
func keyState(key, provider string) string {
	switch {
	case key != "":
		return "set"
	case provider == "ollama":
		return "not needed"
	default:
		return "from environment at run time, or missing"
	}
}
