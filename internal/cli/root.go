package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ppiankov/veracity/internal/logging"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// version is overridden at build time with -ldflags "-X ...cli.version=..."
var version = "v0.1.0"

var (
	cfgFile string
	verbose bool
	userID  string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "veracity",
	Short: "Veracity - search-augmented claim verification",
	Long: `Veracity verifies natural-language claims.

A language model reasons about the claim, requests web searches one at a
time, and once it has enough evidence returns a veracity score with an
explanation. Every source it saw is stored with the credibility of its
domain at the time it was fetched, and the confidence of the verdict is
derived from the model's own token probabilities.

Claims, analyses, sources and transcripts are kept in a local SQLite
database so verdicts can be inspected, rated and rephrased later.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of Veracity.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("veracity %s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.veracity/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&userID, "user", "cli", "user identifier owning submitted claims")
	flags.String("db", "", "SQLite database path")
	flags.String("llm-provider", "", "LLM provider (openai, together, anthropic, ollama, gemini)")
	flags.String("llm-model", "", "LLM model name")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("store.path", flags.Lookup("db"))
	_ = viper.BindPFlag("llm.provider", flags.Lookup("llm-provider"))
	_ = viper.BindPFlag("llm.model", flags.Lookup("llm-model"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig layers defaults, the config file and VERACITY_* variables
func initConfig() {
	// Defaults first so every key is known to viper and can be overridden
	// from the environment
	viper.SetConfigType("yaml")
	if data, err := yaml.Marshal(model.DefaultConfig()); err == nil {
		_ = viper.ReadConfig(bytes.NewReader(data))
	}

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(home + "/.veracity")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match VERACITY_*
	viper.SetEnvPrefix("VERACITY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Keys absent from the marshalled defaults (secrets, omitempty fields)
	_ = viper.BindEnv("llm.api_key")
	_ = viper.BindEnv("llm.base_url")
	_ = viper.BindEnv("llm.http_proxy")
	_ = viper.BindEnv("llm.https_proxy")
	_ = viper.BindEnv("llm.no_proxy")
	_ = viper.BindEnv("http.http_proxy")
	_ = viper.BindEnv("http.https_proxy")
	_ = viper.BindEnv("http.no_proxy")
	_ = viper.BindEnv("metrics.addr")
	_ = viper.BindEnv("search.endpoint")
	_ = viper.BindEnv("search.api_key", "VERACITY_SEARCH_API_KEY", "GOOGLE_SEARCH_API_KEY")
	_ = viper.BindEnv("search.engine_id", "VERACITY_SEARCH_ENGINE_ID", "GOOGLE_SEARCH_ENGINE_ID")

	// If a config file is found, merge it over the defaults
	if err := viper.MergeInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig decodes the layered configuration
func loadConfig() (model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	if strings.EqualFold(cfg.LLM.Provider, "ollama") && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if verbose && cfg.Logging.Level == "info" {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the config
func newLogger(cfg model.Config) (*zap.Logger, error) {
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return log.With(zap.String("user", userID)), nil
}

// signalContext is cancelled on the first SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
