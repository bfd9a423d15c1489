package llm

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/util"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "together", "together-ai":
		return NewTogetherProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "gemini", "google":
		return NewGeminiProvider(config)

	case "":
		return nil, model.Validationf("no LLM provider configured")

	default:
		return nil, model.Validationf("unknown LLM provider: %s (supported: openai, together, anthropic, ollama, gemini)", config.Provider)
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(modelConfig model.LLMConfig) Config {
	return Config{
		Provider:    modelConfig.Provider,
		Model:       modelConfig.Model,
		APIKey:      modelConfig.APIKey,
		BaseURL:     modelConfig.BaseURL,
		Timeout:     modelConfig.Timeout,
		MaxTokens:   modelConfig.MaxTokens,
		Temperature: modelConfig.Temperature,
		TopLogProbs: modelConfig.TopLogProbs,
		HTTPProxy:   modelConfig.HTTPProxy,
		HTTPSProxy:  modelConfig.HTTPSProxy,
		NoProxy:     modelConfig.NoProxy,
	}
}

// APIKeyFromEnv returns the conventional API key variable for a provider
func APIKeyFromEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "together", "together-ai":
		return os.Getenv("TOGETHER_API_KEY")
	case "anthropic", "claude":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "gemini", "google":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	}
	return ""
}

// newHTTPClient builds the client shared by a provider's API calls
func newHTTPClient(config Config, fallbackTimeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: config.timeout(fallbackTimeout),
		Transport: &http.Transport{
			Proxy:               util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// upstream wraps a backend failure; status is 0 when no HTTP response arrived
func upstream(service, op string, status int, err error) error {
	return &model.UpstreamError{Service: service, Op: op, StatusCode: status, Err: err}
}

func requireModel(provider, name string) error {
	if name == "" {
		return fmt.Errorf("%s model must be specified", provider)
	}
	return nil
}
