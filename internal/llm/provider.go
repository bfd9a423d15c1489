package llm

import (
	"context"
	"math"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends the conversation and returns the whole completion
	Complete(ctx context.Context, req Request) (*Response, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Streamer is implemented by providers that can deliver a completion in chunks.
// onChunk is called with each text delta; an error from it aborts the stream.
type Streamer interface {
	Stream(ctx context.Context, req Request, onChunk func(string) error) (*Response, error)
}

// Request contains the input for one completion
type Request struct {
	// Messages is the ordered conversation; a leading system message is
	// passed the way each backend expects it
	Messages []model.Message

	// Temperature overrides the configured temperature when non-nil
	Temperature *float64

	// MaxTokens limits the response length (0 uses the configured value)
	MaxTokens int

	// LogProbs asks for per-token log-probabilities when the backend supports them
	LogProbs bool
}

// TokenLogProb is one generated token with its log-probability
type TokenLogProb struct {
	Token        string
	LogProb      float64
	Alternatives map[string]float64 // top alternative tokens and their log-probabilities
}

// Response contains the model output
type Response struct {
	// Content is the generated text
	Content string

	// Tokens holds log-probabilities when they were requested and returned
	Tokens []TokenLogProb

	// FinishReason is the backend's completion-reason code ("stop", "length", ...)
	FinishReason string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// LogProbValues returns the token log-probabilities in order
func (r *Response) LogProbValues() []float64 {
	if r == nil || len(r.Tokens) == 0 {
		return nil
	}
	out := make([]float64, len(r.Tokens))
	for i, t := range r.Tokens {
		out[i] = t.LogProb
	}
	return out
}

// LogProbPayload converts the token data into the stored payload, or nil
// when the backend returned none
func (r *Response) LogProbPayload(selfConfidence float64) *model.LogProbs {
	if r == nil || len(r.Tokens) == 0 {
		return nil
	}
	lp := &model.LogProbs{
		Version:        model.LogProbsVersion,
		Tokens:         make([]string, len(r.Tokens)),
		LogProbs:       make([]float64, len(r.Tokens)),
		Probs:          make([]float64, len(r.Tokens)),
		SelfConfidence: selfConfidence,
	}
	hasAlternatives := false
	for _, t := range r.Tokens {
		if len(t.Alternatives) > 0 {
			hasAlternatives = true
			break
		}
	}
	if hasAlternatives {
		lp.Alternatives = make([]map[string]float64, len(r.Tokens))
	}
	for i, t := range r.Tokens {
		lp.Tokens[i] = t.Token
		lp.LogProbs[i] = t.LogProb
		lp.Probs[i] = math.Exp(t.LogProb)
		if hasAlternatives {
			lp.Alternatives[i] = t.Alternatives
		}
	}
	return lp
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "together", "anthropic", "ollama", "gemini"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for hosted providers
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, a test server)
	BaseURL string

	// Timeout for API requests
	Timeout time.Duration

	// MaxTokens for response generation
	MaxTokens int

	// Temperature used when a request does not override it
	Temperature float64

	// TopLogProbs is the number of alternatives requested per token
	TopLogProbs int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:    "openai",
		Timeout:     60 * time.Second,
		MaxTokens:   1024,
		Temperature: 0.2,
		TopLogProbs: 5,
	}
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return fallback
}

func (c Config) maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 1024
}

func (c Config) temperature(req Request) float64 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	return c.Temperature
}

// splitSystem separates a leading system prompt from the rest of the
// conversation for backends that take it as a separate field
func splitSystem(messages []model.Message) (string, []model.Message) {
	var system []string
	rest := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return joinNonEmpty(system, "\n\n"), rest
}

func joinNonEmpty(parts []string, sep string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += sep
		}
		out += p
	}
	return out
}

// Temp returns a pointer for Request.Temperature
func Temp(v float64) *float64 { return &v }
