package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/model"
	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface for Google Gemini models
type GeminiProvider struct {
	client *genai.Client
	config Config
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(config Config) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: newHTTPClient(config, 60*time.Second),
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiProvider{client: client, config: config}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// IsAvailable checks that the configured model can be described
func (p *GeminiProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.Models.Get(ctx, p.config.Model, nil)
	return err == nil
}

// Complete generates a response with GenerateContent
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, p.config.timeout(60*time.Second))
	defer cancel()

	contents, genConfig := p.build(req)
	resp, err := p.client.Models.GenerateContent(ctxWithTimeout, p.config.Model, contents, genConfig)
	if err != nil {
		return nil, p.upstream("generate", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, upstream("gemini", "generate", 0, errors.New("no candidates in response"))
	}

	candidate := resp.Candidates[0]
	out := &Response{
		Content:      strings.TrimSpace(resp.Text()),
		FinishReason: strings.ToLower(string(candidate.FinishReason)),
		Model:        p.config.Model,
	}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	if candidate.LogprobsResult != nil {
		out.Tokens = convertGeminiLogProbs(candidate.LogprobsResult)
	}
	return out, nil
}

// Stream generates a response and delivers text deltas as they arrive
func (p *GeminiProvider) Stream(ctx context.Context, req Request, onChunk func(string) error) (*Response, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, p.config.timeout(60*time.Second))
	defer cancel()

	contents, genConfig := p.build(req)
	genConfig.ResponseLogprobs = false
	genConfig.Logprobs = nil

	var sb strings.Builder
	out := &Response{Model: p.config.Model}
	for chunk, err := range p.client.Models.GenerateContentStream(ctxWithTimeout, p.config.Model, contents, genConfig) {
		if err != nil {
			return nil, p.upstream("generate stream", err)
		}
		if len(chunk.Candidates) > 0 && chunk.Candidates[0].FinishReason != "" {
			out.FinishReason = strings.ToLower(string(chunk.Candidates[0].FinishReason))
		}
		text := chunk.Text()
		if text == "" {
			continue
		}
		sb.WriteString(text)
		if err := onChunk(text); err != nil {
			return nil, err
		}
	}

	out.Content = strings.TrimSpace(sb.String())
	return out, nil
}

func (p *GeminiProvider) build(req Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, rest := splitSystem(req.Messages)

	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		var role genai.Role = genai.RoleUser
		if m.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(p.config.temperature(req))),
		MaxOutputTokens: int32(p.config.maxTokens(req)),
	}
	if system != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.LogProbs {
		genConfig.ResponseLogprobs = true
		if p.config.TopLogProbs > 0 {
			genConfig.Logprobs = genai.Ptr(int32(min(p.config.TopLogProbs, 20)))
		}
	}
	return contents, genConfig
}

func (p *GeminiProvider) upstream(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return upstream("gemini", op, apiErr.Code, err)
	}
	return upstream("gemini", op, 0, err)
}

func convertGeminiLogProbs(result *genai.LogprobsResult) []TokenLogProb {
	if len(result.ChosenCandidates) == 0 {
		return nil
	}
	out := make([]TokenLogProb, len(result.ChosenCandidates))
	for i, c := range result.ChosenCandidates {
		out[i] = TokenLogProb{Token: c.Token, LogProb: float64(c.LogProbability)}
		if i < len(result.TopCandidates) && result.TopCandidates[i] != nil {
			alts := result.TopCandidates[i].Candidates
			if len(alts) > 0 {
				out[i].Alternatives = make(map[string]float64, len(alts))
				for _, alt := range alts {
					out[i].Alternatives[alt.Token] = float64(alt.LogProbability)
				}
			}
		}
	}
	return out
}

var _ Streamer = (*GeminiProvider)(nil)
