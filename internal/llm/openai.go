package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	togetherBaseURL      = "https://api.together.xyz/v1"
	togetherDefaultModel = "meta-llama/Llama-3.3-70B-Instruct-Turbo"
)

// OpenAIProvider implements the Provider interface for OpenAI-compatible
// chat completion APIs (OpenAI itself and Together AI)
type OpenAIProvider struct {
	client *openai.Client
	config Config
	name   string
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient(config, 60*time.Second)
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		name:   "openai",
	}, nil
}

// NewTogetherProvider creates a provider for Together AI's OpenAI-compatible
// endpoint. Together reports log-probabilities in the legacy completions
// layout, which is translated on the way in.
func NewTogetherProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Together API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = togetherBaseURL
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	httpClient := newHTTPClient(config, 60*time.Second)
	httpClient.Transport = &togetherTransport{base: httpClient.Transport}
	clientConfig.HTTPClient = httpClient
	if config.Model == "" {
		config.Model = togetherDefaultModel
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		name:   "together",
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return p.name
}

// IsAvailable checks if the provider is properly configured
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	return err == nil
}

// Complete generates a response using the Chat Completions API
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, p.config.timeout(60*time.Second))
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctxWithTimeout, p.chatRequest(req))
	if err != nil {
		return nil, p.upstream("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, upstream(p.name, "chat completion", 0, errors.New("no choices in response"))
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:      strings.TrimSpace(choice.Message.Content),
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
		TokensUsed:   resp.Usage.TotalTokens,
	}
	if choice.LogProbs != nil {
		out.Tokens = convertOpenAILogProbs(choice.LogProbs.Content)
	}
	return out, nil
}

// Stream generates a response and delivers text deltas as they arrive.
// Streamed responses carry no log-probabilities.
func (p *OpenAIProvider) Stream(ctx context.Context, req Request, onChunk func(string) error) (*Response, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, p.config.timeout(60*time.Second))
	defer cancel()

	chatReq := p.chatRequest(req)
	chatReq.Stream = true
	stream, err := p.client.CreateChatCompletionStream(ctxWithTimeout, chatReq)
	if err != nil {
		return nil, p.upstream("chat stream", err)
	}
	defer func() { _ = stream.Close() }()

	var sb strings.Builder
	out := &Response{Model: p.config.Model}
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, p.upstream("chat stream", err)
		}
		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			out.FinishReason = string(choice.FinishReason)
		}
		if choice.Delta.Content == "" {
			continue
		}
		sb.WriteString(choice.Delta.Content)
		if err := onChunk(choice.Delta.Content); err != nil {
			return nil, err
		}
	}

	out.Content = strings.TrimSpace(sb.String())
	return out, nil
}

func (p *OpenAIProvider) chatRequest(req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       p.config.Model,
		Messages:    messages,
		MaxTokens:   p.config.maxTokens(req),
		Temperature: float32(p.config.temperature(req)),
	}
	if req.LogProbs {
		chatReq.LogProbs = true
		chatReq.TopLogProbs = min(max(p.config.TopLogProbs, 0), 20)
	}
	return chatReq
}

func (p *OpenAIProvider) upstream(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return upstream(p.name, op, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return upstream(p.name, op, reqErr.HTTPStatusCode, err)
	}
	return upstream(p.name, op, 0, err)
}

func convertOpenAILogProbs(content []openai.LogProb) []TokenLogProb {
	if len(content) == 0 {
		return nil
	}
	out := make([]TokenLogProb, len(content))
	for i, lp := range content {
		out[i] = TokenLogProb{Token: lp.Token, LogProb: lp.LogProb}
		if len(lp.TopLogProbs) > 0 {
			out[i].Alternatives = make(map[string]float64, len(lp.TopLogProbs))
			for _, alt := range lp.TopLogProbs {
				out[i].Alternatives[alt.Token] = alt.LogProb
			}
		}
	}
	return out
}

var _ Streamer = (*OpenAIProvider)(nil)
