package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// OllamaProvider implements the Provider interface for Ollama local models
type OllamaProvider struct {
	client *ollama.Client
	config Config
}

// NewOllamaProvider creates a new Ollama provider. BaseURL overrides OLLAMA_HOST.
func NewOllamaProvider(config Config) (*OllamaProvider, error) {
	if err := requireModel("ollama", config.Model); err != nil {
		return nil, fmt.Errorf("%w (e.g., llama3.1:8b, mistral)", err)
	}

	var client *ollama.Client
	if config.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(config.BaseURL, "/"))
		if err != nil {
			return nil, fmt.Errorf("invalid ollama base URL: %w", err)
		}
		client = ollama.NewClient(base, newHTTPClient(config, 120*time.Second))
	} else {
		var err error
		client, err = ollama.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
	}

	return &OllamaProvider{client: client, config: config}, nil
}

// Name returns the provider name
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// IsAvailable checks that the server answers and has the model pulled
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	resp, err := p.client.List(ctx)
	if err != nil {
		return false
	}
	for _, m := range resp.Models {
		if m.Name == p.config.Model || m.Model == p.config.Model {
			return true
		}
	}
	return false
}

// Complete generates a response using Ollama's chat endpoint
func (p *OllamaProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	return p.chat(ctx, req, false, nil)
}

// Stream generates a response and delivers text deltas as they arrive
func (p *OllamaProvider) Stream(ctx context.Context, req Request, onChunk func(string) error) (*Response, error) {
	return p.chat(ctx, req, true, onChunk)
}

func (p *OllamaProvider) chat(ctx context.Context, req Request, stream bool, onChunk func(string) error) (*Response, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, p.config.timeout(120*time.Second))
	defer cancel()

	messages := make([]ollama.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, ollama.Message{Role: string(m.Role), Content: m.Content})
	}

	chatReq := &ollama.ChatRequest{
		Model:    p.config.Model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": p.config.temperature(req),
			"num_predict": p.config.maxTokens(req),
		},
	}

	var sb strings.Builder
	out := &Response{Model: p.config.Model}
	var callbackErr error
	err := p.client.Chat(ctxWithTimeout, chatReq, func(res ollama.ChatResponse) error {
		sb.WriteString(res.Message.Content)
		if stream && onChunk != nil && res.Message.Content != "" {
			if err := onChunk(res.Message.Content); err != nil {
				callbackErr = err
				return err
			}
		}
		if res.Done {
			out.FinishReason = res.DoneReason
			out.TokensUsed = res.PromptEvalCount + res.EvalCount
			if res.Model != "" {
				out.Model = res.Model
			}
		}
		return nil
	})
	if callbackErr != nil {
		return nil, callbackErr
	}
	if err != nil {
		return nil, p.upstream(err)
	}

	out.Content = strings.TrimSpace(thinkBlock.ReplaceAllString(sb.String(), ""))
	return out, nil
}

func (p *OllamaProvider) upstream(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var statusErr ollama.StatusError
	if errors.As(err, &statusErr) {
		return upstream("ollama", "chat", statusErr.StatusCode, err)
	}
	return upstream("ollama", "chat", 0, err)
}

var _ Streamer = (*OllamaProvider)(nil)
