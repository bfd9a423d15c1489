package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ppiankov/veracity/internal/model"
)

func TestAnthropicProvider_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected path /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected x-api-key header test-key, got %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("Expected anthropic-version header 2023-06-01, got %s", r.Header.Get("anthropic-version"))
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.System != "You verify claims." {
			t.Errorf("System prompt should be lifted out of messages, got %q", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("Unexpected messages: %+v", req.Messages)
		}

		_ = json.NewEncoder(w).Encode(anthropicResponse{
			ID:         "msg_123",
			Type:       "message",
			Role:       "assistant",
			Content:    []anthropicContent{{Type: "text", Text: "READY"}},
			Model:      "claude-3-5-sonnet-20241022",
			StopReason: "end_turn",
			Usage:      anthropicUsage{InputTokens: 50, OutputTokens: 2},
		})
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	resp, err := provider.Complete(context.Background(), Request{Messages: testMessages(), LogProbs: true})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Content != "READY" || resp.FinishReason != "end_turn" || resp.TokensUsed != 52 {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if resp.Tokens != nil {
		t.Errorf("Anthropic returns no logprobs, got %+v", resp.Tokens)
	}
}

func TestAnthropicProvider_Complete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	_, err = provider.Complete(context.Background(), Request{Messages: testMessages()})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	var up *model.UpstreamError
	if !errors.As(err, &up) || up.StatusCode != 529 {
		t.Fatalf("Expected upstream error with status 529, got %v", err)
	}
	if !model.IsTransient(err) {
		t.Error("Overloaded responses should be retried")
	}
}

func TestToAnthropicMessages(t *testing.T) {
	got := toAnthropicMessages([]model.Message{
		{Role: model.RoleAssistant, Content: "REASON: hm"},
		{Role: model.RoleUser, Content: "results"},
		{Role: model.RoleUser, Content: "more"},
	})

	if len(got) != 3 {
		t.Fatalf("Expected 3 messages, got %+v", got)
	}
	if got[0].Role != "user" || got[1].Role != "assistant" || got[2].Role != "user" {
		t.Errorf("Roles must alternate starting with user: %+v", got)
	}
	if got[2].Content != "results\n\nmore" {
		t.Errorf("Consecutive user messages should merge, got %q", got[2].Content)
	}
}

func TestAnthropicProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicProvider(Config{}); err == nil {
		t.Error("Expected error without API key")
	}
}
