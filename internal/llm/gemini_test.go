package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiProvider_Complete(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "PRÊT"}]},
				"finishReason": "STOP",
				"logprobsResult": {
					"chosenCandidates": [{"token": "PRÊT", "logProbability": -0.25}],
					"topCandidates": [{"candidates": [{"token": "PRÊT", "logProbability": -0.25}, {"token": "SEARCH", "logProbability": -1.5}]}]
				}
			}],
			"usageMetadata": {"totalTokenCount": 12}
		}`))
	}))
	defer server.Close()

	provider, err := NewGeminiProvider(Config{APIKey: "test-key", BaseURL: server.URL + "/", TopLogProbs: 2})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	resp, err := provider.Complete(context.Background(), Request{Messages: testMessages(), LogProbs: true})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Content != "PRÊT" || resp.FinishReason != "stop" || resp.TokensUsed != 12 {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if len(resp.Tokens) != 1 || resp.Tokens[0].LogProb != -0.25 || resp.Tokens[0].Alternatives["SEARCH"] != -1.5 {
		t.Errorf("Unexpected tokens: %+v", resp.Tokens)
	}

	if _, ok := body["systemInstruction"]; !ok {
		t.Errorf("System prompt should be sent as systemInstruction: %v", body)
	}
	if contents, _ := body["contents"].([]any); len(contents) != 1 {
		t.Errorf("Expected one content entry, got %v", body["contents"])
	}
}

func TestGeminiProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewGeminiProvider(Config{}); err == nil {
		t.Error("Expected error without API key")
	}
}
