package llm

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// togetherTransport rewrites Together's completion-style log-probabilities
// ({"tokens":[..],"token_logprobs":[..],"top_logprobs":[{tok:lp}]}) into the
// chat layout ({"content":[{"token","logprob","top_logprobs"}]}) so the
// OpenAI client can decode them.
type togetherTransport struct {
	base http.RoundTripper
}

func (t *togetherTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		return resp, err
	}
	if !strings.HasSuffix(req.URL.Path, "/chat/completions") ||
		!strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if rewritten, ok := rewriteTogetherLogProbs(body); ok {
		body = rewritten
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return resp, nil
}

type togetherLogProbs struct {
	Tokens        []string             `json:"tokens"`
	TokenLogProbs []float64            `json:"token_logprobs"`
	TopLogProbs   []map[string]float64 `json:"top_logprobs"`
}

type chatTopLogProb struct {
	Token   string  `json:"token"`
	LogProb float64 `json:"logprob"`
}

type chatLogProb struct {
	Token       string           `json:"token"`
	LogProb     float64          `json:"logprob"`
	TopLogProbs []chatTopLogProb `json:"top_logprobs,omitempty"`
}

func rewriteTogetherLogProbs(body []byte) ([]byte, bool) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, false
	}
	var choices []map[string]json.RawMessage
	if err := json.Unmarshal(doc["choices"], &choices); err != nil {
		return nil, false
	}

	changed := false
	for _, choice := range choices {
		raw, ok := choice["logprobs"]
		if !ok || len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var legacy togetherLogProbs
		if err := json.Unmarshal(raw, &legacy); err != nil || len(legacy.TokenLogProbs) == 0 {
			continue
		}

		content := make([]chatLogProb, len(legacy.TokenLogProbs))
		for i, lp := range legacy.TokenLogProbs {
			content[i].LogProb = lp
			if i < len(legacy.Tokens) {
				content[i].Token = legacy.Tokens[i]
			}
			if i < len(legacy.TopLogProbs) {
				for tok, alt := range legacy.TopLogProbs[i] {
					content[i].TopLogProbs = append(content[i].TopLogProbs, chatTopLogProb{Token: tok, LogProb: alt})
				}
			}
		}
		encoded, err := json.Marshal(map[string]any{"content": content})
		if err != nil {
			return nil, false
		}
		choice["logprobs"] = encoded
		changed = true
	}
	if !changed {
		return nil, false
	}

	encodedChoices, err := json.Marshal(choices)
	if err != nil {
		return nil, false
	}
	doc["choices"] = encodedChoices
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, false
	}
	return out, true
}
