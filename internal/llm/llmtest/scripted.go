// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
)

// ErrExhausted is returned once every scripted reply has been used
var ErrExhausted = errors.New("llmtest: no scripted replies left")

// Reply is one scripted answer
type Reply struct {
	Content  string
	LogProbs []float64
	Err      error
}

// Text is shorthand for a plain reply
func Text(s string) Reply { return Reply{Content: s} }

// Scripted answers calls in order and records every request
type Scripted struct {
	mu       sync.Mutex
	replies  []Reply
	requests []llm.Request
	// Hook runs before each reply; tests use it to block or cancel
	Hook func(ctx context.Context, call int)
}

// New creates a provider that returns replies in order
func New(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

// Name returns the provider name
func (s *Scripted) Name() string { return "scripted" }

// IsAvailable always reports true
func (s *Scripted) IsAvailable(context.Context) bool { return true }

// Complete returns the next scripted reply
func (s *Scripted) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	call := len(s.requests)
	msgs := make([]model.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	s.requests = append(s.requests, req)
	hook := s.Hook
	s.mu.Unlock()

	if hook != nil {
		hook(ctx, call)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if call >= len(s.replies) {
		return nil, ErrExhausted
	}
	r := s.replies[call]
	if r.Err != nil {
		return nil, r.Err
	}
	resp := &llm.Response{Content: r.Content, FinishReason: "stop", Model: "scripted"}
	for _, lp := range r.LogProbs {
		resp.Tokens = append(resp.Tokens, llm.TokenLogProb{Token: "t", LogProb: lp})
	}
	return resp, nil
}

// Requests returns copies of every request received
func (s *Scripted) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls returns the number of requests received
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
