package model

import (
	"encoding/json"
	"fmt"
)

// LogProbsVersion is the schema version written by Marshal
const LogProbsVersion = 1

// LogProbs is the stored token-probability payload of a verdict
type LogProbs struct {
	Version        int                  `json:"version"`
	Tokens         []string             `json:"tokens"`
	LogProbs       []float64            `json:"logprobs"`
	Probs          []float64            `json:"probs"`                  // exp(logprob) per token
	Alternatives   []map[string]float64 `json:"alternatives,omitempty"` // top alternatives per token
	SelfConfidence float64              `json:"self_confidence"`
}

// Marshal encodes the payload with the current schema version
func (l *LogProbs) Marshal() ([]byte, error) {
	out := *l
	out.Version = LogProbsVersion
	return json.Marshal(out)
}

// UnmarshalLogProbs decodes a stored payload. Payloads without a version are
// treated as version 1; newer versions are rejected.
func UnmarshalLogProbs(data []byte) (*LogProbs, error) {
	var lp LogProbs
	if err := json.Unmarshal(data, &lp); err != nil {
		return nil, fmt.Errorf("decode logprobs: %w", err)
	}
	switch lp.Version {
	case 0:
		lp.Version = LogProbsVersion
	case LogProbsVersion:
	default:
		return nil, fmt.Errorf("unsupported logprobs version %d", lp.Version)
	}
	if len(lp.Probs) != len(lp.Tokens) && len(lp.Probs) != 0 {
		return nil, fmt.Errorf("logprobs: %d tokens but %d probs", len(lp.Tokens), len(lp.Probs))
	}
	return &lp, nil
}
