package verdict

import (
	"context"
	"fmt"

	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/metrics"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/score"
	"go.uber.org/zap"
)

// Result is a parsed verdict with its confidence data
type Result struct {
	Verdict
	VeracityScore float64         // Score rescaled to [0,1]
	Confidence    float64         // exp(mean(logprobs)) of the verdict completion
	LogProbs      *model.LogProbs // nil when the backend returned none
	Raw           string          // the completion that parsed
	Lenient       bool            // the lenient parser was needed
	Repairs       int             // re-prompts before a parseable answer
}

// Synthesizer requests and parses the final verdict
type Synthesizer struct {
	provider    llm.Provider
	repairTries int
	metrics     *metrics.Metrics
	log         *zap.Logger
}

// NewSynthesizer creates a synthesizer. repairTries is the number of
// re-prompts after an unparseable answer.
func NewSynthesizer(provider llm.Provider, repairTries int, m *metrics.Metrics, log *zap.Logger) *Synthesizer {
	if repairTries < 0 {
		repairTries = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Synthesizer{provider: provider, repairTries: repairTries, metrics: m, log: log}
}

// Synthesize appends the verdict request to the transcript, asks for the
// verdict with log-probabilities and parses it. When both parsers fail it
// re-prompts up to repairTries times; after that it returns a
// *model.MalformedVerdictError carrying the last raw answer. No score is
// ever invented.
func (s *Synthesizer) Synthesize(ctx context.Context, transcript *model.Transcript, lang model.Language) (*Result, error) {
	prompt := Prompt(lang)
	var (
		raw     string
		lastErr error
	)
	for attempt := 0; attempt <= s.repairTries; attempt++ {
		if attempt > 0 {
			prompt = RepairPrompt(lang)
			s.log.Warn("verdict unparseable, asking again",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
		}
		if err := transcript.Append(model.RoleUser, prompt); err != nil {
			return nil, err
		}

		resp, err := s.provider.Complete(ctx, llm.Request{
			Messages: transcript.Messages(),
			LogProbs: true,
		})
		if err != nil {
			return nil, fmt.Errorf("request verdict: %w", err)
		}
		raw = resp.Content
		if err := transcript.Append(model.RoleAssistant, raw); err != nil {
			return nil, err
		}

		v, lenient, err := Parse(raw)
		if err != nil {
			lastErr = err
			continue
		}
		if lenient {
			s.metrics.LenientVerdict()
		}

		confidence := score.Confidence(resp.LogProbValues())
		return &Result{
			Verdict:       v,
			VeracityScore: v.Veracity(),
			Confidence:    confidence,
			LogProbs:      resp.LogProbPayload(confidence),
			Raw:           raw,
			Lenient:       lenient,
			Repairs:       attempt,
		}, nil
	}
	return nil, &model.MalformedVerdictError{Raw: raw, Err: lastErr}
}
