// Package rewrite restates a verdict explanation in a different register
// without touching its scores.
package rewrite

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
	"go.uber.org/zap"
)

// Direction of an assertiveness rewrite
type Direction string

const (
	MoreAssertive Direction = "more_assertive"
	LessAssertive Direction = "less_assertive"
)

// ParseDirection accepts more_assertive/less_assertive and the short forms high/low
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "more_assertive", "more-assertive", "high", "more":
		return MoreAssertive, nil
	case "less_assertive", "less-assertive", "low", "less":
		return LessAssertive, nil
	}
	return "", model.Validationf("unknown assertiveness direction %q", s)
}

const (
	moreAssertiveEN = `Make the new explanation as assertive as possible, maintaining approximately %d words and including all the supporting evidence and detail. Speak as if you are a confident CEO addressing your company. Use definitive language and make strong, clear points.`
	lessAssertiveEN = `Make the new explanation as least assertive as possible, maintaining approximately %d words and including all the supporting evidence and detail. Speak as if you are discussing a topic you are not familiar with. Use uncertain language and suggest possibilities rather than facts.`

	moreAssertiveFR = `Rendez la nouvelle explication aussi affirmative que possible, en conservant environ %d mots et en gardant toutes les preuves et tous les détails. Parlez comme un PDG sûr de lui qui s'adresse à son entreprise. Employez un langage catégorique et des arguments forts et clairs.`
	lessAssertiveFR = `Rendez la nouvelle explication aussi peu affirmative que possible, en conservant environ %d mots et en gardant toutes les preuves et tous les détails. Parlez comme si vous abordiez un sujet que vous connaissez mal. Employez un langage incertain et suggérez des possibilités plutôt que des faits.`

	outputRuleEN = "Reply with the rewritten explanation only."
	outputRuleFR = "Répondez uniquement avec l'explication réécrite."
)

// Prompt builds the rewrite instruction for a base text
func Prompt(base string, dir Direction, lang model.Language) string {
	words := len(strings.Fields(base))
	tmpl, label, rule := moreAssertiveEN, "Explanation", outputRuleEN
	if dir == LessAssertive {
		tmpl = lessAssertiveEN
	}
	if lang == model.French {
		tmpl, label, rule = moreAssertiveFR, "Explication", outputRuleFR
		if dir == LessAssertive {
			tmpl = lessAssertiveFR
		}
	}
	return fmt.Sprintf(tmpl, words) + "\n" + rule + "\n\n" + label + ":\n" + strings.TrimSpace(base)
}

// Rewriter asks the model for a tone-shifted explanation
type Rewriter struct {
	provider llm.Provider
	log      *zap.Logger
}

// New creates a Rewriter
func New(provider llm.Provider, log *zap.Logger) *Rewriter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Rewriter{provider: provider, log: log}
}

// Rewrite returns baseText restated in the given direction. When onChunk is
// non-nil and the provider streams, partial text is delivered as it arrives.
func (r *Rewriter) Rewrite(ctx context.Context, baseText string, dir Direction, lang model.Language, onChunk func(string) error) (string, error) {
	if strings.TrimSpace(baseText) == "" {
		return "", model.Validationf("nothing to rewrite")
	}
	if dir != MoreAssertive && dir != LessAssertive {
		return "", model.Validationf("unknown assertiveness direction %q", string(dir))
	}
	if err := lang.Validate(); err != nil {
		return "", err
	}

	req := llm.Request{Messages: []model.Message{{Role: model.RoleUser, Content: Prompt(baseText, dir, lang)}}}

	var (
		resp *llm.Response
		err  error
	)
	streamer, ok := r.provider.(llm.Streamer)
	if onChunk != nil && ok {
		resp, err = streamer.Stream(ctx, req, onChunk)
	} else {
		resp, err = r.provider.Complete(ctx, req)
		if err == nil && onChunk != nil {
			err = onChunk(resp.Content)
		}
	}
	if err != nil {
		return "", fmt.Errorf("rewrite %s: %w", dir, err)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", &model.UpstreamError{Service: r.provider.Name(), Op: "rewrite", Err: fmt.Errorf("empty completion")}
	}
	r.log.Debug("explanation rewritten",
		zap.String("direction", string(dir)),
		zap.Int("base_words", len(strings.Fields(baseText))),
		zap.Int("new_words", len(strings.Fields(text))))
	return text, nil
}
