package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/ppiankov/veracity/internal/agent"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/search"
)

// evidenceSearcher runs agent search directives for one analysis and
// numbers the sources across all of its searches
type evidenceSearcher struct {
	service    *search.Service
	analysisID uuid.UUID
	lang       model.Language
	opts       RunOptions
	next       int // position of the next new source
}

func (e *evidenceSearcher) Search(ctx context.Context, query string) (agent.Evidence, error) {
	sources, err := e.service.Search(ctx, search.Request{
		AnalysisID:    e.analysisID,
		Query:         query,
		NumResults:    e.opts.NumResults,
		Language:      e.lang,
		Options:       e.opts.SearchOptions,
		DateRange:     e.opts.DateRange,
		StartPosition: e.next,
	})
	if err != nil {
		return agent.Evidence{}, err
	}

	for _, src := range sources {
		e.next = max(e.next, src.Position+1)
	}

	block, err := search.FormatSourcesForPrompt(sources, e.lang, e.opts.SearchOptions, e.opts.DateRange)
	if err != nil {
		return agent.Evidence{}, err
	}
	return agent.Evidence{Sources: sources, Block: block}, nil
}
