package search

import (
	"testing"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func fixtureSources() []model.Source {
	return []model.Source{
		{
			Title:            "Eiffel Tower",
			URL:              "https://en.wikipedia.org/wiki/Eiffel_Tower",
			Snippet:          "The Eiffel Tower is a wrought-iron lattice tower in Paris.",
			CredibilityScore: model.Float(0.7),
			PublishedDate:    strPtr("2024-01-02"),
			Domain:           &model.Domain{Name: "wikipedia.org", Description: "Collaborative encyclopedia"},
		},
		{
			Title:   "Blog post",
			URL:     "https://someblog.example/tower",
			Snippet: "I visited the tower.",
		},
	}
}

func TestFormatSourcesForPrompt_English(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		dateRange string
		expected  string
	}{
		{
			name: "plain",
			expected: "Source 1:\nTitle: Eiffel Tower\nURL: https://en.wikipedia.org/wiki/Eiffel_Tower\n" +
				"Credibility Score: 0.70\nExcerpt: The Eiffel Tower is a wrought-iron lattice tower in Paris.\n" +
				"Domain Info: Collaborative encyclopedia\n\n" +
				"Source 2:\nTitle: Blog post\nURL: https://someblog.example/tower\n" +
				"Credibility Score: N/A\nExcerpt: I visited the tower.",
		},
		{
			name: "date created",
			opts: OptionDateCreated,
			expected: "Source 1:\nTitle: Eiffel Tower\nURL: https://en.wikipedia.org/wiki/Eiffel_Tower\n" +
				"Credibility Score: 0.70\nDate Created: 2024-01-02\n" +
				"Excerpt: The Eiffel Tower is a wrought-iron lattice tower in Paris.\n" +
				"Domain Info: Collaborative encyclopedia\n\n" +
				"Source 2:\nTitle: Blog post\nURL: https://someblog.example/tower\n" +
				"Credibility Score: N/A\nDate Created: unknown\nExcerpt: I visited the tower.",
		},
		{
			name:      "date range",
			opts:      OptionDateRange,
			dateRange: "2024-01-01 to 2024-06-30",
			expected: "Source 1:\nTitle: Eiffel Tower\nURL: https://en.wikipedia.org/wiki/Eiffel_Tower\n" +
				"Credibility Score: 0.70\nSearch Date Range: 2024-01-01 to 2024-06-30\n" +
				"Excerpt: The Eiffel Tower is a wrought-iron lattice tower in Paris.\n" +
				"Domain Info: Collaborative encyclopedia\n\n" +
				"Source 2:\nTitle: Blog post\nURL: https://someblog.example/tower\n" +
				"Credibility Score: N/A\nSearch Date Range: 2024-01-01 to 2024-06-30\nExcerpt: I visited the tower.",
		},
		{
			name: "both without range",
			opts: OptionDateCreated | OptionDateRange,
			expected: "Source 1:\nTitle: Eiffel Tower\nURL: https://en.wikipedia.org/wiki/Eiffel_Tower\n" +
				"Credibility Score: 0.70\nDate Created: 2024-01-02\nSearch Date Range: unknown\n" +
				"Excerpt: The Eiffel Tower is a wrought-iron lattice tower in Paris.\n" +
				"Domain Info: Collaborative encyclopedia\n\n" +
				"Source 2:\nTitle: Blog post\nURL: https://someblog.example/tower\n" +
				"Credibility Score: N/A\nDate Created: unknown\nSearch Date Range: unknown\nExcerpt: I visited the tower.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatSourcesForPrompt(fixtureSources(), model.English, tt.opts, tt.dateRange)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFormatSourcesForPrompt_French(t *testing.T) {
	got, err := FormatSourcesForPrompt(fixtureSources(), model.French, OptionDateCreated|OptionDateRange, "x")
	require.NoError(t, err)

	expected := "Source 1:\nTitre: Eiffel Tower\nURL: https://en.wikipedia.org/wiki/Eiffel_Tower\n" +
		"Index de crédibilité: 0.70\nExtrait: The Eiffel Tower is a wrought-iron lattice tower in Paris.\n" +
		"Informations sur le domaine: Collaborative encyclopedia\n\n" +
		"Source 2:\nTitre: Blog post\nURL: https://someblog.example/tower\n" +
		"Index de crédibilité: N/A\nExtrait: I visited the tower."
	assert.Equal(t, expected, got)
}

func TestFormatSourcesForPrompt_Empty(t *testing.T) {
	got, err := FormatSourcesForPrompt(nil, model.English, 0, "")
	require.NoError(t, err)
	assert.Equal(t, "No reliable sources found.", got)

	got, err = FormatSourcesForPrompt(nil, model.French, 0, "")
	require.NoError(t, err)
	assert.Equal(t, "Il n'y a pas des sources.", got)
}

func TestFormatSourcesForPrompt_UnsupportedLanguage(t *testing.T) {
	_, err := FormatSourcesForPrompt(fixtureSources(), model.Language("german"), 0, "")
	assert.ErrorIs(t, err, model.ErrValidation)
}
