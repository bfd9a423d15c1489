package search

import (
	"fmt"
	"strings"

	"github.com/ppiankov/veracity/internal/model"
)

const (
	noSourcesEnglish = "No reliable sources found."
	noSourcesFrench  = "Il n'y a pas des sources."
)

// FormatSourcesForPrompt renders sources as the evidence block given to the model.
// English output includes the publish date and/or date range lines selected by opts;
// French output has a fixed layout.
func FormatSourcesForPrompt(sources []model.Source, lang model.Language, opts Options, dateRange string) (string, error) {
	switch lang {
	case model.English:
		return formatEnglish(sources, opts, dateRange), nil
	case model.French:
		return formatFrench(sources), nil
	default:
		return "", model.Validationf("unsupported language %q", string(lang))
	}
}

func formatEnglish(sources []model.Source, opts Options, dateRange string) string {
	if len(sources) == 0 {
		return noSourcesEnglish
	}

	blocks := make([]string, 0, len(sources))
	for i, src := range sources {
		lines := []string{
			fmt.Sprintf("Source %d:", i+1),
			"Title: " + src.Title,
			"URL: " + src.URL,
			"Credibility Score: " + formatScore(src.CredibilityScore),
		}
		if opts.Has(OptionDateCreated) {
			lines = append(lines, "Date Created: "+orUnknown(src.PublishedDate))
		}
		if opts.Has(OptionDateRange) {
			lines = append(lines, "Search Date Range: "+orUnknown(&dateRange))
		}
		lines = append(lines, "Excerpt: "+src.Snippet)
		if src.Domain != nil && src.Domain.Description != "" {
			lines = append(lines, "Domain Info: "+src.Domain.Description)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

func formatFrench(sources []model.Source) string {
	if len(sources) == 0 {
		return noSourcesFrench
	}

	blocks := make([]string, 0, len(sources))
	for i, src := range sources {
		lines := []string{
			fmt.Sprintf("Source %d:", i+1),
			"Titre: " + src.Title,
			"URL: " + src.URL,
			"Index de crédibilité: " + formatScore(src.CredibilityScore),
			"Extrait: " + src.Snippet,
		}
		if src.Domain != nil && src.Domain.Description != "" {
			lines = append(lines, "Informations sur le domaine: "+src.Domain.Description)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

func formatScore(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *v)
}

func orUnknown(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return "unknown"
	}
	return *s
}
