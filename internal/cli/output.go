package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/score"
)

const rule = "═══════════════════════════════════════════════════════════"

func banner(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n  %s\n%s\n\n", rule, title, rule)
}

// percent renders a unit score, "unknown" when absent
func percent(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.0f%%", *v*100)
}

// printAnalysis renders an analysis for a terminal
func printAnalysis(w io.Writer, a *model.Analysis) {
	banner(w, "Analysis "+a.ID.String())
	fmt.Fprintf(w, "  Status:      %s\n", a.Status)
	fmt.Fprintf(w, "  Veracity:    %s\n", percent(a.VeracityScore))
	fmt.Fprintf(w, "  Confidence:  %s\n", percent(a.ConfidenceScore))
	if len(a.Sources) > 0 {
		fmt.Fprintf(w, "  Credibility: %.0f%% (mean over %d sources)\n", score.OverallCredibility(a.Sources)*100, len(a.Sources))
	}
	if a.Error != "" {
		fmt.Fprintf(w, "  Error:       %s\n", a.Error)
	}
	if a.AnalysisText != "" {
		fmt.Fprintf(w, "\n%s\n", a.AnalysisText)
	}
	if len(a.Sources) > 0 {
		fmt.Fprintf(w, "\nSources:\n")
		for _, s := range a.Sources {
			printSource(w, s)
		}
	}
	if len(a.Feedback) > 0 {
		fmt.Fprintf(w, "\nFeedback:\n")
		for _, f := range a.Feedback {
			fmt.Fprintf(w, "  %.1f/5  %s  %s\n", f.Rating, f.UserID, f.Comment)
		}
	}
	fmt.Fprintln(w)
}

func printSource(w io.Writer, s model.Source) {
	fmt.Fprintf(w, "  %2d. %s\n", s.Position, s.Title)
	fmt.Fprintf(w, "      %s\n", s.URL)
	fmt.Fprintf(w, "      credibility %s", percent(s.CredibilityScore))
	if s.PublishedDate != nil {
		date := *s.PublishedDate
		if date == "" {
			date = "unknown"
		}
		fmt.Fprintf(w, ", published %s", date)
	}
	fmt.Fprintln(w)
}

// printTranscript renders the model conversation
func printTranscript(w io.Writer, msgs []model.Message) {
	banner(w, "Transcript")
	for i, m := range msgs {
		fmt.Fprintf(w, "[%d] %s\n%s\n\n", i+1, strings.ToUpper(string(m.Role)), strings.TrimSpace(m.Content))
	}
}

// writeJSON writes v indented to path, or stdout when path is "-"
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	data = append(data, '\n')
	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
