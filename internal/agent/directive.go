package agent

import (
	"strings"

	"github.com/ppiankov/veracity/internal/model"
)

// TurnKind classifies one model message
type TurnKind int

const (
	// TurnReason is reasoning without a usable search directive
	TurnReason TurnKind = iota
	// TurnSearch carries one search query
	TurnSearch
	// TurnReady is the bare ready sentinel
	TurnReady
)

func (k TurnKind) String() string {
	switch k {
	case TurnSearch:
		return "search"
	case TurnReady:
		return "ready"
	default:
		return "reason"
	}
}

// Turn is a parsed model message
type Turn struct {
	Kind      TurnKind
	Reasoning string // text of the REASON block, or the whole message without a directive
	Query     string // search query for TurnSearch
	Trailing  string // ignored text after the query line
}

const (
	reasonMarker = "REASON"
	searchMarker = "SEARCH"
)

// ParseTurn reads one model message:
//
//	message   = sentinel | [reason] [directive [trailing]]
//	sentinel  = "READY" | "PRÊT"            (whole message, surrounding space trimmed)
//	reason    = "REASON" [" "] ":" text
//	directive = line starting with "SEARCH" [" "] ":" query-to-end-of-line
//
// Markdown emphasis and list bullets before a marker are ignored. Only the
// first directive counts; everything after its line is Trailing. A directive
// with an empty query degrades to TurnReason.
func ParseTurn(text string, lang model.Language) Turn {
	trimmed := strings.TrimSpace(text)
	if trimmed == SentinelEnglish || trimmed == SentinelFrench || trimmed == Sentinel(lang) {
		return Turn{Kind: TurnReady}
	}

	lines := strings.Split(trimmed, "\n")
	for i, line := range lines {
		query, before, ok := findDirective(line)
		if !ok {
			continue
		}

		reasoning := strings.Join(append(lines[:i:i], before), "\n")
		turn := Turn{
			Reasoning: cleanReasoning(reasoning),
			Query:     cleanQuery(query),
			Trailing:  strings.TrimSpace(strings.Join(lines[i+1:], "\n")),
		}
		if turn.Query == "" {
			turn.Kind = TurnReason
			return turn
		}
		turn.Kind = TurnSearch
		return turn
	}

	return Turn{Kind: TurnReason, Reasoning: cleanReasoning(trimmed)}
}

// findDirective locates SEARCH: at the start of a line, or after a REASON
// block on the same line. before is the line content preceding the marker.
func findDirective(line string) (query, before string, ok bool) {
	stripped := stripDecoration(line)
	if rest, found := cutMarker(stripped, searchMarker); found {
		return rest, "", true
	}

	if _, found := cutMarker(stripped, reasonMarker); !found {
		return "", "", false
	}
	idx := strings.Index(line, searchMarker)
	for idx >= 0 {
		if rest, found := cutMarker(line[idx:], searchMarker); found {
			return rest, line[:idx], true
		}
		next := strings.Index(line[idx+len(searchMarker):], searchMarker)
		if next < 0 {
			break
		}
		idx += len(searchMarker) + next
	}
	return "", "", false
}

// cutMarker matches `MARKER:` or `MARKER :` at the start of s
func cutMarker(s, marker string) (string, bool) {
	rest, found := strings.CutPrefix(s, marker)
	if !found {
		return "", false
	}
	rest = strings.TrimLeft(rest, " \t*_")
	rest, found = strings.CutPrefix(rest, ":")
	if !found {
		return "", false
	}
	return rest, true
}

func stripDecoration(s string) string {
	return strings.TrimLeft(s, " \t*_#->`")
}

func cleanReasoning(s string) string {
	s = strings.TrimSpace(s)
	if rest, found := cutMarker(stripDecoration(s), reasonMarker); found {
		s = rest
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*_"))
}

func cleanQuery(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*_`")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'«»“”`)
	return strings.TrimSpace(s)
}
