// Package verdict turns the model's final answer into a scored verdict.
package verdict

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/veracity/internal/score"
)

// Verdict is the parsed final answer
type Verdict struct {
	Score    int    // 0-100 as returned by the model
	Analysis string // explanation with escapes resolved
}

// Veracity returns the score rescaled to [0,1]
func (v Verdict) Veracity() float64 {
	return score.Veracity(v.Score)
}

var (
	errNoObject   = errors.New("no JSON object found")
	errUnbalanced = errors.New("unbalanced JSON object")
	fencePattern  = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
)

type strictVerdict struct {
	Score    json.RawMessage `json:"veracity_score"`
	Analysis *string         `json:"analysis"`
}

// ParseStrict accepts exactly one JSON object with an integer veracity_score
// in [0,100] and a string analysis, and nothing else around it.
func ParseStrict(text string) (Verdict, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return Verdict{}, errNoObject
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	var sv strictVerdict
	if err := dec.Decode(&sv); err != nil {
		return Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Verdict{}, errors.New("trailing data after verdict object")
	}

	if len(sv.Score) == 0 {
		return Verdict{}, errors.New("missing veracity_score")
	}
	if sv.Analysis == nil {
		return Verdict{}, errors.New("missing analysis")
	}
	// a quoted number is a string, not a score
	raw := string(bytes.TrimSpace(sv.Score))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return Verdict{}, fmt.Errorf("veracity_score %s is not an integer", raw)
	}
	if n < 0 || n > 100 {
		return Verdict{}, fmt.Errorf("veracity_score %d out of range [0,100]", n)
	}
	return Verdict{Score: n, Analysis: *sv.Analysis}, nil
}

// ParseLenient recovers a verdict from common formatting slips: code fences,
// prose around the object, raw control characters inside strings, trailing
// commas, numeric strings and integral floats. Key names match case-insensitively.
func ParseLenient(text string) (Verdict, error) {
	candidate := text
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	}

	obj, err := firstObject(candidate)
	if err != nil && candidate != text {
		obj, err = firstObject(text)
	}
	if err != nil {
		return Verdict{}, err
	}

	cleaned := removeTrailingCommas(escapeControlChars(obj))

	dec := json.NewDecoder(bytes.NewReader(cleaned))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}

	var (
		rawScore    any
		rawAnalysis any
		haveScore   bool
		haveText    bool
	)
	for k, v := range fields {
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "veracity_score":
			rawScore, haveScore = v, true
		case "analysis":
			rawAnalysis, haveText = v, true
		}
	}
	if !haveScore {
		return Verdict{}, errors.New("missing veracity_score")
	}
	if !haveText {
		return Verdict{}, errors.New("missing analysis")
	}

	n, err := lenientScore(rawScore)
	if err != nil {
		return Verdict{}, err
	}
	analysis, ok := rawAnalysis.(string)
	if !ok {
		return Verdict{}, fmt.Errorf("analysis is %T, not a string", rawAnalysis)
	}
	return Verdict{Score: n, Analysis: strings.TrimSpace(analysis)}, nil
}

// Parse tries the strict grammar, then the lenient one. lenient reports
// whether the fallback was needed.
func Parse(text string) (v Verdict, lenient bool, err error) {
	v, strictErr := ParseStrict(text)
	if strictErr == nil {
		return v, false, nil
	}
	v, err = ParseLenient(text)
	if err != nil {
		return Verdict{}, false, fmt.Errorf("strict: %v; lenient: %w", strictErr, err)
	}
	return v, true, nil
}

func lenientScore(raw any) (int, error) {
	var f float64
	switch val := raw.(type) {
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("veracity_score %q: %w", val.String(), err)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(val), "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("veracity_score %q is not a number", val)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("veracity_score is %T, not a number", raw)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("veracity_score %v is not an integer", f)
	}
	if f < 0 || f > 100 {
		return 0, fmt.Errorf("veracity_score %v out of range [0,100]", f)
	}
	return int(f), nil
}

// firstObject returns the first balanced {...} in s, respecting strings
func firstObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", errNoObject
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", errUnbalanced
}

// escapeControlChars escapes raw control characters that appear inside strings
func escapeControlChars(s string) []byte {
	var b bytes.Buffer
	b.Grow(len(s) + 16)
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		switch {
		case escaped:
			escaped = false
			b.WriteByte(c)
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			inString = false
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20:
			fmt.Fprintf(&b, `\u%04x`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.Bytes()
}

// removeTrailingCommas drops commas that directly precede } or ] outside strings
func removeTrailingCommas(s []byte) []byte {
	out := make([]byte, 0, len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			out = append(out, c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\n' || s[j] == '\r' || s[j] == '\t') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}
