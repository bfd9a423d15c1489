// Package score turns model output and evidence into bounded numeric scores.
package score

import (
	"math"

	"github.com/ppiankov/veracity/internal/model"
)

// Confidence is the geometric mean of token probabilities, exp(mean(logprobs)).
// It returns 0 for empty input or when the result is not a finite number in [0,1].
func Confidence(logprobs []float64) float64 {
	if len(logprobs) == 0 {
		return 0
	}

	var sum float64
	for _, lp := range logprobs {
		sum += lp
	}
	c := math.Exp(sum / float64(len(logprobs)))

	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	// positive log-probabilities are malformed input; cap rather than exceed 1
	return Clamp(c)
}

// OverallCredibility is the mean credibility of sources with a known score.
// Sources with unknown credibility are excluded; no known scores yields 0.
func OverallCredibility(sources []model.Source) float64 {
	var (
		sum   float64
		count int
	)
	for _, s := range sources {
		if s.CredibilityScore == nil {
			continue
		}
		sum += *s.CredibilityScore
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Veracity maps a 0-100 verdict score onto [0,1]
func Veracity(percent int) float64 {
	return Clamp(float64(percent) / 100)
}

// Clamp bounds v to [0,1]
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
