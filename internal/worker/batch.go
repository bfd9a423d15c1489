package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/model"
	"go.uber.org/zap"
)

// ClaimAnalyzer submits a claim and runs its analysis to completion
type ClaimAnalyzer interface {
	AnalyzeClaim(ctx context.Context, userID, text string, lang model.Language) (*model.Claim, *model.Analysis, error)
}

// AnalyzerFunc adapts a function to ClaimAnalyzer
type AnalyzerFunc func(ctx context.Context, userID, text string, lang model.Language) (*model.Claim, *model.Analysis, error)

// AnalyzeClaim calls f
func (f AnalyzerFunc) AnalyzeClaim(ctx context.Context, userID, text string, lang model.Language) (*model.Claim, *model.Analysis, error) {
	return f(ctx, userID, text, lang)
}

// ClaimJob analyzes one claim of a batch
type ClaimJob struct {
	Index    int
	Text     string
	UserID   string
	Language model.Language
	Analyzer ClaimAnalyzer
}

// Execute runs the analysis
func (j *ClaimJob) Execute(ctx context.Context) Result {
	start := time.Now()
	claim, analysis, err := j.Analyzer.AnalyzeClaim(ctx, j.UserID, j.Text, j.Language)
	return &ClaimResult{
		Index:    j.Index,
		Text:     j.Text,
		Claim:    claim,
		Analysis: analysis,
		Error:    err,
		Elapsed:  time.Since(start),
	}
}

// ClaimResult is the outcome of one batch entry
type ClaimResult struct {
	Index    int
	Text     string
	Claim    *model.Claim    // nil if the claim was rejected
	Analysis *model.Analysis // nil unless the analysis completed
	Error    error
	Elapsed  time.Duration
}

// GetError returns the error from the claim result
func (r *ClaimResult) GetError() error {
	return r.Error
}

// Summary aggregates a batch
type Summary struct {
	Total           int
	Completed       int
	Failed          int
	AverageVeracity float64 // over completed analyses, 0 if none
}

// Summarize counts outcomes and averages the veracity of completed analyses
func Summarize(results []*ClaimResult) Summary {
	s := Summary{Total: len(results)}
	var sum float64
	for _, r := range results {
		if r.Error != nil || r.Analysis == nil || r.Analysis.VeracityScore == nil {
			s.Failed++
			continue
		}
		s.Completed++
		sum += *r.Analysis.VeracityScore
	}
	if s.Completed > 0 {
		s.AverageVeracity = sum / float64(s.Completed)
	}
	return s
}

// BatchProcessor analyzes many claims concurrently
type BatchProcessor struct {
	analyzer    ClaimAnalyzer
	concurrency int
	log         *zap.Logger
	onResult    func(*ClaimResult)
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(analyzer ClaimAnalyzer, concurrency int, log *zap.Logger) *BatchProcessor {
	if log == nil {
		log = zap.NewNop()
	}
	return &BatchProcessor{
		analyzer:    analyzer,
		concurrency: concurrency,
		log:         log,
	}
}

// OnResult registers a progress callback, called concurrently as claims finish
func (b *BatchProcessor) OnResult(fn func(*ClaimResult)) {
	b.onResult = fn
}

// ProcessClaims analyzes every claim and returns the results in input order.
// Claims not started before ctx is done are reported with ctx's error.
func (b *BatchProcessor) ProcessClaims(ctx context.Context, claims []string, userID string, lang model.Language) []*ClaimResult {
	if len(claims) == 0 {
		return []*ClaimResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.OnResult(func(r Result) {
		cr := r.(*ClaimResult)
		if cr.Error != nil {
			b.log.Warn("claim analysis failed", zap.Int("index", cr.Index), zap.Error(cr.Error))
		} else {
			b.log.Info("claim analyzed", zap.Int("index", cr.Index), zap.Duration("elapsed", cr.Elapsed))
		}
		if b.onResult != nil {
			b.onResult(cr)
		}
	})
	pool.Start()

	submitted := 0
	for i, text := range claims {
		job := &ClaimJob{
			Index:    i,
			Text:     text,
			UserID:   userID,
			Language: lang,
			Analyzer: b.analyzer,
		}
		if !pool.Submit(job) {
			break
		}
		submitted++
	}

	results := pool.Wait()

	out := make([]*ClaimResult, 0, len(claims))
	for _, r := range results {
		out = append(out, r.(*ClaimResult))
	}
	done := make(map[int]bool, len(out))
	for _, r := range out {
		done[r.Index] = true
	}
	for i, text := range claims {
		if !done[i] {
			out = append(out, &ClaimResult{Index: i, Text: text, Error: fmt.Errorf("not analyzed: %w", context.Cause(ctx))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })

	b.log.Info("batch finished",
		zap.Int("claims", len(claims)),
		zap.Int("submitted", submitted),
		zap.Int("failed", Summarize(out).Failed))
	return out
}

// ProcessFile reads claims from a file and analyzes them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath, userID string, lang model.Language) ([]*ClaimResult, error) {
	claims, err := ReadClaimsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read claims: %w", err)
	}

	return b.ProcessClaims(ctx, claims, userID, lang), nil
}

// ReadClaimsFromFile reads claims from a file (one per line). Blank lines and
// lines starting with # are skipped and repeated claims are dropped.
func ReadClaimsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var claims []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			claims = append(claims, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return claims, nil
}
