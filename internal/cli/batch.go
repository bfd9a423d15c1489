package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/pipeline"
	"github.com/ppiankov/veracity/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	concurrency  int
	batchLang    string
	batchOut     string
	batchTimeout time.Duration
	metricsAddr  string
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Verify many claims from a file in parallel",
	Long: `Batch verifies claims concurrently:
- Read claims from the input file (one per line, # starts a comment)
- Drop repeated claims
- Analyze claims in parallel with a configurable worker count
- Write one JSON line per claim with its verdict or error

Prometheus metrics can be served while the batch runs.

Example:
  veracity batch claims.txt
  veracity batch claims.txt --concurrency 4 --out results.ndjson
  veracity batch claims.txt --metrics-addr :9090 --timeout 1h`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", min(runtime.NumCPU(), 4), "number of concurrent analyses")
	batchCmd.Flags().StringVar(&batchLang, "lang", "english", "language of every claim in the file")
	batchCmd.Flags().StringVar(&batchOut, "out", "", "write results as NDJSON to this file (default stdout)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", time.Hour, "total timeout for batch processing")
	batchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the batch runs")

	_ = viper.BindPFlag("concurrency.workers", batchCmd.Flags().Lookup("concurrency"))
	_ = viper.BindPFlag("metrics.addr", batchCmd.Flags().Lookup("metrics-addr"))
}

// batchLine is one NDJSON record of the batch output
type batchLine struct {
	Index    int             `json:"index"`
	Claim    string          `json:"claim"`
	ClaimID  string          `json:"claim_id,omitempty"`
	Analysis *model.Analysis `json:"analysis,omitempty"`
	Error    string          `json:"error,omitempty"`
	Elapsed  string          `json:"elapsed"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lang, err := model.ParseLanguage(batchLang)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	claims, err := worker.ReadClaimsFromFile(file)
	if err != nil {
		return fmt.Errorf("read claims: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "%s\n", rule)
	fmt.Fprintf(os.Stderr, "  Veracity Batch Processing\n")
	fmt.Fprintf(os.Stderr, "%s\n", rule)
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Claims:       %d\n", len(claims))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	rt, err := pipeline.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if cfg.Metrics.Addr != "" {
		shutdown := serveMetrics(cfg.Metrics.Addr, rt.Metrics.Handler(), log)
		defer shutdown()
		fmt.Fprintf(os.Stderr, "  Metrics:      http://%s/metrics\n\n", cfg.Metrics.Addr)
	}

	out := os.Stdout
	if batchOut != "" {
		f, err := os.Create(batchOut)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	var mu sync.Mutex
	done := 0
	processor := worker.NewBatchProcessor(rt.Pipeline, cfg.Concurrency.Workers, log.Named("batch"))
	processor.OnResult(func(r *worker.ClaimResult) {
		mu.Lock()
		defer mu.Unlock()
		done++
		if r.Error != nil {
			fmt.Fprintf(os.Stderr, "✗ [%d/%d] %s: %v\n", done, len(claims), r.Text, r.Error)
			return
		}
		fmt.Fprintf(os.Stderr, "✓ [%d/%d] %s (veracity %s)\n", done, len(claims), r.Text, percent(r.Analysis.VeracityScore))
	})

	results := processor.ProcessClaims(ctx, claims, userID, lang)

	enc := json.NewEncoder(out)
	for _, r := range results {
		line := batchLine{
			Index:    r.Index,
			Claim:    r.Text,
			Analysis: r.Analysis,
			Elapsed:  r.Elapsed.Round(time.Millisecond).String(),
		}
		if r.Claim != nil {
			line.ClaimID = r.Claim.ID.String()
		}
		if r.Error != nil {
			line.Error = r.Error.Error()
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}

	summary := worker.Summarize(results)
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "%s\n", rule)
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "%s\n", rule)
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:      %d claims\n", summary.Total)
	fmt.Fprintf(os.Stderr, "  Completed:  %d\n", summary.Completed)
	fmt.Fprintf(os.Stderr, "  Failed:     %d\n", summary.Failed)
	if summary.Completed > 0 {
		fmt.Fprintf(os.Stderr, "  Veracity:   %.0f%% average\n", summary.AverageVeracity*100)
	}
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// serveMetrics exposes /metrics until the returned function is called
func serveMetrics(addr string, handler http.Handler, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
