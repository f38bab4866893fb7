package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/tabpipe/fallback"
	"github.com/hazyhaar/tabpipe/runlog"
	"github.com/hazyhaar/tabpipe/store"
	"github.com/hazyhaar/tabpipe/strategy"
)

// Batch report artifacts, written into the output root.
const (
	SummaryJSON = "batch_summary.json"
	SummaryCSV  = "batch_summary.csv"
	SummaryXLSX = "batch_summary.xlsx"
)

// Runner executes batch runs with a fixed configuration.
type Runner struct {
	cfg        Config
	strategies []strategy.Strategy
	logger     *slog.Logger
	onResult   func(Progress)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithBackends replaces the configured strategy chain with explicit
// backends, preserving the given order.
func WithBackends(ss ...strategy.Strategy) RunnerOption {
	return func(r *Runner) { r.strategies = ss }
}

// OnResult registers a progress callback invoked after each document, in
// completion order. The callback runs on worker goroutines.
func OnResult(fn func(Progress)) RunnerOption {
	return func(r *Runner) { r.onResult = fn }
}

// NewRunner validates cfg and builds a Runner. Configuration problems are
// the one fatal error class: they surface here, before any job runs.
func NewRunner(cfg Config, opts ...RunnerOption) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("batch config: %w", err)
	}
	chain, err := strategy.Resolve(cfg.Strategies)
	if err != nil {
		return nil, fmt.Errorf("batch config: %w", err)
	}
	r := &Runner{cfg: cfg, strategies: chain, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Run is a convenience wrapper: build a Runner for cfg and execute one
// batch over inputDir, writing artifacts under outputDir.
func Run(ctx context.Context, inputDir, outputDir string, cfg Config, opts ...RunnerOption) (*Summary, error) {
	r, err := NewRunner(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, inputDir, outputDir)
}

// Run executes one batch. It returns an error only for configuration and
// setup failures (unreadable input directory, unwritable output root);
// per-document failures are folded into the summary.
func (r *Runner) Run(ctx context.Context, inputDir, outputDir string) (*Summary, error) {
	files, err := r.enumerate(inputDir)
	if err != nil {
		return nil, err
	}

	st, err := store.New(outputDir, store.Options{Logger: r.logger})
	if err != nil {
		return nil, err
	}

	chain := r.probeChain(ctx)

	var hist *runlog.Log
	if r.cfg.RunLogPath != "" {
		hist, err = runlog.Open(r.cfg.RunLogPath)
		if err != nil {
			// History is observability, not output. A broken run log is
			// reported and the batch proceeds without it.
			r.logger.Warn("batch: run history unavailable", "path", r.cfg.RunLogPath, "error", err)
			hist = nil
		} else {
			defer hist.Close()
		}
	}
	runID := hist.StartRun(ctx, inputDir, outputDir, r.cfg.Workers, r.cfg.Strategies)

	rep := NewReporter(inputDir, outputDir, len(files))
	rep.s.RunID = runID

	extractor := fallback.New(chain, fallback.Options{
		AttemptTimeout: time.Duration(r.cfg.AttemptTimeout),
		Logger:         r.logger,
	})

	// record is the single completion path: every enumerated document goes
	// through it exactly once, whether extracted, cancelled, or failed
	// before dispatch.
	record := func(j Job, sum store.DocSummary) {
		rep.Record(sum)
		hist.RecordDocument(ctx, runID, sum)
		done := rep.Done()
		r.logger.Info("batch: document finished",
			"file", sum.Filename,
			"status", sum.Status,
			"winner", sum.Winner,
			"tables", sum.TotalTables,
			"progress", fmt.Sprintf("%d/%d", done, len(files)),
		)
		if r.onResult != nil {
			r.onResult(Progress{Job: j, Summary: sum, Done: done, Total: len(files)})
		}
	}

	jobs := make([]Job, 0, len(files))
	for _, fi := range files {
		j := Job{Path: filepath.Join(inputDir, fi.Name()), Name: fi.Name()}
		dir, allocErr := st.Allocate(fi.Name())
		if allocErr != nil {
			r.logger.Error("batch: output allocation failed", "file", fi.Name(), "error", allocErr)
			record(j, store.DocSummary{
				Filename: fi.Name(),
				Winner:   "none",
				Status:   "error",
				Error:    fmt.Sprintf("output allocation: %v", allocErr),
				Storage:  "partial",
			})
			continue
		}
		j.OutDir = dir
		jobs = append(jobs, j)
	}

	r.logger.Info("batch: starting run",
		"run_id", runID,
		"input_dir", inputDir,
		"files", len(files),
		"workers", r.cfg.Workers,
		"strategies", strings.Join(names(chain), ","),
	)

	pool := NewPool(r.cfg.Workers, r.logger)
	pool.Run(ctx, jobs,
		func(ctx context.Context, j Job) store.DocSummary {
			res := extractor.Extract(ctx, j.Path)
			return st.Save(j.OutDir, res)
		},
		record,
	)

	sum := rep.Finalize()
	hist.FinishRun(ctx, runID, sum.TotalFiles, sum.SuccessfulFiles, sum.FailedFiles, sum.TotalTablesFound)
	r.writeReports(outputDir, sum)

	r.logger.Info("batch: run finished",
		"run_id", runID,
		"total", sum.TotalFiles,
		"successful", sum.SuccessfulFiles,
		"failed", sum.FailedFiles,
		"tables", sum.TotalTablesFound,
		"elapsed_s", sum.ElapsedSeconds,
	)
	return sum, nil
}

// enumerate lists the input directory non-recursively, keeps files with
// the configured extension (case-insensitive), sorted by name, and applies
// the Limit cap.
func (r *Runner) enumerate(inputDir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("read input dir %s: %w", inputDir, err)
	}
	var files []os.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(e.Name()), r.cfg.Extension) {
			continue
		}
		files = append(files, e)
	}
	if r.cfg.Limit > 0 && len(files) > r.cfg.Limit {
		r.logger.Info("batch: limit applied", "limit", r.cfg.Limit, "found", len(files))
		files = files[:r.cfg.Limit]
	}
	return files, nil
}

// probeChain checks each strategy once and drops unavailable ones for the
// whole run. An unavailable backend is never fatal; documents simply skip
// it in the fallback order.
func (r *Runner) probeChain(ctx context.Context) []strategy.Strategy {
	var chain []strategy.Strategy
	for _, s := range r.strategies {
		if err := s.Probe(ctx); err != nil {
			r.logger.Warn("batch: strategy unavailable, skipping", "strategy", s.Name(), "error", err)
			continue
		}
		chain = append(chain, s)
	}
	return chain
}

// writeReports persists the batch summary in all three formats. Report
// write failures are logged; the in-memory summary is already complete.
func (r *Runner) writeReports(outputDir string, sum *Summary) {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(outputDir, SummaryJSON), data, 0o644)
	}
	if err != nil {
		r.logger.Error("batch: summary json write failed", "error", err)
	}
	if err := store.WriteRollupCSV(filepath.Join(outputDir, SummaryCSV), sum.FileResults); err != nil {
		r.logger.Error("batch: rollup csv write failed", "error", err)
	}
	if err := store.WriteRollupXLSX(filepath.Join(outputDir, SummaryXLSX), sum.FileResults); err != nil {
		r.logger.Error("batch: rollup xlsx write failed", "error", err)
	}
}

func names(chain []strategy.Strategy) []string {
	out := make([]string, len(chain))
	for i, s := range chain {
		out[i] = s.Name()
	}
	return out
}
