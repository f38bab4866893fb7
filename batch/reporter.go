package batch

import (
	"sort"
	"sync"
	"time"

	"github.com/hazyhaar/tabpipe/store"
)

// Summary is the aggregate outcome of one batch run (batch_summary.json).
// FileResults is sorted by filename at finalize so reports are stable
// regardless of worker completion order.
type Summary struct {
	RunID            string             `json:"run_id,omitempty"`
	InputDir         string             `json:"input_dir"`
	OutputDir        string             `json:"output_dir"`
	StartedAt        time.Time          `json:"batch_start_time"`
	FinishedAt       time.Time          `json:"batch_end_time"`
	ElapsedSeconds   float64            `json:"total_processing_time_seconds"`
	TotalFiles       int                `json:"total_files"`
	SuccessfulFiles  int                `json:"successful_files"`
	FailedFiles      int                `json:"failed_files"`
	TotalTablesFound int                `json:"total_tables_found"`
	FileResults      []store.DocSummary `json:"file_results"`
}

// Reporter accumulates per-document summaries from concurrent workers and
// produces the batch summary exactly once.
type Reporter struct {
	mu        sync.Mutex
	finalized bool
	s         Summary
}

// NewReporter starts a report for a run over total enumerated documents.
func NewReporter(inputDir, outputDir string, total int) *Reporter {
	return &Reporter{s: Summary{
		InputDir:    inputDir,
		OutputDir:   outputDir,
		StartedAt:   time.Now(),
		TotalFiles:  total,
		FileResults: make([]store.DocSummary, 0, total),
	}}
}

// Record adds one document outcome. Safe for concurrent use. Records
// arriving after Finalize are dropped.
//
// A document counts as successful when any content was recovered; only a
// fully failed extraction counts against the batch.
func (r *Reporter) Record(d store.DocSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return
	}
	r.s.FileResults = append(r.s.FileResults, d)
	if d.Status == "error" {
		r.s.FailedFiles++
	} else {
		r.s.SuccessfulFiles++
	}
	r.s.TotalTablesFound += d.TotalTables
}

// Done returns the number of documents recorded so far.
func (r *Reporter) Done() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.s.FileResults)
}

// Finalize closes the report and returns the summary. Later calls return
// the same summary unchanged.
func (r *Reporter) Finalize() *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finalized {
		r.finalized = true
		r.s.FinishedAt = time.Now()
		r.s.ElapsedSeconds = r.s.FinishedAt.Sub(r.s.StartedAt).Seconds()
		sort.Slice(r.s.FileResults, func(i, j int) bool {
			return r.s.FileResults[i].Filename < r.s.FileResults[j].Filename
		})
	}
	s := r.s
	return &s
}
