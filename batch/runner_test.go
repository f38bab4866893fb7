package batch

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hazyhaar/tabpipe/runlog"
	"github.com/hazyhaar/tabpipe/strategy"
)

// scripted is a strategy test double driven by a per-path function.
type scripted struct {
	name     string
	probeErr error
	fn       func(path string) strategy.Attempt
}

func (s *scripted) Name() string { return s.name }

func (s *scripted) Probe(context.Context) error { return s.probeErr }

func (s *scripted) Attempt(_ context.Context, path string) strategy.Attempt {
	return s.fn(path)
}

func tableOf(rows int) strategy.Table {
	t := strategy.Table{Page: 1, Index: 1}
	for i := 0; i < rows; i++ {
		t.Rows = append(t.Rows, []string{"a", "b"})
	}
	return t
}

func okAttempt(name string, tables []strategy.Table, text string) strategy.Attempt {
	return strategy.Attempt{Strategy: name, Outcome: strategy.OutcomeSuccess, Tables: tables, Text: text}
}

func failAttempt(name, reason string) strategy.Attempt {
	return strategy.Attempt{Strategy: name, Outcome: strategy.OutcomeError, Err: reason}
}

func writeInputs(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("stub"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// Two backends, three documents: the first document is handled by the
// primary, the second needs the fallback, the third defeats both.
func scenarioBackends() (alpha, beta *scripted) {
	alpha = &scripted{name: "alpha", fn: func(path string) strategy.Attempt {
		switch filepath.Base(path) {
		case "doc1.pdf":
			return okAttempt("alpha", []strategy.Table{tableOf(2), tableOf(2)}, "doc one text")
		default:
			return failAttempt("alpha", "unreadable")
		}
	}}
	beta = &scripted{name: "beta", fn: func(path string) strategy.Attempt {
		switch filepath.Base(path) {
		case "doc2.pdf":
			return okAttempt("beta", []strategy.Table{tableOf(3)}, "doc two text")
		default:
			return failAttempt("beta", "nothing found")
		}
	}}
	return alpha, beta
}

func TestRun_MixedBatch(t *testing.T) {
	in := writeInputs(t, "doc1.pdf", "doc2.pdf", "doc3.pdf")
	out := t.TempDir()
	alpha, beta := scenarioBackends()

	sum, err := Run(context.Background(), in, out, DefaultConfig(), WithBackends(alpha, beta))
	if err != nil {
		t.Fatal(err)
	}

	if sum.TotalFiles != 3 || sum.SuccessfulFiles != 2 || sum.FailedFiles != 1 {
		t.Fatalf("batch counts wrong: %+v", sum)
	}
	if sum.TotalTablesFound != 3 {
		t.Fatalf("tables = %d, want 3", sum.TotalTablesFound)
	}
	if len(sum.FileResults) != 3 {
		t.Fatalf("file_results must cover every enumerated document: %d", len(sum.FileResults))
	}
	for i, want := range []string{"doc1.pdf", "doc2.pdf", "doc3.pdf"} {
		if sum.FileResults[i].Filename != want {
			t.Fatalf("results not sorted: %v", sum.FileResults)
		}
	}

	if w := sum.FileResults[0].Winner; w != "alpha" {
		t.Fatalf("doc1 winner = %q, want alpha", w)
	}
	if w := sum.FileResults[1].Winner; w != "beta" {
		t.Fatalf("doc2 winner = %q, want beta (fallback)", w)
	}
	d3 := sum.FileResults[2]
	if d3.Status != "error" || !strings.Contains(d3.Error, "alpha") || !strings.Contains(d3.Error, "beta") {
		t.Fatalf("doc3 must carry every attempt's reason: %+v", d3)
	}

	// Per-document artifacts.
	for _, name := range []string{
		filepath.Join("doc1", "alpha_table_1.csv"),
		filepath.Join("doc1", "alpha_table_2.csv"),
		filepath.Join("doc1", "extracted_text.txt"),
		filepath.Join("doc1", "summary.json"),
		filepath.Join("doc2", "beta_table_1.csv"),
		filepath.Join("doc3", "summary.json"),
	} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}

	// Batch reports in all three formats.
	for _, name := range []string{SummaryJSON, SummaryCSV, SummaryXLSX} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("missing report %s: %v", name, err)
		}
	}
	data, err := os.ReadFile(filepath.Join(out, SummaryJSON))
	if err != nil {
		t.Fatal(err)
	}
	var back Summary
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.TotalFiles != 3 || back.TotalTablesFound != 3 {
		t.Fatalf("persisted summary diverges: %+v", back)
	}

	// The tabular rollup lists content-bearing documents only; the failed
	// doc3 appears in the JSON summary but not here.
	f, err := os.Open(filepath.Join(out, SummaryCSV))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rollup, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rollup) != 3 {
		t.Fatalf("rollup rows = %d, want header + 2 successful docs", len(rollup))
	}
	for _, row := range rollup[1:] {
		if row[0] == "doc3.pdf" {
			t.Fatal("failed document leaked into the rollup")
		}
	}
}

func TestRun_ResultOrderIndependentOfWorkers(t *testing.T) {
	in := writeInputs(t, "doc1.pdf", "doc2.pdf", "doc3.pdf")
	alpha, beta := scenarioBackends()

	for _, workers := range []int{1, 4} {
		cfg := DefaultConfig()
		cfg.Workers = workers
		sum, err := Run(context.Background(), in, t.TempDir(), cfg, WithBackends(alpha, beta))
		if err != nil {
			t.Fatal(err)
		}
		if sum.SuccessfulFiles != 2 || sum.FailedFiles != 1 || sum.TotalTablesFound != 3 {
			t.Fatalf("workers=%d changed the outcome: %+v", workers, sum)
		}
		for i, want := range []string{"doc1.pdf", "doc2.pdf", "doc3.pdf"} {
			if sum.FileResults[i].Filename != want {
				t.Fatalf("workers=%d: unstable result order: %v", workers, sum.FileResults)
			}
		}
	}
}

func TestRun_ExtensionFilterAndLimit(t *testing.T) {
	in := writeInputs(t, "a.pdf", "b.PDF", "notes.txt")
	if err := os.Mkdir(filepath.Join(in, "nested.pdf"), 0o755); err != nil {
		t.Fatal(err)
	}
	textOnly := &scripted{name: "plain", fn: func(path string) strategy.Attempt {
		return okAttempt("plain", nil, "text")
	}}

	sum, err := Run(context.Background(), in, t.TempDir(), DefaultConfig(), WithBackends(textOnly))
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalFiles != 2 {
		t.Fatalf("extension filter: total = %d, want 2 (.pdf case-insensitive, no dirs)", sum.TotalFiles)
	}

	cfg := DefaultConfig()
	cfg.Limit = 1
	sum, err = Run(context.Background(), in, t.TempDir(), cfg, WithBackends(textOnly))
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalFiles != 1 || sum.FileResults[0].Filename != "a.pdf" {
		t.Fatalf("limit must keep the first documents in name order: %+v", sum)
	}
}

func TestRun_UnavailableBackendSkipped(t *testing.T) {
	in := writeInputs(t, "doc.pdf")
	broken := &scripted{name: "broken", probeErr: os.ErrPermission, fn: func(string) strategy.Attempt {
		panic("must never be attempted")
	}}
	good := &scripted{name: "good", fn: func(string) strategy.Attempt {
		return okAttempt("good", []strategy.Table{tableOf(2)}, "hello")
	}}

	sum, err := Run(context.Background(), in, t.TempDir(), DefaultConfig(), WithBackends(broken, good))
	if err != nil {
		t.Fatal(err)
	}
	if sum.SuccessfulFiles != 1 || sum.FileResults[0].Winner != "good" {
		t.Fatalf("unavailable backend must be skipped, not fatal: %+v", sum)
	}
}

func TestRun_ProgressCallback(t *testing.T) {
	in := writeInputs(t, "doc1.pdf", "doc2.pdf", "doc3.pdf")
	alpha, beta := scenarioBackends()

	var mu sync.Mutex
	var events []Progress
	_, err := Run(context.Background(), in, t.TempDir(), DefaultConfig(),
		WithBackends(alpha, beta),
		OnResult(func(p Progress) {
			mu.Lock()
			events = append(events, p)
			mu.Unlock()
		}),
	)
	if err != nil {
		t.Fatal(err)
	}

	if len(events) != 3 {
		t.Fatalf("expected one progress event per document, got %d", len(events))
	}
	seen := make(map[int]bool)
	for _, p := range events {
		if p.Total != 3 {
			t.Fatalf("progress total = %d, want 3", p.Total)
		}
		seen[p.Done] = true
	}
	for i := 1; i <= 3; i++ {
		if !seen[i] {
			t.Fatalf("missing progress step %d: %v", i, events)
		}
	}
}

func TestRun_HistoryRecorded(t *testing.T) {
	in := writeInputs(t, "doc1.pdf", "doc2.pdf", "doc3.pdf")
	alpha, beta := scenarioBackends()

	cfg := DefaultConfig()
	cfg.RunLogPath = filepath.Join(t.TempDir(), "history.db")
	if _, err := Run(context.Background(), in, t.TempDir(), cfg, WithBackends(alpha, beta)); err != nil {
		t.Fatal(err)
	}

	hist, err := runlog.Open(cfg.RunLogPath)
	if err != nil {
		t.Fatal(err)
	}
	defer hist.Close()
	runs, err := hist.RecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 recorded run, got %d", len(runs))
	}
	r := runs[0]
	if r.Total != 3 || r.Succeeded != 2 || r.Failed != 1 || r.Tables != 3 {
		t.Fatalf("recorded counters wrong: %+v", r)
	}
}

func TestRun_AllocationFailureStillReported(t *testing.T) {
	// A file squatting on the would-be output directory makes allocation
	// fail for doc1; the document must still reach the progress callback
	// and the summary alongside the healthy doc2.
	in := writeInputs(t, "doc1.pdf", "doc2.pdf")
	out := t.TempDir()
	if err := os.WriteFile(filepath.Join(out, "doc1"), []byte("in the way"), 0o644); err != nil {
		t.Fatal(err)
	}
	good := &scripted{name: "good", fn: func(string) strategy.Attempt {
		return okAttempt("good", []strategy.Table{tableOf(2)}, "hello")
	}}

	var mu sync.Mutex
	var events []Progress
	sum, err := Run(context.Background(), in, out, DefaultConfig(),
		WithBackends(good),
		OnResult(func(p Progress) {
			mu.Lock()
			events = append(events, p)
			mu.Unlock()
		}),
	)
	if err != nil {
		t.Fatal(err)
	}

	if sum.TotalFiles != 2 || sum.SuccessfulFiles != 1 || sum.FailedFiles != 1 {
		t.Fatalf("batch counts wrong: %+v", sum)
	}
	if len(events) != 2 {
		t.Fatalf("progress events = %d, want one per enumerated document", len(events))
	}
	d1 := sum.FileResults[0]
	if d1.Filename != "doc1.pdf" || d1.Status != "error" || !strings.Contains(d1.Error, "allocation") {
		t.Fatalf("allocation failure not surfaced: %+v", d1)
	}
}

func TestRun_EmptyInputDir(t *testing.T) {
	out := t.TempDir()
	sum, err := Run(context.Background(), t.TempDir(), out, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalFiles != 0 || len(sum.FileResults) != 0 {
		t.Fatalf("empty input must yield an empty summary: %+v", sum)
	}
	if _, err := os.Stat(filepath.Join(out, SummaryJSON)); err != nil {
		t.Fatal("batch summary must be written even for an empty run")
	}
}

func TestRun_MissingInputDirIsFatal(t *testing.T) {
	_, err := Run(context.Background(), "/nonexistent/input", t.TempDir(), DefaultConfig())
	if err == nil {
		t.Fatal("missing input directory must fail the run up front")
	}
}
