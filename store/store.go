// Package store persists extraction results with per-document isolation.
//
// Every document gets its own output directory (collision-safe), holding
// one CSV per extracted table, an extracted_text.txt when text was found,
// and a summary.json. The three kinds of writes are independent: a failed
// table write is recorded in the summary and does not block the other
// tables, the text, or the summary itself. Storage failures are reported,
// never thrown.
package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hazyhaar/tabpipe/fallback"
	"github.com/hazyhaar/tabpipe/idgen"
)

// DocSummary is the per-document summary record (summary.json), and the
// row shape for the batch rollup.
type DocSummary struct {
	Filename       string         `json:"filename"`
	ElapsedSeconds float64        `json:"processing_time_seconds"`
	Winner         string         `json:"winning_strategy"`
	TableCounts    map[string]int `json:"tables_found_by_strategy,omitempty"`
	TotalTables    int            `json:"total_tables"`
	TablesSaved    int            `json:"tables_saved"`
	TextLength     int            `json:"text_length"`
	WordCount      int            `json:"word_count"`
	PrintableRatio float64        `json:"printable_ratio,omitempty"`
	Status         string         `json:"status"`
	Error          string         `json:"error,omitempty"`
	Storage        string         `json:"storage"` // ok | partial
	StorageErrors  []string       `json:"storage_errors,omitempty"`
	OutputDir      string         `json:"output_dir"`
}

// Options configures a Store.
type Options struct {
	// Token generates collision suffixes for duplicate document names.
	// Default: idgen.NanoID(6).
	Token idgen.Generator
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Token == nil {
		o.Token = idgen.NanoID(6)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Store writes per-document artifacts under a root output directory.
// Allocate and Save are safe for concurrent use; the filesystem namespace
// is partitioned per document so no two workers touch the same path.
type Store struct {
	root string
	opts Options

	mu      sync.Mutex
	claimed map[string]bool
}

// New creates a Store rooted at dir, creating it if needed.
func New(dir string, opts Options) (*Store, error) {
	opts.defaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output root %s: %w", dir, err)
	}
	return &Store{root: dir, opts: opts, claimed: make(map[string]bool)}, nil
}

// Root returns the output root directory.
func (s *Store) Root() string { return s.root }

// Allocate reserves a dedicated output directory for the named document.
// The directory name is derived from the document name; when two documents
// normalize to the same name, later claimants get a short unique suffix.
func (s *Store) Allocate(docName string) (string, error) {
	base := sanitizeName(docName)

	s.mu.Lock()
	if s.claimed[base] {
		base = base + "_" + s.opts.Token()
	}
	s.claimed[base] = true
	s.mu.Unlock()

	dir := filepath.Join(s.root, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create document dir %s: %w", dir, err)
	}
	return dir, nil
}

// Save writes a document's artifacts into dir and returns its summary.
// Table writes, the text write, and the summary write are attempted
// independently; individual failures are collected into the summary's
// storage fields instead of aborting.
func (s *Store) Save(dir string, res *fallback.Result) DocSummary {
	log := s.opts.Logger

	sum := DocSummary{
		Filename:       filepath.Base(res.Path),
		ElapsedSeconds: res.Elapsed.Seconds(),
		Winner:         res.Winner,
		TableCounts:    res.TableCounts,
		TotalTables:    len(res.Tables),
		TextLength:     len(res.Text),
		WordCount:      len(strings.Fields(res.Text)),
		Status:         string(res.Status),
		Error:          res.Err,
		Storage:        "ok",
		OutputDir:      dir,
	}
	if res.Text != "" {
		sum.PrintableRatio = fallback.MeasureText(res.Text).PrintableRatio
	}

	for i, tbl := range res.Tables {
		name := fmt.Sprintf("%s_table_%d.csv", res.Winner, i+1)
		if err := writeTableCSV(filepath.Join(dir, name), tbl.Rows); err != nil {
			sum.StorageErrors = append(sum.StorageErrors, fmt.Sprintf("%s: %v", name, err))
			log.Warn("store: table write failed", "dir", dir, "table", name, "error", err)
			continue
		}
		sum.TablesSaved++
	}

	if res.Text != "" {
		if err := os.WriteFile(filepath.Join(dir, "extracted_text.txt"), []byte(res.Text), 0o644); err != nil {
			sum.StorageErrors = append(sum.StorageErrors, fmt.Sprintf("extracted_text.txt: %v", err))
			log.Warn("store: text write failed", "dir", dir, "error", err)
		}
	}

	if len(sum.StorageErrors) > 0 {
		sum.Storage = "partial"
	}

	if err := writeJSON(filepath.Join(dir, "summary.json"), sum); err != nil {
		sum.Storage = "partial"
		sum.StorageErrors = append(sum.StorageErrors, fmt.Sprintf("summary.json: %v", err))
		log.Warn("store: summary write failed", "dir", dir, "error", err)
	}

	return sum
}

// sanitizeName turns a document filename into a safe directory name:
// extension stripped, path separators and control characters replaced.
func sanitizeName(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" {
		base = "document"
	}
	var sb strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func writeTableCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
