// Package batch orchestrates multi-document extraction runs: it enumerates
// an input directory, fans documents out to a bounded worker pool, runs the
// strategy fallback chain on each, persists per-document artifacts, and
// aggregates everything into a batch summary.
//
// One failing document never aborts the batch. A run always terminates with
// a complete summary covering every enumerated document.
package batch

import "github.com/hazyhaar/tabpipe/store"

// Job is one document scheduled for extraction.
type Job struct {
	// Path is the absolute input file path.
	Path string
	// Name is the original filename, used in summaries and logs.
	Name string
	// OutDir is the document's allocated output directory.
	OutDir string
}

// Progress is delivered to the OnResult callback after each document
// finishes, in completion order.
type Progress struct {
	Job     Job
	Summary store.DocSummary
	// Done is the number of documents finished so far, Total the number
	// enumerated for this run.
	Done  int
	Total int
}
