// Package strategy defines the extraction backend contract and the built-in
// PDF table extraction backends.
//
// A Strategy attempts to pull tables and text out of one document. It never
// panics or returns an error past its boundary: every internal failure is
// folded into an Attempt with OutcomeError and a human-readable reason, so
// the fallback chain can move on to the next backend.
//
// Built-in backends, in default priority order:
//   - grid: ruled tables (cell borders drawn as path operators)
//   - layout: borderless tables recovered from text positioning, plus text
//   - text: plain text only, no table recovery
package strategy

import (
	"context"
	"fmt"
)

// Outcome classifies a single strategy attempt.
type Outcome string

const (
	// OutcomeSuccess means the attempt produced at least one non-empty
	// table or non-empty text.
	OutcomeSuccess Outcome = "success"
	// OutcomeEmpty means the backend ran cleanly but found nothing.
	OutcomeEmpty Outcome = "empty"
	// OutcomeError means the backend failed; Err carries the reason.
	OutcomeError Outcome = "error"
)

// Table is one extracted table: ordered rows of ordered cell strings,
// tagged with the page it came from and its index within that page.
// Every backend produces this shape; consumers never type-switch on
// backend-specific table objects.
type Table struct {
	Page  int        `json:"page"`
	Index int        `json:"index"` // 1-based index within the page
	Rows  [][]string `json:"rows"`
}

// Attempt is the result of one strategy invocation on one document.
type Attempt struct {
	Strategy string
	Outcome  Outcome
	Tables   []Table
	Text     string
	Err      string
}

// Empty reports whether the attempt yielded neither tables nor text.
func (a Attempt) Empty() bool {
	return len(a.Tables) == 0 && a.Text == ""
}

// Strategy is one pluggable extraction backend.
//
// Attempt must be safe to call from multiple goroutines concurrently on
// different documents. Backends with a non-reentrant underlying capability
// must serialize their own access.
type Strategy interface {
	// Name returns the stable backend identifier used in configuration,
	// summaries, and artifact filenames.
	Name() string
	// Probe verifies the backend's capability is usable. Called once per
	// run; a failing backend is skipped for the whole batch, never fatal.
	Probe(ctx context.Context) error
	// Attempt extracts from the document at path.
	Attempt(ctx context.Context, path string) Attempt
}

// Backend identifiers.
const (
	NameGrid   = "grid"
	NameLayout = "layout"
	NameText   = "text"
)

// DefaultOrder is the domain default priority: ruled tables first, layout
// recovery second, plain text last.
func DefaultOrder() []string {
	return []string{NameGrid, NameLayout, NameText}
}

// Resolve maps backend identifiers to Strategy instances, preserving order.
// An unknown identifier is a configuration error.
func Resolve(names []string) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		switch name {
		case NameGrid:
			out = append(out, &Grid{})
		case NameLayout:
			out = append(out, &Layout{})
		case NameText:
			out = append(out, &Plaintext{})
		default:
			return nil, fmt.Errorf("unknown strategy %q (known: grid, layout, text)", name)
		}
	}
	return out, nil
}

// errAttempt builds an error attempt for the named backend.
func errAttempt(name string, err error) Attempt {
	return Attempt{Strategy: name, Outcome: OutcomeError, Err: err.Error()}
}
