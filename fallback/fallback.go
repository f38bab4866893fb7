// Package fallback runs an ordered chain of extraction strategies against
// one document and decides which output to keep.
//
// Tables and text are tracked independently: once a backend supplies
// tables, later backends are still consulted for text (and vice versa)
// until both content kinds are filled or the chain is exhausted. A backend
// that supplies both in one attempt ends the chain immediately.
//
// Fallback is triggered by empty output, not only by failure: a backend
// that runs cleanly but finds nothing falls through to the next one.
package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/tabpipe/strategy"
)

// Status classifies the final per-document outcome.
type Status string

const (
	// StatusSuccess means both tables and text were recovered.
	StatusSuccess Status = "success"
	// StatusPartial means one content kind was recovered but not the other.
	StatusPartial Status = "partial"
	// StatusError means no strategy yielded anything.
	StatusError Status = "error"
)

// WinnerNone is the Winner value when no strategy supplied tables.
const WinnerNone = "none"

// Result is the final outcome for one document. Immutable once returned.
type Result struct {
	Path   string
	Winner string // strategy that supplied the tables, or WinnerNone
	Tables []strategy.Table
	Text   string
	// TextFrom is the strategy that supplied the text; empty when no text.
	TextFrom string
	// TableCounts maps each attempted strategy to the number of tables it
	// reported, including losing attempts. Feeds the per-document summary.
	TableCounts map[string]int
	Status      Status
	Err         string // concatenated attempt errors when Status is error
	Elapsed     time.Duration
}

// Options tunes extractor behaviour.
type Options struct {
	// AttemptTimeout bounds each single strategy attempt. A timed-out
	// attempt is recorded as an error outcome and the chain proceeds.
	// 0 disables the bound. Default: 2m.
	AttemptTimeout time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.AttemptTimeout < 0 {
		o.AttemptTimeout = 0
	} else if o.AttemptTimeout == 0 {
		o.AttemptTimeout = 2 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Extractor tries strategies in a fixed priority order.
type Extractor struct {
	strategies []strategy.Strategy
	opts       Options
}

// New creates an Extractor over the given ordered strategies.
func New(strategies []strategy.Strategy, opts Options) *Extractor {
	opts.defaults()
	return &Extractor{strategies: strategies, opts: opts}
}

// Extract runs the chain against one document. It never returns an error:
// total failure is a Result with StatusError carrying every attempt's
// reason. It never panics: a panicking backend is folded into an error
// attempt at the per-attempt boundary.
func (e *Extractor) Extract(ctx context.Context, path string) *Result {
	log := e.opts.Logger
	start := time.Now()

	res := &Result{
		Path:        path,
		Winner:      WinnerNone,
		TableCounts: make(map[string]int),
	}
	var reasons []string

	for _, s := range e.strategies {
		if res.Winner != WinnerNone && res.TextFrom != "" {
			break
		}

		a := e.attempt(ctx, s, path)
		res.TableCounts[s.Name()] = len(a.Tables)

		switch a.Outcome {
		case strategy.OutcomeError:
			reasons = append(reasons, fmt.Sprintf("%s: %s", s.Name(), a.Err))
			log.Debug("fallback: attempt failed", "path", path, "strategy", s.Name(), "error", a.Err)
			continue
		case strategy.OutcomeEmpty:
			log.Debug("fallback: attempt empty", "path", path, "strategy", s.Name())
			continue
		}

		if res.Winner == WinnerNone && len(a.Tables) > 0 {
			res.Winner = s.Name()
			res.Tables = a.Tables
		}
		if res.TextFrom == "" && a.Text != "" {
			res.TextFrom = s.Name()
			res.Text = a.Text
		}
	}

	res.Elapsed = time.Since(start)

	switch {
	case len(res.Tables) > 0 && res.Text != "":
		res.Status = StatusSuccess
	case len(res.Tables) > 0 || res.Text != "":
		res.Status = StatusPartial
	default:
		res.Status = StatusError
		if len(reasons) == 0 {
			reasons = []string{"no strategy produced any content"}
		}
		res.Err = strings.Join(reasons, "; ")
	}

	log.Info("fallback: document done",
		"path", path,
		"status", string(res.Status),
		"winner", res.Winner,
		"tables", len(res.Tables),
		"text_len", len(res.Text),
		"elapsed", res.Elapsed,
	)
	return res
}

// attempt invokes one strategy with the per-attempt timeout and panic
// isolation. The result channel is buffered so a late completion after a
// timeout does not leak the goroutine.
//
// A started document runs to completion even when the caller's context is
// cancelled; only the per-attempt timeout bounds the attempt. Cancellation
// stops dispatch of further documents, not the one being extracted.
func (e *Extractor) attempt(parent context.Context, s strategy.Strategy, path string) strategy.Attempt {
	ctx := context.WithoutCancel(parent)
	if e.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.AttemptTimeout)
		defer cancel()
	}

	ch := make(chan strategy.Attempt, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- strategy.Attempt{
					Strategy: s.Name(),
					Outcome:  strategy.OutcomeError,
					Err:      fmt.Sprintf("panic: %v", r),
				}
			}
		}()
		ch <- s.Attempt(ctx, path)
	}()

	select {
	case a := <-ch:
		return a
	case <-ctx.Done():
		return strategy.Attempt{
			Strategy: s.Name(),
			Outcome:  strategy.OutcomeError,
			Err:      fmt.Sprintf("attempt aborted: %v", ctx.Err()),
		}
	}
}
