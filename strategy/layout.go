package strategy

import (
	"context"
	"strings"
)

// Layout recovers borderless tables from text positioning alone, and also
// extracts the page text in reading order. Unlike Grid it does not require
// drawn rules, so it is more permissive and runs later in the chain.
type Layout struct{}

func (l *Layout) Name() string { return NameLayout }

func (l *Layout) Probe(ctx context.Context) error { return nil }

func (l *Layout) Attempt(ctx context.Context, path string) Attempt {
	pages, err := readPages(path)
	if err != nil {
		return errAttempt(NameLayout, err)
	}

	var tables []Table
	var text strings.Builder
	for _, pc := range pages {
		if rows := tableFromRuns(pc.runs); rows != nil {
			tables = append(tables, Table{Page: pc.number, Index: 1, Rows: rows})
		}
		if t := pageText(pc.runs); t != "" {
			if text.Len() > 0 {
				text.WriteByte('\n')
			}
			text.WriteString(t)
		}
	}

	a := Attempt{Strategy: NameLayout, Tables: tables, Text: text.String()}
	if a.Empty() {
		a.Outcome = OutcomeEmpty
	} else {
		a.Outcome = OutcomeSuccess
	}
	return a
}
