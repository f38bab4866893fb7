package strategy

import "context"

// minRuleOps is the minimum number of path-drawing operators on a page
// before the grid backend considers it to contain a ruled table. A drawn
// 3x3 grid needs at least four strokes; below that it is usually an
// underline or a divider, not a table.
const minRuleOps = 4

// Grid extracts ruled tables: pages where cell borders are drawn as path
// operators. It yields tables only, never text; text recovery is left to
// lower-priority backends so the fallback chain can fill it in.
type Grid struct{}

func (g *Grid) Name() string { return NameGrid }

func (g *Grid) Probe(ctx context.Context) error { return nil }

func (g *Grid) Attempt(ctx context.Context, path string) Attempt {
	pages, err := readPages(path)
	if err != nil {
		return errAttempt(NameGrid, err)
	}

	var tables []Table
	for _, pc := range pages {
		if pc.ruleOps < minRuleOps {
			continue
		}
		rows := tableFromRuns(pc.runs)
		if rows == nil {
			continue
		}
		tables = append(tables, Table{Page: pc.number, Index: 1, Rows: rows})
	}

	if len(tables) == 0 {
		return Attempt{Strategy: NameGrid, Outcome: OutcomeEmpty}
	}
	return Attempt{Strategy: NameGrid, Outcome: OutcomeSuccess, Tables: tables}
}
