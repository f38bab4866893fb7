package strategy

import (
	"sort"
	"strings"
)

// Clustering tolerances in PDF user-space units. Runs closer than rowTol
// vertically belong to the same row; column anchors closer than colTol
// are merged.
const (
	rowTol = 3.0
	colTol = 8.0
)

// tableFromRuns clusters positioned text runs into a rectangular table.
// Returns nil when the runs do not form a plausible table: fewer than two
// rows, fewer than two columns, or rows that mostly fail to fill more than
// one column.
func tableFromRuns(runs []textRun) [][]string {
	if len(runs) < 4 {
		return nil
	}

	rows := clusterRows(runs)
	if len(rows) < 2 {
		return nil
	}

	cols := clusterColumns(runs)
	if len(cols) < 2 {
		return nil
	}

	out := make([][]string, 0, len(rows))
	multiCell := 0
	for _, row := range rows {
		cells := make([]string, len(cols))
		for _, r := range row {
			ci := nearestColumn(cols, r.x)
			if cells[ci] != "" {
				cells[ci] += " "
			}
			cells[ci] += r.text
		}
		filled := 0
		for _, c := range cells {
			if c != "" {
				filled++
			}
		}
		if filled >= 2 {
			multiCell++
		}
		out = append(out, cells)
	}

	// A table needs most rows to span at least two columns, otherwise the
	// page is just left-aligned prose.
	if multiCell*2 < len(out) {
		return nil
	}
	return out
}

// clusterRows groups runs by descending y (PDF origin is bottom-left, so
// top of page first), merging runs within rowTol of each other.
func clusterRows(runs []textRun) [][]textRun {
	sorted := make([]textRun, len(runs))
	copy(sorted, runs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].y > sorted[j].y })

	var rows [][]textRun
	for _, r := range sorted {
		if len(rows) > 0 {
			last := rows[len(rows)-1]
			if last[0].y-r.y <= rowTol {
				rows[len(rows)-1] = append(last, r)
				continue
			}
		}
		rows = append(rows, []textRun{r})
	}

	// Order runs within each row left to right.
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool { return row[i].x < row[j].x })
	}
	return rows
}

// clusterColumns derives column anchor positions from the distinct x
// coordinates across all runs.
func clusterColumns(runs []textRun) []float64 {
	xs := make([]float64, 0, len(runs))
	for _, r := range runs {
		xs = append(xs, r.x)
	}
	sort.Float64s(xs)

	var cols []float64
	for _, x := range xs {
		if len(cols) > 0 && x-cols[len(cols)-1] <= colTol {
			continue
		}
		cols = append(cols, x)
	}
	return cols
}

// nearestColumn returns the index of the column anchor closest to x.
func nearestColumn(cols []float64, x float64) int {
	best := 0
	bestDist := abs(cols[0] - x)
	for i := 1; i < len(cols); i++ {
		if d := abs(cols[i] - x); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// pageText joins a page's runs into reading-order text: rows top to bottom,
// cells left to right, one line per row.
func pageText(runs []textRun) string {
	var sb strings.Builder
	for _, row := range clusterRows(runs) {
		var line strings.Builder
		for _, r := range row {
			if line.Len() > 0 {
				line.WriteByte(' ')
			}
			line.WriteString(r.text)
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(s)
		}
	}
	return sb.String()
}
