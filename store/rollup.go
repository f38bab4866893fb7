package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// rollupHeaders are the columns of the batch rollup, one row per
// successfully processed document. Documents with status "error" carry no
// content and are excluded; failures live in the JSON summary only.
var rollupHeaders = []string{
	"filename",
	"status",
	"winning_strategy",
	"total_tables",
	"tables_saved",
	"text_length",
	"word_count",
	"processing_time_seconds",
}

func rollupRow(d DocSummary) []string {
	return []string{
		d.Filename,
		d.Status,
		d.Winner,
		strconv.Itoa(d.TotalTables),
		strconv.Itoa(d.TablesSaved),
		strconv.Itoa(d.TextLength),
		strconv.Itoa(d.WordCount),
		strconv.FormatFloat(d.ElapsedSeconds, 'f', 2, 64),
	}
}

// WriteRollupCSV writes the tabular batch rollup to path.
func WriteRollupCSV(path string, rows []DocSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create rollup %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(rollupHeaders); err != nil {
		f.Close()
		return err
	}
	for _, d := range rows {
		if d.Status == "error" {
			continue
		}
		if err := w.Write(rollupRow(d)); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteRollupXLSX writes the batch rollup as an XLSX workbook to path.
func WriteRollupXLSX(path string, rows []DocSummary) error {
	f := excelize.NewFile()
	const sheet = "Batch"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	if idx, err := f.GetSheetIndex(sheet); err == nil {
		f.SetActiveSheet(idx)
	}
	// Drop the default sheet so the workbook opens on Batch.
	_ = f.DeleteSheet("Sheet1")

	for i, h := range rollupHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	line := 2
	for _, d := range rows {
		if d.Status == "error" {
			continue
		}
		for c, v := range rollupRow(d) {
			cell, _ := excelize.CoordinatesToCellName(c+1, line)
			_ = f.SetCellValue(sheet, cell, v)
		}
		line++
	}

	_ = f.SetColWidth(sheet, "A", "A", 36) // filename
	_ = f.SetColWidth(sheet, "B", "C", 16)
	_ = f.SetColWidth(sheet, "D", "H", 12)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx write %s: %w", path, err)
	}
	return nil
}
