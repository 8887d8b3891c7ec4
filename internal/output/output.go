// internal/output/output.go

// Package output serializes extraction results for downstream consumers.
// JSON preserves the full result envelope; CSV and XLSX flatten to one
// row per record for spreadsheet use.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/valeran/chartex/internal/dispatch"
)

// Format identifies a serialization format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a user-supplied string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// Write serializes the result in the requested format. XLSX cannot stream
// to arbitrary writers sensibly, so it requires a file path via WriteFile.
func Write(w io.Writer, result *dispatch.Result, format Format) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatCSV:
		return writeCSV(w, result)
	default:
		return fmt.Errorf("format %s requires a file path", format)
	}
}

// WriteFile serializes the result to a file, inferring nothing: the
// format is explicit.
func WriteFile(path string, result *dispatch.Result, format Format) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}
	if format == FormatXLSX {
		return writeXLSX(path, result)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()
	return Write(f, result, format)
}

func writeJSON(w io.Writer, result *dispatch.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// csvHeader lists the fixed columns; metadata keys follow alphabetically.
var csvHeader = []string{"rank", "title", "artist", "confidence"}

func writeCSV(w io.Writer, result *dispatch.Result) error {
	metaKeys := metadataKeys(result.Records)

	cw := csv.NewWriter(w)
	header := append(append([]string(nil), csvHeader...), metaKeys...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, rec := range result.Records {
		row := []string{
			strconv.Itoa(rec.Rank),
			rec.Title,
			rec.Artist,
			strconv.FormatFloat(rec.Confidence, 'f', 3, 64),
		}
		for _, key := range metaKeys {
			row = append(row, rec.Metadata[key])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(path string, result *dispatch.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Songs"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	metaKeys := metadataKeys(result.Records)
	header := append(append([]string(nil), csvHeader...), metaKeys...)
	for col, name := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("failed to write header cell: %w", err)
		}
	}

	for i, rec := range result.Records {
		values := []interface{}{rec.Rank, rec.Title, rec.Artist, rec.Confidence}
		for _, key := range metaKeys {
			values = append(values, rec.Metadata[key])
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write cell: %w", err)
			}
		}
	}

	// A summary sheet records how the list was obtained.
	summary := "Summary"
	if _, err := f.NewSheet(summary); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	rows := [][]interface{}{
		{"url", result.URL},
		{"method", result.Method},
		{"status", string(result.Status)},
		{"confidence", result.Confidence},
		{"expected_count", result.ExpectedCount},
		{"actual_count", result.ActualCount},
		{"timestamp", result.Timestamp.Format("2006-01-02 15:04:05")},
	}
	for i, row := range rows {
		for col, v := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+1)
			if err := f.SetCellValue(summary, cell, v); err != nil {
				return fmt.Errorf("failed to write summary cell: %w", err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// metadataKeys collects every metadata key present across the records,
// sorted for stable column order.
func metadataKeys(records []dispatch.Record) []string {
	set := make(map[string]bool)
	for _, rec := range records {
		for key := range rec.Metadata {
			set[key] = true
		}
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
