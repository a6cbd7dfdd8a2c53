package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParseBatchFile reads a batch expense file (.csv or .xlsx) into row field
// maps keyed by the canonical column names. The header set must exactly
// match the 13 documented columns; a missing or unrecognized column fails
// the entire file. Rows themselves are not validated here, each is evaluated
// independently downstream.
func ParseBatchFile(r io.Reader, filename string) ([]map[string]string, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".csv"):
		return parseCSV(r)
	case strings.HasSuffix(strings.ToLower(filename), ".xlsx"):
		return parseXLSX(r)
	default:
		return nil, fmt.Errorf("unsupported batch file type: %s (want .csv or .xlsx)", filename)
	}
}

func parseCSV(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("batch file is empty")
	}
	return rowsFromRecords(records)
}

func parseXLSX(r io.Reader) ([]map[string]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("batch file is empty")
	}
	return rowsFromRecords(records)
}

// rowsFromRecords validates the header record against the documented schema
// and zips the remaining records into field maps.
func rowsFromRecords(records [][]string) ([]map[string]string, error) {
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}

	if err := validateHeader(header); err != nil {
		return nil, err
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		if isBlankRecord(record) {
			continue
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// validateHeader requires the header set to exactly equal the documented
// 13-column schema, order-independent and case-sensitive.
func validateHeader(header []string) error {
	expected := make(map[string]bool, len(BatchColumns))
	for _, col := range BatchColumns {
		expected[col] = true
	}

	seen := make(map[string]bool, len(header))
	var unrecognized []string
	for _, col := range header {
		if !expected[col] {
			unrecognized = append(unrecognized, col)
			continue
		}
		seen[col] = true
	}

	var missing []string
	for _, col := range BatchColumns {
		if !seen[col] {
			missing = append(missing, col)
		}
	}

	if len(missing) == 0 && len(unrecognized) == 0 {
		return nil
	}

	sort.Strings(missing)
	sort.Strings(unrecognized)
	issues := make([]FieldIssue, 0, len(missing)+len(unrecognized))
	for _, col := range missing {
		issues = append(issues, FieldIssue{Field: col, Reason: "required column is missing"})
	}
	for _, col := range unrecognized {
		issues = append(issues, FieldIssue{Field: col, Reason: "unrecognized column"})
	}
	return &SchemaError{Issues: issues}
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
