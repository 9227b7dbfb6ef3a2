// Package sheet reads prompt queues from and writes results to xlsx workbooks.
package sheet

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Column headers used in input and output workbooks.
const (
	ColumnRequests          = "Requests"
	ColumnResponses         = "Responses"
	ColumnRequestWordCount  = "Requests Word Count"
	ColumnResponseWordCount = "Responses Word Count"
)

const outputSheet = "Sheet1"

var (
	// ErrMissingColumn is returned when a workbook has no Requests column.
	ErrMissingColumn = errors.New("missing column")
	// ErrNothingToSave is returned by Save when there are no responses.
	ErrNothingToSave = errors.New("there are no responses to save")
	// ErrCellTooLong is returned by Save when a request or response exceeds
	// the xlsx cell limit of excelize.TotalCellChars characters.
	ErrCellTooLong = errors.New("text exceeds the xlsx cell limit")
)

// Row is one saved request/response pair.
type Row struct {
	Request           string `json:"request"`
	Response          string `json:"response"`
	RequestWordCount  int    `json:"request_word_count"`
	ResponseWordCount int    `json:"response_word_count"`
}

// WordCount returns the number of whitespace-delimited tokens in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Load reads the Requests column of the first sheet in the workbook at path.
// Rows keep their order; empty cells yield empty prompts.
func Load(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()
	return requestsFrom(f)
}

// Read is Load for an in-memory workbook.
func Read(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()
	return requestsFrom(f)
}

func requestsFrom(f *excelize.File) ([]string, error) {
	rows, err := firstSheetRows(f)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w %q: workbook is empty", ErrMissingColumn, ColumnRequests)
	}

	cols := columnIndex(rows[0])
	idx, ok := cols[ColumnRequests]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrMissingColumn, ColumnRequests)
	}

	prompts := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		prompts = append(prompts, cell(row, idx))
	}
	return prompts, nil
}

// Save writes one row per response to a new workbook at path, pairing
// responses[i] with requests[i]. When a run stopped early only the completed
// pairs are written.
func Save(path string, requests, responses []string) error {
	f, err := build(requests, responses)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook %s: %w", path, err)
	}
	return nil
}

// Write is Save to an io.Writer.
func Write(w io.Writer, requests, responses []string) error {
	f, err := build(requests, responses)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func build(requests, responses []string) (*excelize.File, error) {
	if len(responses) == 0 {
		return nil, ErrNothingToSave
	}
	if len(responses) > len(requests) {
		return nil, fmt.Errorf("%d responses for %d requests", len(responses), len(requests))
	}

	f := excelize.NewFile()
	headers := []string{ColumnRequests, ColumnResponses, ColumnRequestWordCount, ColumnResponseWordCount}
	for i, h := range headers {
		if err := setCell(f, i, 1, h); err != nil {
			f.Close()
			return nil, err
		}
	}

	for i, resp := range responses {
		req := requests[i]
		if err := checkLength(i+2, ColumnRequests, req); err != nil {
			f.Close()
			return nil, err
		}
		if err := checkLength(i+2, ColumnResponses, resp); err != nil {
			f.Close()
			return nil, err
		}
		values := []any{req, resp, WordCount(req), WordCount(resp)}
		for col, v := range values {
			if err := setCell(f, col, i+2, v); err != nil {
				f.Close()
				return nil, err
			}
		}
	}
	return f, nil
}

// ReadResults reads a workbook previously written by Save.
func ReadResults(path string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()

	rows, err := firstSheetRows(f)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w %q: workbook is empty", ErrMissingColumn, ColumnRequests)
	}

	cols := columnIndex(rows[0])
	for _, name := range []string{ColumnRequests, ColumnResponses} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, name)
		}
	}

	out := make([]Row, 0, len(rows)-1)
	for _, row := range rows[1:] {
		r := Row{
			Request:  cell(row, cols[ColumnRequests]),
			Response: cell(row, cols[ColumnResponses]),
		}
		r.RequestWordCount = countCell(row, cols, ColumnRequestWordCount, r.Request)
		r.ResponseWordCount = countCell(row, cols, ColumnResponseWordCount, r.Response)
		out = append(out, r)
	}
	return out, nil
}

func firstSheetRows(f *excelize.File) ([][]string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func columnIndex(headers []string) map[string]int {
	cols := make(map[string]int, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	return cols
}

func cell(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}

// countCell returns the stored count, falling back to counting text when
// the column is absent or not a number.
func countCell(row []string, cols map[string]int, name, text string) int {
	if idx, ok := cols[name]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(cell(row, idx))); err == nil {
			return n
		}
	}
	return WordCount(text)
}

// checkLength rejects text that excelize would otherwise cut to fit a cell.
func checkLength(row int, column, text string) error {
	if n := utf8.RuneCountInString(text); n > excelize.TotalCellChars {
		return fmt.Errorf("row %d %s: %d characters: %w", row, column, n, ErrCellTooLong)
	}
	return nil
}

func setCell(f *excelize.File, col, row int, v any) error {
	name, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetCellValue(outputSheet, name, v); err != nil {
		return fmt.Errorf("setting %s: %w", name, err)
	}
	return nil
}
