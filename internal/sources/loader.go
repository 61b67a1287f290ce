// Package sources reads the human-maintained source sheet and turns it into
// validated models.Source records.
package sources

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"regwatch/internal/logger"
	"regwatch/internal/models"
)

var (
	// ErrSourceFileNotFound is fatal for the caller: without sources there is nothing to crawl.
	ErrSourceFileNotFound = errors.New("source file not found")
	ErrUnsupportedFormat  = errors.New("unsupported source file format")
)

// headerRowNumber is the spreadsheet row holding column names; data starts below it.
const headerRowNumber = 1

// RowError records why one spreadsheet row was dropped.
type RowError struct {
	Row    int
	Errors []models.FieldError
}

// Result is the outcome of loading a source file.
type Result struct {
	// Sources holds the enabled, valid sources in file order.
	Sources   []models.Source
	TotalRows int
	Invalid   []RowError
	Disabled  int
}

type Loader struct {
	log logger.Logger
}

func NewLoader(log logger.Logger) *Loader {
	return &Loader{log: log}
}

// Load reads path (.xlsx, .xlsm or .csv) and validates every data row.
// Bad rows are logged and skipped; only a missing or unreadable file fails.
func (l *Loader) Load(path string) (*Result, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.log.Error("Source file not found", logger.String("path", path))
			return nil, fmt.Errorf("%w: %s: %w", ErrSourceFileNotFound, path, err)
		}
		return nil, fmt.Errorf("stat source file: %w", err)
	}

	l.log.Info("Loading sources", logger.String("path", path))

	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}

	result := &Result{Sources: []models.Source{}}
	if len(rows) <= 1 {
		l.log.Warn("Source file is empty", logger.String("path", path))
		return result, nil
	}

	header := rows[0]
	firstRowByID := make(map[int]int)
	for i, cells := range rows[1:] {
		rowNumber := headerRowNumber + 1 + i
		if isBlank(cells) {
			continue
		}
		result.TotalRows++

		src, err := models.NewSource(rowToRecord(header, cells))
		if err != nil {
			rowErr := RowError{Row: rowNumber}
			var verr *models.ValidationError
			if errors.As(err, &verr) {
				rowErr.Errors = verr.Errors
			}
			l.log.Error("Validation error in source row",
				logger.Int("row", rowNumber), logger.Error(err))
			result.Invalid = append(result.Invalid, rowErr)
			continue
		}

		if first, seen := firstRowByID[src.ID]; seen {
			l.log.Warn("Duplicate source_id",
				logger.Int("source_id", src.ID),
				logger.Int("row", rowNumber),
				logger.Int("first_row", first))
		} else {
			firstRowByID[src.ID] = rowNumber
		}

		if !src.Enabled {
			l.log.Info("Skipping disabled source",
				logger.Int("row", rowNumber), logger.String("source", src.Name))
			result.Disabled++
			continue
		}

		result.Sources = append(result.Sources, src)
	}

	if result.TotalRows == 0 {
		l.log.Warn("Source file is empty", logger.String("path", path))
	}

	l.log.Info("Loaded sources",
		logger.Int("valid", len(result.Sources)),
		logger.Int("total_rows", result.TotalRows),
		logger.Int("invalid", len(result.Invalid)),
		logger.Int("disabled", result.Disabled))

	return result, nil
}

// FilterByFrequency keeps the sources crawled at freq (case-insensitive).
func FilterByFrequency(srcs []models.Source, freq string) ([]models.Source, error) {
	want, err := models.NormalizeFrequency(freq)
	if err != nil {
		return nil, err
	}
	out := make([]models.Source, 0, len(srcs))
	for _, s := range srcs {
		if s.Frequency == want {
			out = append(out, s)
		}
	}
	return out, nil
}

func readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readExcel(path)
	case ".csv":
		return readCSV(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func readExcel(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, nil
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, rec)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

// rowToRecord maps header names to cells. Every named column yields a key,
// so an unexpected column rejects the row even when its cell is empty.
func rowToRecord(header, cells []string) map[string]string {
	rec := make(map[string]string, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if i < len(cells) {
			rec[name] = cells[i]
		} else {
			rec[name] = ""
		}
	}
	return rec
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
