// Package importfile prepares a product file for upload. CSV files are
// checked for a sku column; spreadsheets are converted to CSV first.
package importfile

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const skuColumn = "sku"

var (
	ErrEmptyFile  = errors.New("file is empty")
	ErrMissingSKU = errors.New("CSV is missing 'sku' column")
	ErrNoSheets   = errors.New("spreadsheet has no sheets")
)

// File is an upload-ready CSV.
type File struct {
	Name    string
	Content []byte
	// Converted is set when Content was produced from a spreadsheet.
	Converted bool
}

// Prepare reads the file at path and returns it as CSV, converting
// spreadsheets and checking the header.
func Prepare(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return PrepareContent(filepath.Base(path), content)
}

// PrepareContent is Prepare for content already in memory.
func PrepareContent(name string, content []byte) (*File, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, ErrEmptyFile
	}

	f := &File{Name: name, Content: content}
	if IsExcelFile(content) {
		converted, err := ExcelToCSV(content)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to convert %s to CSV", name)
		}
		f.Content = converted
		f.Name = strings.TrimSuffix(name, filepath.Ext(name)) + ".csv"
		f.Converted = true
		zap.S().Named("importfile").Debugw("converted spreadsheet", "from", name, "to", f.Name, "bytes", len(converted))
	}

	if err := CheckHeader(f.Content); err != nil {
		return nil, err
	}
	return f, nil
}

// CheckHeader verifies that the first CSV record names a sku column.
// Column names are compared case-insensitively.
func CheckHeader(content []byte) error {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return ErrEmptyFile
	}
	if err != nil {
		return errors.Wrap(err, "failed to read CSV header")
	}
	for _, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), skuColumn) {
			return nil
		}
	}
	return ErrMissingSKU
}

// IsExcelFile reports whether content is an OOXML spreadsheet.
func IsExcelFile(content []byte) bool {
	if len(content) < 2 {
		return false
	}

	if content[0] == 0x50 && content[1] == 0x4B {
		f, err := excelize.OpenReader(bytes.NewReader(content))
		if err != nil {
			return false
		}
		defer f.Close()
		return true
	}

	return false
}

// ExcelToCSV renders the first sheet of a spreadsheet as CSV. Short rows are
// padded to the header width.
func ExcelToCSV(content []byte) ([]byte, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open spreadsheet")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sheet %s", sheets[0])
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}

	width := len(rows[0])
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		for len(row) < width {
			row = append(row, "")
		}
		if err := w.Write(row); err != nil {
			return nil, errors.Wrap(err, "failed to write CSV")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "failed to write CSV")
	}
	return buf.Bytes(), nil
}
