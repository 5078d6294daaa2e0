package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pcer96/unified-hex/domain/models"
	"github.com/pierrec/lz4"
)

const lz4Ext = ".lz4"

// WriteCSV writes the frame with a header row. Paths ending in .lz4 are
// compressed.
func WriteCSV(path string, f models.Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var w io.Writer = file
	var zw *lz4.Writer
	if strings.HasSuffix(path, lz4Ext) {
		zw = lz4.NewWriter(file)
		w = zw
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns); err != nil {
		return err
	}
	record := make([]string, len(f.Columns))
	for _, row := range f.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = FormatValue(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("compress %s: %w", path, err)
		}
	}
	return file.Close()
}

// ReadCSV reads a file written by WriteCSV. Every value comes back as a string.
func ReadCSV(path string) (models.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return models.Frame{}, err
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(path, lz4Ext) {
		r = lz4.NewReader(file)
	}
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return models.Frame{}, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return models.Frame{}, fmt.Errorf("read %s: missing header", path)
	}

	f := models.Frame{Columns: records[0], Rows: make([][]interface{}, 0, len(records)-1)}
	for _, rec := range records[1:] {
		row := make([]interface{}, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		f.Rows = append(f.Rows, row)
	}
	return f, nil
}
