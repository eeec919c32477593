package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultPath is where a suite run writes its table.
const DefaultPath = "data/experiment_results.csv"

// WriteCSV writes the table with an unnamed leading index column.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	header := append([]string{""}, t.Names()...)
	if err := cw.Write(header); err != nil {
		return err
	}
	rows := t.Rows()
	for r := 0; r < rows; r++ {
		record := make([]string, 1+len(t.Columns))
		record[0] = strconv.Itoa(r)
		for i, c := range t.Columns {
			if r < len(c.Values) && !math.IsNaN(c.Values[r]) {
				record[i+1] = strconv.FormatFloat(c.Values[r], 'f', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile replaces path with the table. The file is written to a sibling
// temp file and renamed into place, so readers never see a partial table.
func WriteFile(path string, t *Table) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create results file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()
	if err = WriteCSV(f, t); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close results: %w", err)
	}
	if err = os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("replace results: %w", err)
	}
	return nil
}

// ReadCSV parses a table written by WriteCSV or any writer that leads with an
// unnamed index column. The index is discarded. Empty cells become NaN and
// trailing empty cells are trimmed, so written columns round-trip.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("results csv is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 {
		return nil, errors.New("results csv has no scenario columns")
	}
	t := &Table{Columns: make([]Column, len(header)-1)}
	for i, name := range header[1:] {
		t.Columns[i].Name = name
	}
	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for i := range t.Columns {
			cell := strings.TrimSpace(record[i+1])
			v := math.NaN()
			if cell != "" {
				v, err = strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, fmt.Errorf("line %d column %q: %w", line, t.Columns[i].Name, err)
				}
			}
			t.Columns[i].Values = append(t.Columns[i].Values, v)
		}
	}
	for i := range t.Columns {
		vals := t.Columns[i].Values
		for len(vals) > 0 && math.IsNaN(vals[len(vals)-1]) {
			vals = vals[:len(vals)-1]
		}
		t.Columns[i].Values = vals
	}
	return t, nil
}

// ReadFile reads a results CSV from disk.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results: %w", err)
	}
	defer f.Close()
	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
