package analyser

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownCategory is returned when a value was not seen at fit time.
var ErrUnknownCategory = errors.New("unknown category")

// Encoder one-hot encodes rows of categorical values. Categories are learned
// per column by Fit and kept in sorted order.
type Encoder struct {
	Columns    []string   `json:"columns"`
	Categories [][]string `json:"categories"`
}

// FitEncoder learns the categories of every column from rows.
func FitEncoder(columns []string, rows [][]string) (*Encoder, error) {
	if len(columns) == 0 {
		return nil, errors.New("encoder needs at least one column")
	}
	if len(rows) == 0 {
		return nil, errors.New("encoder needs at least one row")
	}
	seen := make([]map[string]struct{}, len(columns))
	for i := range seen {
		seen[i] = make(map[string]struct{})
	}
	for r, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", r, len(row), len(columns))
		}
		for i, v := range row {
			seen[i][v] = struct{}{}
		}
	}
	e := &Encoder{Columns: append([]string(nil), columns...), Categories: make([][]string, len(columns))}
	for i, set := range seen {
		cats := make([]string, 0, len(set))
		for v := range set {
			cats = append(cats, v)
		}
		sort.Strings(cats)
		e.Categories[i] = cats
	}
	return e, nil
}

// ColumnNames returns the columns in the order Transform expects them.
func (e *Encoder) ColumnNames() []string { return e.Columns }

// Width is the length of an encoded row.
func (e *Encoder) Width() int {
	n := 0
	for _, c := range e.Categories {
		n += len(c)
	}
	return n
}

// FeatureNames returns "column=category" for every encoded position.
func (e *Encoder) FeatureNames() []string {
	names := make([]string, 0, e.Width())
	for i, col := range e.Columns {
		for _, c := range e.Categories[i] {
			names = append(names, col+"="+c)
		}
	}
	return names
}

// Transform encodes one row.
func (e *Encoder) Transform(row []string) ([]float64, error) {
	if len(row) != len(e.Columns) {
		return nil, fmt.Errorf("row has %d values, encoder expects %d", len(row), len(e.Columns))
	}
	out := make([]float64, e.Width())
	offset := 0
	for i, v := range row {
		cats := e.Categories[i]
		j := sort.SearchStrings(cats, v)
		if j == len(cats) || cats[j] != v {
			return nil, fmt.Errorf("%w: %s=%q", ErrUnknownCategory, e.Columns[i], v)
		}
		out[offset+j] = 1
		offset += len(cats)
	}
	return out, nil
}

// TransformAll encodes every row.
func (e *Encoder) TransformAll(rows [][]string) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		x, err := e.Transform(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = x
	}
	return out, nil
}

// LoadEncoder reads an encoder file written by Save.
func LoadEncoder(path string) (*Encoder, error) {
	var e Encoder
	if err := readJSON(path, &e); err != nil {
		return nil, fmt.Errorf("load encoder: %w", err)
	}
	if len(e.Columns) == 0 || len(e.Columns) != len(e.Categories) {
		return nil, fmt.Errorf("load encoder %s: %d columns but %d category lists", path, len(e.Columns), len(e.Categories))
	}
	for i := range e.Categories {
		if !sort.StringsAreSorted(e.Categories[i]) {
			return nil, fmt.Errorf("load encoder %s: categories of %s are not sorted", path, e.Columns[i])
		}
	}
	return &e, nil
}

// Save writes the encoder as JSON.
func (e *Encoder) Save(path string) error {
	return writeJSON(path, e)
}
