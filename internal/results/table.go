// Package results holds per-scenario evacuation times and their CSV form.
//
// In memory a column holds only the values it has; columns may differ in
// length. On disk the table is rectangular: a leading index column, one
// column per scenario, and empty cells where a column ran out of values.
// Values read back from disk carry NaN for empty cells.
package results

import (
	"fmt"
	"math"
)

// Column is one scenario's sample.
type Column struct {
	Name   string
	Values []float64
}

// Table is an ordered set of named columns.
type Table struct {
	Columns []Column
}

// Add appends a column. Names must be unique.
func (t *Table) Add(name string, values []float64) error {
	for _, c := range t.Columns {
		if c.Name == name {
			return fmt.Errorf("duplicate column %q", name)
		}
	}
	t.Columns = append(t.Columns, Column{Name: name, Values: append([]float64(nil), values...)})
	return nil
}

// Column returns the values of the named column.
func (t *Table) Column(name string) ([]float64, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c.Values, true
		}
	}
	return nil, false
}

// Names returns column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Rows returns the length of the longest column.
func (t *Table) Rows() int {
	n := 0
	for _, c := range t.Columns {
		n = max(n, len(c.Values))
	}
	return n
}

// DropMissing returns a copy keeping only rows where every column has a
// value: rows past the end of a short column, or holding NaN, are dropped.
func (t *Table) DropMissing() *Table {
	rows := t.Rows()
	keep := make([]bool, rows)
	for r := 0; r < rows; r++ {
		keep[r] = true
		for _, c := range t.Columns {
			if r >= len(c.Values) || math.IsNaN(c.Values[r]) {
				keep[r] = false
				break
			}
		}
	}
	out := &Table{Columns: make([]Column, len(t.Columns))}
	for i, c := range t.Columns {
		vals := make([]float64, 0, rows)
		for r := 0; r < len(c.Values); r++ {
			if keep[r] {
				vals = append(vals, c.Values[r])
			}
		}
		out.Columns[i] = Column{Name: c.Name, Values: vals}
	}
	return out
}
