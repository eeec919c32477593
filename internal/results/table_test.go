package results

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func raggedTable(t *testing.T) *Table {
	t.Helper()
	tbl := &Table{}
	if err := tbl.Add("no-support", []float64{150, 161.5, 149}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Add("adaptive-support", []float64{120, 135}); err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestAdd_RejectsDuplicate(t *testing.T) {
	tbl := raggedTable(t)
	if err := tbl.Add("no-support", nil); err == nil {
		t.Error("expected duplicate column error")
	}
}

func TestWriteCSV_PadsShortColumns(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, raggedTable(t)); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	want := strings.Join([]string{
		",no-support,adaptive-support",
		"0,150,120",
		"1,161.5,135",
		"2,149,",
		"",
	}, "\n")
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSV_RoundTrip(t *testing.T) {
	src := raggedTable(t)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, src); err != nil {
		t.Fatal(err)
	}
	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if diff := cmp.Diff(src, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSV_UnnamedIndexAndFloatCells(t *testing.T) {
	in := ",no-support,staff-support\n0,150.0,\n1,,140.0\n2,151.0,142.0\n"
	got, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	staff, _ := got.Column("staff-support")
	if !math.IsNaN(staff[0]) || staff[1] != 140 {
		t.Errorf("staff-support = %v, want [NaN 140 142]", staff)
	}

	clean := got.DropMissing()
	want := &Table{Columns: []Column{
		{Name: "no-support", Values: []float64{151}},
		{Name: "staff-support", Values: []float64{142}},
	}}
	if diff := cmp.Diff(want, clean); diff != "" {
		t.Errorf("DropMissing mismatch (-want +got):\n%s", diff)
	}
}

func TestDropMissing_TruncatesToShortest(t *testing.T) {
	got := raggedTable(t).DropMissing()
	for _, c := range got.Columns {
		if len(c.Values) != 2 {
			t.Errorf("column %s has %d values, want 2", c.Name, len(c.Values))
		}
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":      "",
		"index only": "idx\n0\n",
		"bad number": ",a\n0,fast\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(in)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "experiment_results.csv")
	if err := WriteFile(path, raggedTable(t)); err != nil {
		t.Fatalf("first WriteFile: %v", err)
	}
	second := &Table{}
	_ = second.Add("staff-support", []float64{140})
	if err := WriteFile(path, second); err != nil {
		t.Fatalf("second WriteFile: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if diff := cmp.Diff([]string{"staff-support"}, got.Names()); diff != "" {
		t.Errorf("rerun should overwrite, names mismatch:\n%s", diff)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the results file, found %d entries", len(entries))
	}
}
