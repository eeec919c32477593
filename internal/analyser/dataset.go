package analyser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Training data produced by the NetLogo request-for-help experiment.
const (
	RequestForHelpSuffix = "_request-for-help-results.csv"
	LabelColumn          = "offer-help"
)

// Dataset is a table of categorical features with a binary label.
type Dataset struct {
	Columns []string
	Rows    [][]string
	Labels  []float64 // 0 or 1
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Rows) }

func (d *Dataset) subset(idx []int) *Dataset {
	out := &Dataset{Columns: d.Columns, Rows: make([][]string, len(idx)), Labels: make([]float64, len(idx))}
	for i, j := range idx {
		out.Rows[i] = d.Rows[j]
		out.Labels[i] = d.Labels[j]
	}
	return out
}

// ReadDataset parses one CSV with a header row. Every column other than
// label is a categorical feature.
func ReadDataset(r io.Reader, label string) (*Dataset, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	labelIdx := -1
	var cols []string
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == label {
			labelIdx = i
			continue
		}
		cols = append(cols, h)
	}
	if labelIdx < 0 {
		return nil, fmt.Errorf("label column %q not found", label)
	}

	d := &Dataset{Columns: cols}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		y, err := parseLabel(rec[labelIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := make([]string, 0, len(cols))
		for i, v := range rec {
			if i != labelIdx {
				row = append(row, strings.TrimSpace(v))
			}
		}
		d.Rows = append(d.Rows, row)
		d.Labels = append(d.Labels, y)
	}
	return d, nil
}

func parseLabel(s string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "1.0", "true":
		return 1, nil
	case "0", "0.0", "false":
		return 0, nil
	}
	return 0, fmt.Errorf("label %q is not binary", s)
}

// LoadRequestForHelp reads every "<i>_request-for-help-results.csv" in dir,
// in index order, and concatenates them.
func LoadRequestForHelp(dir string) (*Dataset, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+RequestForHelpSuffix))
	if err != nil {
		return nil, err
	}
	type indexed struct {
		i    int
		path string
	}
	var files []indexed
	for _, m := range matches {
		i, err := strconv.Atoi(strings.TrimSuffix(filepath.Base(m), RequestForHelpSuffix))
		if err != nil {
			continue
		}
		files = append(files, indexed{i, m})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no *%s files in %s", RequestForHelpSuffix, dir)
	}
	sort.Slice(files, func(a, b int) bool { return files[a].i < files[b].i })

	var all *Dataset
	for _, f := range files {
		d, err := readDatasetFile(f.path)
		if err != nil {
			return nil, err
		}
		if all == nil {
			all = d
			continue
		}
		if strings.Join(d.Columns, ",") != strings.Join(all.Columns, ",") {
			return nil, fmt.Errorf("%s: columns %v differ from %v", f.path, d.Columns, all.Columns)
		}
		all.Rows = append(all.Rows, d.Rows...)
		all.Labels = append(all.Labels, d.Labels...)
	}
	return all, nil
}

func readDatasetFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, err := ReadDataset(f, LabelColumn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// StratifiedSplit shuffles each class with seed and moves testFraction of it
// (rounded up) to the test set, keeping class proportions in both halves.
func StratifiedSplit(d *Dataset, testFraction float64, seed uint64) (train, test *Dataset, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction %v outside (0, 1)", testFraction)
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	var trainIdx, testIdx []int
	for _, class := range []float64{0, 1} {
		var idx []int
		for i, y := range d.Labels {
			if y == class {
				idx = append(idx, i)
			}
		}
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		nTest := int(math.Ceil(float64(len(idx)) * testFraction))
		testIdx = append(testIdx, idx[:nTest]...)
		trainIdx = append(trainIdx, idx[nTest:]...)
	}
	sort.Ints(trainIdx)
	sort.Ints(testIdx)
	return d.subset(trainIdx), d.subset(testIdx), nil
}
