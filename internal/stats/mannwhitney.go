package stats

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Alternative names the alternative hypothesis of a rank test.
type Alternative string

const (
	TwoSided Alternative = "two-sided"
	Less     Alternative = "less"
	Greater  Alternative = "greater"
)

// ParseAlternative validates s.
func ParseAlternative(s string) (Alternative, error) {
	switch a := Alternative(s); a {
	case TwoSided, Less, Greater:
		return a, nil
	default:
		return "", fmt.Errorf("unknown alternative %q (want two-sided, less or greater)", s)
	}
}

// exactLimit is the largest sample for which an exact p-value is computed
// when the other sample is larger than it.
const exactLimit = 8

// MannWhitney is the result of a Mann-Whitney U test.
type MannWhitney struct {
	U      float64 // U statistic of the first sample
	PValue float64
	Exact  bool
}

// MannWhitneyU tests whether x and y come from the same distribution.
// Less means x is stochastically less than y. The p-value is exact when one
// sample has at most 8 values and there are no ties; otherwise it uses the
// normal approximation with tie and continuity correction.
func MannWhitneyU(x, y []float64, alt Alternative) (MannWhitney, error) {
	if len(x) == 0 || len(y) == 0 {
		return MannWhitney{}, ErrEmptySample
	}
	if floats.HasNaN(x) || floats.HasNaN(y) {
		return MannWhitney{}, fmt.Errorf("sample contains missing values")
	}
	if _, err := ParseAlternative(string(alt)); err != nil {
		return MannWhitney{}, err
	}

	n1, n2 := len(x), len(y)
	ranks, tieSizes := rank(append(append([]float64(nil), x...), y...))
	r1 := floats.Sum(ranks[:n1])
	u1 := r1 - float64(n1*(n1+1))/2
	u2 := float64(n1*n2) - u1

	hasTies := false
	for _, t := range tieSizes {
		if t > 1 {
			hasTies = true
			break
		}
	}

	res := MannWhitney{U: u1}
	if (n1 > exactLimit && n2 > exactLimit) || hasTies {
		res.PValue = asymptoticP(u1, u2, n1, n2, tieSizes, alt)
	} else {
		res.Exact = true
		res.PValue = exactP(u1, n1, n2, alt)
	}
	return res, nil
}

// rank returns average ranks (1-based) and the size of every tie group.
func rank(values []float64) ([]float64, []int) {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks := make([]float64, len(values))
	var ties []int
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		ties = append(ties, j-i+1)
		i = j + 1
	}
	return ranks, ties
}

func asymptoticP(u1, u2 float64, n1, n2 int, tieSizes []int, alt Alternative) float64 {
	n := float64(n1 + n2)
	var tieTerm float64
	for _, t := range tieSizes {
		tf := float64(t)
		tieTerm += tf*tf*tf - tf
	}
	mu := float64(n1*n2) / 2
	sigma := math.Sqrt(float64(n1*n2) / 12 * ((n + 1) - tieTerm/(n*(n-1))))
	if sigma == 0 {
		return 1
	}

	var u float64
	switch alt {
	case Greater:
		u = u1
	case Less:
		u = u2
	default:
		u = math.Max(u1, u2)
	}
	z := (u - mu - 0.5) / sigma
	p := distuv.UnitNormal.Survival(z)
	if alt == TwoSided {
		p *= 2
	}
	return math.Min(p, 1)
}

func exactP(u1 float64, n1, n2 int, alt Alternative) float64 {
	counts := uCounts(n1, n2)
	var total float64
	for _, c := range counts {
		total += c
	}
	u := int(math.Round(u1))
	cdf := func(k int) float64 { // P(U <= k)
		var s float64
		for i := 0; i <= k && i < len(counts); i++ {
			s += counts[i]
		}
		return s / total
	}
	less := cdf(u)
	greater := 1 - cdf(u-1)
	switch alt {
	case Less:
		return less
	case Greater:
		return greater
	default:
		return math.Min(1, 2*math.Min(less, greater))
	}
}

// uCounts returns, for every u in 0..n1*n2, the number of arrangements of n1
// and n2 untied observations whose U statistic is u.
func uCounts(n1, n2 int) []float64 {
	// f[m][n][u] = f[m-1][n][u-n] + f[m][n-1][u]
	prev := make([][]float64, n2+1)
	for n := range prev {
		prev[n] = []float64{1} // m = 0: only u = 0
	}
	for m := 1; m <= n1; m++ {
		cur := make([][]float64, n2+1)
		cur[0] = []float64{1}
		for n := 1; n <= n2; n++ {
			row := make([]float64, m*n+1)
			for u := range row {
				if u-n >= 0 && u-n < len(prev[n]) {
					row[u] += prev[n][u-n]
				}
				if u < len(cur[n-1]) {
					row[u] += cur[n-1][u]
				}
			}
			cur[n] = row
		}
		prev = cur
	}
	return prev[n2]
}
