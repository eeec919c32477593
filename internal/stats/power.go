package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat/distuv"
)

// Defaults for SampleSize.
const (
	DefaultAlpha = 0.05
	DefaultPower = 0.8
)

// ErrNoEffect is returned when a sample size is requested for a zero effect.
var ErrNoEffect = errors.New("effect size is zero")

// CohenD is the effect size of two samples from their means and standard
// deviations, pooled as sqrt((s1²+s2²)/2).
func CohenD(mean1, mean2, std1, std2 float64) float64 {
	pooled := math.Sqrt((std1*std1 + std2*std2) / 2)
	return (mean1 - mean2) / pooled
}

// SampleSize returns the number of observations per group a two-sided
// independent two-sample t-test with equal group sizes needs to detect the
// effect between the two samples at significance alpha with the given power.
// The result is fractional; round up for a trial count.
func SampleSize(mean1, mean2, std1, std2, alpha, power float64) (float64, error) {
	if alpha <= 0 || alpha >= 1 {
		return 0, fmt.Errorf("alpha %v outside (0, 1)", alpha)
	}
	if power <= alpha || power >= 1 {
		return 0, fmt.Errorf("power %v outside (alpha, 1)", power)
	}
	d := math.Abs(CohenD(mean1, mean2, std1, std2))
	if math.IsNaN(d) {
		return 0, fmt.Errorf("effect size undefined for std %v and %v", std1, std2)
	}
	if d == 0 {
		return 0, ErrNoEffect
	}
	if math.IsInf(d, 0) {
		return 2, nil
	}

	lo, hi := 2.0, 4.0
	for TTestPower(d, hi, alpha) < power {
		lo, hi = hi, hi*2
		if hi > 1e9 {
			return 0, fmt.Errorf("no sample size below %g reaches power %v", hi, power)
		}
	}
	if TTestPower(d, lo, alpha) >= power {
		return lo, nil
	}
	for i := 0; i < 200 && hi-lo > 1e-9; i++ {
		mid := (lo + hi) / 2
		if TTestPower(d, mid, alpha) < power {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}

// TTestPower is the power of a two-sided two-sample t-test with n
// observations per group for effect size d.
func TTestPower(d, n, alpha float64) float64 {
	df := 2*n - 2
	nc := d * math.Sqrt(n/2)
	crit := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Quantile(1 - alpha/2)
	return 1 - noncentralTCDF(crit, df, nc) + noncentralTCDF(-crit, df, nc)
}

// noncentralTCDF evaluates P(T <= t) for T = (Z+nc)/sqrt(V/df) with
// V ~ chi-squared(df), as E_V[Φ(t·sqrt(V/df) - nc)].
func noncentralTCDF(t, df, nc float64) float64 {
	const points = 4001 // odd, for Simpson's rule
	chi := distuv.ChiSquared{K: df}
	upper := chi.Quantile(1 - 1e-12)
	norm := distuv.UnitNormal

	x := make([]float64, points)
	f := make([]float64, points)
	step := upper / float64(points-1)
	for i := range x {
		v := float64(i) * step
		x[i] = v
		dens := chi.Prob(v)
		if math.IsNaN(dens) || math.IsInf(dens, 0) {
			dens = 0 // density pole or 0·log(0) at v = 0
		}
		f[i] = norm.CDF(t*math.Sqrt(v/df)-nc) * dens
	}
	p := integrate.Simpsons(x, f)
	return math.Min(1, math.Max(0, p))
}
