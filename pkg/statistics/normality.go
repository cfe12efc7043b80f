package statistics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// normalityPValue runs D'Agostino and Pearson's omnibus test, combining the
// skewness and kurtosis z-scores into a chi-squared statistic with two
// degrees of freedom. skew is the biased sample skewness and kurt the
// non-excess (Pearson) kurtosis.
func normalityPValue(n, skew, kurt float64) (float64, error) {
	if n < MinNormalitySamples {
		return 0, fmt.Errorf("%w: have %v, need %d", ErrNormalityUndefined, n, MinNormalitySamples)
	}

	zs := skewZScore(n, skew)
	zk, err := kurtosisZScore(n, kurt)
	if err != nil {
		return 0, err
	}

	k2 := zs*zs + zk*zk
	if math.IsNaN(k2) {
		return 0, fmt.Errorf("normality statistic is undefined")
	}

	return distuv.ChiSquared{K: 2}.Survival(k2), nil
}

func skewZScore(n, skew float64) float64 {
	y := skew * math.Sqrt((n+1)*(n+3)/(6*(n-2)))
	beta2 := 3 * (n*n + 27*n - 70) * (n + 1) * (n + 3) / ((n - 2) * (n + 5) * (n + 7) * (n + 9))
	w2 := -1 + math.Sqrt(2*(beta2-1))
	delta := 1 / math.Sqrt(0.5*math.Log(w2))
	alpha := math.Sqrt(2 / (w2 - 1))
	if y == 0 {
		y = 1
	}
	return delta * math.Log(y/alpha+math.Sqrt((y/alpha)*(y/alpha)+1))
}

func kurtosisZScore(n, kurt float64) (float64, error) {
	e := 3 * (n - 1) / (n + 1)
	varb2 := 24 * n * (n - 2) * (n - 3) / ((n + 1) * (n + 1) * (n + 3) * (n + 5))
	x := (kurt - e) / math.Sqrt(varb2)

	sqrtBeta1 := 6 * (n*n - 5*n + 2) / ((n + 7) * (n + 9)) * math.Sqrt(6*(n+3)*(n+5)/(n*(n-2)*(n-3)))
	a := 6 + 8/sqrtBeta1*(2/sqrtBeta1+math.Sqrt(1+4/(sqrtBeta1*sqrtBeta1)))

	term1 := 1 - 2/(9*a)
	denom := 1 + x*math.Sqrt(2/(a-4))
	if denom == 0 {
		return 0, fmt.Errorf("kurtosis test is undefined for this sample")
	}
	term2 := math.Copysign(math.Cbrt((1-2/a)/math.Abs(denom)), denom)

	return (term1 - term2) / math.Sqrt(2/(9*a)), nil
}
