package statistics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"ammeter-tester/pkg/models"
)

const (
	// MinDistributionSamples is the smallest series distributional analysis accepts.
	MinDistributionSamples = 3

	// MinNormalitySamples is the smallest series the omnibus normality test accepts.
	MinNormalitySamples = 8

	confidenceLevel = 0.95
	normalityAlpha  = 0.05
	tukeyFactor     = 1.5
)

var (
	ErrInsufficientSamples = errors.New("not enough samples for distributional analysis")
	ErrNormalityUndefined  = errors.New("normality test is undefined for this sample size")
	ErrZeroVariance        = errors.New("series has zero variance")
	ErrNonFinite           = errors.New("series contains non-finite values")
)

// AnalyzeDistribution computes skewness, excess kurtosis, the 95% confidence
// interval of the mean, a normality verdict and the Tukey outlier count.
//
// Either every computed field is returned or none is: on error the report is
// empty. ErrInsufficientSamples and ErrNormalityUndefined signal a series too
// short to analyse; callers should treat them as warnings and keep the
// descriptive statistics.
func AnalyzeDistribution(values []float64) (report models.StatisticsReport, err error) {
	n := len(values)
	if n < MinDistributionSamples {
		return report, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSamples, n, MinDistributionSamples)
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return report, ErrNonFinite
		}
	}

	defer func() {
		if r := recover(); r != nil {
			report = models.StatisticsReport{}
			err = fmt.Errorf("distribution analysis failed: %v", r)
		}
	}()

	mean := stat.Mean(values, nil)
	m2 := stat.Moment(2, values, nil)
	if m2 == 0 {
		return report, ErrZeroVariance
	}
	m3 := stat.Moment(3, values, nil)
	m4 := stat.Moment(4, values, nil)

	skewness := m3 / math.Pow(m2, 1.5)
	kurtosis := m4/(m2*m2) - 3

	low, high := confidenceInterval(values, mean)

	p, err := normalityPValue(float64(n), skewness, kurtosis+3)
	if err != nil {
		return models.StatisticsReport{}, err
	}

	result := models.StatisticsReport{
		Skewness:             ptr(skewness),
		Kurtosis:             ptr(kurtosis),
		ConfidenceInterval95: &[2]float64{low, high},
		IsNormalDistribution: ptr(p > normalityAlpha),
		OutlierCount:         ptr(CountOutliers(values)),
	}
	if err := checkFinite(result); err != nil {
		return models.StatisticsReport{}, err
	}

	return result, nil
}

// confidenceInterval returns the two-sided interval of the mean based on
// Student's t distribution with n-1 degrees of freedom.
func confidenceInterval(values []float64, mean float64) (float64, float64) {
	n := float64(len(values))
	sem := stat.StdErr(stat.StdDev(values, nil), n)
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: n - 1}.Quantile(1 - (1-confidenceLevel)/2)
	return mean - t*sem, mean + t*sem
}

// CountOutliers counts values outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR].
func CountOutliers(values []float64) int {
	if len(values) == 0 {
		return 0
	}

	s := sorted(values)
	q1 := percentile(s, 25)
	q3 := percentile(s, 75)
	iqr := q3 - q1
	lower, upper := q1-tukeyFactor*iqr, q3+tukeyFactor*iqr

	count := 0
	for _, v := range values {
		if v < lower || v > upper {
			count++
		}
	}
	return count
}

func checkFinite(r models.StatisticsReport) error {
	check := []float64{*r.Skewness, *r.Kurtosis, r.ConfidenceInterval95[0], r.ConfidenceInterval95[1]}
	for _, v := range check {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("distribution analysis produced a non-finite result: %v", v)
		}
	}
	return nil
}
