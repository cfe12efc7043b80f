package statistics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"ammeter-tester/pkg/models"
)

// Describe computes exactly the requested subset of descriptive metrics.
// Standard deviation uses the population denominator. Unknown metric names
// are ignored and an empty series yields an empty report.
func Describe(values []float64, metrics []string) models.StatisticsReport {
	var report models.StatisticsReport
	if len(values) == 0 {
		return report
	}

	for _, metric := range metrics {
		switch metric {
		case models.MetricMean:
			report.Mean = ptr(stat.Mean(values, nil))
		case models.MetricMedian:
			report.Median = ptr(percentile(sorted(values), 50))
		case models.MetricStdDev:
			report.StdDev = ptr(stat.PopStdDev(values, nil))
		case models.MetricMin:
			report.Min = ptr(floats.Min(values))
		case models.MetricMax:
			report.Max = ptr(floats.Max(values))
		}
	}

	return report
}

// percentile returns the p-th percentile of an ascending series, linearly
// interpolating between the two closest ranks.
func percentile(sortedValues []float64, p float64) float64 {
	n := len(sortedValues)
	if n == 1 {
		return sortedValues[0]
	}

	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sortedValues[lo] + frac*(sortedValues[hi]-sortedValues[lo])
}

func sorted(values []float64) []float64 {
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)
	return s
}

func ptr[T any](v T) *T {
	return &v
}
