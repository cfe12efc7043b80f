package models

import (
	"encoding/json"
	"math"
)

// Descriptive metric names accepted in analysis.statistical_metrics.
const (
	MetricMean   = "mean"
	MetricMedian = "median"
	MetricStdDev = "std_dev"
	MetricMin    = "min"
	MetricMax    = "max"
)

// DescriptiveMetrics lists every metric Describe knows how to compute.
var DescriptiveMetrics = []string{MetricMean, MetricMedian, MetricStdDev, MetricMin, MetricMax}

// StatisticsReport holds the outcome of analysing one measurement series.
// A nil field means the metric was not requested or could not be computed.
type StatisticsReport struct {
	Mean   *float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	Median *float64 `json:"median,omitempty" yaml:"median,omitempty"`
	StdDev *float64 `json:"std_dev,omitempty" yaml:"std_dev,omitempty"`
	Min    *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max    *float64 `json:"max,omitempty" yaml:"max,omitempty"`

	Skewness             *float64    `json:"skewness,omitempty" yaml:"skewness,omitempty"`
	Kurtosis             *float64    `json:"kurtosis,omitempty" yaml:"kurtosis,omitempty"`
	ConfidenceInterval95 *[2]float64 `json:"confidence_interval_95,omitempty" yaml:"confidence_interval_95,omitempty"`
	IsNormalDistribution *bool       `json:"is_normal_distribution,omitempty" yaml:"is_normal_distribution,omitempty"`
	OutlierCount         *int        `json:"outliers_count,omitempty" yaml:"outliers_count,omitempty"`
}

// HasDistribution reports whether distributional analysis results are present.
func (r StatisticsReport) HasDistribution() bool {
	return r.Skewness != nil || r.Kurtosis != nil || r.ConfidenceInterval95 != nil ||
		r.IsNormalDistribution != nil || r.OutlierCount != nil
}

// Merge copies every non-nil field of other into r.
func (r *StatisticsReport) Merge(other StatisticsReport) {
	if other.Mean != nil {
		r.Mean = other.Mean
	}
	if other.Median != nil {
		r.Median = other.Median
	}
	if other.StdDev != nil {
		r.StdDev = other.StdDev
	}
	if other.Min != nil {
		r.Min = other.Min
	}
	if other.Max != nil {
		r.Max = other.Max
	}
	if other.Skewness != nil {
		r.Skewness = other.Skewness
	}
	if other.Kurtosis != nil {
		r.Kurtosis = other.Kurtosis
	}
	if other.ConfidenceInterval95 != nil {
		r.ConfidenceInterval95 = other.ConfidenceInterval95
	}
	if other.IsNormalDistribution != nil {
		r.IsNormalDistribution = other.IsNormalDistribution
	}
	if other.OutlierCount != nil {
		r.OutlierCount = other.OutlierCount
	}
}

// DeviceStats is the per-device input of the accuracy ranking.
type DeviceStats struct {
	Mean   float64
	StdDev float64
}

// DeviceScore is the per-device output of the accuracy ranking.
type DeviceScore struct {
	Mean          float64 `json:"mean" yaml:"mean"`
	StdDev        float64 `json:"std_dev" yaml:"std_dev"`
	CV            float64 `json:"cv" yaml:"cv"`
	AccuracyScore float64 `json:"accuracy_score" yaml:"accuracy_score"`
}

// MarshalJSON writes non-finite scores as null since JSON has no infinity.
func (s DeviceScore) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Mean          float64  `json:"mean"`
		StdDev        float64  `json:"std_dev"`
		CV            *float64 `json:"cv"`
		AccuracyScore *float64 `json:"accuracy_score"`
	}{
		Mean:          s.Mean,
		StdDev:        s.StdDev,
		CV:            finite(s.CV),
		AccuracyScore: finite(s.AccuracyScore),
	})
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// AccuracyReport compares measurement stability across device types.
type AccuracyReport struct {
	PerDevice    map[string]DeviceScore `json:"per_device" yaml:"per_device"`
	MostReliable string                 `json:"most_reliable" yaml:"most_reliable"`
}
