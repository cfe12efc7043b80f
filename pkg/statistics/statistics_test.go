package statistics

import (
	"bytes"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammeter-tester/pkg/models"
)

var steady = []float64{10.1, 9.8, 10.3, 9.9, 10.0, 10.2, 9.7, 10.4, 10.05, 9.95}

func TestDescribe(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	testCases := []struct {
		name    string
		metrics []string
		check   func(t *testing.T, r models.StatisticsReport)
	}{
		{
			name:    "All metrics",
			metrics: models.DescriptiveMetrics,
			check: func(t *testing.T, r models.StatisticsReport) {
				assert.InDelta(t, 5.0, *r.Mean, 1e-9)
				assert.InDelta(t, 4.5, *r.Median, 1e-9)
				assert.InDelta(t, 2.0, *r.StdDev, 1e-9)
				assert.Equal(t, 2.0, *r.Min)
				assert.Equal(t, 9.0, *r.Max)
			},
		},
		{
			name:    "Subset",
			metrics: []string{models.MetricMean, models.MetricStdDev},
			check: func(t *testing.T, r models.StatisticsReport) {
				assert.NotNil(t, r.Mean)
				assert.NotNil(t, r.StdDev)
				assert.Nil(t, r.Median)
				assert.Nil(t, r.Min)
				assert.Nil(t, r.Max)
			},
		},
		{
			name:    "Unknown metric ignored",
			metrics: []string{"variance", models.MetricMax},
			check: func(t *testing.T, r models.StatisticsReport) {
				assert.Equal(t, 9.0, *r.Max)
				assert.Nil(t, r.Mean)
			},
		},
		{
			name:    "No metrics",
			metrics: nil,
			check: func(t *testing.T, r models.StatisticsReport) {
				assert.Equal(t, models.StatisticsReport{}, r)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := Describe(values, tc.metrics)
			tc.check(t, r)
			assert.False(t, r.HasDistribution())
		})
	}
}

func TestDescribeMedianOddLength(t *testing.T) {
	r := Describe([]float64{3, 1, 2}, []string{models.MetricMedian})
	assert.Equal(t, 2.0, *r.Median)
}

func TestDescribeEmpty(t *testing.T) {
	assert.Equal(t, models.StatisticsReport{}, Describe(nil, models.DescriptiveMetrics))
}

func TestCountOutliers(t *testing.T) {
	testCases := []struct {
		name   string
		values []float64
		want   int
	}{
		{name: "Single spike", values: []float64{1, 2, 3, 4, 5, 100}, want: 1},
		{name: "Both tails", values: []float64{-100, 1, 2, 3, 4, 5, 100}, want: 2},
		{name: "None", values: steady, want: 0},
		{name: "Empty", values: nil, want: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CountOutliers(tc.values))
		})
	}
}

func TestAnalyzeDistribution(t *testing.T) {
	r, err := AnalyzeDistribution(steady)
	require.NoError(t, err)

	assert.InDelta(t, 0.1336997, *r.Skewness, 1e-6)
	assert.InDelta(t, -0.8717949, *r.Kurtosis, 1e-6)
	assert.InDelta(t, 9.8838183, r.ConfidenceInterval95[0], 1e-5)
	assert.InDelta(t, 10.1961817, r.ConfidenceInterval95[1], 1e-5)
	require.NotNil(t, r.IsNormalDistribution)
	assert.True(t, *r.IsNormalDistribution)
	assert.Equal(t, 0, *r.OutlierCount)
	assert.Nil(t, r.Mean)
}

func TestAnalyzeDistributionNotNormal(t *testing.T) {
	r, err := AnalyzeDistribution([]float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 50})
	require.NoError(t, err)

	assert.InDelta(t, 2.6666667, *r.Skewness, 1e-6)
	assert.InDelta(t, 5.1111111, *r.Kurtosis, 1e-6)
	require.NotNil(t, r.IsNormalDistribution)
	assert.False(t, *r.IsNormalDistribution)
	assert.Equal(t, 1, *r.OutlierCount)
}

func TestAnalyzeDistributionShortSeries(t *testing.T) {
	for n := MinDistributionSamples; n < MinNormalitySamples; n++ {
		values := []float64{1, 2, 3, 4, 5, 100, 7}[:n]

		r, err := AnalyzeDistribution(values)
		assert.ErrorIs(t, err, ErrNormalityUndefined, "n=%d", n)
		assert.False(t, r.HasDistribution(), "n=%d", n)
	}
}

func TestAnalyzeDistributionErrors(t *testing.T) {
	testCases := []struct {
		name   string
		values []float64
		want   error
	}{
		{name: "Empty", values: nil, want: ErrInsufficientSamples},
		{name: "Two samples", values: []float64{1, 2}, want: ErrInsufficientSamples},
		{name: "Constant", values: []float64{3, 3, 3, 3, 3, 3, 3, 3}, want: ErrZeroVariance},
		{name: "NaN", values: []float64{1, math.NaN(), 3}, want: ErrNonFinite},
		{name: "Infinity", values: []float64{1, 2, math.Inf(1)}, want: ErrNonFinite},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := AnalyzeDistribution(tc.values)
			assert.ErrorIs(t, err, tc.want)
			assert.False(t, r.HasDistribution())
		})
	}
}

func TestAnalyze(t *testing.T) {
	testCases := []struct {
		name             string
		values           []float64
		wantDistribution bool
		wantLog          string
	}{
		{name: "Full analysis", values: steady, wantDistribution: true},
		{name: "Too few samples", values: []float64{1, 2}, wantLog: "level=WARN"},
		{name: "Too few samples for normality", values: []float64{1, 2, 3, 4, 5}, wantLog: "level=WARN"},
		{name: "Zero variance", values: []float64{2, 2, 2, 2}, wantLog: "level=ERROR"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			r := NewAnalyzer(nil, logger).Analyze(tc.values)

			require.NotNil(t, r.Mean)
			require.NotNil(t, r.Median)
			require.NotNil(t, r.StdDev)
			require.NotNil(t, r.Min)
			require.NotNil(t, r.Max)
			assert.Equal(t, tc.wantDistribution, r.HasDistribution())
			if tc.wantLog != "" {
				assert.Contains(t, buf.String(), tc.wantLog)
			}
		})
	}
}
