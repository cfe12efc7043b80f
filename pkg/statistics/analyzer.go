package statistics

import (
	"errors"
	"io"
	"log/slog"

	"ammeter-tester/pkg/models"
)

// Analyzer combines descriptive and distributional analysis of a series.
type Analyzer struct {
	metrics []string
	logger  *slog.Logger
}

// NewAnalyzer returns an Analyzer computing the given descriptive metrics.
// An empty metric list selects every descriptive metric.
func NewAnalyzer(metrics []string, logger *slog.Logger) *Analyzer {
	if len(metrics) == 0 {
		metrics = models.DescriptiveMetrics
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Analyzer{metrics: metrics, logger: logger}
}

// Analyze never fails. Distributional fields are present only when
// AnalyzeDistribution succeeded; failures are logged and the descriptive
// part is returned on its own.
func (a *Analyzer) Analyze(values []float64) models.StatisticsReport {
	a.logger.Info("Starting statistical analysis", "samples", len(values), "metrics", a.metrics)

	report := Describe(values, a.metrics)

	dist, err := AnalyzeDistribution(values)
	switch {
	case errors.Is(err, ErrInsufficientSamples), errors.Is(err, ErrNormalityUndefined):
		a.logger.Warn("Not enough samples for advanced statistical analysis",
			"samples", len(values), "reason", err)
	case err != nil:
		a.logger.Error("Advanced statistical analysis failed", "error", err)
	default:
		report.Merge(dist)
		a.logger.Debug("Distribution analysis completed",
			"skewness", *dist.Skewness,
			"kurtosis", *dist.Kurtosis,
			"outliers", *dist.OutlierCount)
	}

	a.logger.Info("Completed statistical analysis", "distribution", report.HasDistribution())
	return report
}
