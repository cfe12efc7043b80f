// Package tester runs complete ammeter tests: sampling, analysis and
// persistence of the results.
package tester

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ammeter-tester/pkg/accuracy"
	"ammeter-tester/pkg/config"
	"ammeter-tester/pkg/measurement"
	"ammeter-tester/pkg/metrics"
	"ammeter-tester/pkg/models"
	"ammeter-tester/pkg/statistics"
)

var tracer = otel.Tracer("ammeter-tester/tester")

// Collector takes the measurements of one sampling campaign.
type Collector interface {
	Collect(ctx context.Context, req models.SamplingRequest) ([]models.Measurement, error)
}

// Sink receives every completed test run.
type Sink interface {
	Save(ctx context.Context, bundle *models.ResultBundle) error
}

type Option func(*Framework)

func WithSinks(sinks ...Sink) Option {
	return func(f *Framework) {
		f.sinks = append(f.sinks, sinks...)
	}
}

// WithCollector replaces the network collector built from the configuration.
func WithCollector(c Collector) Option {
	return func(f *Framework) {
		f.collector = c
	}
}

func WithMetrics(m *metrics.Sampling) Option {
	return func(f *Framework) {
		f.metrics = m
	}
}

// WithTestID overrides the generated test ID.
func WithTestID(id string) Option {
	return func(f *Framework) {
		f.testID = id
	}
}

// Framework runs tests against the configured ammeters. All runs of one
// Framework share its test ID.
type Framework struct {
	cfg       *config.Config
	testID    string
	logger    *slog.Logger
	collector Collector
	analyzer  *statistics.Analyzer
	ranker    *accuracy.Ranker
	metrics   *metrics.Sampling
	sinks     []Sink
}

func New(cfg *config.Config, logger *slog.Logger, options ...Option) *Framework {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	f := &Framework{
		cfg:    cfg,
		testID: uuid.NewString(),
	}
	for _, option := range options {
		option(f)
	}

	f.logger = logger.With("test_id", f.testID)
	f.analyzer = statistics.NewAnalyzer(cfg.Analysis.StatisticalMetrics, f.logger)
	f.ranker = accuracy.NewRanker(f.logger)
	if f.collector == nil {
		f.collector = measurement.NewCollector(cfg, f.logger,
			measurement.WithRetryPolicy(cfg.RetryPolicy()),
			measurement.WithRequestTimeout(cfg.Testing.RequestTimeout),
			measurement.WithMetrics(f.metrics),
		)
	}

	f.logger.Info("Initialized test framework", "sinks", len(f.sinks))
	return f
}

// TestID returns the identifier shared by every run of this framework.
func (f *Framework) TestID() string {
	return f.testID
}

// RunTest samples, analyses and stores one ammeter type. An unknown type
// fails with *config.ConfigurationError before any network activity.
func (f *Framework) RunTest(ctx context.Context, deviceType string) (*models.ResultBundle, error) {
	device, err := f.cfg.Device(strings.ToLower(deviceType))
	if err != nil {
		f.logger.Error("Unsupported ammeter type requested", "ammeter", deviceType)
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "tester.RunTest", trace.WithAttributes(
		attribute.String("test.id", f.testID),
		attribute.String("ammeter.type", device.Name),
	))
	defer span.End()

	bundle, err := f.run(ctx, device)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "test execution failed")
		f.logger.Error("Test execution failed", "ammeter", device.Name, "error", err)
		return nil, fmt.Errorf("test execution failed for ammeter %q: %w", device.Name, err)
	}

	return bundle, nil
}

func (f *Framework) run(ctx context.Context, device config.Device) (*models.ResultBundle, error) {
	req := f.cfg.SamplingRequest(device.Name, f.testID)

	measurements, err := f.collector.Collect(ctx, req)
	if err != nil {
		return nil, err
	}

	bundle := &models.ResultBundle{
		Metadata: models.Metadata{
			TestID:            f.testID,
			Timestamp:         time.Now(),
			AmmeterType:       device.Name,
			TestDuration:      f.cfg.Testing.Sampling.TotalDurationSeconds,
			SamplingFrequency: req.FrequencyHz,
			SampleCount:       len(measurements),
		},
		Measurements: measurements,
	}
	bundle.Analysis = f.analyzer.Analyze(bundle.Values())

	if f.cfg.Analysis.Visualization.Enabled {
		f.logger.Warn("Visualization is not supported, skipping", "ammeter", device.Name)
	}

	for _, sink := range f.sinks {
		if err := sink.Save(ctx, bundle); err != nil {
			return nil, fmt.Errorf("failed to save results: %w", err)
		}
	}

	return bundle, nil
}

// CompareAccuracy tests every given ammeter type in turn and ranks them by
// the stability of their readings. An empty list compares every configured
// type. The first failing test aborts the comparison.
func (f *Framework) CompareAccuracy(ctx context.Context, deviceTypes []string) (models.AccuracyReport, map[string]*models.ResultBundle, error) {
	if len(deviceTypes) == 0 {
		deviceTypes = f.cfg.DeviceTypes()
	}

	bundles := make(map[string]*models.ResultBundle, len(deviceTypes))
	stats := make(map[string]models.DeviceStats, len(deviceTypes))
	for _, deviceType := range deviceTypes {
		bundle, err := f.RunTest(ctx, deviceType)
		if err != nil {
			return models.AccuracyReport{}, nil, err
		}

		name := bundle.Metadata.AmmeterType
		bundles[name] = bundle

		d := statistics.Describe(bundle.Values(), []string{models.MetricMean, models.MetricStdDev})
		if d.Mean == nil || d.StdDev == nil {
			return models.AccuracyReport{}, nil, fmt.Errorf("no measurements for ammeter %q", name)
		}
		stats[name] = models.DeviceStats{Mean: *d.Mean, StdDev: *d.StdDev}
	}

	report, err := f.ranker.Rank(stats)
	if err != nil {
		return models.AccuracyReport{}, nil, err
	}
	return report, bundles, nil
}
