package measurement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"ammeter-tester/pkg/config"
	"ammeter-tester/pkg/fetch"
	"ammeter-tester/pkg/metrics"
	"ammeter-tester/pkg/models"
	"ammeter-tester/pkg/retry"
)

var tracer = otel.Tracer("ammeter-tester/measurement")

// ErrInvalidRequest is wrapped by errors for requests that cannot start a campaign.
var ErrInvalidRequest = errors.New("invalid sampling request")

// ExhaustedRetriesError is returned when one sample could not be taken
// within the retry policy. The campaign is aborted.
type ExhaustedRetriesError struct {
	DeviceType string
	Endpoint   string
	Attempts   int
	Err        error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("measurement failed after %d attempts | ammeter=%s, endpoint=%s: %v",
		e.Attempts, e.DeviceType, e.Endpoint, e.Err)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Err }

// Requester performs a single request/response exchange with a device.
type Requester interface {
	Request(ctx context.Context, endpoint string, command []byte) (float64, error)
}

// DeviceResolver looks up the configuration of a device type.
type DeviceResolver interface {
	Device(name string) (config.Device, error)
}

// Option configures a Collector.
type Option func(*Collector)

// WithRequester makes every device use r instead of a per-device fetch.Client.
func WithRequester(r Requester) Option {
	return func(c *Collector) {
		c.newRequester = func(config.Device) (Requester, error) { return r, nil }
	}
}

// WithRetryPolicy overrides retry.Default.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Collector) {
		c.policy = p
	}
}

// WithRequestTimeout sets the deadline of a single exchange.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Collector) {
		c.requestTimeout = d
	}
}

// WithMetrics records campaign activity on m.
func WithMetrics(m *metrics.Sampling) Option {
	return func(c *Collector) {
		c.metrics = m
	}
}

// Collector runs sampling campaigns. It keeps no per-campaign state, so
// independent Collect calls may run concurrently.
type Collector struct {
	devices        DeviceResolver
	logger         *slog.Logger
	policy         retry.Policy
	requestTimeout time.Duration
	metrics        *metrics.Sampling
	newRequester   func(config.Device) (Requester, error)
}

// NewCollector creates a Collector that resolves device types through devices.
func NewCollector(devices DeviceResolver, logger *slog.Logger, options ...Option) *Collector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Collector{
		devices: devices,
		logger:  logger,
		policy:  retry.Default,
	}
	c.newRequester = c.fetchClient

	for _, option := range options {
		option(c)
	}

	return c
}

func (c *Collector) fetchClient(device config.Device) (Requester, error) {
	client, err := fetch.NewClient(fetch.Options{
		Transport: device.Transport,
		Timeout:   c.requestTimeout,
	})
	if err != nil {
		return nil, &config.ConfigurationError{Key: "ammeters." + device.Name + ".transport", Err: err}
	}
	return client, nil
}

// Collect runs one campaign and returns exactly req.Count measurements in
// request order. On any failure no measurements are returned.
func (c *Collector) Collect(ctx context.Context, req models.SamplingRequest) ([]models.Measurement, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	device, err := c.devices.Device(req.DeviceType)
	if err != nil {
		return nil, err
	}

	requester, err := c.newRequester(device)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "measurement.Collect", trace.WithAttributes(
		attribute.String("ammeter.type", device.Name),
		attribute.String("ammeter.endpoint", device.Endpoint()),
		attribute.Int("sampling.count", req.Count),
		attribute.Float64("sampling.frequency_hz", req.FrequencyHz),
	))
	defer span.End()

	logger := c.logger.With("ammeter", device.Name, "test_id", req.TestID)
	logger.Info("Starting data collection", "samples", req.Count, "interval", req.Interval())

	start := time.Now()
	readings := make(chan float64, req.Count)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(readings)
		return c.sample(gctx, requester, device, req, readings, logger)
	})

	measurements := make([]models.Measurement, 0, req.Count)
	for value := range readings {
		measurements = append(measurements, models.Measurement{
			Timestamp: time.Now(),
			Value:     value,
			TestID:    req.TestID,
		})
		c.metrics.ObserveSample(device.Name)
	}

	if err := g.Wait(); err != nil {
		c.metrics.ObserveFailure(device.Name, failureReason(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "data collection aborted")
		logger.Error("Data collection aborted", "error", err, "samples_discarded", len(measurements))
		return nil, err
	}

	c.metrics.ObserveCampaign(device.Name, time.Since(start))
	logger.Info("Completed data collection", "samples_collected", len(measurements), "elapsed", time.Since(start))

	return measurements, nil
}

// sample is the producer side of a campaign. Iterations start no closer
// together than the target interval; slow devices lower the achieved rate.
func (c *Collector) sample(ctx context.Context, requester Requester, device config.Device, req models.SamplingRequest, readings chan<- float64, logger *slog.Logger) error {
	limiter := rate.NewLimiter(rate.Limit(req.FrequencyHz), 1)
	command := []byte(device.Command)

	for i := 0; i < req.Count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for sample %d: %w", i+1, err)
		}

		value, err := c.measure(ctx, requester, device, command, logger)
		if err != nil {
			return err
		}

		// Never blocks: the channel holds the whole campaign.
		readings <- value
	}

	return nil
}

func (c *Collector) measure(ctx context.Context, requester Requester, device config.Device, command []byte, logger *slog.Logger) (float64, error) {
	endpoint := device.Endpoint()

	var value float64
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		start := time.Now()
		v, err := requester.Request(ctx, endpoint, command)
		c.metrics.ObserveRequest(device.Name, time.Since(start))
		if err != nil {
			return err
		}
		value = v
		return nil
	}, fetch.IsConnectionError, func(attempt int, err error) {
		logger.Warn("Connection failed",
			"endpoint", endpoint,
			"retry", fmt.Sprintf("%d/%d", attempt, c.policy.MaxAttempts),
			"error", err)
		if attempt < c.policy.MaxAttempts {
			c.metrics.ObserveRetry(device.Name)
		}
	})

	var exhausted *retry.ExhaustedError
	switch {
	case err == nil:
		logger.Debug("Received current measurement", "endpoint", endpoint, "value", value)
		return value, nil
	case errors.As(err, &exhausted):
		logger.Error("Failed to get measurement after retries", "endpoint", endpoint, "attempts", exhausted.Attempts)
		return 0, &ExhaustedRetriesError{
			DeviceType: device.Name,
			Endpoint:   endpoint,
			Attempts:   exhausted.Attempts,
			Err:        exhausted.Err,
		}
	default:
		return 0, fmt.Errorf("measuring %s: %w", device.Name, err)
	}
}

func validateRequest(req models.SamplingRequest) error {
	if !(req.FrequencyHz > 0) || math.IsInf(req.FrequencyHz, 0) {
		return fmt.Errorf("%w: frequency must be a positive number of Hz, got %v", ErrInvalidRequest, req.FrequencyHz)
	}
	if req.Count < 1 {
		return fmt.Errorf("%w: count must be at least 1, got %d", ErrInvalidRequest, req.Count)
	}
	return nil
}

func failureReason(err error) string {
	var exhausted *ExhaustedRetriesError
	var protoErr *fetch.ProtocolError
	switch {
	case errors.As(err, &exhausted):
		return metrics.ReasonExhaustedRetries
	case errors.As(err, &protoErr):
		return metrics.ReasonProtocol
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.ReasonCancelled
	default:
		return metrics.ReasonOther
	}
}
