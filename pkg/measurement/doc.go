/*
Package measurement runs sampling campaigns against ammeters. A campaign takes a
fixed number of current readings from one device type at a target frequency and
hands them back to the caller in request order.

Key Components:

  - Collector: runs campaigns; safe for concurrent use
  - Requester: a single request/response exchange (fetch.Client in production)
  - DeviceResolver: validated device lookup (config.Config in production)
  - ExhaustedRetriesError: a sample that could not be taken within the retry policy

Usage Example:

	collector := measurement.NewCollector(cfg, logger,
		measurement.WithRetryPolicy(cfg.RetryPolicy()),
		measurement.WithRequestTimeout(cfg.Testing.RequestTimeout),
		measurement.WithMetrics(metrics.NewSampling(prometheus.DefaultRegisterer)),
	)

	measurements, err := collector.Collect(ctx, models.SamplingRequest{
		DeviceType:  "greenlee",
		TestID:      testID,
		FrequencyHz: 2,
		Count:       10,
	})
	if err != nil {
		var exhausted *measurement.ExhaustedRetriesError
		if errors.As(err, &exhausted) {
			// device unreachable
		}
		return err
	}

Campaign Process:

1. Validation:
  - The request must have a positive frequency and a count of at least one
  - The device type is resolved before any network activity; an unknown type
    surfaces the resolver's config.ConfigurationError

2. Sampling:
  - One producer goroutine issues Count requests, started no closer together
    than 1/FrequencyHz apart (rate.Limiter with a burst of one)
  - When the device is slower than the interval the achieved rate drops
    without error
  - Readings are placed on a channel sized for the whole campaign

3. Collection:
  - The caller drains the channel, stamping each reading with its receipt
    time and the test ID, then joins the producer

Error Handling:

  - fetch.ConnectionError: retried according to the retry policy (three
    attempts, 500ms apart by default); when every attempt fails the campaign
    aborts with ExhaustedRetriesError
  - fetch.ProtocolError: malformed replies are not transient and abort the
    campaign on the first occurrence
  - Context cancellation aborts the campaign at the next suspension point

An aborted campaign never returns partial measurements.
*/
package measurement
