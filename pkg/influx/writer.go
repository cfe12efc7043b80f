// Package influx exports measurement series to InfluxDB.
package influx

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"ammeter-tester/pkg/config"
	"ammeter-tester/pkg/models"
)

const measurementName = "current"

// PointWriter is the subset of api.WriteAPIBlocking the Writer needs.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Writer stores one point per measurement, tagged with the test ID and
// ammeter type.
type Writer struct {
	client influxdb2.Client
	api    PointWriter
	logger *slog.Logger
}

// NewWriter connects to the InfluxDB instance described by cfg.
func NewWriter(cfg config.InfluxDB, logger *slog.Logger) *Writer {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	w := NewWriterWithAPI(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), logger)
	w.client = client
	return w
}

// NewWriterWithAPI wraps an existing write API.
func NewWriterWithAPI(api PointWriter, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Writer{api: api, logger: logger}
}

// Save writes every measurement of bundle in a single request.
func (w *Writer) Save(ctx context.Context, bundle *models.ResultBundle) error {
	if len(bundle.Measurements) == 0 {
		return nil
	}

	points := make([]*write.Point, 0, len(bundle.Measurements))
	for _, m := range bundle.Measurements {
		points = append(points, influxdb2.NewPoint(
			measurementName,
			map[string]string{
				"test_id":      bundle.Metadata.TestID,
				"ammeter_type": bundle.Metadata.AmmeterType,
			},
			map[string]interface{}{"value": m.Value},
			m.Timestamp,
		))
	}

	if err := w.api.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write points to InfluxDB: %w", err)
	}

	w.logger.Info("Measurements exported to InfluxDB",
		"test_id", bundle.Metadata.TestID,
		"ammeter", bundle.Metadata.AmmeterType,
		"points", len(points))
	return nil
}

// Close releases the underlying client.
func (w *Writer) Close() {
	if w.client != nil {
		w.client.Close()
	}
}
