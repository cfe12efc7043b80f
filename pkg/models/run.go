package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Metadata describes the circumstances of one test run.
type Metadata struct {
	TestID            string    `json:"test_id"`
	Timestamp         time.Time `json:"timestamp"`
	AmmeterType       string    `json:"ammeter_type"`
	TestDuration      float64   `json:"test_duration"`
	SamplingFrequency float64   `json:"sampling_frequency"`
	SampleCount       int       `json:"sample_count"`
}

// ResultBundle is everything a completed test run hands to its sinks.
type ResultBundle struct {
	Metadata     Metadata         `json:"metadata"`
	Measurements []Measurement    `json:"measurements"`
	Analysis     StatisticsReport `json:"analysis"`
}

// Values returns the raw readings in sample order.
func (b *ResultBundle) Values() []float64 {
	values := make([]float64, len(b.Measurements))
	for i, m := range b.Measurements {
		values[i] = m.Value
	}
	return values
}

// TestRun is the stored form of a ResultBundle's metadata and analysis.
type TestRun struct {
	bun.BaseModel `bun:"table:test_runs,alias:tr"`

	ID                int64            `bun:",pk,autoincrement"`
	TestID            string           `bun:",notnull,unique:test_runs_test_id_ammeter_type_key"`
	AmmeterType       string           `bun:",notnull,unique:test_runs_test_id_ammeter_type_key"`
	Time              time.Time        `bun:",notnull"`
	TestDuration      float64          `bun:",notnull"`
	SamplingFrequency float64          `bun:",notnull"`
	SampleCount       int              `bun:",notnull"`
	Analysis          StatisticsReport `bun:",type:jsonb"`
	CreatedAt         time.Time        `bun:",nullzero,notnull,default:current_timestamp"`

	Measurements []*MeasurementRecord `bun:"rel:has-many,join:id=run_id"`
}
