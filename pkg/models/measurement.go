package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Measurement is a single current reading taken during a campaign.
type Measurement struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	TestID    string    `json:"test_id"`
}

// SamplingRequest describes one campaign against a single device type.
type SamplingRequest struct {
	DeviceType  string
	TestID      string
	FrequencyHz float64
	Count       int
}

// Interval returns the target time between two consecutive samples.
func (r SamplingRequest) Interval() time.Duration {
	return time.Duration(float64(time.Second) / r.FrequencyHz)
}

// MeasurementRecord is the stored form of a Measurement.
type MeasurementRecord struct {
	bun.BaseModel `bun:"table:measurements,alias:m"`

	ID          int64     `bun:",pk,autoincrement"`
	RunID       int64     `bun:",notnull"`
	TestID      string    `bun:",notnull"`
	AmmeterType string    `bun:",notnull"`
	Sequence    int       `bun:",notnull"`
	Time        time.Time `bun:",notnull"`
	Value       float64   `bun:",notnull"`

	Run *TestRun `bun:"rel:belongs-to,join:run_id=id"`
}
