/*
Package models defines the data structures shared by the ammeter-tester
packages: readings, sampling requests, analysis reports and the stored form of
completed runs.

Core Types:

Measurement is one current reading:

	type Measurement struct {
		Timestamp time.Time // When the reading was received
		Value     float64   // Current in amperes
		TestID    string    // Test the reading belongs to
	}

SamplingRequest describes one campaign:

	type SamplingRequest struct {
		DeviceType  string  // Configured ammeter type
		TestID      string  // Stamped onto every Measurement
		FrequencyHz float64 // Target sampling rate, > 0
		Count       int     // Number of readings, >= 1
	}

StatisticsReport holds the analysis of a series. Every field is a pointer;
a nil field was either not requested or could not be computed and is omitted
when the report is encoded.

AccuracyReport ranks device types by coefficient of variation. Non-finite
scores are encoded as null in JSON.

ResultBundle is what a completed run hands to its sinks:

	type ResultBundle struct {
		Metadata     Metadata
		Measurements []Measurement
		Analysis     StatisticsReport
	}

Database Integration:

TestRun and MeasurementRecord are the bun models of a stored run:
  - test_runs is unique on (test_id, ammeter_type); the analysis is kept as JSON
  - measurements reference their run and keep the sample sequence number

Usage Example:

	bundle := &models.ResultBundle{
		Metadata: models.Metadata{
			TestID:      testID,
			Timestamp:   time.Now(),
			AmmeterType: "greenlee",
		},
		Measurements: measurements,
	}
	report := analyzer.Analyze(bundle.Values())
	if report.HasDistribution() {
		fmt.Println("outliers:", *report.OutlierCount)
	}

Thread Safety:

The model structures are plain values and are not synchronised. A ResultBundle
is not modified once it has been handed to the sinks.
*/
package models
