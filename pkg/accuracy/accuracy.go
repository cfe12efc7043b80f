// Package accuracy ranks ammeter types by the stability of their readings.
package accuracy

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"sort"

	"ammeter-tester/pkg/models"
)

var ErrNoDevices = errors.New("no devices to rank")

// Rank scores every device by its coefficient of variation (std dev / mean)
// and picks the lowest as most reliable. A zero mean scores +Inf. Ties go to
// the lexicographically smallest device type.
func Rank(stats map[string]models.DeviceStats) (models.AccuracyReport, error) {
	if len(stats) == 0 {
		return models.AccuracyReport{}, ErrNoDevices
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	report := models.AccuracyReport{PerDevice: make(map[string]models.DeviceScore, len(stats))}
	best := math.NaN()
	for _, name := range names {
		s := stats[name]
		cv := coefficientOfVariation(s)
		report.PerDevice[name] = models.DeviceScore{
			Mean:          s.Mean,
			StdDev:        s.StdDev,
			CV:            cv,
			AccuracyScore: cv,
		}
		if report.MostReliable == "" || cv < best {
			report.MostReliable = name
			best = cv
		}
	}

	return report, nil
}

func coefficientOfVariation(s models.DeviceStats) float64 {
	if s.Mean == 0 {
		return math.Inf(1)
	}
	return s.StdDev / s.Mean
}

// Ranker logs the outcome of each ranking.
type Ranker struct {
	logger *slog.Logger
}

func NewRanker(logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Ranker{logger: logger}
}

func (r *Ranker) Rank(stats map[string]models.DeviceStats) (models.AccuracyReport, error) {
	report, err := Rank(stats)
	if err != nil {
		r.logger.Error("Accuracy comparison failed", "error", err)
		return report, err
	}

	for name, score := range report.PerDevice {
		r.logger.Debug("Device scored", "ammeter", name, "cv", score.CV)
	}
	r.logger.Info("Accuracy comparison completed",
		"devices", len(report.PerDevice),
		"most_reliable", report.MostReliable)

	return report, nil
}
