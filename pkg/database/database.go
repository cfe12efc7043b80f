package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ammeter-tester/pkg/config"
	"ammeter-tester/pkg/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DB struct {
	*bun.DB
	logger *slog.Logger
}

// NewDB opens the configured database and checks that it is reachable.
func NewDB(ctx context.Context, cfg config.Database, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var db *bun.DB
	switch cfg.Driver {
	case DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		db = bun.NewDB(sqldb, pgdialect.New())
	case DriverSQLite:
		sqldb, err := sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// sqlite allows a single writer.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, &config.ConfigurationError{
			Key: "result_management.database.driver",
			Err: fmt.Errorf("unsupported driver %q", cfg.Driver),
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Debug("Database connected", "driver", cfg.Driver)
	return &DB{DB: db, logger: logger}, nil
}

// InitSchema creates the test_runs and measurements tables if they don't exist.
func (db *DB) InitSchema(ctx context.Context) error {
	_, err := db.NewCreateTable().
		Model((*models.TestRun)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create test_runs table: %w", err)
	}

	_, err = db.NewCreateTable().
		Model((*models.MeasurementRecord)(nil)).
		IfNotExists().
		ForeignKey(`("run_id") REFERENCES "test_runs" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create measurements table: %w", err)
	}

	_, err = db.NewCreateIndex().
		Model((*models.MeasurementRecord)(nil)).
		Index("measurements_test_id_idx").
		IfNotExists().
		Column("test_id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create measurements index: %w", err)
	}

	return nil
}

// Save stores a completed run with its measurements in one transaction,
// replacing a previous run with the same test ID and ammeter type.
func (db *DB) Save(ctx context.Context, bundle *models.ResultBundle) error {
	run := &models.TestRun{
		TestID:            bundle.Metadata.TestID,
		AmmeterType:       bundle.Metadata.AmmeterType,
		Time:              bundle.Metadata.Timestamp,
		TestDuration:      bundle.Metadata.TestDuration,
		SamplingFrequency: bundle.Metadata.SamplingFrequency,
		SampleCount:       bundle.Metadata.SampleCount,
		Analysis:          bundle.Analysis,
	}

	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := deleteRun(ctx, tx, run.TestID, run.AmmeterType); err != nil {
			return err
		}

		if _, err := tx.NewInsert().Model(run).Exec(ctx); err != nil {
			return fmt.Errorf("error inserting test run: %w", err)
		}

		if len(bundle.Measurements) == 0 {
			return nil
		}

		records := make([]models.MeasurementRecord, len(bundle.Measurements))
		for i, m := range bundle.Measurements {
			records[i] = models.MeasurementRecord{
				RunID:       run.ID,
				TestID:      run.TestID,
				AmmeterType: run.AmmeterType,
				Sequence:    i,
				Time:        m.Timestamp,
				Value:       m.Value,
			}
		}
		if _, err := tx.NewInsert().Model(&records).Exec(ctx); err != nil {
			return fmt.Errorf("error inserting measurements: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.logger.Info("Results stored in database",
		"test_id", run.TestID,
		"ammeter", run.AmmeterType,
		"measurements", len(bundle.Measurements))
	return nil
}

func deleteRun(ctx context.Context, tx bun.Tx, testID, ammeterType string) error {
	_, err := tx.NewDelete().
		Model((*models.MeasurementRecord)(nil)).
		Where("test_id = ? AND ammeter_type = ?", testID, ammeterType).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("error removing previous measurements: %w", err)
	}

	_, err = tx.NewDelete().
		Model((*models.TestRun)(nil)).
		Where("test_id = ? AND ammeter_type = ?", testID, ammeterType).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("error removing previous test run: %w", err)
	}
	return nil
}

// GetRuns returns every run of a test with its measurements in sample order.
func (db *DB) GetRuns(ctx context.Context, testID string) ([]models.TestRun, error) {
	var runs []models.TestRun
	err := db.NewSelect().
		Model(&runs).
		Relation("Measurements", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("sequence")
		}).
		Where("tr.test_id = ?", testID).
		Order("tr.ammeter_type").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting test runs: %w", err)
	}
	return runs, nil
}

// GetMeasurementsByTest returns the readings of one test, grouped by ammeter
// type and in sample order within each group.
func (db *DB) GetMeasurementsByTest(ctx context.Context, testID string) ([]models.Measurement, error) {
	var records []models.MeasurementRecord
	err := db.NewSelect().
		Model(&records).
		Where("test_id = ?", testID).
		Order("ammeter_type", "sequence").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting measurements: %w", err)
	}

	measurements := make([]models.Measurement, len(records))
	for i, r := range records {
		measurements[i] = models.Measurement{Timestamp: r.Time, Value: r.Value, TestID: r.TestID}
	}
	return measurements, nil
}
