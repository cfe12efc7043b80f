// Package results persists completed test runs as JSON documents.
package results

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"ammeter-tester/pkg/models"
)

// FileStore writes each run to <dir>/<test_id>-<ammeter_type>.json.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FileStore{dir: dir, logger: logger}
}

// Path returns the file a bundle is saved to.
func (s *FileStore) Path(bundle *models.ResultBundle) string {
	name := fmt.Sprintf("%s-%s.json", bundle.Metadata.TestID, bundle.Metadata.AmmeterType)
	return filepath.Join(s.dir, name)
}

// Save writes bundle atomically, replacing any previous file of the same run.
func (s *FileStore) Save(ctx context.Context, bundle *models.ResultBundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	path := s.Path(bundle)
	tmp, err := os.CreateTemp(s.dir, ".results-*.json")
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write results file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save results file: %w", err)
	}

	s.logger.Info("Results saved", "path", path)
	return nil
}

// Load reads a bundle previously written by Save.
func (s *FileStore) Load(testID, ammeterType string) (*models.ResultBundle, error) {
	path := s.Path(&models.ResultBundle{Metadata: models.Metadata{TestID: testID, AmmeterType: ammeterType}})
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}

	var bundle models.ResultBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to decode results file %s: %w", path, err)
	}
	return &bundle, nil
}
