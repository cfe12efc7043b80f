package results

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammeter-tester/pkg/models"
)

func bundle() *models.ResultBundle {
	mean, std := 2.0, 0.1
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &models.ResultBundle{
		Metadata: models.Metadata{
			TestID:            "3f1c",
			Timestamp:         now,
			AmmeterType:       "greenlee",
			TestDuration:      1.5,
			SamplingFrequency: 2,
			SampleCount:       2,
		},
		Measurements: []models.Measurement{
			{Timestamp: now, Value: 1.9, TestID: "3f1c"},
			{Timestamp: now.Add(500 * time.Millisecond), Value: 2.1, TestID: "3f1c"},
		},
		Analysis: models.StatisticsReport{Mean: &mean, StdDev: &std},
	}
}

func TestFileStoreSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	store := NewFileStore(dir, nil)

	b := bundle()
	require.NoError(t, store.Save(context.Background(), b))

	path := filepath.Join(dir, "3f1c-greenlee.json")
	assert.Equal(t, path, store.Path(b))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ammeter_type": "greenlee"`)
	assert.Contains(t, string(data), `"mean": 2`)
	assert.NotContains(t, string(data), "skewness")

	loaded, err := store.Load("3f1c", "greenlee")
	require.NoError(t, err)
	assert.Equal(t, b.Metadata, loaded.Metadata)
	assert.Equal(t, b.Values(), loaded.Values())
	assert.Nil(t, loaded.Analysis.Median)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStoreSaveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewFileStore(t.TempDir(), nil).Save(ctx, bundle())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileStoreLoadMissing(t *testing.T) {
	_, err := NewFileStore(t.TempDir(), nil).Load("nope", "entes")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
