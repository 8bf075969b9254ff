package storage_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/storage"
	"github.com/agrisense/cropagent/internal/testutil"
)

func openSQLite(t *testing.T) *storage.SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := storage.OpenSQLite(context.Background(), path, testutil.TestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(context.Background()) })
	return db
}

func entry(region, crop string, yield float64, at time.Time) model.HistoryEntry {
	runID := uuid.New()
	return model.HistoryEntry{
		Prediction: &model.PredictionRun{
			ID:             runID,
			Region:         region,
			Crop:           crop,
			PredictedYield: yield,
			RiskScore:      0.3,
			Confidence:     80,
			Snapshots:      json.RawMessage(`{"weather":null}`),
			CreatedAt:      at,
		},
		Query: &model.QueryRecord{
			ID:        runID,
			Query:     "yield for " + crop,
			Language:  "en",
			Region:    region,
			Crop:      crop,
			Intent:    model.IntentYield,
			LatencyMS: 12.5,
			CreatedAt: at,
		},
		Metrics: []model.AgentMetric{
			{Agent: "weather_agent", DurationMS: 10, Success: true, RecordedAt: at},
			{Agent: "soil_agent", DurationMS: 20, Success: false, Error: "boom", RecordedAt: at},
		},
		Alerts: []model.AlertOccurrence{
			{RunID: runID, Region: region, Kind: model.AlertHeatWave, Severity: model.SeverityHigh, Message: "hot", CreatedAt: at},
		},
	}
}

func TestSQLite_AppendAndRecent(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	base := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.AppendHistory(ctx, []model.HistoryEntry{
		entry("Punjab", "Wheat", 4.5, base),
		entry("Punjab", "Rice", 3.9, base.Add(time.Minute)),
		entry("Bihar", "Rice", 2.6, base.Add(2*time.Minute)),
	}))

	all, err := db.RecentPredictions(ctx, storage.PredictionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Bihar", all[0].Region, "newest first")
	assert.Equal(t, base.Add(2*time.Minute), all[0].CreatedAt)
	assert.JSONEq(t, `{"weather":null}`, string(all[0].Snapshots))

	punjab, err := db.RecentPredictions(ctx, storage.PredictionFilter{Region: "Punjab"})
	require.NoError(t, err)
	assert.Len(t, punjab, 2)

	rice, err := db.RecentPredictions(ctx, storage.PredictionFilter{Region: "Punjab", Crop: "Rice", Limit: 1})
	require.NoError(t, err)
	require.Len(t, rice, 1)
	assert.InDelta(t, 3.9, rice[0].PredictedYield, 1e-9)
}

func TestSQLite_AppendEmptyIsNoop(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, db.AppendHistory(context.Background(), nil))
}

func TestSQLite_GetPredictionNotFound(t *testing.T) {
	db := openSQLite(t)
	_, err := db.GetPrediction(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLite_StatsAndPerformance(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	now := time.Now().UTC()

	require.NoError(t, db.AppendHistory(ctx, []model.HistoryEntry{
		entry("Punjab", "Wheat", 4.5, now),
		entry("Punjab", "Wheat", 4.4, now),
		entry("Bihar", "Rice", 2.6, now),
	}))

	st, err := db.QueryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.TotalQueries)
	require.NotEmpty(t, st.TopRegions)
	assert.Equal(t, model.NameCount{Name: "Punjab", Count: 2}, st.TopRegions[0])
	assert.Equal(t, []model.NameCount{{Name: "en", Count: 3}}, st.ByLanguage)

	perf, err := db.AgentPerformance(ctx)
	require.NoError(t, err)
	require.Len(t, perf, 2)
	assert.Equal(t, "soil_agent", perf[0].Agent)
	assert.Equal(t, int64(3), perf[0].Failed)
	assert.Equal(t, 0.0, perf[0].SuccessRate)
	assert.Equal(t, "weather_agent", perf[1].Agent)
	assert.Equal(t, 100.0, perf[1].SuccessRate)
	assert.Equal(t, 10.0, perf[1].AvgMS)
}

func TestSQLite_HistoricalYields(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, db.AppendHistory(ctx, []model.HistoryEntry{
		entry("Punjab", "Wheat", 4.0, now.Add(-60*24*time.Hour)),
		entry("Punjab", "Wheat", 4.5, now.Add(-2*24*time.Hour)),
		entry("Punjab", "Wheat", 4.6, now.Add(-1*24*time.Hour)),
	}))

	ys, err := db.HistoricalYields(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, ys, 2)
	assert.InDelta(t, 4.5, ys[0].PredictedYield, 1e-9, "oldest first")
	assert.InDelta(t, 4.6, ys[1].PredictedYield, 1e-9)
}

func TestSQLite_RecordFeedback(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	e := entry("Punjab", "Wheat", 4.5, time.Now().UTC())
	require.NoError(t, db.AppendHistory(ctx, []model.HistoryEntry{e}))

	fb, err := db.RecordFeedback(ctx, e.Prediction.ID, 5.0, "harvested")
	require.NoError(t, err)
	assert.Equal(t, e.Prediction.ID, fb.PredictionID)
	assert.Equal(t, 10.0, fb.ErrorPct)

	_, err = db.RecordFeedback(ctx, e.Prediction.ID, 0, "")
	assert.ErrorIs(t, err, storage.ErrInvalidFeedback)

	_, err = db.RecordFeedback(ctx, uuid.New(), 4, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLite_DeleteBefore(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	now := time.Now().UTC()
	old := entry("Punjab", "Wheat", 4.0, now.Add(-400*24*time.Hour))
	fresh := entry("Punjab", "Wheat", 4.5, now)
	require.NoError(t, db.AppendHistory(ctx, []model.HistoryEntry{old, fresh}))
	_, err := db.RecordFeedback(ctx, old.Prediction.ID, 4.2, "")
	require.NoError(t, err)

	// prediction + query + 2 metrics + 1 alert
	n, err := db.DeleteBefore(ctx, now.Add(-365*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	_, err = db.GetPrediction(ctx, old.Prediction.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	got, err := db.GetPrediction(ctx, fresh.Prediction.ID)
	require.NoError(t, err)
	assert.Equal(t, fresh.Prediction.ID, got.ID)
}

func TestSQLite_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			e := entry("Punjab", "Wheat", 4+float64(i)/100, time.Now().UTC())
			assert.NoError(t, db.AppendHistory(ctx, []model.HistoryEntry{e}))
		})
	}
	wg.Wait()

	st, err := db.QueryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), st.TotalQueries)
}

func TestSQLite_MigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	logger := testutil.TestLogger()

	db, err := storage.OpenSQLite(ctx, path, logger)
	require.NoError(t, err)
	db.Close(ctx)

	db, err = storage.OpenSQLite(ctx, path, logger)
	require.NoError(t, err)
	defer db.Close(ctx)
	require.NoError(t, db.Ping(ctx))
}

func TestOpen_SelectsSQLiteForPaths(t *testing.T) {
	ctx := context.Background()
	s, err := storage.Open(ctx, filepath.Join(t.TempDir(), "x.db"), testutil.TestLogger())
	require.NoError(t, err)
	defer s.Close(ctx)
	_, ok := s.(*storage.SQLite)
	assert.True(t, ok)
}
