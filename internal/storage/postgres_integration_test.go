//go:build integration

package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/storage"
	"github.com/agrisense/cropagent/internal/testutil"
)

// testDB holds a shared PostgreSQL connection for the integration tests.
var testDB *storage.DB

func TestMain(m *testing.M) {
	ctx := context.Background()
	tc := testutil.MustStartPostgres()

	db, err := tc.NewTestDB(ctx, testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open test db: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}
	testDB = db

	code := m.Run()
	testDB.Close(ctx)
	tc.Terminate()
	os.Exit(code)
}

func TestPostgres_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	region := "Region-" + uuid.NewString()[:8]
	now := time.Now().UTC().Truncate(time.Microsecond)

	e := entry(region, "Wheat", 4.5, now)
	require.NoError(t, testDB.AppendHistory(ctx, []model.HistoryEntry{e, entry(region, "Rice", 3.2, now.Add(time.Second))}))

	preds, err := testDB.RecentPredictions(ctx, storage.PredictionFilter{Region: region})
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, "Rice", preds[0].Crop)

	got, err := testDB.GetPrediction(ctx, e.Prediction.ID)
	require.NoError(t, err)
	assert.Equal(t, now, got.CreatedAt.UTC())
	assert.JSONEq(t, `{"weather":null}`, string(got.Snapshots))
}

func TestPostgres_AppendIsIdempotentPerRun(t *testing.T) {
	ctx := context.Background()
	e := entry("Punjab", "Wheat", 4.5, time.Now().UTC())
	require.NoError(t, testDB.AppendHistory(ctx, []model.HistoryEntry{e}))
	require.NoError(t, testDB.AppendHistory(ctx, []model.HistoryEntry{{Prediction: e.Prediction, Query: e.Query}}))

	_, err := testDB.GetPrediction(ctx, e.Prediction.ID)
	require.NoError(t, err)
}

func TestPostgres_FeedbackAndRetention(t *testing.T) {
	ctx := context.Background()
	old := entry("Kerala", "Rice", 2.8, time.Now().UTC().Add(-500*24*time.Hour))
	require.NoError(t, testDB.AppendHistory(ctx, []model.HistoryEntry{old}))

	fb, err := testDB.RecordFeedback(ctx, old.Prediction.ID, 3.5, "late monsoon")
	require.NoError(t, err)
	assert.Equal(t, 20.0, fb.ErrorPct)

	n, err := testDB.DeleteBefore(ctx, time.Now().Add(-400*24*time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(5))

	_, err = testDB.GetPrediction(ctx, old.Prediction.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPostgres_StatsAndPerformance(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.AppendHistory(ctx, []model.HistoryEntry{entry("Punjab", "Wheat", 4.5, time.Now().UTC())}))

	st, err := testDB.QueryStats(ctx)
	require.NoError(t, err)
	assert.Positive(t, st.TotalQueries)

	perf, err := testDB.AgentPerformance(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, perf)
}
