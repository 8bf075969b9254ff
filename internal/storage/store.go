// Package storage is the append-only history store. It ships a
// PostgreSQL backend (pgx) and an embedded SQLite backend (modernc),
// both implementing Store.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/migrations"
)

// Store is the history store used by the pipeline and the API.
type Store interface {
	// AppendHistory writes the entries of one or more runs atomically.
	AppendHistory(ctx context.Context, entries []model.HistoryEntry) error

	RecentPredictions(ctx context.Context, f PredictionFilter) ([]model.PredictionRun, error)
	GetPrediction(ctx context.Context, id uuid.UUID) (model.PredictionRun, error)
	HistoricalYields(ctx context.Context, since time.Time) ([]model.HistoricalYield, error)
	QueryStats(ctx context.Context) (model.QueryStats, error)
	AgentPerformance(ctx context.Context) ([]model.AgentPerformance, error)

	// RecordFeedback stores an observed yield against a stored prediction.
	RecordFeedback(ctx context.Context, predictionID uuid.UUID, actualYield float64, notes string) (model.Feedback, error)

	// DeleteBefore trims rows older than cutoff and returns the row count.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context)
}

// PredictionFilter narrows RecentPredictions. Empty fields match all.
type PredictionFilter struct {
	Region string
	Crop   string
	Limit  int
}

const (
	defaultLimit = 10
	maxLimit     = 500
	topN         = 5
)

func (f PredictionFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultLimit
	case f.Limit > maxLimit:
		return maxLimit
	default:
		return f.Limit
	}
}

// Open connects to the history store named by dsn and applies migrations.
// postgres:// and postgresql:// DSNs select PostgreSQL; anything else is a
// SQLite file path.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err := New(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(ctx, migrations.Postgres()); err != nil {
			db.Close(ctx)
			return nil, err
		}
		return db, nil
	}
	db, err := OpenSQLite(ctx, dsn, logger)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Shared statements with no placeholders run unchanged on both dialects.
const (
	sqlCountQueries = `SELECT COUNT(*) FROM queries`

	sqlQueriesByLanguage = `SELECT language, COUNT(*) AS n FROM queries
		GROUP BY language ORDER BY n DESC, language`

	sqlTopRegions = `SELECT state, COUNT(*) AS n FROM queries
		GROUP BY state ORDER BY n DESC, state LIMIT 5`

	sqlTopCrops = `SELECT crop, COUNT(*) AS n FROM queries
		GROUP BY crop ORDER BY n DESC, crop LIMIT 5`

	sqlAgentPerformance = `SELECT agent_name,
			COUNT(*),
			COALESCE(AVG(execution_time_ms), 0),
			SUM(CASE WHEN success THEN 1 ELSE 0 END),
			SUM(CASE WHEN success THEN 0 ELSE 1 END)
		FROM agent_metrics
		GROUP BY agent_name
		ORDER BY agent_name`
)

func performance(name string, n int64, avg float64, ok, failed int64) model.AgentPerformance {
	p := model.AgentPerformance{
		Agent:      name,
		Executions: n,
		AvgMS:      model.Round(avg, 2),
		Successful: ok,
		Failed:     failed,
	}
	if n > 0 {
		p.SuccessRate = model.Round(float64(ok)/float64(n)*100, 1)
	}
	return p
}

func newFeedback(pred model.PredictionRun, actual float64, notes string, now time.Time) (model.Feedback, error) {
	if actual <= 0 || math.IsNaN(actual) || math.IsInf(actual, 0) {
		return model.Feedback{}, fmt.Errorf("%w: actual yield must be positive, got %v", ErrInvalidFeedback, actual)
	}
	return model.Feedback{
		ID:             uuid.New(),
		PredictionID:   pred.ID,
		PredictedYield: pred.PredictedYield,
		ActualYield:    actual,
		ErrorPct:       model.Round(math.Abs(pred.PredictedYield-actual)/actual*100, 2),
		Notes:          notes,
		CreatedAt:      now.UTC(),
	}, nil
}
