package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agrisense/cropagent/internal/model"
)

// AppendHistory writes all entries in one implicit transaction.
func (db *DB) AppendHistory(ctx context.Context, entries []model.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		if err := db.pool.SendBatch(ctx, historyBatch(entries)).Close(); err != nil {
			return fmt.Errorf("storage: append history: %w", err)
		}
		return nil
	})
}

func historyBatch(entries []model.HistoryEntry) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, e := range entries {
		if p := e.Prediction; p != nil {
			batch.Queue(`INSERT INTO predictions (id, state, crop, predicted_yield, risk_score, confidence, snapshots, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO NOTHING`,
				p.ID, p.Region, p.Crop, p.PredictedYield, p.RiskScore, p.Confidence, []byte(p.Snapshots), p.CreatedAt)
		}
		if q := e.Query; q != nil {
			batch.Queue(`INSERT INTO queries (id, query, language, state, crop, intent, response_time_ms, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO NOTHING`,
				q.ID, q.Query, q.Language, q.Region, q.Crop, string(q.Intent), q.LatencyMS, q.CreatedAt)
		}
		for _, m := range e.Metrics {
			batch.Queue(`INSERT INTO agent_metrics (agent_name, execution_time_ms, success, error_message, created_at)
				VALUES ($1, $2, $3, $4, $5)`,
				m.Agent, m.DurationMS, m.Success, m.Error, m.RecordedAt)
		}
		for _, a := range e.Alerts {
			batch.Queue(`INSERT INTO alerts_history (run_id, state, alert_type, severity, message, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				a.RunID, a.Region, string(a.Kind), string(a.Severity), a.Message, a.CreatedAt)
		}
	}
	return batch
}

// RecentPredictions returns the newest predictions first.
func (db *DB) RecentPredictions(ctx context.Context, f PredictionFilter) ([]model.PredictionRun, error) {
	var (
		where []string
		args  []any
	)
	if f.Region != "" {
		args = append(args, f.Region)
		where = append(where, "state = $"+strconv.Itoa(len(args)))
	}
	if f.Crop != "" {
		args = append(args, f.Crop)
		where = append(where, "crop = $"+strconv.Itoa(len(args)))
	}
	args = append(args, f.limit())

	q := `SELECT id, state, crop, predicted_yield, risk_score, confidence, snapshots, created_at FROM predictions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := db.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: recent predictions: %w", err)
	}
	defer rows.Close()

	out := []model.PredictionRun{}
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan prediction: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPrediction returns one prediction or ErrNotFound.
func (db *DB) GetPrediction(ctx context.Context, id uuid.UUID) (model.PredictionRun, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, state, crop, predicted_yield, risk_score, confidence, snapshots, created_at
		 FROM predictions WHERE id = $1`, id)
	p, err := scanPrediction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PredictionRun{}, ErrNotFound
	}
	if err != nil {
		return model.PredictionRun{}, fmt.Errorf("storage: get prediction: %w", err)
	}
	return p, nil
}

func scanPrediction(row pgx.Row) (model.PredictionRun, error) {
	var (
		p    model.PredictionRun
		snap []byte
	)
	if err := row.Scan(&p.ID, &p.Region, &p.Crop, &p.PredictedYield, &p.RiskScore, &p.Confidence, &snap, &p.CreatedAt); err != nil {
		return p, err
	}
	p.Snapshots = snap
	return p, nil
}

// HistoricalYields returns predicted yields since the cutoff, oldest first.
func (db *DB) HistoricalYields(ctx context.Context, since time.Time) ([]model.HistoricalYield, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT state, crop, predicted_yield, created_at FROM predictions
		 WHERE created_at >= $1 ORDER BY created_at`, since)
	if err != nil {
		return nil, fmt.Errorf("storage: historical yields: %w", err)
	}
	defer rows.Close()

	out := []model.HistoricalYield{}
	for rows.Next() {
		var y model.HistoricalYield
		if err := rows.Scan(&y.Region, &y.Crop, &y.PredictedYield, &y.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan historical yield: %w", err)
		}
		out = append(out, y)
	}
	return out, rows.Err()
}

// QueryStats summarises stored queries.
func (db *DB) QueryStats(ctx context.Context) (model.QueryStats, error) {
	var s model.QueryStats
	if err := db.pool.QueryRow(ctx, sqlCountQueries).Scan(&s.TotalQueries); err != nil {
		return s, fmt.Errorf("storage: count queries: %w", err)
	}
	var err error
	if s.ByLanguage, err = db.nameCounts(ctx, sqlQueriesByLanguage); err != nil {
		return s, err
	}
	if s.TopRegions, err = db.nameCounts(ctx, sqlTopRegions); err != nil {
		return s, err
	}
	if s.TopCrops, err = db.nameCounts(ctx, sqlTopCrops); err != nil {
		return s, err
	}
	return s, nil
}

func (db *DB) nameCounts(ctx context.Context, q string) ([]model.NameCount, error) {
	rows, err := db.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("storage: query stats: %w", err)
	}
	defer rows.Close()
	out := []model.NameCount{}
	for rows.Next() {
		var nc model.NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, fmt.Errorf("storage: scan stats: %w", err)
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}

// AgentPerformance summarises collector metrics per agent.
func (db *DB) AgentPerformance(ctx context.Context) ([]model.AgentPerformance, error) {
	rows, err := db.pool.Query(ctx, sqlAgentPerformance)
	if err != nil {
		return nil, fmt.Errorf("storage: agent performance: %w", err)
	}
	defer rows.Close()
	out := []model.AgentPerformance{}
	for rows.Next() {
		var (
			name          string
			n, ok, failed int64
			avg           float64
		)
		if err := rows.Scan(&name, &n, &avg, &ok, &failed); err != nil {
			return nil, fmt.Errorf("storage: scan agent performance: %w", err)
		}
		out = append(out, performance(name, n, avg, ok, failed))
	}
	return out, rows.Err()
}

// RecordFeedback stores an observed yield and its error against the prediction.
func (db *DB) RecordFeedback(ctx context.Context, predictionID uuid.UUID, actualYield float64, notes string) (model.Feedback, error) {
	pred, err := db.GetPrediction(ctx, predictionID)
	if err != nil {
		return model.Feedback{}, err
	}
	fb, err := newFeedback(pred, actualYield, notes, db.now())
	if err != nil {
		return model.Feedback{}, err
	}
	if _, err := db.pool.Exec(ctx,
		`INSERT INTO prediction_feedback (id, prediction_id, predicted_yield, actual_yield, error_percent, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		fb.ID, fb.PredictionID, fb.PredictedYield, fb.ActualYield, fb.ErrorPct, fb.Notes, fb.CreatedAt,
	); err != nil {
		return model.Feedback{}, fmt.Errorf("storage: insert feedback: %w", err)
	}
	return fb, nil
}

// DeleteBefore trims every history table to rows newer than cutoff.
// Feedback rows go with their predictions via ON DELETE CASCADE.
func (db *DB) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("storage: begin retention: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var total int64
	for _, table := range []string{"queries", "agent_metrics", "alerts_history", "predictions"} {
		tag, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE created_at < $1`, cutoff)
		if err != nil {
			return 0, fmt.Errorf("storage: trim %s: %w", table, err)
		}
		total += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("storage: commit retention: %w", err)
	}
	return total, nil
}
