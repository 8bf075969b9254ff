package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/migrations"
)

// SQLite is the embedded history store. Writes go through a single
// connection, so concurrent appends serialize instead of contending for
// the database lock.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens (creating if needed) the database file at path and
// applies migrations. ":memory:" is accepted for tests.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	path = strings.TrimPrefix(path, "sqlite://")
	dsn := path
	if !strings.Contains(dsn, "?") {
		q := url.Values{}
		q.Add("_pragma", "busy_timeout(5000)")
		q.Add("_pragma", "foreign_keys(1)")
		if path != ":memory:" {
			q.Add("_pragma", "journal_mode(WAL)")
		}
		dsn = "file:" + path + "?" + q.Encode()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}
	s := &SQLite{db: db, logger: logger, now: time.Now}
	if err := s.RunMigrations(ctx, migrations.SQLite()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// RunMigrations applies unapplied SQL files in name order.
func (s *SQLite) RunMigrations(ctx context.Context, migrationsFS fs.FS) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("storage: create schema_migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("storage: load applied migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return fmt.Errorf("storage: load applied migrations: %w", err)
		}
		applied[v] = true
	}
	_ = rows.Close()

	names, err := migrationFiles(migrationsFS)
	if err != nil {
		return err
	}
	for _, name := range names {
		if applied[name] {
			continue
		}
		content, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("storage: read migration %s: %w", name, err)
		}
		s.logger.Info("running migration", "file", name, "dialect", "sqlite")
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("storage: execute migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			name, s.now().UnixMilli(),
		); err != nil {
			return fmt.Errorf("storage: record migration %s: %w", name, err)
		}
	}
	return nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// AppendHistory writes all entries in one transaction.
func (s *SQLite) AppendHistory(ctx context.Context, entries []model.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		return s.appendTx(ctx, entries)
	})
}

func (s *SQLite) appendTx(ctx context.Context, entries []model.HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		if p := e.Prediction; p != nil {
			var snap any
			if len(p.Snapshots) > 0 {
				snap = string(p.Snapshots)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO predictions (id, state, crop, predicted_yield, risk_score, confidence, snapshots, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				p.ID.String(), p.Region, p.Crop, p.PredictedYield, p.RiskScore, p.Confidence, snap, millis(p.CreatedAt),
			); err != nil {
				return fmt.Errorf("storage: insert prediction: %w", err)
			}
		}
		if q := e.Query; q != nil {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO queries (id, query, language, state, crop, intent, response_time_ms, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				q.ID.String(), q.Query, q.Language, q.Region, q.Crop, string(q.Intent), q.LatencyMS, millis(q.CreatedAt),
			); err != nil {
				return fmt.Errorf("storage: insert query: %w", err)
			}
		}
		for _, m := range e.Metrics {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO agent_metrics (agent_name, execution_time_ms, success, error_message, created_at)
				 VALUES (?, ?, ?, ?, ?)`,
				m.Agent, m.DurationMS, m.Success, m.Error, millis(m.RecordedAt),
			); err != nil {
				return fmt.Errorf("storage: insert agent metric: %w", err)
			}
		}
		for _, a := range e.Alerts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO alerts_history (run_id, state, alert_type, severity, message, created_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				a.RunID.String(), a.Region, string(a.Kind), string(a.Severity), a.Message, millis(a.CreatedAt),
			); err != nil {
				return fmt.Errorf("storage: insert alert: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit append: %w", err)
	}
	return nil
}

const sqlitePredictionColumns = `id, state, crop, predicted_yield, risk_score, confidence, snapshots, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLitePrediction(row scanner) (model.PredictionRun, error) {
	var (
		p    model.PredictionRun
		id   string
		snap sql.NullString
		ts   int64
	)
	if err := row.Scan(&id, &p.Region, &p.Crop, &p.PredictedYield, &p.RiskScore, &p.Confidence, &snap, &ts); err != nil {
		return p, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return p, fmt.Errorf("storage: parse prediction id: %w", err)
	}
	p.ID = parsed
	if snap.Valid {
		p.Snapshots = []byte(snap.String)
	}
	p.CreatedAt = fromMillis(ts)
	return p, nil
}

// RecentPredictions returns the newest predictions first.
func (s *SQLite) RecentPredictions(ctx context.Context, f PredictionFilter) ([]model.PredictionRun, error) {
	var (
		where []string
		args  []any
	)
	if f.Region != "" {
		where = append(where, "state = ?")
		args = append(args, f.Region)
	}
	if f.Crop != "" {
		where = append(where, "crop = ?")
		args = append(args, f.Crop)
	}
	q := `SELECT ` + sqlitePredictionColumns + ` FROM predictions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, f.limit())

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: recent predictions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.PredictionRun{}
	for rows.Next() {
		p, err := scanSQLitePrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan prediction: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPrediction returns one prediction or ErrNotFound.
func (s *SQLite) GetPrediction(ctx context.Context, id uuid.UUID) (model.PredictionRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqlitePredictionColumns+` FROM predictions WHERE id = ?`, id.String())
	p, err := scanSQLitePrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PredictionRun{}, ErrNotFound
	}
	if err != nil {
		return model.PredictionRun{}, fmt.Errorf("storage: get prediction: %w", err)
	}
	return p, nil
}

// HistoricalYields returns predicted yields since the cutoff, oldest first.
func (s *SQLite) HistoricalYields(ctx context.Context, since time.Time) ([]model.HistoricalYield, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, crop, predicted_yield, created_at FROM predictions
		 WHERE created_at >= ? ORDER BY created_at, rowid`, millis(since))
	if err != nil {
		return nil, fmt.Errorf("storage: historical yields: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.HistoricalYield{}
	for rows.Next() {
		var (
			y  model.HistoricalYield
			ts int64
		)
		if err := rows.Scan(&y.Region, &y.Crop, &y.PredictedYield, &ts); err != nil {
			return nil, fmt.Errorf("storage: scan historical yield: %w", err)
		}
		y.CreatedAt = fromMillis(ts)
		out = append(out, y)
	}
	return out, rows.Err()
}

// QueryStats summarises stored queries.
func (s *SQLite) QueryStats(ctx context.Context) (model.QueryStats, error) {
	var st model.QueryStats
	if err := s.db.QueryRowContext(ctx, sqlCountQueries).Scan(&st.TotalQueries); err != nil {
		return st, fmt.Errorf("storage: count queries: %w", err)
	}
	var err error
	if st.ByLanguage, err = s.nameCounts(ctx, sqlQueriesByLanguage); err != nil {
		return st, err
	}
	if st.TopRegions, err = s.nameCounts(ctx, sqlTopRegions); err != nil {
		return st, err
	}
	if st.TopCrops, err = s.nameCounts(ctx, sqlTopCrops); err != nil {
		return st, err
	}
	return st, nil
}

func (s *SQLite) nameCounts(ctx context.Context, q string) ([]model.NameCount, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("storage: query stats: %w", err)
	}
	defer func() { _ = rows.Close() }()
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
func (s *SQLite) AgentPerformance(ctx context.Context) ([]model.AgentPerformance, error) {
	rows, err := s.db.QueryContext(ctx, sqlAgentPerformance)
	if err != nil {
		return nil, fmt.Errorf("storage: agent performance: %w", err)
	}
	defer func() { _ = rows.Close() }()
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
func (s *SQLite) RecordFeedback(ctx context.Context, predictionID uuid.UUID, actualYield float64, notes string) (model.Feedback, error) {
	pred, err := s.GetPrediction(ctx, predictionID)
	if err != nil {
		return model.Feedback{}, err
	}
	fb, err := newFeedback(pred, actualYield, notes, s.now())
	if err != nil {
		return model.Feedback{}, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO prediction_feedback (id, prediction_id, predicted_yield, actual_yield, error_percent, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fb.ID.String(), fb.PredictionID.String(), fb.PredictedYield, fb.ActualYield, fb.ErrorPct, fb.Notes, millis(fb.CreatedAt),
	); err != nil {
		return model.Feedback{}, fmt.Errorf("storage: insert feedback: %w", err)
	}
	return fb, nil
}

// DeleteBefore trims every history table to rows newer than cutoff.
func (s *SQLite) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage: begin retention: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, table := range []string{"queries", "agent_metrics", "alerts_history", "predictions"} {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE created_at < ?`, millis(cutoff))
		if err != nil {
			return 0, fmt.Errorf("storage: trim %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage: commit retention: %w", err)
	}
	return total, nil
}

// Ping checks the database handle.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *SQLite) Close(_ context.Context) {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("storage: close sqlite", "error", err)
	}
}
