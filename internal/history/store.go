// Package history persists cycle reports in SQLite so they survive restarts
// and can be queried per asset.
package history

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"diagnosys-poller/internal/domain"
	"diagnosys-poller/internal/errors"
	"diagnosys-poller/internal/logger"
	"diagnosys-poller/internal/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id TEXT NOT NULL,
	asset TEXT NOT NULL,
	outcome TEXT NOT NULL,
	stage TEXT,
	status_code TEXT,
	status_description TEXT,
	error TEXT,
	error_kind TEXT,
	http_status INTEGER,
	readings INTEGER NOT NULL DEFAULT 0,
	anomalous BOOLEAN NOT NULL DEFAULT 0,
	started_at INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_asset_started ON reports (asset, started_at);
CREATE INDEX IF NOT EXISTS idx_reports_started ON reports (started_at);
`

const insertReport = `INSERT INTO reports (
	cycle_id, asset, outcome, stage, status_code, status_description,
	error, error_kind, http_status, readings, anomalous, started_at, duration_ns
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectRecent = `SELECT
	cycle_id, asset, outcome, stage, status_code, status_description,
	error, error_kind, http_status, readings, started_at, duration_ns
FROM reports WHERE asset = ? ORDER BY started_at DESC, id DESC LIMIT ?`

const deleteOlder = `DELETE FROM reports WHERE started_at < ?`

// Store is a report sink backed by database/sql.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// Open opens (creating if needed) the SQLite database at path and migrates it.
func Open(ctx context.Context, path string, l *zap.SugaredLogger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open history database %s", path)
	}
	// SQLite serializes writers; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	s := New(db, l)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database.
func New(db *sql.DB, l *zap.SugaredLogger) *Store {
	return &Store{db: db, logger: logger.OrNop(l)}
}

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "migrate history schema")
	}
	return nil
}

// Name implements report.Sink.
func (s *Store) Name() string { return "history" }

// Publish implements report.Sink.
func (s *Store) Publish(ctx context.Context, r report.Report) error {
	var code, desc sql.NullString
	if r.Result != nil {
		code = sql.NullString{String: r.Result.StatusCode, Valid: true}
		desc = sql.NullString{String: r.Result.StatusDescription, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, insertReport,
		r.CycleID,
		string(r.Asset),
		string(r.Outcome),
		nullString(r.Stage),
		code,
		desc,
		nullString(r.Error),
		nullString(string(r.ErrorKind)),
		nullInt(int64(r.Status)),
		r.Readings,
		r.Anomalous(),
		r.StartedAt.UnixNano(),
		int64(r.Duration),
	)
	if err != nil {
		return errors.Wrapf(err, "insert report %s", r.CycleID)
	}
	return nil
}

// Recent returns up to limit reports for asset, oldest first.
func (s *Store) Recent(ctx context.Context, asset domain.AssetID, limit int) ([]report.Report, error) {
	rows, err := s.db.QueryContext(ctx, selectRecent, string(asset), limit)
	if err != nil {
		return nil, errors.Wrapf(err, "query reports for %s", asset)
	}
	defer rows.Close()

	var out []report.Report
	for rows.Next() {
		var (
			r                                     report.Report
			stage, code, desc, errText, errorKind sql.NullString
			httpStatus                            sql.NullInt64
			assetID, outcome                      string
			startedAt, duration                   int64
		)
		if err := rows.Scan(&r.CycleID, &assetID, &outcome, &stage, &code, &desc,
			&errText, &errorKind, &httpStatus, &r.Readings, &startedAt, &duration); err != nil {
			return nil, errors.Wrap(err, "scan report row")
		}

		r.Asset = domain.AssetID(assetID)
		r.Outcome = report.Outcome(outcome)
		r.Stage = stage.String
		r.Error = errText.String
		r.ErrorKind = errors.Kind(errorKind.String)
		r.Status = int(httpStatus.Int64)
		r.StartedAt = time.Unix(0, startedAt)
		r.Duration = time.Duration(duration)
		if code.Valid {
			r.Result = &domain.DiagnosisResult{StatusCode: code.String, StatusDescription: desc.String}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate report rows")
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// DeleteOlderThan removes reports started before cutoff and returns how many went.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, deleteOlder, cutoff.UnixNano())
	if err != nil {
		return 0, errors.Wrap(err, "prune reports")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "prune reports")
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
