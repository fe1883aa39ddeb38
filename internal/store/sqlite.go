package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'running',
	target_crs TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_archives (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	archive  TEXT NOT NULL,
	ordinal  INTEGER NOT NULL,
	features INTEGER NOT NULL DEFAULT 0,
	skipped  INTEGER NOT NULL DEFAULT 0,
	error    TEXT,
	PRIMARY KEY (run_id, ordinal)
);

CREATE TABLE IF NOT EXISTS features (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	archive    TEXT NOT NULL,
	ordinal    INTEGER NOT NULL,
	geom       BLOB NOT NULL,
	properties TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_features_run_id ON features(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, id, targetCRS string) (*Run, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, target_crs, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(RunStatusRunning), targetCRS, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert run %s", id)
	}
	return &Run{ID: id, Status: RunStatusRunning, TargetCRS: targetCRS, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", id)
	}
	return checkRowsAffected(res, "run", id)
}

const runColumns = `r.id, r.status, r.target_crs, r.created_at, r.updated_at,
	(SELECT COUNT(*) FROM run_archives a WHERE a.run_id = r.id),
	(SELECT COUNT(*) FROM run_archives a WHERE a.run_id = r.id AND a.error IS NOT NULL),
	(SELECT COUNT(*) FROM features f WHERE f.run_id = r.id)`

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, id)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs r WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND r.status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY r.created_at DESC, r.rowid DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) RecordArchive(ctx context.Context, a ArchiveStatus) error {
	var errText sql.NullString
	if a.Error != "" {
		errText = sql.NullString{String: a.Error, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_archives (run_id, archive, ordinal, features, skipped, error) VALUES (?, ?, ?, ?, ?, ?)`,
		a.RunID, a.Archive, a.Ordinal, a.Features, a.Skipped, errText,
	)
	return eris.Wrapf(err, "sqlite: record archive %s", a.Archive)
}

func (s *SQLiteStore) ListArchives(ctx context.Context, runID string) ([]ArchiveStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, archive, ordinal, features, skipped, error FROM run_archives WHERE run_id = ? ORDER BY ordinal`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list archives")
	}
	defer rows.Close() //nolint:errcheck

	var out []ArchiveStatus
	for rows.Next() {
		var a ArchiveStatus
		var errText sql.NullString
		if err := rows.Scan(&a.RunID, &a.Archive, &a.Ordinal, &a.Features, &a.Skipped, &errText); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan archive")
		}
		a.Error = errText.String
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list archives iterate")
}

// InsertFeatures stores features in one transaction. Geometries are kept as
// EWKB tagged with srid.
func (s *SQLiteStore) InsertFeatures(ctx context.Context, runID, archive string, srid int, features []*geojson.Feature) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO features (run_id, archive, ordinal, geom, properties) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare feature insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, f := range features {
		wkb, err := EncodeEWKB(f.Geometry, srid)
		if err != nil {
			return eris.Wrapf(err, "sqlite: feature %d", i)
		}
		props, err := json.Marshal(f.Properties)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal properties of feature %d", i)
		}
		if _, err := stmt.ExecContext(ctx, runID, archive, i, wkb, string(props)); err != nil {
			return eris.Wrapf(err, "sqlite: insert feature %d", i)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit features")
}

// ListFeatures returns a run's features in insertion order.
func (s *SQLiteStore) ListFeatures(ctx context.Context, runID string) ([]*geojson.Feature, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT geom, properties FROM features WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list features")
	}
	defer rows.Close() //nolint:errcheck

	var out []*geojson.Feature
	for rows.Next() {
		var wkb []byte
		var props string
		if err := rows.Scan(&wkb, &props); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feature")
		}
		g, err := ewkb.Unmarshal(wkb)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: decode geometry")
		}
		f := &geojson.Feature{Geometry: g}
		if err := json.Unmarshal([]byte(props), &f.Properties); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal properties")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list features iterate")
}

// EncodeEWKB encodes a polygon or multipolygon as little-endian EWKB with
// srid. The input geometry is not modified.
func EncodeEWKB(g geom.T, srid int) ([]byte, error) {
	var tagged geom.T
	switch t := g.(type) {
	case *geom.Polygon:
		tagged = t.Clone().SetSRID(srid)
	case *geom.MultiPolygon:
		tagged = t.Clone().SetSRID(srid)
	default:
		return nil, eris.Errorf("store: unsupported geometry %T", g)
	}
	data, err := ewkb.Marshal(tagged, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode EWKB")
	}
	return data, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.Status, &r.TargetCRS, &r.CreatedAt, &r.UpdatedAt, &r.Archives, &r.Failed, &r.Features)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	return &r, nil
}
