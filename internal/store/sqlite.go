package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/geoid"
)

// SQLiteStore implements WeightCache using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

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
CREATE TABLE IF NOT EXISTS weight_sets (
	id             TEXT PRIMARY KEY,
	level          TEXT NOT NULL,
	source_vintage INTEGER NOT NULL,
	target_vintage INTEGER NOT NULL,
	fingerprint    TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	row_count      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS weights (
	set_id       TEXT NOT NULL REFERENCES weight_sets(id) ON DELETE CASCADE,
	source       TEXT NOT NULL,
	target       TEXT NOT NULL,
	count_weight REAL NOT NULL,
	rate_weight  REAL NOT NULL,
	PRIMARY KEY (set_id, source, target)
);

CREATE INDEX IF NOT EXISTS idx_weight_sets_key ON weight_sets(level, source_vintage, target_vintage);
`

// Migrate creates the cache tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Put(ctx context.Context, key SetKey, weights []crosswalk.Weight) (*SetInfo, error) {
	info := &SetInfo{
		ID:        uuid.New().String(),
		Key:       key,
		CreatedAt: time.Now().UTC(),
		RowCount:  len(weights),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin put")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM weight_sets WHERE level = ? AND source_vintage = ? AND target_vintage = ?`,
		string(key.Level), key.SourceVintage, key.TargetVintage,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: delete previous set")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO weight_sets (id, level, source_vintage, target_vintage, fingerprint, created_at, row_count) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.ID, string(key.Level), key.SourceVintage, key.TargetVintage, key.Fingerprint, info.CreatedAt, info.RowCount,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert set")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO weights (set_id, source, target, count_weight, rate_weight) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare weights")
	}
	defer stmt.Close() //nolint:errcheck

	for _, w := range weights {
		if _, err := stmt.ExecContext(ctx, info.ID, w.Source, w.Target, w.CountWeight, w.RateWeight); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert weight %s -> %s", w.Source, w.Target)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit put")
	}
	return info, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key SetKey) ([]crosswalk.Weight, *SetInfo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, level, source_vintage, target_vintage, fingerprint, created_at, row_count
		 FROM weight_sets WHERE level = ? AND source_vintage = ? AND target_vintage = ?
		 AND (? = '' OR fingerprint = ?)
		 ORDER BY created_at DESC LIMIT 1`,
		string(key.Level), key.SourceVintage, key.TargetVintage, key.Fingerprint, key.Fingerprint,
	)
	info, err := scanSet(row)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source, target, count_weight, rate_weight FROM weights WHERE set_id = ? ORDER BY source, target`,
		info.ID,
	)
	if err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: query weights")
	}
	defer rows.Close() //nolint:errcheck

	weights := make([]crosswalk.Weight, 0, info.RowCount)
	for rows.Next() {
		var w crosswalk.Weight
		if err := rows.Scan(&w.Source, &w.Target, &w.CountWeight, &w.RateWeight); err != nil {
			return nil, nil, eris.Wrap(err, "sqlite: scan weight")
		}
		weights = append(weights, w)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: iterate weights")
	}
	return weights, info, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]SetInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, level, source_vintage, target_vintage, fingerprint, created_at, row_count
		 FROM weight_sets ORDER BY created_at DESC, level`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sets")
	}
	defer rows.Close() //nolint:errcheck

	var out []SetInfo
	for rows.Next() {
		info, err := scanSet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate sets")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSet(row scannable) (*SetInfo, error) {
	var info SetInfo
	var level string
	err := row.Scan(&info.ID, &level, &info.Key.SourceVintage, &info.Key.TargetVintage, &info.Key.Fingerprint, &info.CreatedAt, &info.RowCount)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan set")
	}
	info.Key.Level = geoid.Level(level)
	return &info, nil
}
