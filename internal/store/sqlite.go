package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/agentic-research/taxa/internal/taxon"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS taxa (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_id INTEGER REFERENCES taxa(id),
	latin TEXT NOT NULL UNIQUE,
	rank TEXT NOT NULL,
	seq INTEGER NOT NULL DEFAULT 0,
	extinct INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_taxa_parent ON taxa(parent_id, seq, latin);

CREATE TABLE IF NOT EXISTS taxon_names (
	taxon_id INTEGER NOT NULL REFERENCES taxa(id),
	lang TEXT NOT NULL,
	name TEXT NOT NULL,
	PRIMARY KEY (taxon_id, lang)
) WITHOUT ROWID;
`

// SQLiteStore is a Store backed by a SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and ensures the
// schema exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer; avoids SQLITE_BUSY between the pool's connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// DB exposes the underlying handle for ad-hoc queries.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*taxon.Record, error) {
	var (
		rec     taxon.Record
		parent  sql.NullInt64
		rank    string
		extinct int
	)
	if err := row.Scan(&rec.ID, &parent, &rec.Latin, &rank, &rec.Seq, &extinct); err != nil {
		return nil, err
	}
	r, err := taxon.ParseRank(rank)
	if err != nil {
		return nil, fmt.Errorf("taxon #%d: %w", rec.ID, err)
	}
	rec.Rank = r
	rec.Extinct = extinct != 0
	if parent.Valid {
		rec.Parent = taxon.Known(parent.Int64)
	}
	return &rec, nil
}

const selectRecord = `SELECT id, parent_id, latin, rank, seq, extinct FROM taxa`

func (s *SQLiteStore) findOne(ctx context.Context, q execer, where string, arg any) (*taxon.Record, error) {
	rec, err := scanRecord(q.QueryRowContext(ctx, selectRecord+" WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) FindByName(ctx context.Context, latin string) (*taxon.Record, error) {
	return s.findOne(ctx, s.db, "latin = ?", latin)
}

func (s *SQLiteStore) FindByID(ctx context.Context, id int64) (*taxon.Record, error) {
	return s.findOne(ctx, s.db, "id = ?", id)
}

func (s *SQLiteStore) FindChildren(ctx context.Context, parentID int64) ([]*taxon.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectRecord+" WHERE parent_id = ? ORDER BY seq, latin", parentID)
	if err != nil {
		return nil, fmt.Errorf("query children of #%d: %w", parentID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*taxon.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// withTx runs fn in its own transaction and commits it.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func nullParent(p taxon.ParentRef) sql.NullInt64 {
	id, ok := p.ID()
	return sql.NullInt64{Int64: id, Valid: ok}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) Create(ctx context.Context, rec *taxon.Record) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if existing, err := s.findOne(ctx, tx, "latin = ?", rec.Latin); err == nil {
			return fmt.Errorf("%w: %s (#%d)", ErrDuplicate, rec.Latin, existing.ID)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO taxa (parent_id, latin, rank, seq, extinct) VALUES (?, ?, ?, ?, ?)`,
			nullParent(rec.Parent), rec.Latin, rec.Rank.Code(), rec.Seq, boolInt(rec.Extinct))
		if err != nil {
			return fmt.Errorf("insert %s: %w", rec.Latin, err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *SQLiteStore) Update(ctx context.Context, rec *taxon.Record) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if existing, err := s.findOne(ctx, tx, "latin = ?", rec.Latin); err == nil && existing.ID != rec.ID {
			return fmt.Errorf("%w: %s (#%d)", ErrDuplicate, rec.Latin, existing.ID)
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE taxa SET parent_id = ?, latin = ?, rank = ?, seq = ?, extinct = ? WHERE id = ?`,
			nullParent(rec.Parent), rec.Latin, rec.Rank.Code(), rec.Seq, boolInt(rec.Extinct), rec.ID)
		if err != nil {
			return fmt.Errorf("update #%d: %w", rec.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLiteStore) Names(ctx context.Context, id int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT lang, name FROM taxon_names WHERE taxon_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query names of #%d: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	out := map[string]string{}
	for rows.Next() {
		var lang, name string
		if err := rows.Scan(&lang, &name); err != nil {
			return nil, err
		}
		out[lang] = name
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateName(ctx context.Context, id int64, lang, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT count(*) FROM taxon_names WHERE taxon_id = ? AND lang = ?`, id, lang).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: name %s for #%d", ErrDuplicate, lang, id)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO taxon_names (taxon_id, lang, name) VALUES (?, ?, ?)`, id, lang, name); err != nil {
			return fmt.Errorf("insert name %s for #%d: %w", lang, id, err)
		}
		return nil
	})
}

func (s *SQLiteStore) UpdateName(ctx context.Context, id int64, lang, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE taxon_names SET name = ? WHERE taxon_id = ? AND lang = ?`, name, id, lang)
		if err != nil {
			return fmt.Errorf("update name %s for #%d: %w", lang, id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
