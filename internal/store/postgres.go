package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentic-research/taxa/internal/taxon"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS taxa (
	id BIGSERIAL PRIMARY KEY,
	parent_id BIGINT REFERENCES taxa(id),
	latin TEXT NOT NULL UNIQUE,
	rank TEXT NOT NULL,
	seq BIGINT NOT NULL DEFAULT 0,
	extinct BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_taxa_parent ON taxa(parent_id, seq, latin);

CREATE TABLE IF NOT EXISTS taxon_names (
	taxon_id BIGINT NOT NULL REFERENCES taxa(id),
	lang TEXT NOT NULL,
	name TEXT NOT NULL,
	PRIMARY KEY (taxon_id, lang)
);
`

// PostgresStore is a Store backed by a PostgreSQL connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres store needs a connection string")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanPgRecord(row pgx.Row) (*taxon.Record, error) {
	var (
		rec    taxon.Record
		parent *int64
		rank   string
	)
	if err := row.Scan(&rec.ID, &parent, &rec.Latin, &rank, &rec.Seq, &rec.Extinct); err != nil {
		return nil, err
	}
	r, err := taxon.ParseRank(rank)
	if err != nil {
		return nil, fmt.Errorf("taxon #%d: %w", rec.ID, err)
	}
	rec.Rank = r
	if parent != nil {
		rec.Parent = taxon.Known(*parent)
	}
	return &rec, nil
}

func (s *PostgresStore) findOne(ctx context.Context, q querier, where string, arg any) (*taxon.Record, error) {
	rec, err := scanPgRecord(q.QueryRow(ctx, selectRecord+" WHERE "+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *PostgresStore) FindByName(ctx context.Context, latin string) (*taxon.Record, error) {
	return s.findOne(ctx, s.pool, "latin = $1", latin)
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*taxon.Record, error) {
	return s.findOne(ctx, s.pool, "id = $1", id)
}

func (s *PostgresStore) FindChildren(ctx context.Context, parentID int64) ([]*taxon.Record, error) {
	rows, err := s.pool.Query(ctx, selectRecord+" WHERE parent_id = $1 ORDER BY seq, latin", parentID)
	if err != nil {
		return nil, fmt.Errorf("query children of #%d: %w", parentID, err)
	}
	defer rows.Close()

	var out []*taxon.Record
	for rows.Next() {
		rec, err := scanPgRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func pgParent(p taxon.ParentRef) *int64 {
	if id, ok := p.ID(); ok {
		return &id
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, rec *taxon.Record) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if existing, err := s.findOne(ctx, tx, "latin = $1", rec.Latin); err == nil {
			return fmt.Errorf("%w: %s (#%d)", ErrDuplicate, rec.Latin, existing.ID)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return tx.QueryRow(ctx,
			`INSERT INTO taxa (parent_id, latin, rank, seq, extinct) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			pgParent(rec.Parent), rec.Latin, rec.Rank.Code(), rec.Seq, rec.Extinct).Scan(&id)
	})
	return id, err
}

func (s *PostgresStore) Update(ctx context.Context, rec *taxon.Record) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if existing, err := s.findOne(ctx, tx, "latin = $1", rec.Latin); err == nil && existing.ID != rec.ID {
			return fmt.Errorf("%w: %s (#%d)", ErrDuplicate, rec.Latin, existing.ID)
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE taxa SET parent_id = $1, latin = $2, rank = $3, seq = $4, extinct = $5 WHERE id = $6`,
			pgParent(rec.Parent), rec.Latin, rec.Rank.Code(), rec.Seq, rec.Extinct, rec.ID)
		if err != nil {
			return fmt.Errorf("update #%d: %w", rec.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *PostgresStore) Names(ctx context.Context, id int64) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT lang, name FROM taxon_names WHERE taxon_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query names of #%d: %w", id, err)
	}
	defer rows.Close()

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

func (s *PostgresStore) CreateName(ctx context.Context, id int64, lang, name string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO taxon_names (taxon_id, lang, name) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			id, lang, name)
		if err != nil {
			return fmt.Errorf("insert name %s for #%d: %w", lang, id, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: name %s for #%d", ErrDuplicate, lang, id)
		}
		return nil
	})
}

func (s *PostgresStore) UpdateName(ctx context.Context, id int64, lang, name string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE taxon_names SET name = $1 WHERE taxon_id = $2 AND lang = $3`, name, id, lang)
		if err != nil {
			return fmt.Errorf("update name %s for #%d: %w", lang, id, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}
