// Package store persists taxon records and their common names.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/taxa/internal/taxon"
)

var (
	ErrNotFound = errors.New("taxon not found")
	// ErrDuplicate is returned when a write would give two records the same
	// scientific name, or a record two names in one language.
	ErrDuplicate = errors.New("duplicate taxon")
)

// Store is the taxon store. Every write is atomic for a single record.
type Store interface {
	FindByName(ctx context.Context, latin string) (*taxon.Record, error)
	FindByID(ctx context.Context, id int64) (*taxon.Record, error)
	// FindChildren returns the direct children of parentID ordered by
	// sequence number, then name.
	FindChildren(ctx context.Context, parentID int64) ([]*taxon.Record, error)
	// Create inserts rec and returns its new id. rec.ID is ignored.
	Create(ctx context.Context, rec *taxon.Record) (int64, error)
	// Update overwrites every field of the record with id rec.ID.
	Update(ctx context.Context, rec *taxon.Record) error

	Names(ctx context.Context, id int64) (map[string]string, error)
	CreateName(ctx context.Context, id int64, lang, name string) error
	UpdateName(ctx context.Context, id int64, lang, name string) error

	Close() error
}

// Open returns the store for a driver name: "sqlite", "postgres" or
// "memory".
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		if dsn == "" {
			return nil, errors.New("sqlite store needs a database path")
		}
		return OpenSQLite(dsn)
	case "postgres", "postgresql", "pgx":
		return OpenPostgres(ctx, dsn)
	case "memory":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}

// Descendants calls fn for every record below id in pre-order.
func Descendants(ctx context.Context, s Store, id int64, fn func(*taxon.Record) error) error {
	children, err := s.FindChildren(ctx, id)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := fn(c); err != nil {
			return err
		}
		if err := Descendants(ctx, s, c.ID, fn); err != nil {
			return err
		}
	}
	return nil
}

// Languages returns the set of language codes for which any of the given
// records has a name.
func Languages(ctx context.Context, s Store, ids []int64) (map[string]bool, error) {
	out := map[string]bool{}
	for _, id := range ids {
		names, err := s.Names(ctx, id)
		if err != nil {
			return nil, err
		}
		for lang := range names {
			out[lang] = true
		}
	}
	return out, nil
}
