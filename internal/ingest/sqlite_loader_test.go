package ingest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func createTestDB(t *testing.T, dir string, records []string) string {
	t.Helper()
	dbPath := filepath.Join(dir, "test.db")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Exec("CREATE TABLE results (id TEXT PRIMARY KEY, record TEXT NOT NULL)")
	require.NoError(t, err)

	for i, rec := range records {
		_, err = db.Exec("INSERT INTO results (id, record) VALUES (?, ?)",
			string(rune('a'+i)), rec)
		require.NoError(t, err)
	}
	return dbPath
}

func TestStreamSQLite(t *testing.T) {
	t.Run("records in insertion order", func(t *testing.T) {
		dbPath := createTestDB(t, t.TempDir(), []string{
			`{"order":"Passeriformes"}`,
			`{"family":"Corvidae","extra":{"nested":[1,2]}}`,
		})

		var ids []string
		var records []any
		err := StreamSQLite(dbPath, "", func(id string, rec any) error {
			ids = append(ids, id)
			records = append(records, rec)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids)
		second, ok := records[1].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Corvidae", second["family"])
	})

	t.Run("empty database", func(t *testing.T) {
		dbPath := createTestDB(t, t.TempDir(), nil)
		calls := 0
		require.NoError(t, StreamSQLite(dbPath, "results", func(string, any) error {
			calls++
			return nil
		}))
		assert.Zero(t, calls)
	})

	t.Run("invalid table name", func(t *testing.T) {
		dbPath := createTestDB(t, t.TempDir(), nil)
		err := StreamSQLite(dbPath, "results; DROP TABLE results", func(string, any) error { return nil })
		require.Error(t, err)
	})

	t.Run("nonexistent file", func(t *testing.T) {
		err := StreamSQLite(filepath.Join(t.TempDir(), "missing.db"), "", func(string, any) error { return nil })
		require.Error(t, err)
	})

	t.Run("bad json", func(t *testing.T) {
		dbPath := createTestDB(t, t.TempDir(), []string{`{not json`})
		err := StreamSQLite(dbPath, "", func(string, any) error { return nil })
		require.Error(t, err)
	})
}
