package ingest

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	_ "modernc.org/sqlite"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// StreamSQLite iterates over the records of table (default "results", with
// columns id and record holding JSON), calling fn for each one in id order.
// Only one parsed record is alive at a time.
func StreamSQLite(dbPath, table string, fn func(recordID string, record any) error) error {
	if table == "" {
		table = "results"
	}
	if !tableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open("sqlite", dbPath+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.Query("SELECT id, record FROM " + table + " ORDER BY rowid")
	if err != nil {
		return fmt.Errorf("query %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return fmt.Errorf("parse record %s: %w", id, err)
		}
		if err := fn(id, parsed); err != nil {
			return err
		}
	}
	return rows.Err()
}
