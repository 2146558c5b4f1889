// ABOUTME: Contract tests for the persistent storage schema to detect breaking changes.
// ABOUTME: Validates that the kv table and its columns exist in the SQLite database.

package contract

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/glance-widget/internal/storage"
)

// expectedSchema defines the contract for the storage database.
// Tokens and sessions written by older hosts must stay readable.
var expectedSchema = map[string][]string{
	"kv": {"key", "value", "updated_at"},
}

// setupTestDB creates a temporary SQLite database through the storage package.
func setupTestDB(t *testing.T) (*sql.DB, *storage.SQLiteStorage) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "contract_test.db")

	store, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err, "failed to create SQLite storage")

	// The storage owns its connection, so open a second one for inspection.
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err, "failed to open database")

	t.Cleanup(func() {
		db.Close()
		store.Close()
	})
	return db, store
}

// getTableColumns queries SQLite to get column names for a table.
func getTableColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, fmt.Errorf("querying table info: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scanning column info: %w", err)
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns: %w", err)
	}
	return columns, nil
}

func TestSchemaSurface(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	for table, expectedCols := range expectedSchema {
		t.Run(table, func(t *testing.T) {
			actualCols, err := getTableColumns(ctx, db, table)
			require.NoError(t, err)
			require.NotEmpty(t, actualCols, "table %s should exist", table)

			for _, col := range expectedCols {
				assert.True(t, actualCols[col], "column %s.%s should exist", table, col)
			}
			for col := range actualCols {
				if !slices.Contains(expectedCols, col) {
					t.Logf("INFO: extra column %s.%s not in contract (consider adding)", table, col)
				}
			}
		})
	}
}

// TestStoredKeysReadable checks that values written through the storage
// API land in the kv table under the documented key names.
func TestStoredKeysReadable(t *testing.T) {
	db, store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.Set(storage.TokenKey("ws1"), "tok"))

	var value string
	err := db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", "glance_token_ws1").Scan(&value)
	require.NoError(t, err)
	assert.Equal(t, "tok", value)
}
