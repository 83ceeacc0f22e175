// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"flakereport/internal/common"
	"flakereport/internal/observability"
	"flakereport/internal/warehouse"
)

// WriteFile writes content to a file in the given directory
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), common.DirPermissionNormal))
	require.NoError(t, os.WriteFile(path, []byte(content), common.FilePermissionSecure))
	return path
}

// SQLiteWarehouse creates a sqlite database seeded with statements and
// returns its path
func SQLiteWarehouse(t *testing.T, statements ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warehouse.db")

	db, err := sql.Open(warehouse.DriverSQLite, path)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return path
}

// MockWarehouse returns a connected warehouse service backed by sqlmock
func MockWarehouse(t *testing.T) (*warehouse.Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return warehouse.NewServiceWithDB(db, warehouse.Config{Timeout: 5 * time.Second}), mock
}

// CaptureLogger returns a debug logger writing JSON lines into a buffer
func CaptureLogger() (*observability.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.LoggerConfig{
		Level:  observability.DebugLevel,
		Output: &buf,
	})
	return logger, &buf
}
