// Package dbtest はテスト用の一時SQLiteデータベースを提供する。
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/hitoshi/catalyst/internal/database"
)

// NewSQLite はt.TempDir()上にSQLiteファイルを作成し、本番と同じマイグレーションを適用して返す。
// テスト終了時に自動でクローズする。
func NewSQLite(t *testing.T) *sql.DB {
	t.Helper()

	databaseURL := "sqlite://" + filepath.Join(t.TempDir(), "catalyst_test.db")
	if err := database.RunMigrations(databaseURL); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	db, _, err := database.Open(databaseURL)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping sqlite: %v", err)
	}
	return db
}
