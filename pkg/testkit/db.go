// Package testkit holds shared test helpers: a migrated throwaway database
// and shortcuts for driving HTTP handlers.
package testkit

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	_ "github.com/shashiranjanraj/kashvi-shop/database/migrations"
	"github.com/shashiranjanraj/kashvi-shop/pkg/database"
	"github.com/shashiranjanraj/kashvi-shop/pkg/migration"
)

// sqliteParams makes concurrent transactions queue on the database write
// lock instead of failing with SQLITE_BUSY.
const sqliteParams = "?_foreign_keys=1&_busy_timeout=5000&_txlock=immediate"

// DB returns a fully migrated sqlite database in a temp dir, closed when
// the test ends.
func DB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "kshop.db")+sqliteParams)
	require.NoError(t, err)

	_, err = migration.New(db, io.Discard).Run(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
