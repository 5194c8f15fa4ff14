package migration_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/kashvi-shop/pkg/database"
	"github.com/shashiranjanraj/kashvi-shop/pkg/migration"
)

type widget struct {
	ID   uint
	Name string
}

type createWidgets struct{}

func (createWidgets) Up(db *gorm.DB) error   { return db.AutoMigrate(&widget{}) }
func (createWidgets) Down(db *gorm.DB) error { return db.Migrator().DropTable(&widget{}) }

func init() {
	migration.Register("20250101000000_create_widgets", createWidgets{})
}

func TestRunRollbackStatus(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	r := migration.New(db, io.Discard)

	n, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, db.Migrator().HasTable(&widget{}))

	n, err = r.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	st, err := r.Status(ctx)
	require.NoError(t, err)
	require.Len(t, st, 1)
	assert.Equal(t, migration.Status{Name: "20250101000000_create_widgets", Ran: true, Batch: 1}, st[0])

	n, err = r.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, db.Migrator().HasTable(&widget{}))

	n, err = r.Rollback(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
