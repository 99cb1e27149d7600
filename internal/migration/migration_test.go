package migration

import (
	"io/fs"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	progressdomain "github.com/smallbiznis/goalforge/internal/progress/domain"
	pkgdb "github.com/smallbiznis/goalforge/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case len(e.Name()) > 7 && e.Name()[len(e.Name())-7:] == ".up.sql":
			ups++
		case len(e.Name()) > 9 && e.Name()[len(e.Name())-9:] == ".down.sql":
			downs++
		}
	}
	assert.Equal(t, 2, ups)
	assert.Equal(t, ups, downs)
}

func TestAutoMigrateEnforcesCompletionUniqueness(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	now := time.Now().UTC()
	first := progressdomain.CompletionEvent{ID: 1, HabitID: 10, UserID: "u1", Day: "2026-03-02", RecordedAt: now}
	require.NoError(t, db.Create(&first).Error)

	dup := progressdomain.CompletionEvent{ID: 2, HabitID: 10, UserID: "u1", Day: "2026-03-02", RecordedAt: now}
	err = db.Create(&dup).Error
	require.Error(t, err)
	assert.True(t, pkgdb.IsDuplicateKeyErr(err))

	nextDay := progressdomain.CompletionEvent{ID: 3, HabitID: 10, UserID: "u1", Day: "2026-03-03", RecordedAt: now}
	assert.NoError(t, db.Create(&nextDay).Error)
}
