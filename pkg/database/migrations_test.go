package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/retail-compliance/migrations"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "data", "test.db"), MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_EnablesWALAndForeignKeys(t *testing.T) {
	db := openTestDB(t)

	p, err := db.Pragmas(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wal", p.JournalMode)
	assert.True(t, p.ForeignKeys)
	assert.Equal(t, "5s", p.BusyTimeout.String())
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestMigrator_AppliesEmbeddedSchemaOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	migrator := NewMigrator(db, nil)

	require.NoError(t, migrator.Migrate(ctx, migrations.FS))
	require.NoError(t, migrator.Migrate(ctx, migrations.FS))

	versions, err := migrator.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, versions)

	for _, table := range []string{"instances", "archived_instances", "penalties", "submissions", "entities", "notification_log", "scheduler_state"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestMigrator_FailedMigrationIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	migrator := NewMigrator(db, nil)

	fsys := fstest.MapFS{
		"001_ok.sql":     {Data: []byte(`CREATE TABLE a (id INTEGER);`)},
		"002_broken.sql": {Data: []byte(`CREATE TABLE;`)},
	}
	err := migrator.Migrate(ctx, fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 2")

	versions, err := migrator.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, versions)
}

func TestMigrator_DetectsEditedMigration(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	migrator := NewMigrator(db, nil)

	require.NoError(t, migrator.Migrate(ctx, fstest.MapFS{
		"001_a.sql": {Data: []byte(`CREATE TABLE a (id INTEGER);`)},
	}))

	err := migrator.Migrate(ctx, fstest.MapFS{
		"001_a.sql": {Data: []byte(`CREATE TABLE a (id INTEGER, extra TEXT);`)},
	})
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestMigrator_StatusShowsPending(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	migrator := NewMigrator(db, nil)

	first := fstest.MapFS{"001_a.sql": {Data: []byte(`CREATE TABLE a (id INTEGER);`)}}
	require.NoError(t, migrator.Migrate(ctx, first))

	both := fstest.MapFS{
		"001_a.sql": first["001_a.sql"],
		"002_b.sql": {Data: []byte(`CREATE TABLE b (id INTEGER);`)},
	}
	status, err := migrator.Status(ctx, both)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.NotNil(t, status[0].AppliedAt)
	assert.Equal(t, "b", status[1].Name)
	assert.Nil(t, status[1].AppliedAt)
}

func TestLoad_RejectsBadFilenames(t *testing.T) {
	_, err := Load(fstest.MapFS{"schema.sql": {Data: []byte(`SELECT 1;`)}})
	assert.Error(t, err)

	_, err = Load(fstest.MapFS{
		"001_a.sql": {Data: []byte(`SELECT 1;`)},
		"1_b.sql":   {Data: []byte(`SELECT 1;`)},
	})
	assert.ErrorContains(t, err, "duplicate migration version 1")
}
