package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"postpilot/internal/config"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func TestConfigurePool(t *testing.T) {
	db := openSQLite(t)

	cfg := &config.Config{
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}
	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestConfigurePool_Defaults(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, configurePool(db, &config.Config{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 25, sqlDB.Stats().MaxOpenConnections)
}

func TestDSN(t *testing.T) {
	cfg := &config.Config{
		DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p", DBName: "postpilot",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=postpilot sslmode=disable", DSN(cfg))

	cfg.DBSSLMode = "require"
	assert.Contains(t, DSN(cfg), "sslmode=require")
}

func TestSchemaPolicy(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		mode    string
		runSQL  bool
		runAuto bool
		wantErr bool
	}{
		{"hybrid in development", "development", "hybrid", true, true, false},
		{"hybrid in production", "production", "hybrid", true, false, false},
		{"empty mode defaults to hybrid", "test", "", true, true, false},
		{"sql only", "development", "sql", true, false, false},
		{"auto in development", "development", "auto", false, true, false},
		{"auto refused in production", "production", "auto", false, false, true},
		{"auto refused in staging", "staging", "auto", false, false, true},
		{"unknown mode", "development", "magic", false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := planSchema(&config.Config{Env: tt.env, DBSchemaMode: tt.mode})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.runSQL, plan.sql)
			assert.Equal(t, tt.runAuto, plan.auto)
		})
	}
}

func TestMigrationsAreRegistered(t *testing.T) {
	all := GetMigrations()
	require.GreaterOrEqual(t, len(all), 2)
	assert.Equal(t, 1, all[0].Version)
	assert.Equal(t, "initial_schema", all[0].Name)
	assert.Contains(t, all[0].UpScript, "CREATE TABLE IF NOT EXISTS posts")
	assert.Contains(t, all[0].UpScript, "WHERE status = 'scheduled'")
	assert.Equal(t, "000002_delivery_attempts", all[1].String())

	assert.NotNil(t, GetMigrationByVersion(2))
	assert.Nil(t, GetMigrationByVersion(999))
}

func TestLoadMigrations(t *testing.T) {
	sql := func(s string) *fstest.MapFile { return &fstest.MapFile{Data: []byte(s)} }

	t.Run("orders by version", func(t *testing.T) {
		fsys := fstest.MapFS{
			"m/000010_later.up.sql":   sql("UP 10"),
			"m/000010_later.down.sql": sql("DOWN 10"),
			"m/000002_first.up.sql":   sql("UP 2"),
			"m/000002_first.down.sql": sql("DOWN 2"),
			"m/README.md":             sql("ignored"),
		}
		all, err := loadMigrations(fsys, "m")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "000002_first", all[0].String())
		assert.Equal(t, "DOWN 10", all[1].DownScript)
	})

	tests := []struct {
		name string
		fsys fstest.MapFS
		want string
	}{
		{"missing down", fstest.MapFS{"m/000001_a.up.sql": sql("x")}, "no down script"},
		{"bad version", fstest.MapFS{"m/v1_a.up.sql": sql("x"), "m/v1_a.down.sql": sql("x")}, "invalid version"},
		{"no name", fstest.MapFS{"m/000001.up.sql": sql("x"), "m/000001.down.sql": sql("x")}, "<version>_<name>"},
		{"duplicate version", fstest.MapFS{
			"m/000001_a.up.sql": sql("x"), "m/000001_a.down.sql": sql("x"),
			"m/1_b.up.sql": sql("x"), "m/1_b.down.sql": sql("x"),
		}, "used by both"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadMigrations(tt.fsys, "m")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPendingMigrations(t *testing.T) {
	registered := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}
	pending := pendingMigrations([]int{2}, registered)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].Version)
	assert.Equal(t, 3, pending[1].Version)
	assert.Empty(t, pendingMigrations([]int{1, 2, 3}, registered))
}

func TestValidateAppliedVersions(t *testing.T) {
	registered := []Migration{{Version: 1}, {Version: 2}}

	assert.NoError(t, validateAppliedVersions(nil, registered))
	assert.NoError(t, validateAppliedVersions([]int{1, 2}, registered))

	err := validateAppliedVersions([]int{1, 7, 3}, registered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000003, 000007")
}

func TestIsMissingTableError(t *testing.T) {
	assert.True(t, isMissingTableError(&pgconn.PgError{Code: "42P01"}))
	assert.True(t, isMissingTableError(fmt.Errorf("query: %w", &pgconn.PgError{Code: "42P01"})))
	assert.False(t, isMissingTableError(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isMissingTableError(errors.New("no such table: migration_logs")))
	assert.True(t, isMissingTableError(errors.New(`relation "migration_logs" does not exist`)))
	assert.False(t, isMissingTableError(errors.New("connection refused")))
}

func TestGetSchemaStatus_AllPendingOnFreshDatabase(t *testing.T) {
	db := openSQLite(t)

	status, err := GetSchemaStatus(context.Background(), db, &config.Config{Env: "development", DBSchemaMode: "sql"})
	require.NoError(t, err)
	assert.True(t, status.WillRunSQL)
	assert.False(t, status.WillRunAutoMigrate)
	assert.Empty(t, status.AppliedVersions)
	assert.Len(t, status.PendingMigrations, len(GetMigrations()))
}

func TestRunAutoMigrate_CreatesDispatchTables(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, runAutoMigrate(db))

	for _, table := range []string{"users", "posting_accounts", "posts", "delivery_attempts"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}
