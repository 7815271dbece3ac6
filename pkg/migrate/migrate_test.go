package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tableside-sync/pkg/db"
	"github.com/angelmondragon/tableside-sync/pkg/logger"
)

func newSQLiteClient(t *testing.T) *db.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	client, err := db.New(context.Background(), db.Options{Driver: db.DriverSQLite, DSN: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestEmbeddedSetsValidate(t *testing.T) {
	require.NoError(t, Validate(SetDevice))
	require.NoError(t, Validate(SetServer))
	require.Error(t, Validate(Set("bogus")))
}

func TestValidateFSRejectsBadFiles(t *testing.T) {
	bad := fstest.MapFS{"001_init.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}}
	require.ErrorContains(t, ValidateFS(bad), "invalid migration filename")

	noDown := fstest.MapFS{"20260101000000_init.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")}}
	require.ErrorContains(t, ValidateFS(noDown), "missing")

	require.ErrorContains(t, ValidateFS(fstest.MapFS{}), "no migrations")
}

func TestServerMigrationHasOpenTableIndex(t *testing.T) {
	fsys, err := FS(SetServer)
	require.NoError(t, err)
	matches, err := fs.Glob(fsys, "*_create_orders.sql")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := fs.ReadFile(fsys, matches[0])
	require.NoError(t, err)
	content := string(data)
	for _, sub := range []string{
		"order_id     VARCHAR(64) NOT NULL UNIQUE",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_open_table ON orders (table_number) WHERE order_status = 'open'",
		"DROP TABLE IF EXISTS orders",
	} {
		require.True(t, strings.Contains(content, sub), "missing expected statement %q", sub)
	}
}

func TestUpAppliesDeviceSchema(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()
	require.NoError(t, Up(ctx, client, SetDevice, logger.Nop()))
	// idempotent
	require.NoError(t, Up(ctx, client, SetDevice, nil))

	for _, table := range []string{"orders", "pending_operations", "dead_letters"} {
		require.True(t, client.DB().Migrator().HasTable(table), "table %s missing", table)
	}
}

func TestUpAppliesServerSchemaAndMigrateToVersion(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()
	require.NoError(t, Up(ctx, client, SetServer, nil))
	require.True(t, client.DB().Migrator().HasTable("orders"))

	sqlDB, err := client.DB().DB()
	require.NoError(t, err)
	require.NoError(t, MigrateToVersion(ctx, sqlDB, db.DriverSQLite, SetServer, "0"))
	require.False(t, client.DB().Migrator().HasTable("orders"))

	require.Error(t, MigrateToVersion(ctx, sqlDB, db.DriverSQLite, SetServer, "latest"))
}

func TestDialect(t *testing.T) {
	_, err := Dialect("postgres")
	require.NoError(t, err)
	_, err = Dialect("sqlite")
	require.NoError(t, err)
	_, err = Dialect("mysql")
	require.Error(t, err)
}
