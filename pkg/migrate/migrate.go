package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/tableside-sync/pkg/db"
	"github.com/angelmondragon/tableside-sync/pkg/logger"
)

// Set names an embedded group of migrations.
type Set string

const (
	// SetDevice is the on-device store: orders, pending operations, dead letters.
	SetDevice Set = "device"
	// SetServer is the development order service schema.
	SetServer Set = "server"
)

//go:embed migrations/device/*.sql migrations/server/*.sql
var migrationsFS embed.FS

// FS returns the embedded migrations for set.
func FS(set Set) (fs.FS, error) {
	switch set {
	case SetDevice, SetServer:
	default:
		return nil, fmt.Errorf("unknown migration set %q", set)
	}
	return fs.Sub(migrationsFS, "migrations/"+string(set))
}

// Dialect maps a db driver name onto the goose dialect.
func Dialect(driver string) (goose.Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case db.DriverSQLite, "sqlite3":
		return goose.DialectSQLite3, nil
	case db.DriverPostgres:
		return goose.DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported migration driver %q", driver)
	}
}

// NewProvider builds a goose provider over the embedded set.
func NewProvider(sqlDB *sql.DB, driver string, set Set) (*goose.Provider, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("db is required")
	}
	dialect, err := Dialect(driver)
	if err != nil {
		return nil, err
	}
	fsys, err := FS(set)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(dialect, sqlDB, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Up applies every pending migration in set to the client's database.
func Up(ctx context.Context, client *db.Client, set Set, logg *logger.Logger) error {
	if client == nil {
		return fmt.Errorf("db client is required")
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	provider, err := NewProvider(sqlDB, client.Driver(), set)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up %s: %w", set, err)
	}
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{"set": string(set), "applied": len(results)})
		logg.Info(ctx, "migrations applied")
	}
	return nil
}

// Run executes a goose command (up, down, status, version) against set.
func Run(ctx context.Context, sqlDB *sql.DB, driver string, set Set, command string) error {
	provider, err := NewProvider(sqlDB, driver, set)
	if err != nil {
		return err
	}

	switch command {
	case "up":
		_, err = provider.Up(ctx)
	case "down":
		_, err = provider.Down(ctx)
	case "status":
		var statuses []*goose.MigrationStatus
		statuses, err = provider.Status(ctx)
		for _, st := range statuses {
			fmt.Printf("%-16d %-8s %s\n", st.Source.Version, st.State, st.Source.Path)
		}
	case "version":
		var version int64
		version, err = provider.GetDBVersion(ctx)
		if err == nil {
			fmt.Println(version)
		}
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}
	if err != nil {
		return fmt.Errorf("goose %s %s: %w", command, set, err)
	}
	return nil
}

// MigrateToVersion migrates up/down to the requested version by comparing current DB version.
func MigrateToVersion(ctx context.Context, sqlDB *sql.DB, driver string, set Set, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	provider, err := NewProvider(sqlDB, driver, set)
	if err != nil {
		return err
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if _, err := provider.UpTo(ctx, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if _, err := provider.DownTo(ctx, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}
