package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/tableside-sync/pkg/config"
	"github.com/angelmondragon/tableside-sync/pkg/db"
	"github.com/angelmondragon/tableside-sync/pkg/env"
	"github.com/angelmondragon/tableside-sync/pkg/logger"
	"github.com/angelmondragon/tableside-sync/pkg/migrate"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|to|validate")
	set := flag.String("set", string(migrate.SetDevice), "migration set: device|server")
	driver := flag.String("driver", "", "database driver (sqlite|postgres); defaults per set")
	dsn := flag.String("dsn", "", "database DSN; defaults per set")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=to")
	flag.Parse()

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(env.Get("TABLESIDE_LOG_LEVEL", "info")),
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"cmd": *cmd,
		"set": *set,
	})

	target := migrate.Set(*set)
	if *cmd == "validate" {
		if err := migrate.Validate(target); err != nil {
			fmt.Fprintf(os.Stderr, "migration validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migration validation passed")
		return
	}

	resolvedDriver, resolvedDSN, err := resolveTarget(target, *driver, *dsn)
	requireResource(ctx, logg, "config", err)

	dbClient, err := db.New(ctx, db.Options{Driver: resolvedDriver, DSN: resolvedDSN}, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	logg.Info(ctx, "migrate ready")

	switch *cmd {
	case "up", "down", "status", "version":
		if err := migrate.Run(ctx, sqlDB, dbClient.Driver(), target, *cmd); err != nil {
			fmt.Fprintf(os.Stderr, "goose %s failed: %v\n", *cmd, err)
			os.Exit(1)
		}
	case "to":
		if *version == "" {
			fmt.Fprintln(os.Stderr, "missing -version for to command")
			os.Exit(1)
		}
		if err := migrate.MigrateToVersion(ctx, sqlDB, dbClient.Driver(), target, *version); err != nil {
			fmt.Fprintf(os.Stderr, "goose version migrate failed: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}
}

// resolveTarget fills driver and DSN from the environment when the flags are empty.
func resolveTarget(set migrate.Set, driver, dsn string) (string, string, error) {
	if driver != "" && dsn != "" {
		return driver, dsn, nil
	}
	switch set {
	case migrate.SetDevice:
		if dsn == "" {
			dsn = config.StoreConfig{Path: env.Get(config.EnvStorePath, "tableside.db")}.DSN()
		}
		if driver == "" {
			driver = db.DriverSQLite
		}
	case migrate.SetServer:
		cfg, err := config.LoadDevServer()
		if err != nil {
			return "", "", err
		}
		if dsn == "" {
			dsn = cfg.DSN
		}
		if driver == "" {
			driver = cfg.Driver
		}
	default:
		return "", "", fmt.Errorf("unknown migration set %q", set)
	}
	return driver, dsn, nil
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
