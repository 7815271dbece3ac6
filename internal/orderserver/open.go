package orderserver

import (
	"context"

	"github.com/angelmondragon/tableside-sync/pkg/db"
	"github.com/angelmondragon/tableside-sync/pkg/logger"
	"github.com/angelmondragon/tableside-sync/pkg/migrate"
)

// Open connects to the order service database and applies the server migrations.
func Open(ctx context.Context, driver, dsn string, logg *logger.Logger) (*db.Client, error) {
	client, err := db.New(ctx, db.Options{Driver: driver, DSN: dsn}, logg)
	if err != nil {
		return nil, err
	}
	if err := migrate.Up(ctx, client, migrate.SetServer, logg); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
