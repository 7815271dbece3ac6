package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/tableside-sync/pkg/db"
	pkgerrors "github.com/angelmondragon/tableside-sync/pkg/errors"
	"github.com/angelmondragon/tableside-sync/pkg/logger"
	"github.com/angelmondragon/tableside-sync/pkg/migrate"
)

// Open connects to the device sqlite database and applies the device migrations.
func Open(ctx context.Context, dsn string, logg *logger.Logger) (*db.Client, error) {
	client, err := db.New(ctx, db.Options{Driver: db.DriverSQLite, DSN: dsn}, logg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "open device store")
	}
	if err := migrate.Up(ctx, client, migrate.SetDevice, logg); err != nil {
		_ = client.Close()
		return nil, pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "migrate device store")
	}
	return client, nil
}

// MemoryDSN returns a private shared-cache in-memory sqlite DSN.
func MemoryDSN() string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
}
