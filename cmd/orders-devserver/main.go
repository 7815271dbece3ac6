package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/tableside-sync/internal/orderserver"
	"github.com/angelmondragon/tableside-sync/pkg/config"
	"github.com/angelmondragon/tableside-sync/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "orders-devserver"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.LoadDevServer()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "orders-devserver",
		Level:       logger.ParseLevel(cfg.LogLevel),
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.Env,
		"driver": cfg.Driver,
	})

	dbClient, err := orderserver.Open(ctx, cfg.Driver, cfg.DSN, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           orderserver.NewRouter(orderserver.NewRepository(dbClient.DB()), dbClient, logg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logg.Info(logg.WithField(ctx, "addr", addr), "starting orders devserver")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "orders devserver stopped unexpectedly", err)
		os.Exit(1)
	}
}
