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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/tableside-sync/api/routes"
	"github.com/angelmondragon/tableside-sync/internal/connectivity"
	"github.com/angelmondragon/tableside-sync/internal/queue"
	"github.com/angelmondragon/tableside-sync/internal/reconcile"
	"github.com/angelmondragon/tableside-sync/internal/remote"
	"github.com/angelmondragon/tableside-sync/internal/store"
	"github.com/angelmondragon/tableside-sync/internal/submission"
	"github.com/angelmondragon/tableside-sync/internal/tablelock"
	"github.com/angelmondragon/tableside-sync/pkg/config"
	"github.com/angelmondragon/tableside-sync/pkg/env"
	"github.com/angelmondragon/tableside-sync/pkg/logger"
	"github.com/angelmondragon/tableside-sync/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "syncd"})

	envFile, explicit := env.Lookup("TABLESIDE_ENV_FILE")
	if !explicit {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if explicit {
			logg.Error(context.Background(), "failed to load env file "+envFile, err)
			os.Exit(1)
		}
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "syncd",
		DeviceID:    cfg.App.DeviceID,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	baseCtx := logg.WithField(context.Background(), "env", cfg.App.Env)

	dbClient, err := store.Open(baseCtx, cfg.Store.DSN(), logg)
	if err != nil {
		logg.Error(baseCtx, "failed to open device store", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(baseCtx, "error closing device store", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	syncMetrics := metrics.NewSyncMetrics(registry)

	client, err := remote.NewClient(
		cfg.Remote.BaseURL,
		remote.WithAuthToken(cfg.Remote.AuthToken),
		remote.WithTimeout(cfg.Remote.RequestTimeout),
	)
	if err != nil {
		logg.Error(baseCtx, "failed to create order service client", err)
		os.Exit(1)
	}

	observer := connectivity.NewObserver(connectivity.ObserverParams{
		Prober:        client,
		Logger:        logg,
		Metrics:       syncMetrics,
		ProbeInterval: cfg.Connectivity.ProbeInterval,
		ProbeTimeout:  cfg.Connectivity.ProbeTimeout,
		StartOnline:   cfg.Connectivity.StartOnline,
	})
	client.SetReporter(observer)

	locks := tablelock.New()
	orderStore := store.NewRepository(dbClient.DB())
	pending := queue.NewRepository(dbClient.DB())

	engine, err := reconcile.NewEngine(reconcile.EngineParams{
		DB:           dbClient,
		Store:        orderStore,
		Queue:        pending,
		Remote:       client,
		Connectivity: observer,
		Locks:        locks,
		Logger:       logg,
		Metrics:      syncMetrics,
		Interval:     cfg.Reconcile.Interval,
		CallTimeout:  cfg.Reconcile.CallTimeout,
	})
	if err != nil {
		logg.Error(baseCtx, "failed to create reconciliation engine", err)
		os.Exit(1)
	}

	orderService, err := submission.NewService(submission.ServiceParams{
		DB:            dbClient,
		Store:         orderStore,
		Queue:         pending,
		Remote:        client,
		Connectivity:  observer,
		Locks:         locks,
		Nudger:        engine,
		Logger:        logg,
		Metrics:       syncMetrics,
		SubmitTimeout: cfg.Remote.SubmitTimeout,
	})
	if err != nil {
		logg.Error(baseCtx, "failed to create order service", err)
		os.Exit(1)
	}

	if depth, err := pending.Count(baseCtx); err == nil {
		syncMetrics.SetQueueDepth(int(depth))
		logg.Info(logg.WithField(baseCtx, "pending", depth), "pending queue loaded")
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, registry, orderService, pending, engine, observer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(baseCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return observer.Run(gctx)
	})
	group.Go(func() error {
		return engine.Run(gctx)
	})
	group.Go(func() error {
		logg.Info(logg.WithField(gctx, "addr", addr), "starting device api")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(baseCtx, "syncd stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(baseCtx, "syncd stopped")
}
