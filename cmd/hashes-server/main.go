package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scriptducks/hashes-gui/internal/adapters/filestore"
	"github.com/scriptducks/hashes-gui/internal/adapters/httpapi"
	"github.com/scriptducks/hashes-gui/internal/adapters/keyring"
	"github.com/scriptducks/hashes-gui/internal/adapters/memorybus"
	"github.com/scriptducks/hashes-gui/internal/adapters/sqlite"
	"github.com/scriptducks/hashes-gui/internal/app"
	"github.com/scriptducks/hashes-gui/internal/buildinfo"
	"github.com/scriptducks/hashes-gui/internal/config"
	"github.com/scriptducks/hashes-gui/internal/ports"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	addr := flag.String("addr", cfg.Addr, "Listen address (e.g. 127.0.0.1:8080)")
	prefsPath := flag.String("preferences", cfg.PreferencesPath, "Preferences JSON file")
	dbPath := flag.String("db", cfg.DBPath, "SQLite task database")
	flag.Parse()

	logger := newLogger(cfg)
	log.Logger = logger

	logger.Info().
		Interface("build", buildinfo.Current()).
		Str("preferences", *prefsPath).
		Str("db", *dbPath).
		Str("keyStorage", cfg.KeyStorage).
		Msg("starting")

	ctx := context.Background()

	var store ports.PreferencesStore = filestore.NewPreferencesFile(*prefsPath, logger)
	if strings.EqualFold(cfg.KeyStorage, config.KeyStorageKeyring) {
		store = keyring.NewAPIKeyVault(store, keyring.DefaultService, keyring.DefaultUser, logger)
	}
	prefsSvc := app.NewPreferencesService(ctx, store)

	hashes := app.NewHashesClient(prefsSvc.APIKey).
		WithEndpoints(cfg.APIURL, cfg.DownloadURL).
		WithTimeout(cfg.HTTPTimeout).
		WithDownloadDelay(cfg.DownloadDelay).
		WithConversionTTL(cfg.ConversionTTL)
	catalog := app.NewAlgorithmCatalog(cfg.AlgorithmsPath, hashes, logger)

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o700); err != nil {
		logger.Fatal().Err(err).Msg("failed to create data dir")
	}
	db, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open db")
	}
	defer func() { _ = db.Close() }()
	if v, err := db.SchemaVersion(ctx); err == nil {
		logger.Debug().Int("schema", v).Msg("task database ready")
	}

	tasksRepo := sqlite.NewTasksRepository(db.SQL)
	if n, err := tasksRepo.FailInterrupted(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to mark interrupted tasks")
	} else if n > 0 {
		logger.Info().Int64("count", n).Msg("marked interrupted tasks as failed")
	}

	bus := memorybus.New()
	defer bus.Close()
	tasksSvc := app.NewTaskService(tasksRepo, bus)

	limiter := app.NewMergeLimiter(cfg.MaxConcurrentDownloads)
	executors := app.DefaultExecutorRegistry(hashes, catalog, limiter)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := app.DefaultWorkerOptions()
	opts.Executors = executors
	pool := app.NewWorkerPool(shutdownCtx, logger, tasksRepo, bus, opts)
	pool.SetCount(cfg.Workers)
	logger.Info().Int("workers", cfg.Workers).Msg("workers started")

	recorder := app.NewDownloadCompletionRecorder(logger.With().Str("component", "download-recorder").Logger(), bus, prefsSvc)
	go recorder.Run(shutdownCtx)

	scheduler := app.NewMaintenanceScheduler(logger.With().Str("component", "maintenance").Logger(), tasksSvc, tasksRepo, catalog, prefsSvc)
	scheduler.Retention = cfg.TaskRetention
	go scheduler.Run(shutdownCtx)

	srv := httpapi.NewServer(logger, httpapi.Deps{
		Preferences: prefsSvc,
		Hashes:      hashes,
		Catalog:     catalog,
		Tasks:       tasksSvc,
		Executors:   executors,
		Bus:         bus,
	})
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", *addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server crashed")
			stop()
		}
	}()

	<-shutdownCtx.Done()
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	if err := pool.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("workers did not stop in time")
	}
	logger.Info().Msg("bye")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.LogFormat == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger.Level(level).With().Timestamp().Str("app", "hashes-server").Logger()
}
