package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/edgecv/fleet-console/internal/backend"
	"github.com/edgecv/fleet-console/internal/orchestration"
	"github.com/edgecv/fleet-console/internal/platform/auditlog"
	"github.com/edgecv/fleet-console/internal/platform/auth"
	"github.com/edgecv/fleet-console/internal/platform/httpserver"
	"github.com/edgecv/fleet-console/internal/platform/metrics"
	"github.com/edgecv/fleet-console/internal/platform/objectstore"
	"github.com/edgecv/fleet-console/internal/platform/postgres"
	"github.com/edgecv/fleet-console/internal/receipts"
)

const serviceName = "console"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error("invalid .env file", "error", err)
		os.Exit(2)
	}

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpCfg, err := httpserver.ConfigFromEnv(serviceName, "CONSOLE", ":8080")
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	cfg, err := consoleConfigFromEnv()
	if err != nil {
		logger.Error("invalid console config", "error", err)
		os.Exit(2)
	}

	backendCfg, err := backend.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid backend config", "error", err)
		os.Exit(2)
	}
	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid backend auth config", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	httpClient, err := auth.HTTPClient(startupCtx, authCfg, &http.Client{Timeout: backendCfg.Timeout})
	cancel()
	if err != nil {
		logger.Error("backend auth init failed", "error", err)
		os.Exit(1)
	}
	client, err := backend.New(logger, backendCfg, httpClient)
	if err != nil {
		logger.Error("backend client init failed", "error", err)
		os.Exit(2)
	}

	var observers orchestration.Observers
	var checks []httpserver.ReadinessCheck

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	if dbCfg.Enabled() {
		db, err := postgres.Open(ctx, dbCfg)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		if err := auditlog.EnsureSchema(ctx, db); err != nil {
			logger.Error("audit schema init failed", "error", err)
			os.Exit(1)
		}
		observers = append(observers, auditlog.SubmissionRecorder{DB: db, Service: serviceName, Logger: logger})
		checks = append(checks, httpserver.ReadinessCheck{
			Name: "postgres",
			Check: func(ctx context.Context) error {
				return postgres.Ping(ctx, db, 750*time.Millisecond)
			},
		})
	} else {
		logger.Info("audit log disabled", "reason", "CONSOLE_AUDIT_DATABASE_URL not set")
	}

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	var receiptStore receiptReader
	if storeCfg.Enabled() {
		storeClient, err := objectstore.NewMinIOClient(storeCfg)
		if err != nil {
			logger.Error("object store client init failed", "error", err)
			os.Exit(2)
		}
		startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg)
		cancel()
		if err != nil {
			logger.Error("object store unavailable", "error", err)
			os.Exit(1)
		}
		store, err := objectstore.NewMinioStoreWithClient(storeClient)
		if err != nil {
			logger.Error("object store init failed", "error", err)
			os.Exit(2)
		}
		archive, err := receipts.NewArchive(logger, store, storeCfg.BucketReceipts)
		if err != nil {
			logger.Error("receipt archive init failed", "error", err)
			os.Exit(2)
		}
		observers = append(observers, archive)
		receiptStore = archive
		checks = append(checks, httpserver.ReadinessCheck{
			Name: "minio",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return objectstore.CheckBuckets(checkCtx, storeClient, storeCfg)
			},
		})
	} else {
		logger.Info("receipt archive disabled", "reason", "CONSOLE_MINIO_ENDPOINT not set")
	}

	api := newConsoleAPI(logger, cfg, client, observers, receiptStore)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks(serviceName, checks...))
	mux.Handle("GET /metrics", metrics.Handler())
	api.register(mux)

	go api.sessions.runPruner(ctx, logger, cfg.SessionPruneInterval)

	if err := httpserver.Run(ctx, logger, httpCfg, httpserver.Wrap(logger, serviceName, mux)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
