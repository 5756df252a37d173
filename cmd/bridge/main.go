package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-bridge/internal/accounts"
	"github.com/dvloznov/finance-bridge/internal/api"
	"github.com/dvloznov/finance-bridge/internal/api/handlers"
	"github.com/dvloznov/finance-bridge/internal/archive"
	"github.com/dvloznov/finance-bridge/internal/budget"
	"github.com/dvloznov/finance-bridge/internal/config"
	"github.com/dvloznov/finance-bridge/internal/feed"
	"github.com/dvloznov/finance-bridge/internal/ingest"
	"github.com/dvloznov/finance-bridge/internal/jobs/inmemory"
	"github.com/dvloznov/finance-bridge/internal/ledger"
	"github.com/dvloznov/finance-bridge/internal/logger"
	"github.com/dvloznov/finance-bridge/internal/notify"
	"github.com/dvloznov/finance-bridge/internal/schedule"
	"github.com/dvloznov/finance-bridge/internal/webhook"
)

// shutdownTimeout bounds the whole shutdown sequence. Past it the process
// exits with status 1.
const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := context.Background()

	if cfg.WebhookSecret == "" {
		log.Warn().Msg("WEBHOOK_SECRET not set - webhook signatures will not be checked")
	}
	if len(cfg.Accounts) == 0 {
		log.Warn().Msg("ACCOUNT_MAP is empty - every webhook delivery will be skipped")
	}

	// Ledger session
	client := ledger.NewHTTPClient(cfg.Ledger, nil)
	session := ledger.NewSession(client, cfg.Ledger.BudgetID, cfg.Ledger.Timeout, log)
	sink := notify.New(cfg.Notify)

	// Event handling
	handler := ingest.NewHandler(session, accounts.NewResolver(cfg.Accounts), feed.NewNormalizer(), sink, log)

	var archiver handlers.PayloadArchiver
	opts := archive.ClientOptions(cfg.Archive.CredentialsFile)
	if cfg.Archive.Bucket != "" {
		store, err := archive.NewPayloadStore(ctx, cfg.Archive.Bucket, opts...)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create payload archive")
		}
		defer store.Close()
		archiver = store
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Archiving webhook bodies")
	}
	if cfg.Archive.Project != "" {
		importLog, err := archive.NewImportLog(ctx, cfg.Archive.Project, cfg.Archive.Dataset, opts...)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create import log")
		}
		defer importLog.Close()
		handler.WithRecorder(importLog)
		log.Info().Str("project", cfg.Archive.Project).Str("dataset", cfg.Archive.Dataset).Msg("Recording imports")
	}

	// Delivery queue
	deliveryStore := inmemory.NewStore(0)
	queue := inmemory.NewQueue(cfg.Queue.Buffer, cfg.Queue.Workers, deliveryStore, log)
	if err := queue.Start(ctx, handler.ProcessDelivery); err != nil {
		log.Fatal().Err(err).Msg("Failed to start delivery queue")
	}

	// Budget alerts
	engine := budget.NewEngine(session, sink, cfg.Alerts, log)
	scheduler, err := schedule.New(engine, cfg.Alerts, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	scheduler.Start()

	router := api.NewRouter(api.Handlers{
		Webhook:    handlers.NewWebhookHandler(webhook.NewVerifier(cfg.WebhookSecret), queue, archiver, log),
		Budget:     handlers.NewBudgetHandler(engine, cfg.Alerts.Location, log),
		Deliveries: handlers.NewDeliveriesHandler(deliveryStore, log),
	}, log)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Int("accounts", len(cfg.Accounts)).Msg("Starting bridge server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// A stuck remote call must not keep the process alive.
	timer := time.AfterFunc(shutdownTimeout, func() {
		log.Error().Dur("timeout", shutdownTimeout).Msg("Shutdown timed out, forcing exit")
		os.Exit(1)
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := shutdown(shutdownCtx, log, scheduler, server, queue, session); err != nil {
		timer.Stop()
		log.Error().Err(err).Msg("Shutdown incomplete")
		os.Exit(1)
	}

	timer.Stop()
	log.Info().Msg("Bridge exited")
}

// shutdown stops intake first, then drains work, then closes the ledger
// session so in-flight deliveries can still use it.
func shutdown(ctx context.Context, log zerolog.Logger, scheduler *schedule.Scheduler, server *http.Server, queue *inmemory.Queue, session *ledger.Session) error {
	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	if err := queue.Stop(ctx); err != nil {
		return err
	}

	if err := session.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Ledger session shutdown failed")
	}
	return nil
}
