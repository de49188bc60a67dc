package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"license-verification/internal/bootstrap"
	"license-verification/internal/common/camunda"
	"license-verification/internal/common/config"
	"license-verification/internal/common/database"
	"license-verification/internal/common/logger"
	"license-verification/internal/common/observability"
	"license-verification/internal/opsserver"
	comparedetails "license-verification/internal/workers/verification/compare-details"
	comparefaces "license-verification/internal/workers/verification/compare-faces"
	recordclaim "license-verification/internal/workers/verification/record-claim"
	thirdpartyvalidation "license-verification/internal/workers/verification/third-party-validation"
	unziparchive "license-verification/internal/workers/verification/unzip-archive"
)

// retryWithBackoff retries operation with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		log.Warn("operation failed, retrying",
			zap.String("operation", operationName),
			zap.Int("attempt", i+1),
			zap.Int("maxRetries", maxRetries),
			zap.Duration("nextRetryIn", delay),
			zap.Error(err),
		)

		time.Sleep(delay)
		delay *= 2
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}

	return err
}

func main() {
	zapLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}
	zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("Starting worker manager...", zap.String("environment", cfg.App.Environment))

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Shared services ---
	services, err := bootstrap.New(ctx, cfg, obs, log)
	if err != nil {
		zapLog.Fatal("service initialization failed", zap.Error(err))
	}
	defer services.Close()

	err = retryWithBackoff(func() error {
		return database.PingAll(ctx, 5*time.Second, services.Checks...)
	}, 10, 2*time.Second, zapLog, "backend readiness")
	if err != nil {
		zapLog.Fatal("backends not ready after retries", zap.Error(err))
	}

	// --- Zeebe ---
	zeebe, err := camunda.NewClientWithConfig(ctx, camunda.ConfigFrom(cfg.Camunda))
	if err != nil {
		zapLog.Fatal("zeebe client failed", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected", zap.String("gateway", cfg.Camunda.BrokerAddress))

	// --- Workers ---
	handlers := services.Handlers()
	workers := camunda.StartWorkers(zeebe.GetClient(), cfg, []camunda.Registration{
		{TaskType: unziparchive.TaskType, Handler: handlers.Stager},
		{TaskType: recordclaim.TaskType, Handler: handlers.Claims},
		{TaskType: comparefaces.TaskType, Handler: handlers.Faces},
		{TaskType: comparedetails.TaskType, Handler: handlers.Details},
		{TaskType: thirdpartyvalidation.TaskType, Handler: handlers.ThirdParty},
	}, zapLog)
	zapLog.Info("workers registered", zap.Int("count", len(workers)))

	// --- Third-party validation queue ---
	consumerDone := make(chan struct{})
	if consumer := services.QueueConsumer(); consumer != nil {
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx, handlers.ThirdParty.HandleMessage); err != nil {
				zapLog.Error("queue consumer stopped", zap.Error(err))
			}
		}()
	} else {
		close(consumerDone)
	}

	// --- Health, Metrics & Record Lookup Server ---
	checks := append([]database.Pinger{zeebe}, services.Checks...)
	srv := opsserver.New(services.Store, checks, log).NewHTTPServer(cfg.Server.Address)
	go func() {
		zapLog.Info("ops server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("ops server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("ops server shutdown failed", zap.Error(err))
	}
	camunda.StopWorkers(workers, 25*time.Second)
	<-consumerDone

	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}
