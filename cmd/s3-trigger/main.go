package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"license-verification/internal/bootstrap"
	"license-verification/internal/common/camunda"
	"license-verification/internal/common/config"
	"license-verification/internal/common/logger"
	"license-verification/internal/common/observability"
)

func main() {
	zapLog := logger.New("info", "json")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}
	zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()
	services, err := bootstrap.New(ctx, cfg, obs, log)
	if err != nil {
		zapLog.Fatal("service initialization failed", zap.Error(err))
	}
	defer services.Close()

	var starter Starter
	if cfg.Camunda.ProcessID != "" {
		zeebe, err := camunda.NewClientWithConfig(ctx, camunda.ConfigFrom(cfg.Camunda))
		if err != nil {
			zapLog.Fatal("zeebe client failed", zap.Error(err))
		}
		defer zeebe.Close()
		starter = zeebe
	}

	h := NewHandler(
		services.Pipeline(services.Handlers()),
		starter,
		cfg.Camunda.ProcessID,
		cfg.Storage.UnzippedPrefix,
		log,
	)
	zapLog.Info("s3 trigger ready", zap.String("processId", cfg.Camunda.ProcessID))
	lambda.Start(h.Handle)
}
