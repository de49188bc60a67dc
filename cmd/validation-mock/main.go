package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"license-verification/internal/common/logger"
	"license-verification/internal/validationapi"
)

func main() {
	v := viper.New()
	v.SetEnvPrefix("VALIDATION_MOCK")
	v.AutomaticEnv()
	v.SetDefault("address", ":8090")
	v.SetDefault("deny", "")
	v.SetDefault("log_level", "info")

	zapLog := logger.New(v.GetString("log_level"), "console")
	defer zapLog.Sync()

	deny := strings.Split(v.GetString("deny"), ",")
	handler := validationapi.NewHandler(deny, logger.NewZapAdapter(zapLog))

	srv := &http.Server{
		Addr:              v.GetString("address"),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		zapLog.Info("validation mock listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("validation mock failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLog.Error("shutdown failed", zap.Error(err))
	}
}
