package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/formbridge/benefits-backend/internal/app"
	"github.com/formbridge/benefits-backend/internal/platform/logger"
	"github.com/formbridge/benefits-backend/internal/utils"
)

func main() {
	log, err := logger.New(utils.GetEnv("APP_MODE", "dev", nil))
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	application, err := app.New(log)
	if err != nil {
		log.Fatal("failed to build application", "error", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Bootstrap(ctx); err != nil {
		log.Fatal("bootstrap failed", "error", err)
	}

	log.Info("version engine ready")
	<-ctx.Done()
	log.Info("shutting down")
}
