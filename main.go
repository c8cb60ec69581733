package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tablefix/internal/config"
	"tablefix/internal/container"
	"tablefix/internal/httpserver"
	"tablefix/internal/logging"
	"tablefix/ui"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := run(appConfig); err != nil {
		log.Fatalf("Table modifier stopped: %v", err)
	}
}

func run(appConfig *config.Config) error {
	logger, flush := logging.SetupLogger(logging.Options{
		Level:  appConfig.Log.Level,
		Format: appConfig.Log.Format,
		SeqURL: appConfig.Log.SeqURL,
	})
	defer flush()

	gin.SetMode(appConfig.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appContainer, err := container.New(ctx, appConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to create application container: %w", err)
	}
	defer appContainer.Shutdown(context.Background())

	server, err := ui.NewServer(appContainer.Modifier, appConfig.Server.MaxUploadSize, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize UI server: %w", err)
	}

	srv := httpserver.New(":"+appConfig.Server.Port, server.Handler())
	logger.Info("starting table modifier", "port", appConfig.Server.Port, "gin_mode", appConfig.Server.GinMode)

	if err := httpserver.Run(ctx, srv, logger, appContainer.RunJanitor); err != nil {
		logger.Error("server stopped with error", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
