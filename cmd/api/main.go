package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tablefix/internal/api"
	"tablefix/internal/config"
	"tablefix/internal/container"
	"tablefix/internal/httpserver"
	"tablefix/internal/logging"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := run(appConfig); err != nil {
		log.Fatalf("API server stopped: %v", err)
	}
}

func run(appConfig *config.Config) error {
	logger, flush := logging.SetupLogger(logging.Options{
		Level:  appConfig.Log.Level,
		Format: appConfig.Log.Format,
		SeqURL: appConfig.Log.SeqURL,
	})
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appContainer, err := container.New(ctx, appConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to create application container: %w", err)
	}
	defer appContainer.Shutdown(context.Background())

	handler := api.NewHandler(appContainer.Modifier, appConfig.Server.MaxUploadSize, logger)
	srv := httpserver.New(":"+appConfig.Server.APIPort, handler)
	logger.Info("starting table modifier API", "port", appConfig.Server.APIPort)

	return httpserver.Run(ctx, srv, logger, appContainer.RunJanitor)
}
