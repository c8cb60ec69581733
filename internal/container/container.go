package container

import (
	"context"
	"fmt"
	"log/slog"

	"tablefix/adapters/blob"
	"tablefix/adapters/excel"
	"tablefix/app"
	"tablefix/domain/modifier"
	"tablefix/internal/config"
	"tablefix/internal/session"
	"tablefix/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Infrastructure
	Sessions *session.Store
	Blobs    ports.BlobStore // nil when archiving is disabled

	// Services
	Reader   *excel.DataReader
	Modifier *app.ModifierService
}

// New creates a new dependency injection container
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	c.initSessions()

	if err := c.initBlobStore(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize export archive: %w", err)
	}

	c.Reader = excel.NewDataReader(logger)
	c.Modifier = app.NewModifierService(c.Sessions, c.Reader, c.Blobs, cfg.Server.MaxUploadSize, logger)

	logger.Info("container initialized",
		"component", "Container",
		"export_provider", cfg.Export.Provider,
		"strict_conditions", cfg.Modify.StrictConditions)
	return c, nil
}

// initSessions builds the session store with modifiers configured from
// the Modify settings
func (c *Container) initSessions() {
	strict := c.Config.Modify.StrictConditions
	modLogger := c.Logger.With("component", "Modifier")

	c.Sessions = session.NewStore(c.Config.Session.TTL,
		session.WithLogger(c.Logger),
		session.WithModifierFactory(func() *modifier.Modifier {
			return modifier.New(
				modifier.WithStrictConditions(strict),
				modifier.WithLogger(modLogger),
			)
		}),
	)
}

// initBlobStore selects the export archive backend
func (c *Container) initBlobStore(ctx context.Context) error {
	exp := c.Config.Export
	switch exp.Provider {
	case config.ExportLocal:
		store, err := blob.NewLocalBlobStore(exp.Dir)
		if err != nil {
			return err
		}
		c.Blobs = store
	case config.ExportS3:
		store, err := blob.NewS3BlobStore(ctx, blob.S3Config{
			Bucket:    exp.S3Bucket,
			Region:    exp.S3Region,
			Endpoint:  exp.S3Endpoint,
			AccessKey: exp.S3AccessKey,
			SecretKey: exp.S3SecretKey,
			Prefix:    "tablefix",
		})
		if err != nil {
			return err
		}
		c.Blobs = store
	}
	return nil
}

// RunJanitor evicts idle sessions until ctx is done
func (c *Container) RunJanitor(ctx context.Context) error {
	return c.Sessions.Run(ctx, c.Config.Session.SweepInterval)
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	dropped := c.Sessions.Len()
	c.Logger.Info("container shutting down", "component", "Container", "sessions_dropped", dropped)
	return nil
}
