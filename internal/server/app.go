// Package server wires the security core together: configuration, logging,
// database and migrations, the encryption engine, the biometric matcher and
// its gallery source, and the services the host application consumes.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dkravets/bankvault/internal/biometric"
	"github.com/dkravets/bankvault/internal/cryptox"
	"github.com/dkravets/bankvault/internal/logging"
	"github.com/dkravets/bankvault/internal/server/config"
	"github.com/dkravets/bankvault/internal/server/repositories/repomanager"
	"github.com/dkravets/bankvault/internal/server/services"
)

// App is the assembled security core. The host application keeps a reference
// and calls the service accessors; Run only blocks for shutdown.
type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	vault   *services.VaultService
	devices *services.DeviceService
	audit   *services.AuditService
	authn   *services.AuthnService
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	key, err := loadEncryptionKey(cfg)
	if err != nil {
		return nil, err
	}
	engine, err := cryptox.NewEngine(key)
	if err != nil {
		return nil, fmt.Errorf("encryption engine init: %w", err)
	}

	embedder := biometric.NewGridEmbedder(cfg.StrictDetection)
	source, err := buildGallerySource(ctx, cfg, embedder)
	if err != nil {
		return nil, err
	}
	matcher := biometric.NewMatcher(source, embedder, logger, biometric.Config{
		Threshold:     cfg.MatchThreshold,
		MaxImageBytes: cfg.MaxImageBytes,
		Workers:       cfg.MatchWorkers,
		ScratchDir:    cfg.ScratchDir,
	})

	vault := services.NewVaultService(db, rm, engine, logger)
	devices := services.NewDeviceService(db, rm, logger)
	auditSvc := services.NewAuditService(db, rm, logger)
	authn := services.NewAuthnService(db, rm, matcher, devices, auditSvc, cfg, logger)

	return &App{
		config:  cfg,
		logger:  logger,
		db:      db,
		vault:   vault,
		devices: devices,
		audit:   auditSvc,
		authn:   authn,
	}, nil
}

func loadEncryptionKey(cfg *config.Config) ([]byte, error) {
	if cfg.EncryptionKeyFile != "" {
		return cryptox.LoadKeyFile(cfg.EncryptionKeyFile)
	}
	if cfg.EncryptionKey != "" {
		return cryptox.LoadKeyBase64(cfg.EncryptionKey)
	}
	return nil, fmt.Errorf("no encryption key configured")
}

func buildGallerySource(ctx context.Context, cfg *config.Config, embedder biometric.Embedder) (biometric.Source, error) {
	if cfg.S3Bucket != "" {
		source, err := biometric.NewS3Source(ctx, biometric.S3Config{
			RootUser:     cfg.S3RootUser,
			RootPassword: cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			Prefix:       cfg.GalleryPrefix,
		}, embedder, cfg.ScratchDir)
		if err != nil {
			return nil, fmt.Errorf("gallery init: %w", err)
		}
		return source, nil
	}
	return biometric.NewDirSource(cfg.GalleryDir, embedder), nil
}

// Service accessors for the host application layer.

func (app *App) Vault() *services.VaultService    { return app.vault }
func (app *App) Devices() *services.DeviceService { return app.devices }
func (app *App) Audit() *services.AuditService    { return app.audit }
func (app *App) Authn() *services.AuthnService    { return app.authn }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks until the process receives a termination signal or the caller
// cancels, then releases the database handle.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "security core started")

	app.initSignalHandler(cancelFunc)

	<-ctx.Done()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing database", "error", err.Error())
	}
	app.logger.Info(ctx, "security core stopped")
}
