package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filesync-server/internal/config"
	"filesync-server/internal/handler"
	"filesync-server/internal/logging"
	"filesync-server/internal/repository"
	"filesync-server/internal/service"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync HTTP server.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
	)

	client, err := kivik.New("couch", couchURL)
	if err != nil {
		return fmt.Errorf("connect to CouchDB: %w", err)
	}
	defer client.Close()

	created, err := repository.EnsureDatabase(ctx, client, cfg.Database.Name)
	if err != nil {
		return err
	}
	if created {
		log.WithField("database", cfg.Database.Name).Info("created CouchDB database")
	}

	db, err := repository.OpenSQLite(cfg.ChangeLog.Path, cfg.ChangeLog.BusyTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		return err
	}

	deviceRepo := repository.NewDeviceRepository(client, cfg.Database.Name)
	itemRepo := repository.NewItemRepository(client, cfg.Database.Name)
	contentRepo := repository.NewContentRepository(client, cfg.Database.Name)
	changeLogRepo := repository.NewChangeLogRepository(db)
	conflictRepo := repository.NewConflictRepository(db)

	deviceService := service.NewDeviceService(deviceRepo, log)
	changeLogService := service.NewChangeLogService(
		changeLogRepo,
		service.NewConflictDetector(cfg.Sync.DetectionWindow),
		service.PageLimits{Default: cfg.Sync.DefaultPageSize, Max: cfg.Sync.MaxPageSize},
		log,
	)
	conflictService := service.NewConflictService(changeLogRepo, conflictRepo, itemRepo, log)
	syncService := service.NewSyncService(deviceService, changeLogService, conflictService, itemRepo, log)
	signatureService, err := service.NewSignatureService(itemRepo, contentRepo, service.SignatureLimits{
		DefaultBlockSize: cfg.Sync.DefaultBlockSize,
		MaxBlockSize:     cfg.Sync.MaxBlockSize,
		CacheSize:        cfg.Sync.SignatureCacheSize,
	}, log)
	if err != nil {
		return err
	}

	router := handler.NewRouter(handler.Handlers{
		Devices:    handler.NewDeviceHandler(deviceService, log),
		Sync:       handler.NewSyncHandler(syncService, conflictService, log),
		Signatures: handler.NewSignatureHandler(signatureService, log),
	}, cfg.JWT.Secret, cfg.CORS, log)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":      addr,
			"env":       cfg.Server.Env,
			"couchdb":   fmt.Sprintf("%s:%s", cfg.Database.Host, cfg.Database.Port),
			"changelog": db.Path(),
		}).Info("starting sync server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}
