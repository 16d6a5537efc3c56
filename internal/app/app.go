// Package app assembles the sync layer, its stores and the HTTP API from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"love-album-backend/internal/blob"
	"love-album-backend/internal/config"
	"love-album-backend/internal/handlers"
	"love-album-backend/internal/identity"
	"love-album-backend/internal/localstore"
	"love-album-backend/internal/pomodoro"
	"love-album-backend/internal/remote"
	"love-album-backend/internal/repository"
	"love-album-backend/internal/services"
)

const shutdownTimeout = 15 * time.Second

// App encapsulates the server components and lifecycle
type App struct {
	cfg *config.Config

	local   *localstore.Store
	db      *pgxpool.Pool
	docs    *repository.DocumentRepository
	backend *remote.Backend
	store   remote.Store

	hub     *services.WSHub
	coord   *services.Coordinator
	runner  *services.MigrationRunner
	timer   *pomodoro.Timer
	handler http.Handler
}

// New opens the local store, connects the configured remote store and builds the
// services. A remote store that cannot be reached is not an error: the app starts
// local-only and binds once it comes up.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	local, err := localstore.Open(cfg.Local.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store at %s: %w", cfg.Local.Path, err)
	}

	a := &App{cfg: cfg, local: local}
	if err := a.connectRemote(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.hub = services.NewWSHub()
	notifier := services.MultiNotifier{services.LogNotifier{}, a.hub}
	if cfg.APNS.Enabled() {
		push, err := services.NewPushNotifier(cfg.APNS)
		if err != nil {
			log.Warn().Err(err).Msg("Push notifications disabled")
		} else {
			notifier = append(notifier, push)
		}
	}

	a.coord = services.NewCoordinator(a.local, a.store, identity.NewResolver(), notifier, services.CoordinatorOptions{
		HandshakeTimeout: cfg.Remote.HandshakeTimeout.Std(),
		CallTimeout:      cfg.Remote.CallTimeout.Std(),
	})
	a.runner = services.NewMigrationRunner(a.coord)

	a.timer = pomodoro.New(pomodoro.Options{
		Focus: cfg.Pomodoro.Focus.Std(),
		Break: cfg.Pomodoro.Break.Std(),
		Tick:  cfg.Pomodoro.Tick.Std(),
		OnPhaseEnd: func(_ pomodoro.State, message string) {
			notifier.Notify(services.LevelInfo, message)
		},
	})

	album := services.NewAlbumService(a.coord, cfg.Photos)
	a.handler = handlers.NewRouter(handlers.Handlers{
		Messages:  handlers.NewMessageHandler(album),
		Photos:    handlers.NewPhotoHandler(album, cfg.Photos.MaxSize.Int64()),
		Comments:  handlers.NewCommentHandler(album),
		Planner:   handlers.NewPlannerHandler(services.NewPlannerService(a.coord, nil)),
		Sync:      handlers.NewSyncHandler(a.coord, a.runner),
		Pomodoro:  handlers.NewPomodoroHandler(a.timer),
		Owners:    handlers.NewOwnersHandler(cfg.Owners),
		Letter:    handlers.NewLetterHandler(cfg.Letter.Path),
		WebSocket: handlers.NewWebSocketHandler(a.hub, a.coord),
	})

	return a, nil
}

// connectRemote builds the remote store adapter for the configured driver
func (a *App) connectRemote(ctx context.Context) error {
	switch a.cfg.Remote.Driver {
	case config.DriverNone:
		log.Warn().Msg("Remote store disabled, running local-only")
		a.store = remote.NewDisabled()
		return nil
	case config.DriverMemory:
		log.Warn().Msg("Using in-memory remote store, data is lost on exit")
		a.store = remote.NewMemory()
		return nil
	}

	db, err := pgxpool.New(ctx, a.cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to create database pool: %w", err)
	}
	a.db = db
	a.docs = repository.NewDocumentRepository(db)

	if err := a.docs.Migrate(ctx); err != nil {
		log.Warn().Err(err).Msg("Database unreachable, starting local-only")
	} else {
		log.Info().Msg("Database connection established")
	}

	var blobs *blob.S3Store
	if a.cfg.AWS.S3Bucket != "" {
		blobs, err = blob.NewS3Store(ctx, a.cfg.AWS)
		if err != nil {
			return fmt.Errorf("failed to create blob store: %w", err)
		}
	} else {
		log.Warn().Msg("No S3 bucket configured, photos stay in the local store")
	}

	a.backend = remote.NewBackend(a.docs, blobs)
	a.backend.Start(ctx)
	a.store = a.backend
	return nil
}

// Handler returns the HTTP API
func (a *App) Handler() http.Handler {
	return a.handler
}

// Coordinator returns the sync coordinator
func (a *App) Coordinator() *services.Coordinator {
	return a.coord
}

// Migrate runs one migration sweep
func (a *App) Migrate(ctx context.Context) (*services.MigrationReport, error) {
	a.coord.Start()
	return a.runner.Run(ctx)
}

// Run binds the collections, watches remote availability and serves HTTP until ctx is
// canceled or the server fails
func (a *App) Run(ctx context.Context) error {
	a.coord.Start()

	if a.backend != nil {
		go a.backend.WatchAvailability(ctx, a.cfg.Remote.AvailabilityInterval.Std(), func() {
			a.onRemoteAvailable(ctx)
		})
	}
	if a.store.IsAvailable() {
		go a.migrate(ctx)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("host", a.cfg.Server.Host).
			Int("port", a.cfg.Server.Port).
			Str("remote", a.cfg.Remote.Driver).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	return nil
}

// onRemoteAvailable rebinds every collection and pushes pending local work
func (a *App) onRemoteAvailable(ctx context.Context) {
	if a.docs != nil {
		if err := a.docs.Migrate(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to prepare database schema")
			return
		}
	}
	a.coord.Refresh()
	a.migrate(ctx)
}

func (a *App) migrate(ctx context.Context) {
	if _, err := a.runner.Run(ctx); err != nil {
		log.Warn().Err(err).Msg("Migration sweep skipped")
	}
}

// Close releases every resource in reverse order of creation
func (a *App) Close() {
	if a.timer != nil {
		a.timer.Close()
	}
	if a.coord != nil {
		a.coord.Close()
	}
	if a.backend != nil {
		a.backend.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.local != nil {
		if err := a.local.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close local store")
		}
	}
}
