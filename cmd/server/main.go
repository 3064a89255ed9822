package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TalkingPanda0/epochtal/internal/board"
	"github.com/TalkingPanda0/epochtal/internal/bus"
	"github.com/TalkingPanda0/epochtal/internal/config"
	"github.com/TalkingPanda0/epochtal/internal/httpapi"
	"github.com/TalkingPanda0/epochtal/internal/lobby"
	"github.com/TalkingPanda0/epochtal/internal/store"
	"github.com/TalkingPanda0/epochtal/internal/users"
	"github.com/TalkingPanda0/epochtal/internal/workshop"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	var snapshots store.Store
	switch {
	case cfg.PostgresDSN != "":
		snapshots, err = store.NewGormStore(cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("snapshot db unavailable", zap.Error(err))
		}
	case cfg.SnapshotPath != "":
		snapshots = store.NewFileStore(cfg.SnapshotPath)
	}

	directory, err := users.Load(cfg.UsersPath)
	if err != nil {
		logger.Warn("users file unavailable, nobody can join",
			zap.String("path", cfg.UsersPath), zap.Error(err))
		directory = users.Static()
	}

	b := bus.NewMemory(logger.Named("bus"))
	reg := lobby.NewRegistry(lobby.Options{
		Bus:       b,
		Users:     directory,
		Maps:      workshop.NewSteamClient(nil),
		Board:     board.New(logger.Named("board")),
		Store:     snapshots,
		Log:       logger.Named("lobby"),
		WeekMapID: cfg.WeekMapID,
	})

	if snapshots != nil {
		data, err := snapshots.Load()
		switch {
		case errors.Is(err, store.ErrNoSnapshot):
			// First boot, nothing to restore.
		case err != nil:
			logger.Warn("snapshot load failed", zap.Error(err))
		default:
			if err := reg.Restore(data); err != nil {
				logger.Warn("snapshot restore failed", zap.Error(err))
			}
		}
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(reg, b, logger.Named("http")),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
