package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Hocaabinn/sampah-keren-sub001/internal/config"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/db"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/education"
	portalhttp "github.com/Hocaabinn/sampah-keren-sub001/internal/http"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/jobs"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/localstore"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/repository"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/session"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	root := &cobra.Command{
		Use:           "sampah-keren",
		Short:         "Citizen waste-management portal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(logger), migrateCmd(logger))

	if err := root.Execute(); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

func serveCmd(logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), logger)
		},
	}
}

func migrateCmd(logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			pool, err := db.NewPool(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool); err != nil {
				return err
			}
			logger.Info("schema applied")
			return nil
		},
	}
}

func runServe(ctx context.Context, logger *zap.Logger) error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	store := repository.NewStore(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	archive, err := localstore.Open(cfg.ReportArchivePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	catalog, err := education.Load(cfg.EducationContent, logger)
	if err != nil {
		return err
	}
	if err := catalog.Watch(ctx); err != nil {
		logger.Warn("education catalog watch unavailable", zap.Error(err))
	}

	notifier := session.NewNotifier(redisClient, logger)
	notifier.Start(ctx)
	defer notifier.Close()

	jobs.StartRetentionJob(ctx, cfg, store, logger)

	server := portalhttp.NewServer(cfg, store, archive, catalog, notifier, session.NewTokenStore(redisClient), logger)
	server.WatchSessions(ctx)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
