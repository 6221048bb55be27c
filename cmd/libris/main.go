package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/libris-hub/libris/internal/app"
	"github.com/libris-hub/libris/internal/auth"
	"github.com/libris-hub/libris/internal/catalog"
	"github.com/libris-hub/libris/internal/notifications"
	"github.com/libris-hub/libris/internal/observability"
	"github.com/libris-hub/libris/internal/platform/cache"
	"github.com/libris-hub/libris/internal/platform/db"
	"github.com/libris-hub/libris/internal/posts"
	"github.com/libris-hub/libris/internal/rbac"
	"github.com/libris-hub/libris/internal/shared"
	"github.com/libris-hub/libris/internal/users"
	"github.com/libris-hub/libris/internal/validation"
	"github.com/libris-hub/libris/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	migrateOnly := len(os.Args) > 1 && os.Args[1] == "migrate"
	if cfg.MigrateOnStart || migrateOnly {
		if err := db.Migrate(ctx, dbpool); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("schema up to date")
	}
	if migrateOnly {
		return
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	policy, err := rbac.LoadPolicy(cfg.RBACPolicyFile)
	if err != nil {
		logger.Error("load rbac policy", slog.Any("error", err))
		os.Exit(1)
	}
	engine := rbac.NewEngine(policy)
	metrics := observability.NewMetrics()
	validator := validation.New()
	notifier := notifications.NewNotifier(logger, metrics)
	tokens := shared.NewTokenStore(redisClient, cfg.TokenPrefix, cfg.TokenTTL)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, notifier, validator, logger)
	rbacMiddleware := rbac.Middleware{Sessions: tokens, Identities: usersRepo, Logger: logger}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(redisOpts, logger)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	authService := auth.NewService(usersService, tokens, jobClient, validator, logger)
	catalogService := catalog.NewService(catalog.NewRepository(dbpool), engine, validator, logger)
	postsService := posts.NewService(posts.NewRepository(dbpool), engine, notifier, validator, logger)
	notificationsService := notifications.NewService(notifications.NewRepository(dbpool))

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		RBACMiddleware:       rbacMiddleware,
		Metrics:              metrics,
		AuthHandler:          auth.NewHandler(logger, authService, rbacMiddleware),
		UsersHandler:         users.NewHandler(logger, usersService, rbacMiddleware),
		CatalogHandler:       catalog.NewHandler(logger, catalogService, rbacMiddleware),
		PostsHandler:         posts.NewHandler(logger, postsService, rbacMiddleware),
		NotificationsHandler: notifications.NewHandler(logger, notificationsService, rbacMiddleware),
		PermissionsHandler:   rbac.NewPermissionsHandler(logger, engine, rbacMiddleware),
		JobHandler:           jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
