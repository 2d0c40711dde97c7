package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vdstech/sacom/internal/app"
	"github.com/vdstech/sacom/internal/auth"
	"github.com/vdstech/sacom/internal/observability"
	"github.com/vdstech/sacom/internal/permissions"
	"github.com/vdstech/sacom/internal/platform/cache"
	"github.com/vdstech/sacom/internal/platform/db"
	"github.com/vdstech/sacom/internal/roles"
	"github.com/vdstech/sacom/internal/sessions"
	"github.com/vdstech/sacom/internal/shared"
	"github.com/vdstech/sacom/internal/tokens"
	"github.com/vdstech/sacom/internal/users"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, session touch throttling disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	issuer := tokens.NewIssuer(cfg.AccessTokenSecret, cfg.AccessTokenTTL)

	permRepo := permissions.NewRepository(pool)
	permService := permissions.NewService(permRepo, logger)
	permHandler := permissions.NewHandler(logger, permService, auditLogger)

	roleRepo := roles.NewRepository(pool)
	roleService := roles.NewService(roleRepo)
	roleHandler := roles.NewHandler(logger, roleService, auditLogger)

	userRepo := users.NewRepository(pool)
	userService := users.NewService(userRepo, roleService)
	userHandler := users.NewHandler(logger, userService, auditLogger)

	sessionRepo := sessions.NewRepository(pool)
	sessionManager := sessions.NewManager(sessionRepo, redisClient, logger)
	sessionHandler := sessions.NewHandler(logger, sessionManager)

	authService := auth.NewService(userService, roleService, permService, sessionManager, issuer, logger)
	authHandler := auth.NewHandler(logger, authService, userService, roleService, cfg.IsProduction(), metrics)
	authMW := auth.Middleware{Issuer: issuer, Sessions: sessionManager, Logger: logger}

	router := app.NewRouter(app.RouterDeps{
		Middleware: app.MiddlewareConfig{
			Logger:  logger,
			Config:  cfg,
			Metrics: metrics,
		},
		Auth:        authHandler,
		AuthMW:      authMW,
		Sessions:    sessionHandler,
		Roles:       roleHandler,
		Permissions: permHandler,
		Users:       userHandler,
		Metrics:     metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
