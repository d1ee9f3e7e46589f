package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chatwire/chatserver/internal/v1/bus"
	"github.com/chatwire/chatserver/internal/v1/config"
	"github.com/chatwire/chatserver/internal/v1/health"
	"github.com/chatwire/chatserver/internal/v1/logging"
	"github.com/chatwire/chatserver/internal/v1/middleware"
	"github.com/chatwire/chatserver/internal/v1/registry"
	"github.com/chatwire/chatserver/internal/v1/session"
	"github.com/chatwire/chatserver/internal/v1/tracing"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.Verbose, cfg.LoggingEnabled); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional tracing
	if cfg.OtelCollectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "chatserverd", cfg.OtelCollectorAddr)
		if err != nil {
			logging.Error(ctx, "Failed to initialize tracer", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
		}
	}

	// Optional event bus (nil = single-instance mode)
	var eventBus *bus.Service
	if cfg.RedisEnabled {
		eventBus, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Error(ctx, "Failed to connect to Redis", zap.Error(err))
			os.Exit(1)
		}
		defer func() { _ = eventBus.Close() }()
	}

	reg := registry.New()
	srv := session.NewServer(cfg, reg, eventBus)

	// --- Admin surface: metrics + health probes ---
	var adminSrv *http.Server
	if cfg.AdminAddr != "" {
		if !cfg.Verbose {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.New()
		router.Use(gin.Recovery())
		router.Use(middleware.CorrelationID())
		router.Use(cors.Default())

		router.GET("/metrics", gin.WrapH(promhttp.Handler()))

		chatAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
		healthHandler := health.NewHandler(eventBus, chatAddr)
		router.GET("/health/live", healthHandler.Liveness)
		router.GET("/health/ready", healthHandler.Readiness)

		adminSrv = &http.Server{
			Addr:    cfg.AdminAddr,
			Handler: router,
		}

		go func() {
			logging.Info(ctx, "admin server starting", zap.String("addr", cfg.AdminAddr))
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error(ctx, "admin server failed", zap.Error(err))
			}
		}()
	}

	// --- Run the chat server until the host terminates it ---
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ctx)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logging.Info(context.Background(), "shutting down")
		// the serve loop unwinds its sessions on ctx cancellation
		<-serveErr
	case err := <-serveErr:
		if err != nil {
			logging.Error(context.Background(), "chat server failed", zap.Error(err))
			exitCode = 1
		}
	}

	// Give the admin server a bounded window to finish in-flight requests.
	if adminSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			logging.Error(context.Background(), "admin server forced to shutdown", zap.Error(err))
		}
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}

	logging.Info(context.Background(), "server exiting")
}
