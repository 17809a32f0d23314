package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/ThomasChan/Farm-Land/internal/config"
	"github.com/ThomasChan/Farm-Land/internal/handlers"
	"github.com/ThomasChan/Farm-Land/internal/logger"
	"github.com/ThomasChan/Farm-Land/internal/metrics"
	"github.com/ThomasChan/Farm-Land/internal/middleware"
	"github.com/ThomasChan/Farm-Land/internal/session"
	"github.com/ThomasChan/Farm-Land/internal/upstream"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	config.Flags(fs)
	_ = fs.Parse(os.Args[1:])

	// Load configuration from flags, env file and environment variables
	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log := logger.New(cfg.Server.Env)
	log.Info("Starting land parcel console", map[string]interface{}{
		"version":     handlers.APIVersion,
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
		"backend":     cfg.Map.Backend,
	})

	// Shared HTTP client for the layer collection and the auth endpoint
	client := upstream.NewClient(cfg.Upstream)
	defer client.Close()

	log.Info("Upstream configured", map[string]interface{}{
		"layer_api": cfg.Map.LayerAPI(),
		"auth_api":  cfg.Upstream.AuthAPI,
		"timeout":   cfg.Upstream.Timeout.String(),
	})

	sessions := session.NewManager(cfg, client, log)
	defer sessions.Close()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sessions.Run(sweepCtx)

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware in order: RequestID -> SessionID -> Logger -> Recovery -> CORS
	router.Use(middleware.RequestID())
	router.Use(middleware.SessionID())
	router.Use(middleware.Logger(log, "/health", "/health/ready", "/metrics"))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins))

	healthHandler := handlers.NewHealthHandler(client, sessions, cfg.Server.Env, cfg.Map.Backend,
		cfg.Map.LayerAPI(), cfg.Upstream.AuthAPI)
	consoleHandler := handlers.NewConsoleHandler(sessions, cfg.Server.Env == "production")
	handlers.RegisterRoutes(router, healthHandler, consoleHandler)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	// Wait for interrupt signal (SIGINT or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	log.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Open websockets are hijacked and not tracked by Shutdown; close sessions first
	stopSweep()
	sessions.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	log.Info("Server exited", nil)
}
