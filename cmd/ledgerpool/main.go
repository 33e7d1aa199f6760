package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ubuygold/ledgerpool/internal/admin"
	"github.com/ubuygold/ledgerpool/internal/config"
	"github.com/ubuygold/ledgerpool/internal/db"
	"github.com/ubuygold/ledgerpool/internal/gateway"
	"github.com/ubuygold/ledgerpool/internal/logger"
	"github.com/ubuygold/ledgerpool/internal/pool"
	"github.com/ubuygold/ledgerpool/internal/scheduler"
)

const shutdownTimeout = 5 * time.Second

// customRecovery is a middleware that recovers from panics and handles http.ErrAbortHandler gracefully.
func customRecovery(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					log.Warn("Client connection aborted", "path", c.Request.URL.Path)
					c.Abort()
					return
				}

				log.Error("Panic recovered",
					"error", recovered,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()
		c.Next()
	}
}

// healthHandler reports whether the database answers.
func healthHandler(dbService db.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := dbService.GetDB().DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// newRouter wires the pool, the gateway and the admin API onto a gin engine.
func newRouter(cfg *config.Config, log *slog.Logger, dbService db.Service, accountPool *pool.Pool, gw *gateway.Gateway) *gin.Engine {
	router := gin.New()
	router.Use(customRecovery(log))
	if cfg.Debug {
		router.Use(gin.Logger())
	}

	router.GET("/healthz", healthHandler(dbService))
	admin.SetupRoutes(router, accountPool, gw, cfg, log)
	return router
}

// setupAndRunServer serves until ctx is cancelled, then shuts down gracefully.
func setupAndRunServer(ctx context.Context, cfg *config.Config, log *slog.Logger, dbService db.Service) error {
	clients := gateway.NewClients(cfg)
	accountPool := pool.New(dbService, cfg, log, pool.WithValidators(clients.Validators()))
	gw := gateway.New(accountPool, clients, log)

	sched := scheduler.NewScheduler(accountPool, cfg.Scheduler, log)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: newRouter(cfg, log, dbService, accountPool, gw),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exiting")
	return nil
}

func main() {
	cfg, warnings, err := config.LoadConfig("config.yaml")
	if err != nil {
		// Use a temporary logger for startup errors
		slog.Error("Error loading configuration", "error", err)
		os.Exit(1)
	}

	log, closer := logger.NewFromConfig(cfg)
	defer closer.Close()
	log.Info("Logger initialized", "debug_mode", cfg.Debug)
	for _, w := range warnings {
		log.Warn(w)
	}

	dbService, err := db.NewService(cfg.Database)
	if err != nil {
		log.Error("Error initializing database", "error", err)
		os.Exit(1)
	}
	defer dbService.Close()
	log.Info("Database initialized", "type", cfg.Database.Type)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := setupAndRunServer(ctx, cfg, log, dbService); err != nil {
		log.Error("Server error", "error", err)
		os.Exit(1)
	}
}
