package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/example/practice-scheduler/internal/application"
	"github.com/example/practice-scheduler/internal/config"
	httptransport "github.com/example/practice-scheduler/internal/http"
	"github.com/example/practice-scheduler/internal/persistence/sqlite"
	"github.com/example/practice-scheduler/internal/planner"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	pool, err := sqlite.NewConnectionPool(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := sqlite.Migrate(context.Background(), pool); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	idGenerator := uuid.NewString
	now := time.Now

	organizations := sqlite.NewOrganizationRepository(pool)
	directory := sqlite.NewDirectoryRepository(pool)
	schedules := sqlite.NewScheduleRepository(pool)
	sessions := sqlite.NewSessionRepository(pool)
	holds := sqlite.NewHoldRepository(pool)

	audit := application.NewLogAuditSink(logger)
	plannerClient := planner.NewHTTPPlanner(cfg.PlannerURL, cfg.PlannerTimeout)

	availabilityService := application.NewAvailabilityService(organizations, directory, directory, directory, directory, sessions, holds, logger, now)
	holdService := application.NewHoldService(organizations, directory, directory, holds, logger, idGenerator, now, cfg.HoldTTL)
	bookingService := application.NewBookingService(organizations, directory, directory, directory, schedules, sessions, holds, audit, logger, idGenerator, now)
	sessionService := application.NewSessionService(organizations, sessions, audit, logger, now)
	scheduleService := application.NewScheduleService(organizations, directory, directory, directory, directory, schedules, sessions, plannerClient, logger, idGenerator, now)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Availability: httptransport.NewAvailabilityHandler(availabilityService, logger),
		Holds:        httptransport.NewHoldHandler(holdService, logger),
		Bookings:     httptransport.NewBookingHandler(bookingService, logger),
		Sessions:     httptransport.NewSessionHandler(sessionService, logger),
		Schedules:    httptransport.NewScheduleHandler(scheduleService, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.RequireOrganization(logger),
		},
	})

	go runHoldCleanup(ctx, holdService, cfg.HoldCleanupInterval, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("scheduler API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

type expiredHoldCleaner interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// runHoldCleanup removes expired holds on a fixed interval until ctx is
// cancelled. Transient SQLite contention is retried before the error is
// logged and the loop moves on to the next tick.
func runHoldCleanup(ctx context.Context, cleaner expiredHoldCleaner, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	retry := sqlite.NewRetryHelper(sqlite.DefaultRetryConfig())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var removed int
			err := retry.WithRetry(ctx, func() error {
				var cleanupErr error
				removed, cleanupErr = cleaner.CleanupExpired(ctx)
				return cleanupErr
			})
			if err != nil {
				logger.Error("expired hold cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("expired holds removed", "count", removed)
			}
		}
	}
}
