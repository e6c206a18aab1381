// cmd/wizard-server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"renter-wizard/internal/common/config"
	"renter-wizard/internal/common/database"
	"renter-wizard/internal/common/logger"
	"renter-wizard/internal/common/observability"
	"renter-wizard/internal/store/cache"
	"renter-wizard/internal/store/postgres"
	"renter-wizard/internal/transport/httpapi"
	"renter-wizard/internal/wizard"
	"renter-wizard/internal/wizard/session"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// waitReady retries Ping against an already opened client.
func waitReady(ctx context.Context, p pinger, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	return retryWithBackoff(func() error {
		return p.Ping(ctx)
	}, maxRetries, initialDelay, log, operationName)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format, cfg.App.Name)

	log.Info("Starting wizard server...", map[string]interface{}{
		"environment": cfg.App.Environment,
		"surface":     cfg.Wizard.Surface,
	})

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	obs := observability.New(cfg.App.Name, nil, log)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	// The pool is opened once; only the ping is retried.
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fatal(log, "postgres pool setup failed", err)
	}
	defer pg.Close()
	if err := waitReady(ctx, pg, 15, 2*time.Second, log, "PostgreSQL connection"); err != nil {
		fatal(log, "postgres failed after retries", err)
	}
	log.Info("PostgreSQL connected successfully", nil)

	checks := []httpapi.HealthCheck{httpapi.PostgresCheck(pg.Ping)}

	var gateway wizard.Gateway = postgres.NewRepository(pg, cfg.Wizard.MinResidenceMonths, log)

	// --- Init Redis with retry ---
	if cfg.Database.Redis.Enabled {
		rdb := database.NewRedis(cfg.Database.Redis)
		if err := waitReady(ctx, rdb, 10, 2*time.Second, log, "Redis connection"); err != nil {
			fatal(log, "redis failed after retries", err)
		}
		defer rdb.Close()
		log.Info("Redis connected successfully", nil)

		gateway = cache.NewGateway(gateway, rdb, config.GetDuration(cfg.Cache.TTL), log)
		checks = append(checks, httpapi.RedisCheck(rdb.Ping))
	}

	gateway = wizard.Instrument(gateway, obs)

	sessions := session.NewRegistry(gateway, session.Config{
		DefaultSurface:     cfg.Wizard.Surface,
		MinResidenceMonths: cfg.Wizard.MinResidenceMonths,
		DebugSkip:          cfg.Wizard.DebugSkip,
		SubmitValidatesAll: cfg.Wizard.SubmitValidatesAll,
		SaveTimeout:        config.GetDuration(cfg.Wizard.SaveTimeout),
		TTL:                config.GetDuration(cfg.Wizard.SessionTTL),
	}, log, obs)

	if cfg.Wizard.DebugSkip {
		log.Warn("debug skip navigation is enabled; steps can be changed without validation", nil)
	}

	separateMetrics := cfg.Server.MetricsPort > 0 && cfg.Server.MetricsPort != cfg.Server.Port
	handler := httpapi.NewHandler(sessions, cfg.App.Name, log, checks...)
	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      httpapi.NewRouter(handler, log, !separateMetrics),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	servers := []*http.Server{apiServer}
	if separateMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			log.Info("HTTP server listening", map[string]interface{}{"addr": srv.Addr})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		sessions.Run(gctx, config.GetDuration(cfg.Wizard.SweepInterval))
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down wizard server...", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		log.Error("wizard server stopped with error", map[string]interface{}{"error": err.Error()})
		return
	}
	log.Info("Wizard server stopped", map[string]interface{}{"openSessions": sessions.Len()})
}

func fatal(log logger.Logger, msg string, err error) {
	log.Error(msg, map[string]interface{}{"error": err.Error()})
	os.Exit(1)
}
