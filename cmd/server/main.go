package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/JonMunkholm/cytodx/internal/config"
	"github.com/JonMunkholm/cytodx/internal/core"
	"github.com/JonMunkholm/cytodx/internal/diagnosis"
	"github.com/JonMunkholm/cytodx/internal/logging"
	"github.com/JonMunkholm/cytodx/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// sessionSweepInterval is how often idle sessions are dropped.
const sessionSweepInterval = time.Minute

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		auditSink core.AuditSink
		auditLog  web.AuditLog
		pgAudit   *core.PgAudit
	)
	if cfg.Audit.Enabled() {
		pool, err := openPool(ctx, cfg.Audit)
		if err != nil {
			slog.Error("failed to open audit database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pgAudit = core.NewPgAudit(pool)
		if err := pgAudit.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare audit table", "error", err)
			os.Exit(1)
		}
		auditSink, auditLog = pgAudit, pgAudit
	} else {
		slog.Info("audit trail disabled (DATABASE_URL not set)")
	}

	client := diagnosis.New(cfg.Diagnosis.ServiceURL,
		diagnosis.WithPaths(cfg.Diagnosis.SinglePath, cfg.Diagnosis.BatchPath),
	)
	limiter := core.NewCallLimiter(cfg.Diagnosis.MaxConcurrent, cfg.Diagnosis.MaxWait)
	service := core.NewService(client, auditSink, limiter, core.ServiceConfig{
		CallTimeout:      cfg.Diagnosis.Timeout,
		SubmitPolicy:     cfg.SubmitPolicy(),
		ValidationPolicy: cfg.ValidationPolicy(),
		MaxUploadBytes:   cfg.Upload.MaxFileSize,
		SessionTTL:       cfg.Session.TTL,
		ResultTTL:        cfg.Session.ResultTTL,
	})

	server := web.NewServer(service, cfg, auditLog)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return service.RunSessionJanitor(gctx, sessionSweepInterval)
	})

	if pgAudit != nil {
		g.Go(func() error {
			return core.RunRetentionScheduler(gctx, pgAudit, core.RetentionConfig{
				RetentionDays: cfg.Audit.RetentionDays,
				CheckInterval: cfg.Audit.CheckInterval,
			})
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if active := limiter.Active(); active > 0 {
			slog.Info("waiting for diagnosis calls to complete", "active", active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("diagnosis calls did not complete in time", "error", err)
			} else {
				slog.Info("all diagnosis calls completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		service.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// openPool connects to the audit database and verifies the connection.
func openPool(ctx context.Context, cfg config.AuditConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	if u, err := url.Parse(cfg.DatabaseURL); err == nil {
		slog.Info("connected to audit database", "name", strings.TrimPrefix(u.Path, "/"))
	}
	return pool, nil
}
