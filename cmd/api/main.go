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
	"go.uber.org/zap"

	"attendx/internal/attendance"
	"attendx/internal/config"
	"attendx/internal/httpapi"
	"attendx/internal/httpmiddleware"
	"attendx/internal/lecture"
	"attendx/internal/logging"
	"attendx/internal/metrics"
	"attendx/internal/queue"
	"attendx/internal/sheets"
	"attendx/internal/store"
	"attendx/internal/window"
)

const (
	sessionIdle  = 12 * time.Hour
	pruneEvery   = 10 * time.Minute
	shutdownWait = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	gate, err := cfg.Gate()
	if err != nil {
		return err
	}
	now := func() time.Time { return time.Now().In(loc) }

	checks := map[string]func(context.Context) bool{}

	var redisClient *store.Redis
	if cfg.MarkBackend == "redis" || cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr, "", 0)
		defer redisClient.Close()
		checks["redis"] = redisClient.Healthy
	}

	// Device profiles and mark flags.
	var profiles attendance.ProfileStore
	var marks attendance.MarkCache
	if cfg.MarkBackend == "memory" {
		mem := store.NewMemory()
		profiles, marks = mem, mem
	} else {
		dev, err := store.OpenDevice(cfg.DeviceDBPath)
		if err != nil {
			return fmt.Errorf("open device store: %w", err)
		}
		defer dev.Close()
		profiles, marks = dev, dev
		if cfg.MarkBackend == "redis" {
			marks = store.NewRedisMarks(redisClient.Client, "attendx")
		}
	}

	// Audit ledger. The API runs without it; listing events then reports 503.
	var ledger *attendance.Repository
	if cfg.DatabaseURL != "" {
		db, err := store.NewDB(cfg.DatabaseURL, 5*time.Second)
		if err != nil {
			logger.Warn("audit ledger unavailable", zap.Error(err))
		}
		if db != nil {
			defer db.Close()
			checks["db"] = db.Healthy
			if err == nil {
				ledger = attendance.NewRepository(db.Client)
				if err := ledger.Migrate(ctx); err != nil {
					logger.Warn("migrate audit ledger", zap.Error(err))
				}
			}
		}
	}

	var publisher attendance.Publisher = attendance.NopPublisher{}
	if cfg.AuditEnabled {
		var q queue.Queue
		if cfg.QueueBackend == "redis" {
			q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
		} else {
			// no worker can reach an in-process queue, so drain it here
			q = queue.NewInMemory(256)
			var sink attendance.Sink = attendance.LogSink{Log: logger}
			if ledger != nil {
				sink = ledger
			}
			go func() {
				if err := attendance.ConsumeAudit(ctx, q, sink, logger); err != nil {
					logger.Error("audit consumer", zap.Error(err))
				}
			}()
		}
		publisher = attendance.QueuePublisher{Q: q}
	}

	if cfg.SheetsEndpoint == "" {
		logger.Warn("SHEETS_ENDPOINT not set; spreadsheet calls will fail")
	}
	deps := attendance.Deps{
		Remote:    sheets.New(cfg.SheetsEndpoint, cfg.SheetsTimeout),
		Profiles:  profiles,
		Marks:     marks,
		Generator: lecture.NewGenerator(nil),
		Gate:      gate,
		Checker:   lecture.NewChecker(cfg.CodeValidity),
		Audit:     publisher,
		Now:       now,
		Log:       logger,
	}

	watcher := window.NewWatcher(gate, cfg.WindowPoll, now)
	watcher.Subscribe(func(open bool) {
		metrics.SetWindow(open)
		logger.Info("attendance window", zap.Bool("open", open))
	})
	go watcher.Run(ctx)

	registry := attendance.NewRegistry()
	limiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	go housekeep(ctx, registry, limiter, logger)

	srv := &httpapi.Server{
		Opts: httpapi.Options{
			Issuer:          cfg.JWTIssuer,
			SigningKey:      cfg.JWTSigningKey,
			AccessTTL:       cfg.AccessTTL,
			RefreshTTL:      cfg.RefreshTTL,
			GrantTTL:        cfg.GrantTTL,
			AdminKey:        cfg.AdminKey,
			CORSOrigins:     cfg.CORSOrigins,
			RateLimitPerMin: cfg.RateLimitPerMin,
		},
		Registry: registry,
		Teacher:  attendance.NewTeacher(deps),
		Student:  attendance.NewStudent(deps),
		Gate:     gate,
		Now:      now,
		Checks:   checks,
		Limiter:  limiter,
		Log:      logger,
	}
	if ledger != nil {
		srv.Ledger = ledger
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening",
			zap.String("addr", httpSrv.Addr),
			zap.String("timezone", loc.String()),
			zap.String("window", gate.Start.String()+"-"+gate.End.String()),
			zap.String("mark_backend", cfg.MarkBackend),
			zap.String("queue_backend", cfg.QueueBackend))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// housekeep drops idle sessions and rate-limit buckets.
func housekeep(ctx context.Context, reg *attendance.Registry, limiter *httpmiddleware.TokenBucket, logger *zap.Logger) {
	ticker := time.NewTicker(pruneEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := reg.Prune(sessionIdle); n > 0 {
				logger.Debug("pruned idle sessions", zap.Int("count", n), zap.Int("remaining", reg.Len()))
			}
			limiter.Sweep()
		}
	}
}
