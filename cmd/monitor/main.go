package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/longbark/sitewatch/internal/alert"
	"github.com/longbark/sitewatch/internal/config"
	"github.com/longbark/sitewatch/internal/httpapi"
	"github.com/longbark/sitewatch/internal/httpapi/middleware"
	"github.com/longbark/sitewatch/internal/logging"
	"github.com/longbark/sitewatch/internal/notify"
	"github.com/longbark/sitewatch/internal/probe"
	"github.com/longbark/sitewatch/internal/repo"
	"github.com/longbark/sitewatch/internal/repo/memory"
	"github.com/longbark/sitewatch/internal/repo/postgres"
	"github.com/longbark/sitewatch/internal/repo/sqlite"
	"github.com/longbark/sitewatch/internal/runner"
	"github.com/longbark/sitewatch/internal/scheduler"
	"github.com/longbark/sitewatch/internal/sweeper"
)

// store bundles the three ports every adapter implements.
type store interface {
	repo.SiteStore
	repo.ResultStore
	repo.AlertStore
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store, func(), error) {
	switch {
	case strings.HasPrefix(cfg.DatabaseURL, "postgres://") || strings.HasPrefix(cfg.DatabaseURL, "postgresql://"):
		st, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("store_opened", zap.String("backend", "postgres"))
		return st, st.Close, nil
	case cfg.DatabaseURL != "":
		st, err := sqlite.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("store_opened", zap.String("backend", "sqlite"), zap.String("path", cfg.DatabaseURL))
		return st, func() { _ = st.Close() }, nil
	default:
		logger.Warn("store_in_memory", zap.String("hint", "set DATABASE_URL to persist checks"))
		return memory.New(), func() {}, nil
	}
}

func notifiers(cfg config.Config, logger *zap.Logger) []notify.Notifier {
	var ns []notify.Notifier
	if n := notify.NewNtfy(logger, cfg.NtfyServerURL, cfg.NtfyTopic, cfg.NtfyTopics, cfg.NtfyPriority); n != nil {
		ns = append(ns, n)
	}
	if n := notify.NewEmail(logger, cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.AlertEmail); n != nil {
		ns = append(ns, n)
	}
	if n := notify.NewSlack(logger, cfg.SlackWebhook); n != nil {
		ns = append(ns, n)
	}
	return ns
}

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store_open_failed", zap.Error(err))
	}

	dispatcher := notify.NewDispatcher(logger, st, notifiers(cfg, logger)...)
	engine := alert.NewEngine(logger, st, dispatcher)

	perf := probe.NewPerformanceProber(cfg.ProbeTimeout)
	perf.ExecPath = cfg.ChromePath
	run := runner.New(logger, cfg.ProbeTimeout, cfg.SSLWarningDays, cfg.PerformanceThresholdMS,
		probe.NewUptimeProber(cfg.ProbeTimeout),
		probe.NewTLSProber(cfg.ProbeTimeout),
		perf,
		probe.NewLinksProber(cfg.ProbeTimeout, cfg.LinkCheckConcurrency, cfg.LinkCheckRPS),
		probe.NewSEOProber(cfg.ProbeTimeout),
		probe.NewPlatformProber(cfg.ProbeTimeout),
	)

	sched := scheduler.New(logger, st, st, run, engine,
		cfg.CheckTick, cfg.DefaultCheckInterval, cfg.MaxConcurrentChecks)

	swp := sweeper.New(logger, st, st, cfg.SweepSchedule, cfg.ResultRetention, cfg.AlertRetention)
	if err := swp.Start(); err != nil {
		logger.Fatal("sweeper_start_failed", zap.Error(err))
	}

	api := httpapi.NewServer(logger, st, engine, sched,
		middleware.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go sched.Run(ctx)

	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_serve_failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown_started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_error", zap.Error(err))
	}

	// In-flight site runs finish, then pending notifications flush.
	sched.Drain(30 * time.Second)
	dispatcher.Wait()
	swp.Stop()
	closeStore()
	logger.Info("shutdown_complete")
}
