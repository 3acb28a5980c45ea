package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/urlmonitor/internal/config"
	"github.com/hamed0406/urlmonitor/internal/httpapi"
	apimw "github.com/hamed0406/urlmonitor/internal/httpapi/middleware"
	"github.com/hamed0406/urlmonitor/internal/logging"
	"github.com/hamed0406/urlmonitor/internal/notify"
	"github.com/hamed0406/urlmonitor/internal/policy"
	"github.com/hamed0406/urlmonitor/internal/probe"
	"github.com/hamed0406/urlmonitor/internal/repo"
	"github.com/hamed0406/urlmonitor/internal/repo/memory"
	"github.com/hamed0406/urlmonitor/internal/repo/postgres"
	"github.com/hamed0406/urlmonitor/internal/repo/sqlite"
	"github.com/hamed0406/urlmonitor/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run returns instead of exiting so deferred closes and the log sync happen
// on every path.
func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store_open_failed", zap.Error(err))
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		logger.Error("notifier_config_failed", zap.Error(err))
		return fmt.Errorf("configure notifier: %w", err)
	}

	httpChecker := probe.NewHTTPChecker(cfg.ProbeTimeout)
	httpChecker.MaxBodyBytes = cfg.MaxBodyBytes
	var checker probe.Checker = httpChecker
	if cfg.RetryAttempts > 1 {
		checker = &probe.RetryChecker{Inner: httpChecker, Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff}
	}

	registry := scheduler.NewRegistry(logger, scheduler.Deps{
		Checker:    checker,
		Policy:     policy.New(cfg.MaxFailures),
		Notifier:   notifier,
		Results:    store,
		Recipients: store,
	}, scheduler.Options{
		IntervalUnit:   cfg.FrequencyUnit,
		StoreTimeout:   cfg.StoreTimeout,
		NotifyTimeout:  cfg.NotifyTimeout,
		DNSDiagnostics: cfg.DNSDiagnostics,
	})
	defer registry.StopAll()

	// Boot: the store must be reachable or startup fails.
	lctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defs, err := store.ListDefinitions(lctx, "")
	cancel()
	if err != nil {
		logger.Error("load_definitions_failed", zap.Error(err))
		return fmt.Errorf("load definitions: %w", err)
	}
	registry.LoadAll(defs)

	keys := apimw.Keys{
		Public:        cfg.PublicAPIKeys,
		Admin:         cfg.AdminAPIKeys,
		AdminUser:     cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
	}
	api := httpapi.NewServer(logger, store, registry)
	api.UIDir = cfg.UIDir
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		errc <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_listen_failed", zap.Error(err))
			serveErr = err
		}
	}

	sctx, scancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("api_shutdown_error", zap.Error(err))
	}
	logger.Info("api_stopped")
	return serveErr
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, error) {
	backend, dsn, err := cfg.Storage()
	if err != nil {
		return nil, err
	}
	logger.Info("store_backend", zap.String("backend", string(backend)))

	switch backend {
	case config.BackendPostgres:
		s, err := postgres.New(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx, cfg.DropAll); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case config.BackendSQLite:
		s, err := sqlite.New(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx, cfg.DropAll); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	}
	return memory.New(), nil
}

func buildNotifier(cfg config.Config, logger *zap.Logger) (notify.Notifier, error) {
	var transport notify.Transport = notify.LogTransport{Logger: logger}
	if cfg.SMTP.Enabled() {
		t, err := notify.NewSMTPTransport(notify.SMTPConfig{
			Server:   cfg.SMTP.Server,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			UseTLS:   cfg.SMTP.TLS(),
			From:     cfg.SMTP.From,
			Retries:  cfg.SMTP.Retries,
		}, logger)
		if err != nil {
			return nil, err
		}
		transport = t
	} else {
		logger.Warn("smtp_disabled", zap.String("hint", "set SMTP_SERVER to send e-mail"))
	}

	mailer := notify.NewMailer(transport, notify.MailerConfig{
		AdminEmail: cfg.AdminEmail,
		Threshold:  cfg.MaxFailures,
	})
	if cfg.SlackWebhook == "" {
		return mailer, nil
	}
	return notify.Multi{mailer, notify.NewSlack(cfg.SlackWebhook)}, nil
}
