package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/oltiss/mattermost-bot/internal/app"
	"github.com/oltiss/mattermost-bot/internal/health"
	"github.com/oltiss/mattermost-bot/internal/mattermost"
	"github.com/oltiss/mattermost-bot/internal/observe"
)

// shutdownTimeout bounds the graceful shutdown after a signal, including
// the wait for in-flight answer jobs.
const shutdownTimeout = 30 * time.Second

func serve(ctx context.Context, c *cli.Command) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}

	tel, err := observe.Setup(ctx, observe.TelemetryConfig{
		ServiceVersion: version,
		Attributes:     []attribute.KeyValue{attribute.String("engine", string(cfg.Engine))},
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := tel.Metrics

	application, err := app.New(ctx, cfg, newRegistry(),
		app.WithMetrics(metrics),
		app.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	dispatcher := application.NewDispatcher()

	mux := http.NewServeMux()
	mattermost.NewHandler(dispatcher,
		mattermost.WithToken(cfg.Mattermost.Token),
		mattermost.WithAckText(cfg.Mattermost.AckText),
		mattermost.WithMetrics(metrics),
		mattermost.WithLogger(logger),
	).Register(mux)
	probes := health.New(application.Checks()...)
	probes.Register(mux)
	if cfg.Observe.Metrics {
		mux.Handle("GET /metrics", tel.MetricsHandler())
	}

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(c.Root().Writer, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, stopping")
		probes.Drain()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(sctx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
		if err := dispatcher.Shutdown(sctx); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher shutdown: %w", err))
		}
		if err := application.Shutdown(sctx); err != nil {
			errs = append(errs, fmt.Errorf("app shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("goodbye")
	return nil
}
