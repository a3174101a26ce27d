package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/resend/internal/audit"
	"github.com/rickgao/resend/internal/config"
	"github.com/rickgao/resend/internal/database"
	"github.com/rickgao/resend/internal/metrics"
	"github.com/rickgao/resend/internal/relay"
	"github.com/rickgao/resend/internal/version"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/resend.yaml", "path to config file")

	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}

	logger.Info("starting resend",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)
	for _, w := range cfg.Warnings() {
		logger.Warn("config: " + w)
	}
	for _, rt := range cfg.Routes {
		logger.Info("declared route", "name", rt.Name, "route", rt.Route)
	}

	table, closeHandlers, err := buildHandlers(cfg.Handlers, filepath.Dir(configPath))
	if err != nil {
		return err
	}
	defer closeHandlers()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []relay.Option{
		relay.WithLogger(logger),
		relay.WithMetrics(metrics.New(promRegistry)),
	}

	var (
		pool   *pgxpool.Pool
		writer *audit.Writer
	)
	if cfg.Audit.Enabled {
		logger.Info("connecting to audit database",
			"host", cfg.Audit.Database.Host,
			"port", cfg.Audit.Database.Port,
			"database", cfg.Audit.Database.Name,
		)

		pool, err = database.Connect(ctx, cfg.Audit.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := audit.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		writer = audit.NewWriter(auditWriterConfig(cfg.Audit), pool, logger)
		if err := writer.Start(ctx); err != nil {
			return err
		}
		opts = append(opts, relay.WithAuditSink(writer))
	}

	rel := relay.New(relayConfig(cfg), table, opts...)
	logger.Info("handlers registered", "routes", rel.Routes())

	deps := routerDeps{Relay: rel, Logger: logger}
	if cfg.Metrics.Enabled {
		deps.Gatherer = promRegistry
	}
	if pool != nil {
		deps.Database = pool
	}

	server := &http.Server{
		Addr:              listenAddr(cfg.Server),
		Handler:           newRouter(cfg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening",
			"addr", server.Addr,
			"ws_path", cfg.Server.WSPath,
			"metrics", cfg.Metrics.Enabled,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Upgraded connections are hijacked and invisible to server.Shutdown,
		// so the relay closes them itself.
		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := rel.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("relay shutdown: %w", err))
		}
		if writer != nil {
			if err := writer.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("audit shutdown: %w", err))
			}
			stats := writer.Stats()
			logger.Info("audit writer stats",
				"inserts", stats.Inserts,
				"errors", stats.Errors,
				"dropped", stats.Buffer.Dropped,
			)
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	logger.Info("resend stopped")
	return err
}
