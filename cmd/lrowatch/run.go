package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/zgpcy/azure-lro-poller/internal/checkpoint"
	"github.com/zgpcy/azure-lro-poller/internal/collector"
	"github.com/zgpcy/azure-lro-poller/internal/config"
	"github.com/zgpcy/azure-lro-poller/internal/logger"
	"github.com/zgpcy/azure-lro-poller/internal/lro"
	"github.com/zgpcy/azure-lro-poller/internal/server"
	"github.com/zgpcy/azure-lro-poller/internal/version"
	"github.com/zgpcy/azure-lro-poller/internal/watcher"
	"golang.org/x/sync/errgroup"
)

func runCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch checkpointed operations and serve metrics",
		Long: `Resume every checkpointed operation, poll each one to a terminal status
and expose /metrics, /health, /ready and /operations over HTTP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatcher(ctx, cfg, newLogger(cfg, os.Stdout))
		},
	}
}

func runWatcher(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	log.Info("Azure LRO watcher starting",
		"version", version.Version,
		"http_port", cfg.HTTPPort,
		"checkpoint_backend", cfg.Checkpoint.Backend,
		"max_concurrent", cfg.Watcher.MaxConcurrent,
		"default_poll_delay_ms", cfg.DefaultPollDelayMS,
		"api_timeout_seconds", cfg.APITimeout)

	sender, err := newSender(cfg, log)
	if err != nil {
		log.Error("Failed to create ARM sender", "error", err)
		return err
	}

	registry := prometheus.NewRegistry()
	pollCollector := collector.NewPollCollector()
	if err := registry.Register(pollCollector); err != nil {
		log.Error("Failed to register collector", "error", err)
		return err
	}

	// Register Go runtime metrics (memory, goroutines, GC stats)
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		log.Warn("Failed to register Go collector", "error", err)
	}

	// Register process metrics (CPU, memory, file descriptors)
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		log.Warn("Failed to register process collector", "error", err)
	}

	dispatcher := lro.NewDispatcher(sender, lro.Options{
		DefaultDelay: cfg.DefaultPollDelay(),
		Logger:       log,
		Observer:     pollCollector,
	})

	store, err := checkpoint.Open(ctx, cfg.Checkpoint, log)
	if err != nil {
		log.Error("Failed to open checkpoint store", "error", err)
		return err
	}
	defer store.Close()

	w := watcher.New(dispatcher, store, log, watcher.Options{
		MaxConcurrent:  cfg.Watcher.MaxConcurrent,
		RescanInterval: cfg.Watcher.RescanInterval(),
	})
	srv := server.NewServer(cfg, w, registry, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Starting graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Watcher stopped with error", "error", err)
		return err
	}
	log.Info("Watcher stopped gracefully")
	return nil
}
