package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"go-boxblur/pkg/blur"
	"go-boxblur/pkg/collector"
	"go-boxblur/pkg/config"
	"go-boxblur/pkg/coordinator"
	"go-boxblur/pkg/metrics"
	"go-boxblur/pkg/processor"
	"go-boxblur/pkg/queue"
)

func (a *app) serviceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Run the Redis backed blur service",
		Long: "service queues the images of --input on Redis, blurs queued jobs and records\n" +
			"their results. --mode picks which of the three roles this process runs.",
		Args: cobra.NoArgs,
		RunE: a.runService,
	}
	a.cfg.RegisterBlurFlags(cmd.Flags())
	a.cfg.RegisterServiceFlags(cmd.Flags())
	return cmd
}

func (a *app) runService(cmd *cobra.Command, _ []string) error {
	cfg := a.cfg
	if err := cfg.ValidateService(); err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	serviceID := fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
	logger := log.With(a.logger, "service", serviceID)

	level.Info(logger).Log("msg", "starting blur service", "mode", cfg.Mode, "redis", cfg.Redis.Addr,
		"workers", cfg.Workers, "kernel", cfg.KernelSize, "threads", cfg.Threads)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	redisClient, err := queue.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Prefix)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	if err := redisClient.EnsureGroups(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if cfg.Mode == config.ModeCoordinator {
		_, err := queueImages(ctx, redisClient, cfg, logger)
		return err
	}

	// Worker and collector roles run until the signal, except in "all" mode
	// where the process stops once every queued image has been reported.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if cfg.Mode == config.ModeWorker || cfg.Mode == config.ModeAll {
		pool := processor.NewWorkerPool(redisClient,
			blur.NewCoordinator(blur.WithLogger(logger), blur.WithObserver(m)),
			processor.Config{NumWorkers: cfg.Workers, WorkerID: serviceID},
			logger, m)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Start(runCtx)
		}()
	}

	var coll *collector.Collector
	if cfg.Mode == config.ModeCollector || cfg.Mode == config.ModeAll {
		coll = collector.NewCollector(redisClient, serviceID, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			coll.Start(runCtx)
		}()
	}

	var runErr error
	if cfg.Mode == config.ModeAll {
		queued, err := queueImages(ctx, redisClient, cfg, logger)
		runErr = err
		if queued > 0 && coll.Wait(ctx, queued) == nil {
			s := coll.Summary()
			level.Info(logger).Log("msg", "all images reported", "completed", s.Completed, "failed", s.Failed)
			if s.Failed > 0 {
				runErr = errors.Join(runErr, fmt.Errorf("%d of %d images failed", s.Failed, queued))
			}
		}
		cancel()
	} else {
		<-ctx.Done()
	}

	level.Info(logger).Log("msg", "shutting down")
	wg.Wait()
	level.Info(logger).Log("msg", "service shutdown complete")
	return runErr
}

// queueImages queues every image under cfg.InputDir and returns how many were
// queued successfully.
func queueImages(ctx context.Context, redisClient *queue.RedisClient, cfg config.Config, logger log.Logger) (int, error) {
	paths, err := coordinator.FindImages(cfg.InputDir)
	if err != nil {
		return 0, fmt.Errorf("failed to list images: %w", err)
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("no images found in %s", cfg.InputDir)
	}
	level.Info(logger).Log("msg", "found images", "count", len(paths), "dir", cfg.InputDir)

	coord := coordinator.NewCoordinator(redisClient, cfg.KernelSize, cfg.Threads, logger)
	return coord.ProcessImages(ctx, paths, cfg.OutputDir)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		level.Info(logger).Log("msg", "starting metrics server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Error(logger).Log("msg", "metrics server failed", "err", err)
		}
	}()
	return srv
}
