package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"go-boxblur/pkg/blur"
	"go-boxblur/pkg/codec"
	"go-boxblur/pkg/common"
	"go-boxblur/pkg/queue"
)

// JobObserver is told the outcome of every job. *metrics.Metrics satisfies it.
type JobObserver interface {
	ObserveJob(err error)
}

// Config tunes a WorkerPool. Zero durations fall back to defaults.
type Config struct {
	NumWorkers    int
	WorkerID      string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	ClaimMinIdle  time.Duration
}

// WorkerPool consumes blur jobs from Redis. Each job is blurred whole by the
// shared blur.Coordinator, which fans the image out across row bands.
type WorkerPool struct {
	redisClient     *queue.RedisClient
	coordinator     *blur.Coordinator
	cfg             Config
	logger          log.Logger
	observer        JobObserver
	imagesProcessed atomic.Int64
}

func NewWorkerPool(redisClient *queue.RedisClient, coordinator *blur.Coordinator, cfg Config, logger log.Logger, observer JobObserver) *WorkerPool {
	if cfg.NumWorkers < 1 {
		cfg.NumWorkers = 1
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.ClaimMinIdle <= 0 {
		cfg.ClaimMinIdle = time.Minute
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &WorkerPool{
		redisClient: redisClient,
		coordinator: coordinator,
		cfg:         cfg,
		logger:      log.With(logger, "component", "worker_pool"),
		observer:    observer,
	}
}

// Start runs the workers and the stale job monitor until ctx is cancelled.
func (wp *WorkerPool) Start(ctx context.Context) {
	var wg sync.WaitGroup

	for i := 0; i < wp.cfg.NumWorkers; i++ {
		wg.Add(1)
		go wp.worker(ctx, i, &wg)
	}

	wg.Add(1)
	go wp.retryMonitor(ctx, &wg)

	level.Info(wp.logger).Log("msg", "started workers", "workers", wp.cfg.NumWorkers)
	wg.Wait()
	level.Info(wp.logger).Log("msg", "workers stopped", "images", wp.imagesProcessed.Load())
}

// ImagesProcessed returns the number of jobs finished, successful or not.
func (wp *WorkerPool) ImagesProcessed() int64 {
	return wp.imagesProcessed.Load()
}

func (wp *WorkerPool) worker(ctx context.Context, id int, wg *sync.WaitGroup) {
	defer wg.Done()

	consumer := fmt.Sprintf("%s-worker-%d", wp.cfg.WorkerID, id)
	logger := log.With(wp.logger, "consumer", consumer)
	level.Debug(logger).Log("msg", "worker started")

	for {
		if ctx.Err() != nil {
			level.Debug(logger).Log("msg", "worker shutting down")
			return
		}

		msgID, job, err := wp.redisClient.ReadJob(ctx, consumer, wp.cfg.BlockTimeout)
		if errors.Is(err, queue.ErrMalformedMessage) {
			level.Warn(logger).Log("msg", "skipped malformed job", "err", err)
			continue
		}
		if err != nil {
			if ctx.Err() == nil {
				level.Warn(logger).Log("msg", "failed to read job", "err", err)
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
			continue
		}
		if job == nil {
			continue
		}

		wp.handle(ctx, logger, msgID, job)
	}
}

// handle blurs one job, publishes its result and acknowledges it. The job is
// left pending when the result cannot be published so it can be reclaimed.
func (wp *WorkerPool) handle(ctx context.Context, logger log.Logger, msgID string, job *common.JobMessage) {
	result := wp.process(ctx, job)

	if _, err := wp.redisClient.AddResult(ctx, result); err != nil {
		level.Error(logger).Log("msg", "failed to publish result", "image", job.ImageID, "err", err)
		return
	}
	if err := wp.redisClient.AckJob(ctx, msgID); err != nil {
		level.Warn(logger).Log("msg", "failed to ack job", "id", msgID, "err", err)
	}

	if count := wp.imagesProcessed.Add(1); count%100 == 0 {
		level.Info(wp.logger).Log("msg", "progress", "images", count)
	}
}

func (wp *WorkerPool) process(ctx context.Context, job *common.JobMessage) *common.ResultMessage {
	startTime := time.Now()
	result := &common.ResultMessage{
		RunID:      job.RunID,
		ImageID:    job.ImageID,
		WorkerID:   wp.cfg.WorkerID,
		OutputPath: job.OutputPath,
	}

	err := wp.blurFile(ctx, job, result)
	result.ProcessTime = time.Since(startTime).Seconds()
	if err != nil {
		result.Error = err.Error()
		level.Error(wp.logger).Log("msg", "job failed", "image", job.ImageID, "input", job.InputPath, "err", err)
	} else {
		level.Debug(wp.logger).Log("msg", "job done", "image", job.ImageID, "duration", result.ProcessTime)
	}
	if wp.observer != nil {
		wp.observer.ObserveJob(err)
	}
	return result
}

func (wp *WorkerPool) blurFile(ctx context.Context, job *common.JobMessage, result *common.ResultMessage) error {
	img, err := codec.Load(job.InputPath)
	if err != nil {
		return err
	}
	result.Width = img.Width
	result.Height = img.Height

	blurred, err := wp.coordinator.Blur(ctx, img, blur.KernelSpec{Size: job.KernelSize}, job.Threads)
	if err != nil {
		return fmt.Errorf("failed to blur image: %w", err)
	}
	result.Bands = min(job.Threads, img.Height)

	if err := codec.Save(job.OutputPath, blurred); err != nil {
		return err
	}
	return nil
}

// retryMonitor reclaims jobs whose consumer died before acknowledging them
// and processes them here.
func (wp *WorkerPool) retryMonitor(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(wp.cfg.ClaimInterval)
	defer ticker.Stop()

	consumer := fmt.Sprintf("%s-retry-monitor", wp.cfg.WorkerID)
	logger := log.With(wp.logger, "consumer", consumer)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			claimed, err := wp.redisClient.ClaimStaleJobs(ctx, consumer, wp.cfg.ClaimMinIdle, 50)
			if err != nil {
				level.Warn(logger).Log("msg", "failed to claim stale jobs", "err", err)
			}
			if len(claimed) > 0 {
				level.Info(logger).Log("msg", "claimed stale jobs", "count", len(claimed))
			}
			for _, c := range claimed {
				wp.handle(ctx, logger, c.ID, c.Job)
			}
		}
	}
}
