package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"go-boxblur/pkg/common"
	"go-boxblur/pkg/queue"
)

// Summary counts the images reported so far.
type Summary struct {
	Completed int
	Failed    int
	Results   []common.ResultMessage
}

// resultKey identifies one image of one coordinator run. Image IDs restart
// at zero for every run.
type resultKey struct {
	runID   string
	imageID int
}

// Collector reads worker results, records each image's final status in Redis
// and keeps a running summary.
type Collector struct {
	redisClient  *queue.RedisClient
	collectorID  string
	logger       log.Logger
	blockTimeout time.Duration

	mu       sync.Mutex
	seen     map[resultKey]bool
	summary  Summary
	changed  chan struct{}
	interval time.Duration
}

func NewCollector(redisClient *queue.RedisClient, collectorID string, logger log.Logger) *Collector {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Collector{
		redisClient:  redisClient,
		collectorID:  collectorID,
		logger:       log.With(logger, "component", "collector"),
		blockTimeout: 5 * time.Second,
		seen:         make(map[resultKey]bool),
		changed:      make(chan struct{}),
		interval:     10 * time.Second,
	}
}

// Start consumes results until ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go c.resultProcessor(ctx, &wg)

	wg.Add(1)
	go c.progressMonitor(ctx, &wg)

	level.Info(c.logger).Log("msg", "collector started", "id", c.collectorID)
	wg.Wait()
}

// Summary returns a copy of the current counts.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.summary
	s.Results = append([]common.ResultMessage(nil), c.summary.Results...)
	return s
}

// Wait blocks until at least n images have been reported or ctx is done.
func (c *Collector) Wait(ctx context.Context, n int) error {
	for {
		c.mu.Lock()
		done := c.summary.Completed+c.summary.Failed >= n
		changed := c.changed
		c.mu.Unlock()

		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func (c *Collector) resultProcessor(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	consumer := fmt.Sprintf("collector-%s", c.collectorID)

	for {
		if ctx.Err() != nil {
			return
		}

		msgID, result, err := c.redisClient.ReadResult(ctx, consumer, c.blockTimeout)
		if errors.Is(err, queue.ErrMalformedMessage) {
			level.Warn(c.logger).Log("msg", "skipped malformed result", "err", err)
			continue
		}
		if err != nil {
			if ctx.Err() == nil {
				level.Warn(c.logger).Log("msg", "failed to read result", "err", err)
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
			continue
		}
		if result == nil {
			continue
		}

		if err := c.handle(ctx, result); err != nil {
			level.Error(c.logger).Log("msg", "failed to record result", "run", result.RunID, "image", result.ImageID, "err", err)
			continue
		}
		c.ack(ctx, msgID)
	}
}

// ack acknowledges a recorded result. A failed ack leaves the entry pending,
// so it is redelivered and dropped as a duplicate.
func (c *Collector) ack(ctx context.Context, msgID string) {
	if err := c.redisClient.AckResult(ctx, msgID); err != nil {
		level.Warn(c.logger).Log("msg", "failed to ack result", "id", msgID, "err", err)
	}
}

// handle records one result. A second result for the same image of the same
// run, which happens when a stale job was reclaimed after it had already
// finished, is ignored.
func (c *Collector) handle(ctx context.Context, result *common.ResultMessage) error {
	key := resultKey{runID: result.RunID, imageID: result.ImageID}
	logger := log.With(c.logger, "run", result.RunID, "image", result.ImageID)

	c.mu.Lock()
	duplicate := c.seen[key]
	c.mu.Unlock()
	if duplicate {
		level.Debug(logger).Log("msg", "duplicate result")
		return nil
	}

	if result.Failed() {
		if err := c.redisClient.MarkImageFailed(ctx, result.RunID, result.ImageID); err != nil {
			return err
		}
		level.Warn(logger).Log("msg", "image failed", "worker", result.WorkerID, "err", result.Error)
	} else {
		if err := c.redisClient.MarkImageCompleted(ctx, result.RunID, result.ImageID); err != nil {
			return err
		}
		logger := log.With(logger, "output", result.OutputPath, "worker", result.WorkerID)
		if info, err := c.redisClient.GetImageInfo(ctx, result.RunID, result.ImageID); err == nil {
			logger = log.With(logger, "total", time.Since(info.StartTime))
		}
		level.Info(logger).Log("msg", "image completed", "blur_seconds", result.ProcessTime)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[key] {
		return nil
	}
	c.seen[key] = true
	if result.Failed() {
		c.summary.Failed++
	} else {
		c.summary.Completed++
	}
	c.summary.Results = append(c.summary.Results, *result)
	close(c.changed)
	c.changed = make(chan struct{})
	return nil
}

func (c *Collector) progressMonitor(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.Summary()
			if s.Completed+s.Failed > 0 {
				level.Info(c.logger).Log("msg", "collector status", "completed", s.Completed, "failed", s.Failed)
			}
		}
	}
}
