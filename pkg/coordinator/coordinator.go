package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"go-boxblur/pkg/batch"
	"go-boxblur/pkg/blur"
	"go-boxblur/pkg/codec"
	"go-boxblur/pkg/common"
	"go-boxblur/pkg/queue"
)

var imagePatterns = []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.bmp", "*.tif", "*.tiff", "*.webp"}

// Coordinator queues one blur job per input image.
type Coordinator struct {
	redisClient *queue.RedisClient
	kernel      blur.KernelSpec
	threads     int
	logger      log.Logger
}

func NewCoordinator(redisClient *queue.RedisClient, kernelSize, threads int, logger log.Logger) *Coordinator {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Coordinator{
		redisClient: redisClient,
		kernel:      blur.KernelSpec{Size: kernelSize},
		threads:     threads,
		logger:      log.With(logger, "component", "coordinator"),
	}
}

// ProcessImage records the image's metadata and queues its job under runID.
// Arguments a worker would reject are rejected here before anything is queued.
func (c *Coordinator) ProcessImage(ctx context.Context, runID string, imageID int, inputPath, outputPath string) error {
	if err := c.kernel.Validate(); err != nil {
		return err
	}
	if c.threads < 1 {
		return fmt.Errorf("%w: thread count %d must be positive", blur.ErrInvalidArgument, c.threads)
	}

	cfg, _, err := codec.DecodeConfig(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read image header: %w", err)
	}

	info := &common.ImageInfo{
		RunID:      runID,
		ID:         imageID,
		InputPath:  inputPath,
		OutputPath: outputPath,
		Width:      cfg.Width,
		Height:     cfg.Height,
		KernelSize: c.kernel.Size,
		Threads:    c.threads,
		StartTime:  time.Now(),
	}
	if err := c.redisClient.StoreImageInfo(ctx, info); err != nil {
		return fmt.Errorf("failed to store image info: %w", err)
	}

	job := &common.JobMessage{
		RunID:      runID,
		ImageID:    imageID,
		InputPath:  inputPath,
		OutputPath: outputPath,
		KernelSize: c.kernel.Size,
		Threads:    c.threads,
	}
	if _, err := c.redisClient.AddJob(ctx, job); err != nil {
		return fmt.Errorf("failed to queue image %d: %w", imageID, err)
	}

	level.Debug(c.logger).Log("msg", "queued image", "run", runID, "image", imageID, "input", inputPath,
		"width", cfg.Width, "height", cfg.Height)
	return nil
}

// ProcessImages queues every path as one run, writing outputs into outputDir.
// Each call gets a fresh run id and image ids are the positions in
// imagePaths. Paths whose outputs would collide are rejected before anything
// is queued. It returns how many jobs were queued along with every failure.
func (c *Coordinator) ProcessImages(ctx context.Context, imagePaths []string, outputDir string) (int, error) {
	startTime := time.Now()

	outputPaths, err := batch.OutputPaths(outputDir, imagePaths)
	if err != nil {
		return 0, err
	}
	runID := uuid.NewString()

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(8)
	for i, inputPath := range imagePaths {
		g.Go(func() error {
			if err := c.ProcessImage(ctx, runID, i, inputPath, outputPaths[i]); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("image %d: %w", i, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		level.Error(c.logger).Log("msg", "failed to queue images", "failed", len(errs), "total", len(imagePaths))
		return len(imagePaths) - len(errs), fmt.Errorf("failed to queue %d of %d images: %w", len(errs), len(imagePaths), errors.Join(errs...))
	}

	level.Info(c.logger).Log("msg", "queued images", "run", runID, "count", len(imagePaths), "duration", time.Since(startTime))
	return len(imagePaths), nil
}

// FindImages lists the decodable images in dir, skipping earlier outputs
// whose names contain "blurred".
func FindImages(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var images []string
	for _, pattern := range imagePatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		for _, path := range matches {
			if seen[path] || strings.Contains(filepath.Base(path), "blurred") {
				continue
			}
			seen[path] = true
			images = append(images, path)
		}
	}

	sort.Strings(images)
	return images, nil
}
