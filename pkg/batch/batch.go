// Package batch blurs several image files on the local machine, a bounded
// number at a time, and reports timing for the run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"go-boxblur/pkg/blur"
	"go-boxblur/pkg/codec"
	"go-boxblur/pkg/stats"
)

// ErrDuplicateOutput is returned when two jobs would write the same file.
var ErrDuplicateOutput = errors.New("duplicate output path")

// Job names one input file and where its blurred copy goes.
type Job struct {
	InputPath  string
	OutputPath string
}

// JobsFor builds one job per input, writing into outputDir.
func JobsFor(inputPaths []string, outputDir string) ([]Job, error) {
	outputs, err := OutputPaths(outputDir, inputPaths)
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, len(inputPaths))
	for i, path := range inputPaths {
		jobs[i] = Job{InputPath: path, OutputPath: outputs[i]}
	}
	return jobs, nil
}

// OutputPaths returns OutputPathFor(outputDir, p) for every input. Inputs that
// share a name without extension, such as a/photo.png and b/photo.jpg, would
// overwrite each other and are rejected with ErrDuplicateOutput.
func OutputPaths(outputDir string, inputPaths []string) ([]string, error) {
	outputs := make([]string, len(inputPaths))
	owner := make(map[string]string, len(inputPaths))
	for i, input := range inputPaths {
		out := OutputPathFor(outputDir, input)
		if prev, ok := owner[out]; ok {
			return nil, fmt.Errorf("%w: %s and %s both map to %s", ErrDuplicateOutput, prev, input, out)
		}
		owner[out] = input
		outputs[i] = out
	}
	return outputs, nil
}

// OutputPathFor returns outputDir/<name>_blurred.png for inputPath.
func OutputPathFor(outputDir, inputPath string) string {
	base := filepath.Base(inputPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, name+"_blurred.png")
}

// Runner blurs jobs through a shared blur.Coordinator.
type Runner struct {
	Coordinator *blur.Coordinator
	Kernel      blur.KernelSpec
	Threads     int
	Concurrency int
	Logger      log.Logger
}

// Run processes every job. A failing job does not stop the others; all
// failures are returned joined, and the report counts only finished images.
func (r *Runner) Run(ctx context.Context, jobs []Job) (stats.PerformanceData, error) {
	logger := r.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	coordinator := r.Coordinator
	if coordinator == nil {
		coordinator = blur.NewCoordinator(blur.WithLogger(logger))
	}

	startTime := time.Now()
	result := stats.PerformanceData{
		RunName:     "Batch",
		KernelSize:  r.Kernel.Size,
		Threads:     r.Threads,
		Concurrency: r.Concurrency,
		Timestamp:   startTime,
	}

	if err := r.Kernel.Validate(); err != nil {
		return result, err
	}
	owner := make(map[string]string, len(jobs))
	for _, job := range jobs {
		if prev, ok := owner[job.OutputPath]; ok {
			return result, fmt.Errorf("%w: %s and %s both write %s", ErrDuplicateOutput, prev, job.InputPath, job.OutputPath)
		}
		owner[job.OutputPath] = job.InputPath
	}

	durations := make([]time.Duration, len(jobs))
	errs := make([]error, len(jobs))

	var g errgroup.Group
	if r.Concurrency > 0 {
		g.SetLimit(r.Concurrency)
	}
	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("image %s: %w", job.InputPath, err)
				return nil
			}
			d, err := r.process(ctx, coordinator, job)
			if err != nil {
				level.Error(logger).Log("msg", "failed to blur image", "input", job.InputPath, "err", err)
				errs[i] = fmt.Errorf("image %s: %w", job.InputPath, err)
				return nil
			}
			durations[i] = d
			level.Info(logger).Log("msg", "blurred image", "input", job.InputPath,
				"output", job.OutputPath, "duration", d)
			return nil
		})
	}
	_ = g.Wait()

	for i, job := range jobs {
		if errs[i] != nil {
			result.ImagesFailed++
			continue
		}
		result.ImagesProcessed++
		result.TotalBlurTime += durations[i].Seconds()
		result.InputPaths = append(result.InputPaths, job.InputPath)
		result.OutputPaths = append(result.OutputPaths, job.OutputPath)
	}
	result.Finish(startTime)

	return result, errors.Join(errs...)
}

func (r *Runner) process(ctx context.Context, coordinator *blur.Coordinator, job Job) (time.Duration, error) {
	img, err := codec.Load(job.InputPath)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	blurred, err := coordinator.Blur(ctx, img, r.Kernel, r.Threads)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start)

	if err := codec.Save(job.OutputPath, blurred); err != nil {
		return 0, err
	}
	return elapsed, nil
}
