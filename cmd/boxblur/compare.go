package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"go-boxblur/pkg/batch"
	"go-boxblur/pkg/blur"
	"go-boxblur/pkg/config"
	"go-boxblur/pkg/stats"
)

func (a *app) compareCommand() *cobra.Command {
	var threadCounts []int

	cmd := &cobra.Command{
		Use:   "compare [files...]",
		Short: "Blur the same files at several thread counts and report the timings side by side",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("thread-counts") {
				threadCounts = []int{1, a.cfg.Threads}
			}
			return a.runCompare(cmd, args, threadCounts)
		},
	}
	a.cfg.RegisterBlurFlags(cmd.Flags())
	a.cfg.RegisterBatchFlags(cmd.Flags())
	cmd.Flags().IntSliceVar(&threadCounts, "thread-counts", nil, "Thread counts to run, one batch each (default 1 and --threads)")
	return cmd
}

func (a *app) runCompare(cmd *cobra.Command, args []string, threadCounts []int) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	threadCounts, err := uniqueThreadCounts(threadCounts)
	if err != nil {
		return err
	}

	coordinator := blur.NewCoordinator(blur.WithLogger(a.logger))

	var (
		results []stats.PerformanceData
		errs    []error
	)
	for _, threads := range threadCounts {
		runner := &batch.Runner{
			Coordinator: coordinator,
			Kernel:      blur.KernelSpec{Size: a.cfg.KernelSize},
			Threads:     threads,
			Concurrency: a.cfg.Concurrency,
			Logger:      a.logger,
		}
		outDir := filepath.Join(a.cfg.OutputDir, fmt.Sprintf("threads_%d", threads))
		jobs, err := batch.JobsFor(args, outDir)
		if err != nil {
			return err
		}

		level.Info(a.logger).Log("msg", "running batch", "threads", threads, "output", outDir)
		result, err := runner.Run(cmd.Context(), jobs)
		result.RunName = runName(threads)
		results = append(results, result)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", result.RunName, err))
		}
	}

	if err := stats.WriteResults(a.out, results); err != nil {
		return err
	}
	if a.cfg.StatsDir != "" {
		path, err := stats.WriteResultsFile(a.cfg.StatsDir, "compare_", results)
		if err != nil {
			return err
		}
		level.Info(a.logger).Log("msg", "wrote timing report", "path", path)
	}
	return errors.Join(errs...)
}

// uniqueThreadCounts drops repeated counts, keeping the first occurrence, so
// no batch runs twice into the same directory.
func uniqueThreadCounts(counts []int) ([]int, error) {
	if len(counts) == 0 {
		return nil, fmt.Errorf("%w: at least one thread count is required", config.ErrInvalidConfig)
	}
	seen := make(map[int]bool, len(counts))
	unique := make([]int, 0, len(counts))
	for _, n := range counts {
		if n < 1 {
			return nil, fmt.Errorf("%w: thread count %d must be positive", config.ErrInvalidConfig, n)
		}
		if !seen[n] {
			seen[n] = true
			unique = append(unique, n)
		}
	}
	return unique, nil
}

func runName(threads int) string {
	if threads == 1 {
		return "Sequential"
	}
	return fmt.Sprintf("Parallel (%d threads)", threads)
}
