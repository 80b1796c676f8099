package main

import (
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"go-boxblur/pkg/batch"
	"go-boxblur/pkg/blur"
	"go-boxblur/pkg/stats"
)

func (a *app) blurCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blur [files...]",
		Short: "Blur image files on this machine",
		Args:  cobra.MinimumNArgs(1),
		RunE:  a.runBlur,
	}
	a.cfg.RegisterBlurFlags(cmd.Flags())
	a.cfg.RegisterBatchFlags(cmd.Flags())
	return cmd
}

func (a *app) runBlur(cmd *cobra.Command, args []string) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	runner := &batch.Runner{
		Coordinator: blur.NewCoordinator(blur.WithLogger(a.logger)),
		Kernel:      blur.KernelSpec{Size: a.cfg.KernelSize},
		Threads:     a.cfg.Threads,
		Concurrency: a.cfg.Concurrency,
		Logger:      a.logger,
	}
	jobs, err := batch.JobsFor(args, a.cfg.OutputDir)
	if err != nil {
		return err
	}
	result, runErr := runner.Run(cmd.Context(), jobs)

	results := []stats.PerformanceData{result}
	if err := stats.WriteResults(a.out, results); err != nil {
		return err
	}
	if a.cfg.StatsDir != "" {
		path, err := stats.WriteResultsFile(a.cfg.StatsDir, "boxblur_", results)
		if err != nil {
			return err
		}
		level.Info(a.logger).Log("msg", "wrote timing report", "path", path)
	}
	return runErr
}
