package stats

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// PerformanceData holds timing and metadata for one batch of blurred images.
type PerformanceData struct {
	RunName         string
	ImagesProcessed int
	ImagesFailed    int
	KernelSize      int
	Threads         int
	Concurrency     int
	TotalTime       float64
	AverageTime     float64
	TotalBlurTime   float64
	InputPaths      []string
	OutputPaths     []string
	Timestamp       time.Time
}

// Finish fills in TotalTime and AverageTime from the run's start time.
func (p *PerformanceData) Finish(start time.Time) {
	p.TotalTime = time.Since(start).Seconds()
	if p.ImagesProcessed > 0 {
		p.AverageTime = p.TotalTime / float64(p.ImagesProcessed)
	}
}

// WriteResults renders a combined report of results to w.
func WriteResults(w io.Writer, results []PerformanceData) error {
	if len(results) == 0 {
		return nil
	}

	ew := &errWriter{w: w}
	ew.printf("=== Combined Parallel Box Blur Results ===\n")
	ew.printf("Timestamp: %s\n\n", results[0].Timestamp.Format("2006-01-02 15:04:05"))

	for _, result := range results {
		ew.printf("=== %s Results ===\n", result.RunName)
		ew.printf("Images processed: %d\n", result.ImagesProcessed)
		if result.ImagesFailed > 0 {
			ew.printf("Images failed: %d\n", result.ImagesFailed)
		}
		ew.printf("Kernel size: %d\n", result.KernelSize)
		ew.printf("Threads per image: %d\n", result.Threads)
		if result.Concurrency > 0 {
			ew.printf("Concurrent images: %d\n", result.Concurrency)
		}
		ew.printf("Total blur time: %.2fs\n", result.TotalBlurTime)
		ew.printf("Total execution time: %.2fs\n", result.TotalTime)
		ew.printf("Average time per image: %.2fs\n", result.AverageTime)

		ew.printf("\nInput files:\n")
		for i, path := range result.InputPaths {
			ew.printf("  %d. %s\n", i+1, path)
		}

		ew.printf("\nOutput files:\n")
		for i, path := range result.OutputPaths {
			ew.printf("  %d. %s\n", i+1, path)
		}

		ew.printf("\n")
	}
	return ew.err
}

// WriteResultsFile writes the report to dir/<prefix><timestamp>.txt and
// returns the path.
func WriteResultsFile(dir, prefix string, results []PerformanceData) (string, error) {
	if len(results) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}

	timestamp := results[0].Timestamp.Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(dir, fmt.Sprintf("%s%s.txt", prefix, timestamp))

	file, err := os.Create(resultsFile)
	if err != nil {
		return "", fmt.Errorf("failed to create results file: %w", err)
	}
	defer file.Close()

	if err := WriteResults(file, results); err != nil {
		return "", fmt.Errorf("failed to write results file: %w", err)
	}
	return resultsFile, nil
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
