package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go-boxblur/pkg/blur"
	"go-boxblur/pkg/codec"
)

func writeUniform(t *testing.T, path string, w, h int, v uint8) {
	t.Helper()
	img := blur.NewImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, v, v, v, 255)
		}
	}
	require.NoError(t, codec.Save(path, img))
}

func mustJobs(t *testing.T, inputs []string, outputDir string) []Job {
	t.Helper()
	jobs, err := JobsFor(inputs, outputDir)
	require.NoError(t, err)
	return jobs
}

func TestOutputPathFor(t *testing.T) {
	require.Equal(t, filepath.Join("out", "img1_blurred.png"), OutputPathFor("out", "/data/in/img1.jpeg"))
	require.Equal(t, filepath.Join("out", "a.b_blurred.png"), OutputPathFor("out", "a.b.png"))
}

func TestJobsForRejectsCollidingOutputs(t *testing.T) {
	tests := []struct {
		name   string
		inputs []string
	}{
		{"same name in two dirs", []string{filepath.Join("in", "a", "photo.png"), filepath.Join("in", "b", "photo.png")}},
		{"same name, other extension", []string{filepath.Join("in", "photo.png"), filepath.Join("in", "photo.jpg")}},
		{"input listed twice", []string{"x.png", "x.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := JobsFor(tt.inputs, "out")
			require.ErrorIs(t, err, ErrDuplicateOutput)
			require.ErrorContains(t, err, "_blurred.png")
			require.Nil(t, jobs)
		})
	}

	jobs, err := JobsFor([]string{filepath.Join("in", "photo.png"), filepath.Join("in", "other.jpg")}, "out")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
}

func TestRunnerRejectsDuplicateOutputs(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a", "photo.png")
	second := filepath.Join(dir, "b", "photo.png")
	writeUniform(t, first, 3, 3, 10)
	writeUniform(t, second, 3, 3, 200)
	out := filepath.Join(dir, "out", "photo_blurred.png")

	r := &Runner{Kernel: blur.KernelSpec{Size: 3}, Threads: 1, Concurrency: 2}
	result, err := r.Run(context.Background(), []Job{
		{InputPath: first, OutputPath: out},
		{InputPath: second, OutputPath: out},
	})
	require.ErrorIs(t, err, ErrDuplicateOutput)
	require.Zero(t, result.ImagesProcessed)

	_, statErr := os.Stat(out)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRunnerBlursEveryImage(t *testing.T) {
	dir := t.TempDir()
	var inputs []string
	for i, name := range []string{"a.png", "b.png", "c.png"} {
		path := filepath.Join(dir, name)
		writeUniform(t, path, 6+i, 4, uint8(50*i))
		inputs = append(inputs, path)
	}
	outDir := filepath.Join(dir, "out")

	r := &Runner{Kernel: blur.KernelSpec{Size: 3}, Threads: 2, Concurrency: 2}
	result, err := r.Run(context.Background(), mustJobs(t, inputs, outDir))
	require.NoError(t, err)

	require.Equal(t, 3, result.ImagesProcessed)
	require.Zero(t, result.ImagesFailed)
	require.Equal(t, 3, result.KernelSize)
	require.Len(t, result.OutputPaths, 3)

	for i, path := range result.OutputPaths {
		img, err := codec.Load(path)
		require.NoError(t, err)
		require.Equal(t, 6+i, img.Width)
		r, _, _, a := img.RGBAAt(0, 0)
		require.Equal(t, uint8(50*i), r)
		require.Equal(t, uint8(255), a)
	}
}

func TestRunnerReportsEveryFailure(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	writeUniform(t, good, 2, 2, 10)
	corrupt := filepath.Join(dir, "corrupt.png")
	require.NoError(t, os.WriteFile(corrupt, []byte("nope"), 0644))
	missing := filepath.Join(dir, "missing.png")

	r := &Runner{Kernel: blur.KernelSpec{Size: 3}, Threads: 1, Concurrency: 1}
	result, err := r.Run(context.Background(), mustJobs(t, []string{corrupt, good, missing}, dir))

	require.Error(t, err)
	require.ErrorContains(t, err, "corrupt.png")
	require.ErrorContains(t, err, "missing.png")
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Equal(t, 1, result.ImagesProcessed)
	require.Equal(t, 2, result.ImagesFailed)
	require.Equal(t, []string{good}, result.InputPaths)

	_, statErr := os.Stat(OutputPathFor(dir, good))
	require.NoError(t, statErr, "successful images are still written")
}

func TestRunnerRejectsBadKernel(t *testing.T) {
	r := &Runner{Kernel: blur.KernelSpec{Size: 2}, Threads: 1}
	_, err := r.Run(context.Background(), []Job{{InputPath: "x.png", OutputPath: "y.png"}})
	require.ErrorIs(t, err, blur.ErrInvalidArgument)
}

func TestRunnerCancelled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writeUniform(t, path, 2, 2, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{Kernel: blur.KernelSpec{Size: 3}, Threads: 1, Concurrency: 1}
	result, err := r.Run(ctx, mustJobs(t, []string{path}, dir))
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, result.ImagesProcessed)
}
