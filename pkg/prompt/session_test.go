package prompt

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"go-boxblur/pkg/blur"
	"go-boxblur/pkg/codec"
)

func TestSessionRun(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.png")
	output := filepath.Join(dir, "out.png")

	src := blur.NewImage(3, 1)
	src.SetRGBA(0, 0, 0, 0, 0, 255)
	src.SetRGBA(1, 0, 255, 255, 255, 255)
	src.SetRGBA(2, 0, 0, 0, 0, 255)
	require.NoError(t, codec.Save(input, src))

	answers := strings.Join([]string{input, "8", "4", "3", output}, "\n")
	var out strings.Builder
	s := &Session{
		Prompter: New(strings.NewReader(answers), &out),
		Blurrer:  blur.NewCoordinator(),
	}

	got, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, output, got)
	require.Contains(t, out.String(), "Adjusted number of threads to 1 (height of the image).")
	require.Contains(t, out.String(), "Kernel size must be an odd number.")
	require.Contains(t, out.String(), "successfully blurred and saved as "+output)

	blurred, err := codec.Load(output)
	require.NoError(t, err)
	require.Equal(t, []byte{127, 127, 127, 255, 85, 85, 85, 255, 127, 127, 127, 255}, blurred.Pix)
}

func TestSessionLoadFailure(t *testing.T) {
	var out strings.Builder
	p := New(strings.NewReader("in.png"), &out)
	p.exists = func(string) bool { return true }

	s := &Session{
		Prompter: p,
		Blurrer:  blur.NewCoordinator(),
		Load: func(string) (blur.Image, error) {
			return blur.Image{}, errors.New("corrupt")
		},
	}

	_, err := s.Run(context.Background())
	require.ErrorContains(t, err, "error decoding image")
	require.ErrorContains(t, err, "corrupt")
}

type failingBlurrer struct{}

func (failingBlurrer) Blur(context.Context, blur.Image, blur.KernelSpec, int) (blur.Image, error) {
	return blur.Image{}, &blur.WorkerFailure{
		Bands:  []blur.Band{{StartRow: 0, EndRow: 1}},
		Causes: []error{errors.New("boom")},
	}
}

func TestSessionBlurFailureSkipsSave(t *testing.T) {
	var out strings.Builder
	p := New(strings.NewReader("in.png 1 3 out.png"), &out)
	p.exists = func(string) bool { return true }

	saved := false
	s := &Session{
		Prompter: p,
		Blurrer:  failingBlurrer{},
		Load: func(string) (blur.Image, error) {
			return blur.NewImage(2, 2), nil
		},
		Save: func(string, blur.Image) error {
			saved = true
			return nil
		},
	}

	_, err := s.Run(context.Background())
	require.ErrorIs(t, err, blur.ErrWorkerFailure)
	require.False(t, saved)
}
