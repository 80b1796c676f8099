package prompt

import (
	"context"
	"fmt"

	"go-boxblur/pkg/blur"
	"go-boxblur/pkg/codec"
)

// Blurrer is satisfied by *blur.Coordinator.
type Blurrer interface {
	Blur(ctx context.Context, img blur.Image, kernel blur.KernelSpec, threadCount int) (blur.Image, error)
}

// Session runs one complete interactive blur: ask for the input, load it, ask
// for threads and kernel size, blur, ask for the output name and save.
type Session struct {
	Prompter *Prompter
	Blurrer  Blurrer

	// Load and Save default to codec.Load and codec.Save.
	Load func(path string) (blur.Image, error)
	Save func(path string, img blur.Image) error
}

// Run returns the path the blurred image was written to.
func (s *Session) Run(ctx context.Context) (string, error) {
	load, save := s.Load, s.Save
	if load == nil {
		load = codec.Load
	}
	if save == nil {
		save = codec.Save
	}

	input, err := s.Prompter.InputPath()
	if err != nil {
		return "", err
	}

	img, err := load(input)
	if err != nil {
		return "", fmt.Errorf("error decoding image: %w", err)
	}

	threads, err := s.Prompter.ThreadCount(img.Height)
	if err != nil {
		return "", err
	}

	size, err := s.Prompter.KernelSize()
	if err != nil {
		return "", err
	}

	blurred, err := s.Blurrer.Blur(ctx, img, blur.KernelSpec{Size: size}, threads)
	if err != nil {
		return "", fmt.Errorf("failed to blur image: %w", err)
	}

	output, err := s.Prompter.OutputPath()
	if err != nil {
		return "", err
	}

	if err := save(output, blurred); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}

	fmt.Fprintf(s.Prompter.out, "\nImage has been successfully blurred and saved as %s\n", output)
	return output, nil
}
