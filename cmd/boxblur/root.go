package main

import (
	"io"

	"github.com/go-kit/log"
	"github.com/spf13/cobra"

	"go-boxblur/pkg/blur"
	"go-boxblur/pkg/config"
	"go-boxblur/pkg/prompt"
)

// app carries the state shared by every subcommand.
type app struct {
	cfg    config.Config
	logger log.Logger

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{
		cfg:    config.Default(),
		logger: log.NewNopLogger(),
		in:     in,
		out:    out,
		errOut: errOut,
	}

	root := &cobra.Command{
		Use:   "boxblur",
		Short: "Blur images with a parallel box filter",
		Long: "boxblur blurs RGBA images with a box filter split across row bands.\n" +
			"Run without a subcommand to be asked for the input, thread count, kernel size and output.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := config.NewLogger(a.errOut, a.cfg.LogLevel)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		Args: cobra.NoArgs,
		RunE: a.runInteractive,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	a.cfg.RegisterLogFlags(root.PersistentFlags())

	root.AddCommand(a.blurCommand(), a.compareCommand(), a.serviceCommand())
	return root
}

func (a *app) runInteractive(cmd *cobra.Command, _ []string) error {
	session := &prompt.Session{
		Prompter: prompt.New(a.in, a.out),
		Blurrer:  blur.NewCoordinator(blur.WithLogger(a.logger)),
	}
	_, err := session.Run(cmd.Context())
	return err
}
