// Command volconv plans device launches and runs 3-D convolutions.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

const version = "v0.1.0-dev"

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "volconv",
		Usage:   "Occupancy-driven unwrap and 3-D convolution",
		Version: version,
		Flags:   globalFlags(),
		Before:  setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			planCmd(),
			unwrapCmd(),
			convolveCmd(),
			devicesCmd(),
			serveCmd(),
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
