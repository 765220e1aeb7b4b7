package main

import (
	"bytes"
	"context"
	"fmt"
	"runtime"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/volconv/internal/backend/cpu"
	"github.com/born-ml/volconv/internal/backend/grid"
	"github.com/born-ml/volconv/internal/launch"
	"github.com/born-ml/volconv/internal/logger"
	"github.com/born-ml/volconv/internal/tensor"
	"github.com/born-ml/volconv/internal/unwrap"
)

type unwrapReport struct {
	Input    tensor.Dim4     `json:"input"`
	Window   [3]int          `json:"window"`
	Stride   [3]int          `json:"stride"`
	Padding  [3]int          `json:"padding"`
	Dilation [3]int          `json:"dilation"`
	Column   bool            `json:"column"`
	Counts   [3]int          `json:"counts"`
	Output   tensor.Dim4     `json:"output"`
	Device   string          `json:"device"`
	Geometry launch.Geometry `json:"geometry"`
	Passes   [4]int          `json:"passes"`

	// Set by --verify.
	Identical *bool `json:"identical,omitempty"`
}

func unwrapCmd() *cli.Command {
	var (
		dims      string
		window    string
		wf        windowFlags
		column    bool
		dev       string
		dtypeName string
		verify    bool
	)

	return &cli.Command{
		Name:  "unwrap",
		Usage: "Report the shape and launch geometry of a sliding-window unwrap",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "dims",
				Usage:       "input shape W,H,D[,N]",
				Required:    true,
				Destination: &dims,
			},
			&cli.StringFlag{
				Name:        "window",
				Usage:       "window size, n or x,y,z",
				Value:       "3",
				Destination: &window,
			},
			&cli.BoolFlag{
				Name:        "column",
				Usage:       "one window per column (window volume on axis 0)",
				Value:       true,
				Destination: &column,
			},
			deviceFlag(&dev),
			dtypeFlag(&dtypeName),
			&cli.BoolFlag{
				Name:        "verify",
				Usage:       "unwrap a ramp on the host and grid backends and compare the results",
				Destination: &verify,
			},
		}, wf.flags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			d, err := parseDims("dims", dims)
			if err != nil {
				return err
			}
			in := tensor.Dim4(d)
			k, err := parseTriple("window", window)
			if err != nil {
				return err
			}
			stride, padding, dilation, err := wf.parse()
			if err != nil {
				return err
			}
			dtype, err := tensor.ParseDataType(dtypeName)
			if err != nil {
				return err
			}
			c, err := cfg.Device(dev)
			if err != nil {
				return err
			}

			w := unwrap.Window{
				WX: k[0], WY: k[1], WZ: k[2],
				SX: stride[0], SY: stride[1], SZ: stride[2],
				PX: padding[0], PY: padding[1], PZ: padding[2],
				DX: dilation[0], DY: dilation[1], DZ: dilation[2],
			}
			counts, err := w.Counts(in)
			if err != nil {
				return err
			}

			g, err := grid.New(c, grid.WithLogger(log), grid.WithWorkers(workerCount()))
			if err != nil {
				return err
			}
			defer func() { _ = g.Close() }()

			geom, out, err := g.PlanUnwrap(in, dtype, w, column)
			if err != nil {
				return err
			}
			report := unwrapReport{
				Input:    in,
				Window:   k,
				Stride:   stride,
				Padding:  padding,
				Dilation: dilation,
				Column:   column,
				Counts:   counts,
				Output:   out,
				Device:   c.Name,
				Geometry: geom,
				Passes:   geom.Passes(out),
			}

			if verify {
				same, err := compareBackends(ctx, g, in, dtype, w, column, log)
				if err != nil {
					return err
				}
				report.Identical = &same
			}
			return printJSON(cmd, report)
		},
	}
}

func compareBackends(ctx context.Context, g *grid.GridBackend, dims tensor.Dim4, dtype tensor.DataType,
	w unwrap.Window, column bool, log logger.Logger,
) (bool, error) {
	in, err := sequence(dims, dtype)
	if err != nil {
		return false, err
	}
	defer in.Release()

	host := cpu.New(cpu.WithLogger(log))
	defer func() { _ = host.Close() }()

	want, err := host.Unwrap3D(ctx, in, w, column)
	if err != nil {
		return false, err
	}
	defer want.Release()
	got, err := g.Unwrap3D(ctx, in, w, column)
	if err != nil {
		return false, err
	}
	defer got.Release()

	return bytes.Equal(want.Data(), got.Data()), nil
}

// sequence returns a tensor holding 1, 2, 3, ... in storage order.
func sequence(dims tensor.Dim4, dtype tensor.DataType) (*tensor.RawTensor, error) {
	r, err := tensor.NewRaw(dims, dtype, tensor.CPU)
	if err != nil {
		return nil, err
	}
	if err := fill(r, func(i int) float64 { return float64(i + 1) }); err != nil {
		r.Release()
		return nil, err
	}
	return r, nil
}

func workerCount() int {
	if workers > 0 {
		return int(workers)
	}
	return runtime.NumCPU()
}

func unsupported(dtype tensor.DataType) error {
	return fmt.Errorf("dtype %s is not supported here, use float16, float32 or float64", dtype)
}
