package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/volconv/internal/api"
	"github.com/born-ml/volconv/internal/launch"
	"github.com/born-ml/volconv/internal/logger"
	"github.com/born-ml/volconv/internal/tensor"
)

func planCmd() *cli.Command {
	var (
		dims      string
		ndims     int64
		dev       string
		dtypeName string
		inputs    int64
		outputs   int64
		totalSize int64
	)

	return &cli.Command{
		Name:  "plan",
		Usage: "Print the launch geometry for an output shape",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "dims",
				Usage:       "output shape, axis 0 first (e.g. 64,64,8,2)",
				Required:    true,
				Destination: &dims,
			},
			&cli.Int64Flag{
				Name:        "ndims",
				Usage:       "active dimensions (0 = rank of --dims)",
				Destination: &ndims,
			},
			deviceFlag(&dev),
			dtypeFlag(&dtypeName),
			&cli.Int64Flag{
				Name:        "inputs",
				Usage:       "input buffers read by the kernel",
				Value:       1,
				Destination: &inputs,
			},
			&cli.Int64Flag{
				Name:        "outputs",
				Usage:       "output buffers written by the kernel",
				Value:       1,
				Destination: &outputs,
			},
			&cli.Int64Flag{
				Name:        "total-size",
				Usage:       "bytes touched by all buffers (0 = inputs+outputs buffers of --dims)",
				Destination: &totalSize,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			d, err := parseDims("dims", dims)
			if err != nil {
				return err
			}
			shape := tensor.Dim4(d)
			if err := shape.Validate(); err != nil {
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

			n := int(ndims)
			if n == 0 {
				n = shape.NDims()
			}
			io := launch.IO{
				Inputs:      int(inputs),
				Outputs:     int(outputs),
				TotalSize:   int(totalSize),
				ElementSize: dtype.Size(),
			}
			if io.TotalSize == 0 {
				io.TotalSize = (io.Inputs + io.Outputs) * shape.Elements() * io.ElementSize
			}

			p, err := launch.New(shape, n, c)
			if err != nil {
				return err
			}
			geom, err := p.Plan(io)
			if err != nil {
				return err
			}
			log.Debug("planned launch", "device", c.Name, "dims", shape, "geometry", geom)

			return printJSON(cmd, api.PlanResponse{
				Device:   c.Name,
				Dims:     shape,
				NDims:    max(n, shape.NDims()),
				IO:       io,
				Geometry: geom,
				Passes:   geom.Passes(shape),
			})
		},
	}
}
