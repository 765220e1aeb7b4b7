package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/volconv/internal/backend/cpu"
	"github.com/born-ml/volconv/internal/backend/grid"
	"github.com/born-ml/volconv/internal/backend/webgpu"
	"github.com/born-ml/volconv/internal/conv"
	"github.com/born-ml/volconv/internal/logger"
	"github.com/born-ml/volconv/internal/serialization"
	"github.com/born-ml/volconv/internal/tensor"
)

type convolveReport struct {
	Backend string      `json:"backend"`
	Device  string      `json:"device,omitempty"`
	DType   string      `json:"dtype"`
	Signal  tensor.Dim4 `json:"signal"`
	Filter  tensor.Dim4 `json:"filter"`
	Output  tensor.Dim4 `json:"output"`
	Sum     float64     `json:"sum"`
	Values  []float64   `json:"values"`
	Elapsed string      `json:"elapsed"`
}

func convolveCmd() *cli.Command {
	var (
		signalDims string
		filterDims string
		wf         windowFlags
		backendArg string
		dev        string
		dtypeName  string
		limit      int64
		signalFile string
		filterFile string
		outputFile string
	)

	return &cli.Command{
		Name:  "convolve",
		Usage: "Convolve a 1,2,3,... signal with a filter of ones, or volumes read from SafeTensors files",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "signal",
				Usage:       "signal shape W,H,D[,N]",
				Value:       "8,8,8",
				Destination: &signalDims,
			},
			&cli.StringFlag{
				Name:        "filter",
				Usage:       "filter shape KW,KH,KD[,C]",
				Value:       "3,3,3",
				Destination: &filterDims,
			},
			&cli.StringFlag{
				Name:        "backend",
				Usage:       "compute backend (cpu, grid, webgpu)",
				Value:       "cpu",
				Destination: &backendArg,
			},
			deviceFlag(&dev),
			dtypeFlag(&dtypeName),
			&cli.StringFlag{
				Name:        "signal-file",
				Usage:       "read the signal from a SafeTensors file instead",
				Destination: &signalFile,
			},
			&cli.StringFlag{
				Name:        "filter-file",
				Usage:       "read the filter from a SafeTensors file instead",
				Destination: &filterFile,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "write the result to a SafeTensors file",
				Destination: &outputFile,
			},
			&cli.Int64Flag{
				Name:        "limit",
				Usage:       "print at most this many output values (-1 = all)",
				Value:       16,
				Destination: &limit,
			},
		}, wf.flags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			sd, err := parseDims("signal", signalDims)
			if err != nil {
				return err
			}
			fd, err := parseDims("filter", filterDims)
			if err != nil {
				return err
			}
			var p conv.Params
			if p.Stride, p.Padding, p.Dilation, err = wf.parse(); err != nil {
				return err
			}
			dtype, err := tensor.ParseDataType(dtypeName)
			if err != nil {
				return err
			}

			report := convolveReport{Backend: backendArg, DType: dtype.String()}
			var b conv.Backend
			switch backendArg {
			case "cpu":
				host := cpu.New(cpu.WithLogger(log))
				defer func() { _ = host.Close() }()
				b = host
			case "grid":
				c, err := cfg.Device(dev)
				if err != nil {
					return err
				}
				g, err := grid.New(c, grid.WithLogger(log), grid.WithWorkers(workerCount()))
				if err != nil {
					return err
				}
				defer func() { _ = g.Close() }()
				b, report.Device = g, c.Name
			case "webgpu":
				g, err := webgpu.New(webgpu.WithLogger(log))
				if err != nil {
					return err
				}
				defer func() { _ = g.Close() }()
				b, report.Device = g, g.Capability().Name
			default:
				return fmt.Errorf("unknown backend %q (want cpu, grid or webgpu)", backendArg)
			}

			signal, err := loadOr(signalFile, "signal", func() (*tensor.RawTensor, error) {
				return sequence(tensor.Dim4(sd), dtype)
			})
			if err != nil {
				return err
			}
			defer signal.Release()
			filter, err := loadOr(filterFile, "filter", func() (*tensor.RawTensor, error) {
				return ones(tensor.Dim4(fd), signal.DType())
			})
			if err != nil {
				return err
			}
			defer filter.Release()
			report.DType = signal.DType().String()

			start := time.Now()
			out, err := conv.Convolve3(ctx, b, signal, filter, p)
			if err != nil {
				return err
			}
			defer out.Release()
			elapsed := time.Since(start)
			log.Info("convolved", "backend", backendArg, "output", out.Dims(), "elapsed", elapsed)

			if outputFile != "" {
				err := serialization.WriteSafeTensors(outputFile, map[string]*tensor.RawTensor{"output": out}, map[string]string{
					"backend":  backendArg,
					"stride":   wf.stride,
					"padding":  wf.padding,
					"dilation": wf.dilation,
				})
				if err != nil {
					return err
				}
				log.Info("wrote result", "path", outputFile)
			}

			values, err := floats(out)
			if err != nil {
				return err
			}
			for _, v := range values {
				report.Sum += v
			}
			if limit >= 0 && int(limit) < len(values) {
				values = values[:limit]
			}
			report.Signal, report.Filter, report.Output = signal.Dims(), filter.Dims(), out.Dims()
			report.Values = values
			report.Elapsed = elapsed.String()
			return printJSON(cmd, report)
		},
	}
}

// loadOr reads the tensor called name (or the only tensor) from a
// SafeTensors file, or builds one with fallback when path is empty.
func loadOr(path, name string, fallback func() (*tensor.RawTensor, error)) (*tensor.RawTensor, error) {
	if path == "" {
		return fallback()
	}
	f, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, n := range f.Names() {
		if n == name {
			return f.Tensor(name)
		}
	}
	return f.Only()
}

func ones(dims tensor.Dim4, dtype tensor.DataType) (*tensor.RawTensor, error) {
	r, err := tensor.NewRaw(dims, dtype, tensor.CPU)
	if err != nil {
		return nil, err
	}
	if err := fill(r, func(int) float64 { return 1 }); err != nil {
		r.Release()
		return nil, err
	}
	return r, nil
}
