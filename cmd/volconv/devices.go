package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/volconv/internal/device"
	"github.com/born-ml/volconv/internal/logger"
)

func devicesCmd() *cli.Command {
	var asJSON, probe bool

	return &cli.Command{
		Name:  "devices",
		Usage: "List device profiles",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print profiles as JSON",
				Destination: &asJSON,
			},
			&cli.BoolFlag{
				Name:        "probe",
				Usage:       "query the WebGPU adapter and use its limits for the webgpu profile",
				Destination: &probe,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			profiles := cfg.Profiles()
			names := cfg.DeviceNames()
			if probe {
				probeWebGPU(ctx, profiles)
			}

			if asJSON {
				list := make([]device.Capability, 0, len(names))
				for _, name := range names {
					list = append(list, profiles[name])
				}
				return printJSON(cmd, list)
			}

			tw := tabwriter.NewWriter(outWriter(cmd), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tPARALLEL\tPER BLOCK\tL2\tBUS\tSMS\tGRID")
			for _, name := range names {
				c := profiles[name]
				_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\t%d\t%v\n",
					c.Name, c.MaxParallelThreads, c.MaxThreadsPerBlock, formatBytes(c.L2CacheSize),
					c.MemoryBusWidth, c.MultiProcessorCount, c.MaxGridSize)
			}
			return tw.Flush()
		},
	}
}

// probeWebGPU replaces the webgpu profile with the probed adapter's limits.
// A failed probe leaves the preset in place.
func probeWebGPU(ctx context.Context, profiles map[string]device.Capability) {
	log := logger.FromContext(ctx)
	c, err := device.NewRegistry(device.WebGPU()).Lookup(0)
	if err != nil {
		log.Warn("webgpu probe failed, keeping preset", "error", err)
		return
	}
	profiles[c.Name] = c
	log.Info("webgpu adapter found", "threads_per_block", c.MaxThreadsPerBlock)
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dMiB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dKiB", n>>10)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
