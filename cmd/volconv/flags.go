package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/volconv/internal/config"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	debug      bool
	workers    int64

	// cfg is the loaded config file, available to every command once the
	// root Before hook ran.
	cfg config.Config
)

func globalFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml",
			Value:       config.DefaultPath(),
			Destination: &configPath,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Usage:       "goroutines that execute grid blocks (0 = one per CPU)",
			Destination: &workers,
		},
	}, loggingFlags()...)
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       config.DefaultLogLevel,
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       config.DefaultLogFormat,
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func deviceFlag(dest *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "device",
		Aliases:     []string{"d"},
		Usage:       "device profile (host, discrete, integrated, webgpu or one from the config file)",
		Destination: dest,
	}
}

func dtypeFlag(dest *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "dtype",
		Usage:       "element type",
		Value:       "float32",
		Destination: dest,
	}
}

// windowFlags holds stride, padding and dilation as "n" or "x,y,z".
type windowFlags struct {
	stride, padding, dilation string
}

func (w *windowFlags) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "stride", Usage: "window stride, n or x,y,z", Value: "1", Destination: &w.stride},
		&cli.StringFlag{Name: "padding", Usage: "zero padding, n or x,y,z", Value: "0", Destination: &w.padding},
		&cli.StringFlag{Name: "dilation", Usage: "window dilation, n or x,y,z", Value: "1", Destination: &w.dilation},
	}
}

func (w *windowFlags) parse() (stride, padding, dilation [3]int, err error) {
	if stride, err = parseTriple("stride", w.stride); err != nil {
		return
	}
	if padding, err = parseTriple("padding", w.padding); err != nil {
		return
	}
	dilation, err = parseTriple("dilation", w.dilation)
	return
}

// parseInts reads a comma-separated list such as "64,64,8".
func parseInts(name, s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("--%s: %q is not an integer", name, p)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseDims reads one to four axis lengths; missing axes are 1.
func parseDims(name, s string) ([4]int, error) {
	v, err := parseInts(name, s)
	if err != nil {
		return [4]int{}, err
	}
	if len(v) > 4 {
		return [4]int{}, fmt.Errorf("--%s: at most 4 axes, got %d", name, len(v))
	}
	out := [4]int{1, 1, 1, 1}
	copy(out[:], v)
	return out, nil
}

func parseTriple(name, s string) ([3]int, error) {
	v, err := parseInts(name, s)
	if err != nil {
		return [3]int{}, err
	}
	switch len(v) {
	case 1:
		return [3]int{v[0], v[0], v[0]}, nil
	case 3:
		return [3]int{v[0], v[1], v[2]}, nil
	default:
		return [3]int{}, fmt.Errorf("--%s: need 1 or 3 values, got %d", name, len(v))
	}
}
