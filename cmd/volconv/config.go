package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/born-ml/volconv/internal/config"
	"github.com/born-ml/volconv/internal/logger"
)

// setup loads the config file, lets explicitly set flags override it and
// stores the resulting logger in the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	loaded, err := config.Load(configPath)
	if err != nil {
		return ctx, err
	}
	cfg = loaded
	applyGlobalConfig(cmd, cfg)

	level := logLevel
	if debug {
		level = "debug"
	}
	log, err := logger.Open(errWriter(cmd), logFormat, level)
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}

// applyGlobalConfig applies config file defaults to the root flags when
// the corresponding flag was not explicitly set.
func applyGlobalConfig(c *cli.Command, cfg config.Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
	if cfg.Workers > 0 && !c.IsSet("workers") {
		workers = int64(cfg.Workers)
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg config.Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// effectiveConfig is the file config with flag overrides folded in, as
// handed to long-lived components.
func effectiveConfig() config.Config {
	out := cfg
	out.LogLevel, out.LogFormat = logLevel, logFormat
	out.Workers = int(workers)
	return out
}

func errWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

func outWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func printJSON(cmd *cli.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(outWriter(cmd), string(data))
	return err
}
