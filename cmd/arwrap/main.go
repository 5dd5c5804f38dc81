package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/arwrap/internal/logger"
)

func main() {
	app := &cli.Command{
		Name:   "arwrap",
		Usage:  "Sample from and score an autoregressive sequence model",
		Flags:  loggingFlags(),
		Before: setupLogging,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			generateCmd(),
			lossCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging loads the config file and installs the logger into the
// command context.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	fileConfig = cfg
	applyLoggingConfig(cmd, cfg)

	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	format := logFormat
	if format == "pretty" && !cmd.IsSet("log-format") && !isTerminal(os.Stderr) {
		format = "text"
	}
	return logger.WithContext(ctx, logger.NewFormat(os.Stderr, format, level)), nil
}
