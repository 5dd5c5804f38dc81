package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/arwrap/internal/api"
	"github.com/samcharles93/arwrap/internal/logger"
	"github.com/samcharles93/arwrap/internal/tokenizer"
	"github.com/samcharles93/arwrap/internal/version"
)

func serveCmd() *cli.Command {
	var (
		sampling    samplingFlags
		addr        string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the generate and loss REST API",
		Flags: append(append(modelFlags(), sampling.flags()...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, fileConfig)
			applySamplingConfig(cmd, fileConfig, &sampling)
			applyServeConfig(cmd, fileConfig, &addr)

			m, gen, err := buildGenerator()
			if err != nil {
				return cli.Exit("error: build model: "+err.Error(), 1)
			}
			defaults := sampling.options(time.Now)
			// Seed per request unless one was pinned.
			defaults.Seed = sampling.seed

			server := api.NewServer(api.ServerConfig{
				Provider:  api.NewLockedGenerator(gen),
				Tokenizer: tokenizer.NewByteLevel(),
				Defaults:  defaults,
				Logger:    log,
				Model: api.ModelInfo{
					ID:              "toy",
					Vocab:           m.Vocab(),
					MaxSeqLen:       gen.MaxSeqLen(),
					PadValue:        gen.PadValue(),
					Temperature:     defaults.Temperature,
					FilterThreshold: defaults.FilterThreshold,
					Steps:           defaults.Steps,
					Version:         version.Resolve(),
				},
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "vocab", m.Vocab(), "max_seq_len", gen.MaxSeqLen())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
