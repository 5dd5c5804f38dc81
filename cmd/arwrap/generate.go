package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/arwrap/internal/inference"
	"github.com/samcharles93/arwrap/internal/logger"
	"github.com/samcharles93/arwrap/internal/tokenizer"
)

type generateOutput struct {
	Seed   int64    `json:"seed"`
	Tokens [][]int  `json:"tokens"`
	Text   []string `json:"text,omitempty"`
}

func generateCmd() *cli.Command {
	var (
		sampling samplingFlags
		tokens   string
		jsonOut  bool
		progress bool
	)

	return &cli.Command{
		Name:      "generate",
		Aliases:   []string{"gen"},
		Usage:     "Sample a continuation for each prompt",
		ArgsUsage: "[prompt...]",
		Flags: append(append(modelFlags(), sampling.flags()...),
			&cli.StringFlag{
				Name:        "tokens",
				Usage:       "token batch instead of text, rows separated by ';' (e.g. 1,2;3,4)",
				Destination: &tokens,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the result as JSON",
				Destination: &jsonOut,
			},
			&cli.BoolFlag{
				Name:        "progress",
				Usage:       "show a progress bar on stderr",
				Value:       true,
				Destination: &progress,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, fileConfig)
			applySamplingConfig(cmd, fileConfig, &sampling)

			_, gen, err := buildGenerator()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: build model: %v", err), 1)
			}
			tok := tokenizer.NewByteLevel()
			batch, err := inputBatch(tok, tokens, cmd.Args().Slice())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			opts := sampling.options(time.Now)
			var bar *progressbar.ProgressBar
			if progress && !jsonOut && opts.Steps > 0 && isTerminal(os.Stderr) {
				bar = newStepBar(os.Stderr, opts.Steps)
				opts.OnStep = func(int, []int) { _ = bar.Add(1) }
			}

			start := time.Now()
			out, err := gen.Generate(ctx, batch, opts)
			if bar != nil {
				_ = bar.Finish()
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: generate: %v", err), 1)
			}
			log.Debug("generation finished",
				"rows", len(out),
				"generated", len(out[0]),
				"seed", opts.Seed,
				"elapsed", time.Since(start),
			)
			return writeGenerateOutput(os.Stdout, tok, out, gen.PadValue(), opts.Seed, jsonOut)
		},
	}
}

func newStepBar(w io.Writer, steps int) *progressbar.ProgressBar {
	return progressbar.NewOptions(steps,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Generating"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func writeGenerateOutput(w io.Writer, tok tokenizer.Tokenizer, out inference.Batch, pad int, seed int64, jsonOut bool) error {
	if jsonOut {
		res := generateOutput{Seed: seed, Tokens: out}
		for _, row := range out {
			res.Text = append(res.Text, formatRow(tok, row, pad))
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	for _, row := range out {
		if _, err := fmt.Fprintln(w, formatRow(tok, row, pad)); err != nil {
			return err
		}
	}
	return nil
}
