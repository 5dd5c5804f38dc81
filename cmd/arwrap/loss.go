package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/arwrap/internal/inference"
	"github.com/samcharles93/arwrap/internal/logger"
	"github.com/samcharles93/arwrap/internal/tokenizer"
)

type lossOutput struct {
	Loss       float64 `json:"loss"`
	Perplexity float64 `json:"perplexity"`
	Positions  int     `json:"positions"`
}

func lossCmd() *cli.Command {
	var (
		tokens  string
		jsonOut bool
	)

	return &cli.Command{
		Name:      "loss",
		Usage:     "Compute the teacher-forced cross-entropy of each sequence",
		ArgsUsage: "[text...]",
		Flags: append(modelFlags(),
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
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileConfig)
			_, gen, err := buildGenerator()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: build model: %v", err), 1)
			}
			seq, err := inputBatch(tokenizer.NewByteLevel(), tokens, cmd.Args().Slice())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			res, err := runLoss(ctx, gen, seq)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: loss: %v", err), 1)
			}
			logger.FromContext(ctx).Debug("loss finished", "rows", len(seq), "positions", res.Positions)
			return writeLossOutput(os.Stdout, res, jsonOut)
		},
	}
}

func runLoss(ctx context.Context, gen *inference.Generator, seq inference.Batch) (lossOutput, error) {
	loss, err := gen.Loss(ctx, seq, nil)
	if err != nil {
		return lossOutput{}, err
	}
	return lossOutput{
		Loss:       loss.Value,
		Perplexity: math.Exp(loss.Value),
		Positions:  loss.Tokens,
	}, nil
}

func writeLossOutput(w io.Writer, res lossOutput, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err := fmt.Fprintf(w, "loss:       %.6f\nperplexity: %.4f\npositions:  %d\n", res.Loss, res.Perplexity, res.Positions)
	return err
}
