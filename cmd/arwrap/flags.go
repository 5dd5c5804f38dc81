package main

import (
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/arwrap/internal/inference"
	"github.com/samcharles93/arwrap/internal/toy"
)

var (
	vocab      int64
	hidden     int64
	buckets    int64
	contextLen int64
	modelSeed  int64
	maxSeqLen  int64
	padValue   int64
	logLevel   string
	logFormat  string
	debug      bool
	fileConfig Config
)

func modelFlags() []cli.Flag {
	def := toy.DefaultConfig()
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "vocab",
			Usage:       "vocabulary size of the toy model",
			Value:       int64(def.Vocab),
			Destination: &vocab,
		},
		&cli.Int64Flag{
			Name:        "hidden",
			Usage:       "hidden width of the toy model",
			Value:       int64(def.Hidden),
			Destination: &hidden,
		},
		&cli.Int64Flag{
			Name:        "buckets",
			Usage:       "number of hashed context buckets",
			Value:       int64(def.Buckets),
			Destination: &buckets,
		},
		&cli.Int64Flag{
			Name:        "context",
			Usage:       "tokens hashed into each context bucket",
			Value:       int64(def.Context),
			Destination: &contextLen,
		},
		&cli.Int64Flag{
			Name:        "model-seed",
			Usage:       "seed for the toy model weights",
			Value:       def.Seed,
			Destination: &modelSeed,
		},
		&cli.Int64Flag{
			Name:        "max-seq-len",
			Aliases:     []string{"max-ctx"},
			Usage:       "max prompt length plus steps (0 disables the cap)",
			Value:       2048,
			Destination: &maxSeqLen,
		},
		&cli.Int64Flag{
			Name:        "pad",
			Usage:       "token written after a row's first terminator",
			Value:       0,
			Destination: &padValue,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// samplingFlags holds the per-call generation settings shared by the
// generate and serve commands.
type samplingFlags struct {
	steps           int64
	temperature     float64
	filterThreshold float64
	seed            int64
	terminator      int64
	hasTerminator   bool
}

func (s *samplingFlags) flags() []cli.Flag {
	def := inference.DefaultGenerateOptions()
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "steps",
			Aliases:     []string{"n"},
			Usage:       "tokens to generate per row",
			Value:       32,
			Destination: &s.steps,
		},
		&cli.Float64Flag{
			Name:        "temperature",
			Aliases:     []string{"temp", "t"},
			Usage:       "softmax temperature (> 0)",
			Value:       def.Temperature,
			Destination: &s.temperature,
		},
		&cli.Float64Flag{
			Name:        "filter-threshold",
			Usage:       "keep floor((1-threshold)*vocab) highest scores, in (0,1)",
			Value:       def.FilterThreshold,
			Destination: &s.filterThreshold,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling seed (-1 for random)",
			Value:       -1,
			Destination: &s.seed,
		},
		&cli.Int64Flag{
			Name:        "terminator",
			Usage:       "stop once every row contains this token",
			Destination: &s.terminator,
		},
	}
}

// options converts the flags into GenerateOptions. A negative seed is
// replaced with one derived from now.
func (s *samplingFlags) options(now func() time.Time) inference.GenerateOptions {
	opts := inference.DefaultGenerateOptions()
	opts.Steps = int(s.steps)
	opts.Temperature = s.temperature
	opts.FilterThreshold = s.filterThreshold
	opts.Seed = s.seed
	if opts.Seed < 0 {
		opts.Seed = now().UnixNano()
	}
	if s.hasTerminator {
		opts.Terminator = inference.Ptr(int(s.terminator))
	}
	return opts
}

func modelConfig() toy.Config {
	return toy.Config{
		Vocab:   int(vocab),
		Hidden:  int(hidden),
		Buckets: int(buckets),
		Context: int(contextLen),
		Seed:    modelSeed,
	}
}

// buildGenerator constructs the toy model and the Generator wrapping it.
func buildGenerator() (*toy.Model, *inference.Generator, error) {
	m, err := toy.New(modelConfig())
	if err != nil {
		return nil, nil, err
	}
	gen := inference.New(m,
		inference.WithMaxSeqLen(int(maxSeqLen)),
		inference.WithPadValue(int(padValue)),
	)
	return m, gen, nil
}
