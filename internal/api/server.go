package api

import (
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/arwrap/internal/inference"
	"github.com/samcharles93/arwrap/internal/logger"
	"github.com/samcharles93/arwrap/internal/tokenizer"
	"github.com/samcharles93/arwrap/internal/toy"
)

type ServerConfig struct {
	Provider GeneratorProvider
	// Tokenizer encodes text prompts and decodes generated rows. Without one
	// only token requests are accepted.
	Tokenizer tokenizer.Tokenizer
	// Defaults fill request fields that are omitted. A negative Seed picks a
	// fresh seed per request.
	Defaults inference.GenerateOptions
	Model    ModelInfo
	Logger   logger.Logger
}

type Server struct {
	cfg   ServerConfig
	log   logger.Logger
	clock func() time.Time
}

func NewServer(cfg ServerConfig) *Server {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	cfg.Model.Object = "model"
	return &Server{
		cfg:   cfg,
		log:   log.With("component", "api"),
		clock: time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/generate", s.handleGenerate)
	e.POST("/v1/loss", s.handleLoss)
	e.GET("/v1/model", s.handleModel)
}

func (s *Server) handleGenerate(c *echo.Context) error {
	if s.cfg.Provider == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "generator not configured", "", "")
	}
	req, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	batch, err := s.promptBatch(req.Prompt, req.Prompts, req.Tokens)
	if err != nil {
		return writeInferenceError(c, err)
	}

	opts := s.generateOptions(&req)
	ctx := logger.WithContext(c.Request().Context(), s.log)
	var out inference.Batch
	err = s.cfg.Provider.WithGenerator(ctx, func(g *inference.Generator) error {
		var genErr error
		out, genErr = g.Generate(ctx, batch, opts)
		return genErr
	})
	if err != nil {
		s.log.Warn("generate failed", "error", err)
		return writeInferenceError(c, err)
	}

	resp := GenerateResponse{
		ID:       newGenerationID(),
		Object:   "generation",
		Created:  s.clock().Unix(),
		Model:    s.cfg.Model.ID,
		Tokens:   out,
		Text:     s.decodeRows(out),
		Metadata: req.Metadata,
		Usage: Usage{
			PromptTokens:    len(batch) * len(batch[0]),
			GeneratedTokens: countTokens(out),
		},
	}
	s.log.Info("generated", "id", resp.ID, "batch", len(batch), "steps", len(out[0]), "seed", opts.Seed)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleLoss(c *echo.Context) error {
	if s.cfg.Provider == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "generator not configured", "", "")
	}
	req, err := decodeJSON[LossRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	seq, err := s.promptBatch(req.Text, req.Texts, req.Tokens)
	if err != nil {
		return writeInferenceError(c, err)
	}

	ctx := logger.WithContext(c.Request().Context(), s.log)
	var loss *inference.Loss
	err = s.cfg.Provider.WithGenerator(ctx, func(g *inference.Generator) error {
		var lossErr error
		loss, lossErr = g.Loss(ctx, seq, logitBiasArgs(req.LogitBias))
		return lossErr
	})
	if err != nil {
		s.log.Warn("loss failed", "error", err)
		return writeInferenceError(c, err)
	}

	return c.JSON(http.StatusOK, LossResponse{
		ID:         newLossID(),
		Object:     "loss",
		Created:    s.clock().Unix(),
		Model:      s.cfg.Model.ID,
		Loss:       loss.Value,
		Perplexity: math.Exp(loss.Value),
		Positions:  loss.Tokens,
	})
}

func (s *Server) handleModel(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.cfg.Model)
}

func (s *Server) generateOptions(req *GenerateRequest) inference.GenerateOptions {
	opts := s.cfg.Defaults
	opts.Rand = nil
	opts.OnStep = nil
	if req.Steps != nil {
		opts.Steps = *req.Steps
	}
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}
	if req.FilterThreshold != nil {
		opts.FilterThreshold = *req.FilterThreshold
	}
	if req.Terminator != nil {
		opts.Terminator = inference.Ptr(*req.Terminator)
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}
	if opts.Seed < 0 {
		opts.Seed = s.clock().UnixNano()
	}
	opts.Args = logitBiasArgs(req.LogitBias)
	return opts
}

func (s *Server) promptBatch(text string, texts []string, tokens [][]int) (inference.Batch, error) {
	given := 0
	if text != "" {
		given++
	}
	if len(texts) > 0 {
		given++
	}
	if len(tokens) > 0 {
		given++
	}
	if given != 1 {
		return nil, newInvalidRequest("exactly one of the text or token fields is required")
	}
	if len(tokens) > 0 {
		return inference.Batch(tokens), nil
	}
	if s.cfg.Tokenizer == nil {
		return nil, newInvalidRequest("text input requires a tokenizer; send tokens instead")
	}
	if text != "" {
		texts = []string{text}
	}
	batch := make(inference.Batch, len(texts))
	for i, t := range texts {
		ids, err := s.cfg.Tokenizer.Encode(t)
		if err != nil {
			return nil, newInvalidRequest(err.Error())
		}
		batch[i] = ids
	}
	return batch, nil
}

// decodeRows returns nil when there is no tokenizer or a row holds ids the
// tokenizer cannot decode.
func (s *Server) decodeRows(rows inference.Batch) []string {
	if s.cfg.Tokenizer == nil {
		return nil
	}
	out := make([]string, len(rows))
	for i, row := range rows {
		ids := make([]int, 0, len(row))
		for _, tok := range row {
			if tok != s.cfg.Model.PadValue {
				ids = append(ids, tok)
			}
		}
		text, err := s.cfg.Tokenizer.Decode(ids)
		if err != nil {
			return nil
		}
		out[i] = text
	}
	return out
}

func logitBiasArgs(bias map[int]float32) inference.Args {
	if len(bias) == 0 {
		return nil
	}
	return inference.Args{toy.LogitBiasArg: bias}
}

func countTokens(rows inference.Batch) int {
	n := 0
	for _, row := range rows {
		n += len(row)
	}
	return n
}
