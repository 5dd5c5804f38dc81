package api

import "github.com/samcharles93/arwrap/internal/version"

// GenerateRequest is the body of POST /v1/generate. Exactly one of Prompt,
// Prompts or Tokens must be given; prompts in one batch must encode to the
// same length.
type GenerateRequest struct {
	Prompt          string            `json:"prompt,omitempty"`
	Prompts         []string          `json:"prompts,omitempty"`
	Tokens          [][]int           `json:"tokens,omitempty"`
	Steps           *int              `json:"steps,omitempty"`
	Temperature     *float64          `json:"temperature,omitempty"`
	FilterThreshold *float64          `json:"filter_threshold,omitempty"`
	Terminator      *int              `json:"terminator,omitempty"`
	Seed            *int64            `json:"seed,omitempty"`
	LogitBias       map[int]float32   `json:"logit_bias,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type GenerateResponse struct {
	ID       string            `json:"id"`
	Object   string            `json:"object"`
	Created  int64             `json:"created"`
	Model    string            `json:"model"`
	Tokens   [][]int           `json:"tokens"`
	Text     []string          `json:"text,omitempty"`
	Usage    Usage             `json:"usage"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Usage struct {
	PromptTokens    int `json:"prompt_tokens"`
	GeneratedTokens int `json:"generated_tokens"`
}

// LossRequest is the body of POST /v1/loss.
type LossRequest struct {
	Text      string          `json:"text,omitempty"`
	Texts     []string        `json:"texts,omitempty"`
	Tokens    [][]int         `json:"tokens,omitempty"`
	LogitBias map[int]float32 `json:"logit_bias,omitempty"`
}

type LossResponse struct {
	ID         string  `json:"id"`
	Object     string  `json:"object"`
	Created    int64   `json:"created"`
	Model      string  `json:"model"`
	Loss       float64 `json:"loss"`
	Perplexity float64 `json:"perplexity"`
	Positions  int     `json:"positions"`
}

// ModelInfo describes the served model for GET /v1/model.
type ModelInfo struct {
	ID              string       `json:"id"`
	Object          string       `json:"object"`
	Vocab           int          `json:"vocab"`
	MaxSeqLen       int          `json:"max_seq_len"`
	PadValue        int          `json:"pad_value"`
	Temperature     float64      `json:"temperature"`
	FilterThreshold float64      `json:"filter_threshold"`
	Steps           int          `json:"steps"`
	Version         version.Info `json:"version"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
