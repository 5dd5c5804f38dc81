package api

import (
	"context"
	"sync"

	"github.com/samcharles93/arwrap/internal/inference"
)

// GeneratorProvider hands out exclusive access to a Generator for the length
// of fn.
type GeneratorProvider interface {
	WithGenerator(ctx context.Context, fn func(g *inference.Generator) error) error
}

// LockedGenerator serialises calls to one Generator. Generate and Loss flip
// the scorer's mode flags, so concurrent requests must not overlap.
type LockedGenerator struct {
	mu  sync.Mutex
	gen *inference.Generator
}

func NewLockedGenerator(gen *inference.Generator) *LockedGenerator {
	return &LockedGenerator{gen: gen}
}

func (p *LockedGenerator) WithGenerator(ctx context.Context, fn func(g *inference.Generator) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(p.gen)
}
