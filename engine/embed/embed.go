// Package embed turns text into fixed-length vectors and enforces the
// contract every provider must meet: one text in, one non-empty vector out.
package embed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/WessleyAI/carsearch/engine/domain"
	"github.com/WessleyAI/carsearch/pkg/fn"
	"github.com/WessleyAI/carsearch/pkg/metrics"
	"github.com/WessleyAI/carsearch/pkg/resilience"
)

// Embedder is implemented by every embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Func adapts a function to Embedder.
type Func func(ctx context.Context, text string) ([]float32, error)

func (f Func) Embed(ctx context.Context, text string) ([]float32, error) { return f(ctx, text) }

type statusCoder interface {
	HTTPStatus() int
}

type temporary interface {
	Temporary() bool
}

// Opts configures a Guard.
type Opts struct {
	// Dims rejects vectors of any other length when > 0.
	Dims    int
	Breaker *resilience.Breaker
	Metrics *metrics.Metrics
}

// Guard wraps a provider. Every failure it returns unwraps to
// domain.ErrEmbeddingService.
type Guard struct {
	opts  Opts
	stage fn.Stage[string, []float32]
}

// NewGuard wraps inner. The breaker only sees provider failures, so a bad
// vector for one text never opens it.
func NewGuard(inner Embedder, opts Opts) *Guard {
	call := fn.Stage[string, []float32](func(ctx context.Context, text string) fn.Result[[]float32] {
		vec, err := inner.Embed(ctx, text)
		if err != nil {
			return fn.Err[[]float32](classify(err))
		}
		return fn.Ok(vec)
	})
	if opts.Breaker != nil {
		call = resilience.BreakerStage(opts.Breaker, call)
	}
	return &Guard{opts: opts, stage: call}
}

// Embed calls the provider and validates the result. Empty and mis-sized
// vectors are terminal for this text.
func (g *Guard) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := g.call(ctx, text)
	if m := g.opts.Metrics; m != nil {
		metrics.ObserveSince(m.EmbedDuration, start)
		if err != nil {
			m.EmbedErrors.Inc()
		}
	}
	return vec, err
}

func (g *Guard) call(ctx context.Context, text string) ([]float32, error) {
	vec, err := g.stage(ctx, text).Unwrap()
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, domain.NewOpError(domain.ErrEmbeddingService, "embed", err)
	}
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, domain.NewOpError(domain.ErrEmbeddingService, "embed", domain.ErrEmptyEmbedding)
	}
	if g.opts.Dims > 0 && len(vec) != g.opts.Dims {
		return nil, domain.NewOpError(domain.ErrEmbeddingService, "embed",
			fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vec), g.opts.Dims))
	}
	return vec, nil
}

// classify wraps a provider error. Only upstream statuses, timeouts and
// failures that report themselves as temporary are worth another attempt.
func classify(err error) error {
	op := domain.NewOpError(domain.ErrEmbeddingService, "embed", err)
	var sc statusCoder
	if errors.As(err, &sc) {
		return op.WithStatus(sc.HTTPStatus())
	}
	var tmp temporary
	var netErr net.Error
	switch {
	case errors.As(err, &tmp) && tmp.Temporary(),
		errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded):
		return op.Transient()
	}
	return op
}
