// Package search answers a free-text query with two independent result lists:
// ads nearest to the query embedding, and ads whose title contains the query.
package search

import (
	"context"
	"time"

	"github.com/WessleyAI/carsearch/engine/domain"
	"github.com/WessleyAI/carsearch/engine/embed"
	"github.com/WessleyAI/carsearch/pkg/fn"
	"github.com/WessleyAI/carsearch/pkg/metrics"
)

// KeywordSearcher matches titles.
type KeywordSearcher interface {
	KeywordSearch(ctx context.Context, q string) ([]domain.CarSummary, error)
}

// VectorSearcher returns the n ads nearest to vec, closest first.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, vec []float32, n int) ([]domain.CarSummary, error)
}

// Aggregator runs both branches of a search.
type Aggregator struct {
	embedder embed.Embedder
	vectors  VectorSearcher
	keywords KeywordSearcher
	limit    int
	metrics  *metrics.Metrics
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithSemanticLimit overrides domain.DefaultSemanticLimit.
func WithSemanticLimit(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.limit = n
		}
	}
}

// WithMetrics records per-branch latency and failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

func New(e embed.Embedder, vs VectorSearcher, ks KeywordSearcher, opts ...Option) *Aggregator {
	a := &Aggregator{embedder: e, vectors: vs, keywords: ks, limit: domain.DefaultSemanticLimit}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Outcome holds each branch's result on its own.
type Outcome struct {
	Semantic fn.Result[[]domain.CarSummary]
	Keyword  fn.Result[[]domain.CarSummary]
}

// Strict returns both lists, or the first failure with the semantic branch
// checked first.
func (o Outcome) Strict() (domain.Results, error) {
	both := fn.Collect([]fn.Result[[]domain.CarSummary]{o.Semantic, o.Keyword})
	return fn.MapResult(both, func(l [][]domain.CarSummary) domain.Results {
		return domain.Results{Semantic: l[0], Keyword: l[1]}
	}).Unwrap()
}

// Search fails as a whole when either branch fails.
func (a *Aggregator) Search(ctx context.Context, q string) (domain.Results, error) {
	if err := domain.ValidateQuery(q); err != nil {
		return domain.Results{}, err
	}
	return a.SearchEach(ctx, q).Strict()
}

// SearchEach runs both branches concurrently and waits for both. Lists are
// returned as the stores produced them.
func (a *Aggregator) SearchEach(ctx context.Context, q string) Outcome {
	if err := domain.ValidateQuery(q); err != nil {
		return Outcome{Semantic: fn.Err[[]domain.CarSummary](err), Keyword: fn.Err[[]domain.CarSummary](err)}
	}
	start := time.Now()
	out := fn.FanOut(
		func() fn.Result[[]domain.CarSummary] { return a.observe("semantic", a.semantic)(ctx, q) },
		func() fn.Result[[]domain.CarSummary] { return a.observe("keyword", a.keyword)(ctx, q) },
	)
	if a.metrics != nil {
		metrics.ObserveSince(a.metrics.SearchDuration.WithLabelValues("total"), start)
	}
	return Outcome{Semantic: out[0], Keyword: out[1]}
}

func (a *Aggregator) semantic(ctx context.Context, q string) fn.Result[[]domain.CarSummary] {
	embedQuery := fn.Stage[string, []float32](func(ctx context.Context, q string) fn.Result[[]float32] {
		return fn.FromPair(a.embedder.Embed(ctx, q))
	})
	nearest := fn.Stage[[]float32, []domain.CarSummary](func(ctx context.Context, vec []float32) fn.Result[[]domain.CarSummary] {
		return fn.FromPair(a.vectors.VectorSearch(ctx, vec, a.limit))
	})
	return fn.Then(fn.Traced("search.embed", embedQuery), fn.Traced("search.vector", nearest))(ctx, q)
}

func (a *Aggregator) keyword(ctx context.Context, q string) fn.Result[[]domain.CarSummary] {
	return fn.FromPair(a.keywords.KeywordSearch(ctx, q))
}

func (a *Aggregator) observe(branch string, stage fn.Stage[string, []domain.CarSummary]) fn.Stage[string, []domain.CarSummary] {
	return func(ctx context.Context, q string) fn.Result[[]domain.CarSummary] {
		start := time.Now()
		r := stage(ctx, q)
		if m := a.metrics; m != nil {
			metrics.ObserveSince(m.SearchDuration.WithLabelValues(branch), start)
			if r.IsErr() {
				m.SearchErrors.WithLabelValues(branch).Inc()
			}
		}
		return r
	}
}
