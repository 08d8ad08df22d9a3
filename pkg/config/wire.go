package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/WessleyAI/carsearch/engine/embed"
	"github.com/WessleyAI/carsearch/engine/graph"
	"github.com/WessleyAI/carsearch/engine/semantic"
	"github.com/WessleyAI/carsearch/engine/store"
	"github.com/WessleyAI/carsearch/pkg/metrics"
	"github.com/WessleyAI/carsearch/pkg/ollama"
	"github.com/WessleyAI/carsearch/pkg/openai"
	"github.com/WessleyAI/carsearch/pkg/resilience"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
)

// Provider builds the raw embedding client.
func (c Config) Provider() (embed.Embedder, error) {
	switch c.EmbedProvider {
	case ProviderOpenAI:
		e, err := openai.New(openai.Config{BaseURL: c.EmbedURL, Token: c.OpenAIKey, Model: c.EmbedModel})
		if err != nil {
			return nil, fmt.Errorf("config: openai embedder: %w", err)
		}
		return e, nil
	case ProviderOllama:
		url, model := c.EmbedURL, c.EmbedModel
		if url == "" {
			url = defaultOllamaURL
		}
		if model == "" {
			model = defaultOllamaModel
		}
		return ollama.New(url, model), nil
	}
	return nil, fmt.Errorf("config: unknown embed-provider %q", c.EmbedProvider)
}

// Embedder wraps the provider in a dimension check and a circuit breaker
// whose state is exported as carsearch_breaker_open{name="embed"}.
func (c Config) Embedder(m *metrics.Metrics, log *slog.Logger) (*embed.Guard, error) {
	p, err := c.Provider()
	if err != nil {
		return nil, err
	}
	opts := resilience.DefaultBreakerOpts
	opts.OnStateChange = func(from, to resilience.State) {
		log.Warn("embedding breaker", "from", from.String(), "to", to.String())
		if m != nil {
			v := 0.0
			if to != resilience.StateClosed {
				v = 1
			}
			m.BreakerOpen.WithLabelValues("embed").Set(v)
		}
	}
	return embed.NewGuard(p, embed.Opts{
		Dims:    c.EmbedDims,
		Breaker: resilience.NewBreaker(opts),
		Metrics: m,
	}), nil
}

// OpenStore connects to Postgres and creates the schema.
func (c Config) OpenStore(ctx context.Context) (*pgxpool.Pool, *store.CarStore, error) {
	if err := store.Bootstrap(ctx, c.DatabaseURL); err != nil {
		return nil, nil, err
	}
	pool, err := store.Connect(ctx, c.DatabaseURL, store.PoolConfig{})
	if err != nil {
		return nil, nil, err
	}
	if err := store.EnsureSchema(ctx, pool, c.EmbedDims); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, store.New(pool, c.EmbedDims), nil
}

// OpenQdrant connects to Qdrant and creates the collection. It returns nil
// when the vector backend is Postgres.
func (c Config) OpenQdrant(ctx context.Context) (*semantic.VectorStore, error) {
	if c.VectorBackend != BackendQdrant {
		return nil, nil
	}
	vs, err := semantic.New(c.QdrantAddr, c.QdrantCollection)
	if err != nil {
		return nil, err
	}
	if err := vs.EnsureCollection(ctx, c.EmbedDims); err != nil {
		_ = vs.Close()
		return nil, err
	}
	return vs, nil
}

// OpenGraph connects to Neo4j. It returns nil when no URL is configured.
func (c Config) OpenGraph(ctx context.Context) (*graph.GraphStore, error) {
	if c.Neo4jURL == "" {
		return nil, nil
	}
	gs, err := graph.Connect(ctx, c.Neo4jURL, c.Neo4jUser, c.Neo4jPass)
	if err != nil {
		return nil, err
	}
	if err := gs.EnsureConstraints(ctx); err != nil {
		_ = gs.Close(ctx)
		return nil, err
	}
	return gs, nil
}
