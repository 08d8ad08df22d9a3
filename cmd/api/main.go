// Package main implements the carsearch API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WessleyAI/carsearch/engine/domain"
	"github.com/WessleyAI/carsearch/engine/search"
	"github.com/WessleyAI/carsearch/engine/store"
	"github.com/WessleyAI/carsearch/pkg/config"
	"github.com/WessleyAI/carsearch/pkg/metrics"
	"github.com/WessleyAI/carsearch/pkg/mid"
	"github.com/WessleyAI/carsearch/pkg/resilience"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "carsearch-api",
		Usage: "Semantic and keyword search over car ads",
		Flags: append(config.Flags(),
			&cli.StringFlag{
				Name:    "port",
				EnvVars: []string{"PORT"},
				Value:   "8080",
			},
			&cli.StringFlag{
				Name:    "cors-origin",
				EnvVars: []string{"CORS_ORIGIN"},
				Value:   "*",
			},
			&cli.IntFlag{
				Name:  "semantic-limit",
				Usage: "Size of the semantic result list",
				Value: domain.DefaultSemanticLimit,
			},
			&cli.IntFlag{
				Name:  "random-limit",
				Usage: "Size of the random sample",
				Value: store.DefaultRandomLimit,
			},
			&cli.BoolFlag{
				Name:    "partial-results",
				Usage:   "Answer searches with whichever branch succeeded",
				EnvVars: []string{"PARTIAL_RESULTS"},
			},
			&cli.Float64Flag{
				Name:  "search-rps",
				Usage: "Searches accepted per second; 0 disables the limit",
			},
		),
		Before: config.SetupLogger,
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	cfg := config.FromContext(c)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// --- Postgres ---
	pool, cars, err := cfg.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	// --- Vector backend ---
	var vectors search.VectorSearcher = cars
	qdrant, err := cfg.OpenQdrant(ctx)
	if err != nil {
		return err
	}
	if qdrant != nil {
		defer qdrant.Close()
		vectors = qdrant
	}

	// --- Embeddings ---
	embedder, err := cfg.Embedder(m, logger)
	if err != nil {
		return err
	}

	agg := search.New(embedder, vectors, cars,
		search.WithSemanticLimit(c.Int("semantic-limit")),
		search.WithMetrics(m),
	)
	s := &server{
		search:      agg,
		cars:        cars,
		randomLimit: c.Int("random-limit"),
		partial:     c.Bool("partial-results"),
		log:         logger,
	}

	var limiter *resilience.Limiter
	if rps := c.Float64("search-rps"); rps > 0 {
		limiter = resilience.NewLimiter(resilience.LimiterOpts{Rate: rps, Burst: max(1, int(rps))})
	}

	srv := &http.Server{
		Addr:         ":" + c.String("port"),
		Handler:      s.routes(m, limiter, c.String("cors-origin")),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", c.String("port"), "vector_backend", cfg.VectorBackend, "partial_results", s.partial)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// routes mounts the API behind the middleware chain. /metrics sits outside
// it so scrapes are neither logged nor rate limited.
func (s *server) routes(m *metrics.Metrics, limiter *resilience.Limiter, corsOrigin string) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/health", handleHealth)
	api.HandleFunc("GET /api/random-cars", s.handleRandom)
	api.HandleFunc("GET /api/cars/{id}", s.handleGet)
	api.Handle("POST /api/search", mid.RateLimit(limiter)(http.HandlerFunc(s.handleSearch)))

	root := http.NewServeMux()
	root.Handle("GET /metrics", m.Handler())
	root.Handle("/", mid.Chain(api,
		mid.Recover(s.log),
		mid.Logger(s.log),
		mid.CORS(corsOrigin),
		mid.Metrics(m),
		mid.OTel("carsearch-api"),
	))
	return root
}
