// Package ingest fetches car ads from the adview provider, embeds a text
// rendering of each one and stores the result. Every ad is processed on its
// own: a failure is logged and counted, and the batch carries on.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/WessleyAI/carsearch/engine/adview"
	"github.com/WessleyAI/carsearch/engine/domain"
	"github.com/WessleyAI/carsearch/engine/embed"
	"github.com/WessleyAI/carsearch/engine/graph"
	"github.com/WessleyAI/carsearch/pkg/fn"
	"github.com/WessleyAI/carsearch/pkg/metrics"
	"github.com/WessleyAI/carsearch/pkg/resilience"
	"github.com/panjf2000/ants/v2"
)

// Fetcher loads one ad from the provider.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (*adview.Ad, error)
}

// Writer persists a new ad.
type Writer interface {
	Insert(ctx context.Context, ad domain.CarAd) error
}

// Checker reports whether an ad is already stored.
type Checker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Mirror receives a copy of every embedded ad, e.g. a Qdrant collection.
type Mirror interface {
	Upsert(ctx context.Context, ad domain.CarAd) error
}

// Linker files the ad in the vehicle catalog.
type Linker interface {
	EnsureListing(ctx context.Context, vi graph.VehicleInfo, l graph.Listing) error
}

// Deps holds the external dependencies of the pipeline. Fetcher, Embedder and
// Store are required.
type Deps struct {
	Fetcher  Fetcher
	Embedder embed.Embedder
	Store    Writer
	Checker  Checker
	Mirror   Mirror
	Graph    Linker
	// Limiter paces provider requests, retries included.
	Limiter *resilience.Limiter
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Options tunes a Runner.
type Options struct {
	// Workers bounds the ads in flight. 1 processes ids strictly in order.
	Workers int
	// Retry wraps each fetch, embed and write. Retryable is always domain.IsRetryable.
	Retry fn.RetryOpts
	// SkipExisting checks the store before fetching.
	SkipExisting bool
	// OnFailure is told about every ad that could not be stored.
	OnFailure func(Failure)
}

// Failure describes one ad the pipeline gave up on.
type Failure struct {
	AdID    string `json:"ad_id"`
	Outcome string `json:"outcome"`
	Error   string `json:"error"`
}

// Runner processes batches of ad ids.
type Runner struct {
	deps Deps
	opts Options
	log  *slog.Logger
	pool *ants.Pool
	item fn.Stage[string, domain.CarAd]
}

// NewRunner validates deps and starts the worker pool. Call Release when done.
func NewRunner(deps Deps, opts Options) (*Runner, error) {
	if deps.Fetcher == nil || deps.Embedder == nil || deps.Store == nil {
		return nil, errors.New("ingest: fetcher, embedder and store are required")
	}
	if opts.SkipExisting && deps.Checker == nil {
		return nil, errors.New("ingest: skip existing needs a checker")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = fn.DefaultRetry
	}
	opts.Retry.Retryable = domain.IsRetryable

	pool, err := ants.NewPool(opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("ingest: pool: %w", err)
	}

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	r := &Runner{deps: deps, opts: opts, log: log, pool: pool}
	r.item = r.pipeline()
	return r, nil
}

// Release stops the worker pool.
func (r *Runner) Release() { r.pool.Release() }

// Run processes ids and returns once every submitted id is done. A cancelled
// ctx stops new ids from starting.
func (r *Runner) Run(ctx context.Context, ids []string) {
	var wg sync.WaitGroup
	for i, id := range ids {
		if ctx.Err() != nil {
			r.log.Warn("ingest: stopping early", "remaining", len(ids)-i, "error", ctx.Err())
			break
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			r.process(ctx, id)
		}
		if err := r.pool.Submit(task); err != nil {
			r.log.Error("ingest: submit", "ad_id", id, "error", err)
			task()
		}
	}
	wg.Wait()
}

func (r *Runner) process(ctx context.Context, id string) {
	start := time.Now()
	log := r.log.With("ad_id", id)

	if err := domain.ValidateAdID(id); err != nil {
		r.fail(log, id, metrics.OutcomeMalformed, err)
		return
	}
	if r.opts.SkipExisting {
		ok, err := r.deps.Checker.Exists(ctx, id)
		if err != nil {
			log.Warn("ingest: exists check failed", "error", err)
		} else if ok {
			log.Info("ingest: already stored, skipping")
			r.count(metrics.OutcomeSkipped)
			return
		}
	}

	ad, err := r.item(ctx, id).Unwrap()
	if m := r.deps.Metrics; m != nil {
		metrics.ObserveSince(m.IngestDuration, start)
	}
	if err != nil {
		r.fail(log, id, outcome(err), err)
		return
	}
	r.count(metrics.OutcomeStored)
	log.Info("ingest: stored", "title", ad.Title, "duration", time.Since(start))
}

func (r *Runner) fail(log *slog.Logger, id, outcome string, err error) {
	r.count(outcome)
	log.Error("ingest: ad failed", "outcome", outcome, "error", err)
	if r.opts.OnFailure != nil {
		r.opts.OnFailure(Failure{AdID: id, Outcome: outcome, Error: err.Error()})
	}
}

func (r *Runner) count(outcome string) {
	if m := r.deps.Metrics; m != nil {
		m.IngestAds.WithLabelValues(outcome).Inc()
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrMalformedPayload):
		return metrics.OutcomeMalformed
	case errors.Is(err, domain.ErrFetch):
		return metrics.OutcomeFetchFailed
	case errors.Is(err, domain.ErrEmbeddingService):
		return metrics.OutcomeEmbedFailed
	default:
		return metrics.OutcomeStoreFailed
	}
}
