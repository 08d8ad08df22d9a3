package ingest

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/WessleyAI/carsearch/engine/adview"
	"github.com/WessleyAI/carsearch/engine/domain"
	"github.com/WessleyAI/carsearch/engine/graph"
	"github.com/WessleyAI/carsearch/pkg/fn"
	"github.com/WessleyAI/carsearch/pkg/resilience"
	"github.com/WessleyAI/carsearch/pkg/vehiclenlp"
)

type fetched struct {
	id string
	ad *adview.Ad
}

// Logged wraps stage with debug stage.enter and stage.exit lines.
func Logged[In, Out any](name string, log *slog.Logger, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		log.Debug("stage.enter", "stage", name)
		start := time.Now()
		res := stage(ctx, in)
		log.Debug("stage.exit", "stage", name, "ok", res.IsOk(), "duration", time.Since(start))
		return res
	}
}

// pipeline composes fetch → normalize → embed → store → link.
func (r *Runner) pipeline() fn.Stage[string, domain.CarAd] {
	fetch := Logged("fetch", r.log, fn.Traced("ingest.fetch", r.fetchStage()))
	normalize := Logged("normalize", r.log, fn.Stage[fetched, Listing](func(_ context.Context, f fetched) fn.Result[Listing] {
		return fn.Ok(Normalize(f.id, f.ad))
	}))
	embedded := Logged("embed", r.log, fn.Traced("ingest.embed", r.embedStage()))
	stored := Logged("store", r.log, fn.Traced("ingest.store", r.storeStage()))
	linked := Logged("link", r.log, r.linkStage())

	return fn.Then(fetch, fn.Then(normalize, fn.Then(embedded, fn.Then(stored, linked))))
}

// enriched carries the listing next to the record built from it.
type enriched struct {
	listing Listing
	ad      domain.CarAd
}

func (r *Runner) retry(op string) fn.RetryOpts {
	opts := r.opts.Retry
	opts.OnRetry = func(attempt int, err error) {
		r.log.Warn("ingest: retrying", "op", op, "attempt", attempt, "error", err)
		if m := r.deps.Metrics; m != nil {
			m.IngestRetries.WithLabelValues(op).Inc()
		}
	}
	return opts
}

// fetchStage paces every attempt, retries included, through the limiter.
// Failures that did not come from the provider client are reported as fetch
// failures.
func (r *Runner) fetchStage() fn.Stage[string, fetched] {
	once := fn.Stage[string, fetched](func(ctx context.Context, id string) fn.Result[fetched] {
		ad, err := r.deps.Fetcher.Fetch(ctx, id)
		if err != nil {
			return fn.Err[fetched](err)
		}
		return fn.Ok(fetched{id: id, ad: ad})
	})
	if r.deps.Limiter != nil {
		once = resilience.LimiterStageWait(r.deps.Limiter, once)
	}
	retried := fn.RetryStage(r.retry("fetch"), once)

	return func(ctx context.Context, id string) fn.Result[fetched] {
		res := retried(ctx, id)
		if _, err := res.Unwrap(); err != nil && !errors.Is(err, domain.ErrFetch) && !errors.Is(err, domain.ErrMalformedPayload) {
			return fn.Err[fetched](domain.NewOpError(domain.ErrFetch, "ingest.fetch", err))
		}
		return res
	}
}

func (r *Runner) embedStage() fn.Stage[Listing, enriched] {
	return func(ctx context.Context, l Listing) fn.Result[enriched] {
		text := Compose(l, r.deps.Now())
		vec, err := fn.Retry(ctx, r.retry("embed"), func(ctx context.Context) fn.Result[[]float32] {
			return fn.FromPair(r.deps.Embedder.Embed(ctx, text))
		}).Unwrap()
		if err != nil {
			return fn.Err[enriched](err)
		}
		if len(vec) == 0 {
			return fn.Err[enriched](domain.NewOpError(domain.ErrEmbeddingService, "ingest.embed", domain.ErrEmptyEmbedding))
		}
		return fn.Ok(enriched{listing: l, ad: l.CarAd(vec)})
	}
}

// storeStage upserts the mirror before the insert so a re-run after a
// duplicate id still refreshes the mirror.
func (r *Runner) storeStage() fn.Stage[enriched, enriched] {
	return func(ctx context.Context, e enriched) fn.Result[enriched] {
		if r.deps.Mirror != nil {
			res := fn.Retry(ctx, r.retry("mirror"), func(ctx context.Context) fn.Result[struct{}] {
				return fn.FromPair(struct{}{}, r.deps.Mirror.Upsert(ctx, e.ad))
			})
			if _, err := res.Unwrap(); err != nil {
				return fn.Err[enriched](err)
			}
		}
		res := fn.Retry(ctx, r.retry("insert"), func(ctx context.Context) fn.Result[struct{}] {
			return fn.FromPair(struct{}{}, r.deps.Store.Insert(ctx, e.ad))
		})
		if _, err := res.Unwrap(); err != nil {
			return fn.Err[enriched](err)
		}
		return fn.Ok(e)
	}
}

// linkStage never fails the ad.
func (r *Runner) linkStage() fn.Stage[enriched, domain.CarAd] {
	return func(ctx context.Context, e enriched) fn.Result[domain.CarAd] {
		if r.deps.Graph == nil {
			return fn.Ok(e.ad)
		}
		l := e.listing
		year := 0
		if y := e.ad.Year; y != nil {
			year = *y
		}
		vi := graph.VehicleInfo{Make: l.Make, Model: l.Model, Variant: l.Variant, Year: year}
		if vi.Make == "" || vi.Model == "" {
			if m, ok := vehiclenlp.FromTitle(l.Title); ok {
				vi.Make, vi.Model = cmp.Or(vi.Make, m.Make), cmp.Or(vi.Model, m.Model)
				vi.Year = cmp.Or(vi.Year, m.Year)
			}
		}
		if err := r.deps.Graph.EnsureListing(ctx, vi, graph.Listing{ID: e.ad.ID, Title: e.ad.Title, Price: e.ad.Price}); err != nil {
			r.log.Warn("ingest: catalog link failed", "ad_id", e.ad.ID, "error", err)
		}
		return fn.Ok(e.ad)
	}
}
