// Command ingest fetches car ads from the adview provider, embeds them and
// stores them in Postgres. With --nats-subscribe it runs as a long-lived
// consumer of ingest requests instead.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/WessleyAI/carsearch/engine/adview"
	"github.com/WessleyAI/carsearch/engine/ingest"
	"github.com/WessleyAI/carsearch/pkg/config"
	"github.com/WessleyAI/carsearch/pkg/fn"
	"github.com/WessleyAI/carsearch/pkg/metrics"
	"github.com/WessleyAI/carsearch/pkg/resilience"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "carsearch-ingest",
		Usage:     "Fetch, embed and store car ads",
		ArgsUsage: "[ad id...]",
		Flags: append(config.Flags(),
			&cli.StringFlag{
				Name:    "provider-url",
				Usage:   "adview provider base URL",
				EnvVars: []string{"ADVIEW_URL"},
				Value:   adview.DefaultBaseURL,
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Ads processed concurrently; 1 keeps input order",
				EnvVars: []string{"INGEST_WORKERS"},
				Value:   1,
			},
			&cli.Float64Flag{
				Name:    "rate",
				Usage:   "Provider requests per second; 0 is unlimited",
				EnvVars: []string{"INGEST_RATE"},
			},
			&cli.IntFlag{
				Name:  "retries",
				Usage: "Attempts per external call; 1 disables retrying",
				Value: fn.DefaultRetry.MaxAttempts,
			},
			&cli.DurationFlag{
				Name:  "retry-wait",
				Usage: "Delay before the first retry, doubled after each attempt",
				Value: fn.DefaultRetry.InitialWait,
			},
			&cli.StringFlag{
				Name:  "ids-file",
				Usage: "File with one ad id per line",
			},
			&cli.BoolFlag{
				Name:  "seed",
				Usage: "Ingest the built-in sample of ad ids",
			},
			&cli.BoolFlag{
				Name:  "skip-existing",
				Usage: "Skip ads that are already stored",
			},
			&cli.BoolFlag{
				Name:  "nats-subscribe",
				Usage: "Consume ingest requests from NATS until interrupted",
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Serve /metrics on this address",
				EnvVars: []string{"METRICS_ADDR"},
			},
		),
		Commands: []*cli.Command{
			{
				Name:      "enqueue",
				Usage:     "Publish an ingest request to NATS",
				ArgsUsage: "[ad id...]",
				Action:    enqueue,
			},
		},
		Before: config.SetupLogger,
		Action: run,
	}
}

func run(c *cli.Context) error {
	cfg := config.FromContext(c)
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := slog.Default()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ids []string
	if !c.Bool("nats-subscribe") {
		var err error
		if ids, err = collectIDs(c.Args().Slice(), c.String("ids-file"), c.Bool("seed")); err != nil {
			return err
		}
		if len(ids) == 0 {
			return errors.New("no ad ids given; pass ids, --ids-file or --seed")
		}
	}

	m := metrics.New()
	if addr := c.String("metrics-addr"); addr != "" {
		go m.Serve(ctx, addr, log)
	}

	// Postgres
	pool, cars, err := cfg.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Embeddings
	embedder, err := cfg.Embedder(m, log)
	if err != nil {
		return err
	}

	deps := ingest.Deps{
		Fetcher:  adview.New(c.String("provider-url")),
		Embedder: embedder,
		Store:    cars,
		Checker:  cars,
		Metrics:  m,
		Logger:   log,
	}
	if rate := c.Float64("rate"); rate > 0 {
		deps.Limiter = resilience.NewLimiter(resilience.LimiterOpts{Rate: rate, Burst: 1})
	}

	// Qdrant mirror
	vs, err := cfg.OpenQdrant(ctx)
	if err != nil {
		return err
	}
	if vs != nil {
		defer vs.Close()
		deps.Mirror = vs
		log.Info("mirroring embeddings to qdrant", "collection", cfg.QdrantCollection)
	}

	// Vehicle catalog
	gs, err := cfg.OpenGraph(ctx)
	if err != nil {
		return err
	}
	if gs != nil {
		defer gs.Close(context.Background())
		deps.Graph = gs
		log.Info("linking listings in neo4j")
	}

	opts := ingest.Options{
		Workers:      c.Int("workers"),
		Retry:        retryOpts(c.Int("retries"), c.Duration("retry-wait")),
		SkipExisting: c.Bool("skip-existing"),
	}

	if !c.Bool("nats-subscribe") {
		r, err := ingest.NewRunner(deps, opts)
		if err != nil {
			return err
		}
		defer r.Release()

		start := time.Now()
		log.Info("ingest starting", "ads", len(ids), "workers", opts.Workers, "provider", c.String("provider-url"))
		r.Run(ctx, ids)
		log.Info("ingest finished", "ads", len(ids), "duration", time.Since(start))
		return nil
	}

	// NATS consumer
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("carsearch-ingest"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()
	opts.OnFailure = ingest.DLQ(nc, log)

	r, err := ingest.NewRunner(deps, opts)
	if err != nil {
		return err
	}
	defer r.Release()

	sub, err := ingest.StartConsumer(ctx, nc, r)
	if err != nil {
		return err
	}
	log.Info("consuming ingest requests", "subject", ingest.Subject, "queue", ingest.Queue)

	<-ctx.Done()
	log.Info("shutting down")
	_ = sub.Unsubscribe()
	return nc.Drain()
}

func enqueue(c *cli.Context) error {
	cfg := config.FromContext(c)
	ids, err := collectIDs(c.Args().Slice(), c.String("ids-file"), c.Bool("seed"))
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return errors.New("no ad ids given")
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("carsearch-enqueue"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	if err := ingest.Enqueue(c.Context, nc, ids); err != nil {
		return err
	}
	if err := nc.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	slog.Info("ingest request published", "subject", ingest.Subject, "ads", len(ids))
	return nil
}

func retryOpts(attempts int, wait time.Duration) fn.RetryOpts {
	opts := fn.DefaultRetry
	if attempts > 0 {
		opts.MaxAttempts = attempts
	}
	if wait > 0 {
		opts.InitialWait = wait
	}
	return opts
}

// collectIDs merges positional ids, the ids file and the seed sample,
// dropping blanks, # comments and duplicates. Order is preserved.
func collectIDs(args []string, file string, seed bool) ([]string, error) {
	var ids []string
	for _, a := range args {
		ids = append(ids, strings.Split(a, ",")...)
	}
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("ids file: %w", err)
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			ids = append(ids, sc.Text())
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("ids file: %w", err)
		}
	}
	if seed {
		ids = append(ids, seedIDs...)
	}

	out := ids[:0]
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || strings.HasPrefix(id, "#") {
			continue
		}
		out = append(out, id)
	}
	return fn.Unique(out), nil
}
