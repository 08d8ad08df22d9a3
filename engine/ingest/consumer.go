package ingest

import (
	"context"
	"log/slog"

	"github.com/WessleyAI/carsearch/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

const (
	// Subject carries ingest requests.
	Subject = "carsearch.ingest"
	// DLQSubject receives a Failure for every ad that could not be stored.
	DLQSubject = "carsearch.ingest.dlq"
	// Queue is the queue group shared by ingest workers.
	Queue = "carsearch-ingest"
)

// Request asks for a batch of ads to be ingested.
type Request struct {
	AdIDs []string `json:"ad_ids"`
}

// Enqueue publishes a request for ids.
func Enqueue(ctx context.Context, nc *nats.Conn, ids []string) error {
	return natsutil.Publish(ctx, nc, Subject, Request{AdIDs: ids})
}

// DLQ returns an OnFailure hook that publishes failures to DLQSubject.
func DLQ(nc *nats.Conn, log *slog.Logger) func(Failure) {
	return func(f Failure) {
		if err := natsutil.Publish(context.Background(), nc, DLQSubject, f); err != nil {
			log.Error("ingest: dlq publish failed", "ad_id", f.AdID, "error", err)
		}
	}
}

// StartConsumer runs every request on Subject through r. Requests on one
// subscription are handled one at a time; cancelling ctx aborts the batch in
// progress.
func StartConsumer(ctx context.Context, nc *nats.Conn, r *Runner) (*nats.Subscription, error) {
	log := r.log
	handle := func(msgCtx context.Context, req Request) {
		msgCtx, cancel := context.WithCancel(msgCtx)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		log.Info("ingest: request received", "ads", len(req.AdIDs))
		r.Run(msgCtx, req.AdIDs)
	}
	onErr := func(msg *nats.Msg, err error) {
		log.Error("ingest: undecodable request", "subject", msg.Subject, "error", err)
	}
	return natsutil.QueueSubscribe[Request](nc, Subject, Queue, handle, onErr)
}
