package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/WessleyAI/carsearch/engine/adview"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	require.NoError(t, err)
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

func TestConsumerRunsRequests(t *testing.T) {
	nc := startTestNATS(t)
	store := newStore()

	dlq := make(chan *nats.Msg, 4)
	dsub, err := nc.ChanSubscribe(DLQSubject, dlq)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dsub.Unsubscribe() })

	opts := fastOpts()
	opts.OnFailure = DLQ(nc, quiet())
	r := newRunner(t, Deps{
		Fetcher: newFetcher(map[string]*adview.Ad{"1": sampleAd("A"), "3": sampleAd("C")}),
		Store:   store,
	}, opts)

	sub, err := StartConsumer(context.Background(), nc, r)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	require.NoError(t, Enqueue(context.Background(), nc, []string{"1", "2", "3"}))
	require.NoError(t, nc.Flush())

	select {
	case msg := <-dlq:
		var f Failure
		require.NoError(t, json.Unmarshal(msg.Data, &f))
		assert.Equal(t, "2", f.AdID)
		assert.Equal(t, "fetch_failed", f.Outcome)
	case <-time.After(3 * time.Second):
		t.Fatal("no dead letter for the missing ad")
	}

	require.Eventually(t, func() bool {
		ok1, _ := store.Exists(context.Background(), "1")
		ok3, _ := store.Exists(context.Background(), "3")
		return ok1 && ok3
	}, 3*time.Second, 10*time.Millisecond)
}

func TestConsumerDropsUndecodable(t *testing.T) {
	nc := startTestNATS(t)
	fetcher := newFetcher(nil)
	r := newRunner(t, Deps{Fetcher: fetcher, Store: newStore()}, fastOpts())

	sub, err := StartConsumer(context.Background(), nc, r)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	require.NoError(t, nc.Publish(Subject, []byte("not json")))
	require.NoError(t, Enqueue(context.Background(), nc, []string{"9"}))
	require.NoError(t, nc.Flush())

	require.Eventually(t, func() bool {
		fetcher.mu.Lock()
		defer fetcher.mu.Unlock()
		return fetcher.calls["9"] == 1
	}, 3*time.Second, 10*time.Millisecond)
}
