package natsutil

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
)

type testMsg struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	c := (*headerCarrier)(msg)

	if got := c.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if keys := c.Keys(); keys != nil {
		t.Fatalf("expected nil keys, got %v", keys)
	}

	c.Set("traceparent", "00-abc-def-01")
	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("expected traceparent, got %q", got)
	}
	if keys := c.Keys(); len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestPublishSubscribe(t *testing.T) {
	nc := startTestNATS(t)

	got := make(chan testMsg, 1)
	sub, err := QueueSubscribe(nc, "test.pubsub", "", func(_ context.Context, m testMsg) {
		got <- m
	}, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := Publish(context.Background(), nc, "test.pubsub", testMsg{Name: "a", Value: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case m := <-got:
		if m.Name != "a" || m.Value != 1 {
			t.Fatalf("unexpected message: %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestQueueSubscribeDecodeError(t *testing.T) {
	nc := startTestNATS(t)

	errs := make(chan error, 1)
	sub, err := QueueSubscribe(nc, "test.bad", "workers", func(_ context.Context, _ testMsg) {
		t.Error("handler should not be called for malformed data")
	}, func(_ *nats.Msg, err error) { errs <- err })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := nc.Publish("test.bad", []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected decode error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for decode error")
	}
}

func TestPublishPropagatesTraceHeaders(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.Baggage{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	nc := startTestNATS(t)
	raw, err := nc.SubscribeSync("test.trace")
	if err != nil {
		t.Fatal(err)
	}

	member, err := baggage.NewMember("tenant", "cars")
	if err != nil {
		t.Fatal(err)
	}
	bag, err := baggage.New(member)
	if err != nil {
		t.Fatal(err)
	}
	ctx := baggage.ContextWithBaggage(context.Background(), bag)
	if err := Publish(ctx, nc, "test.trace", testMsg{Name: "x"}); err != nil {
		t.Fatal(err)
	}
	msg, err := raw.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Header.Get("baggage") == "" {
		t.Fatalf("expected baggage header, got %v", msg.Header)
	}
}
