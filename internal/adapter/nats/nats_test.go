package nats

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/StratForge/internal/logger"
	"github.com/Strob0t/StratForge/internal/port/messagequeue"
)

// connectOrSkip needs a JetStream-enabled server at NATS_URL.
func connectOrSkip(t *testing.T) *Queue {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}
	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

// testSubject is captured by the strategy.> stream and has no payload schema.
func testSubject(t *testing.T) string {
	t.Helper()
	return "strategy.test." + strings.ReplaceAll(t.Name(), "/", "_")
}

type delivery struct {
	data      []byte
	requestID string
	runID     string
	headers   nats.Header
}

// watch consumes new messages on subject without going through Subscribe,
// so DLQ payloads are not validated or retried a second time.
func watch(t *testing.T, q *Queue, subject string) <-chan delivery {
	t.Helper()
	ctx := context.Background()
	c, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("watch consumer: %v", err)
	}
	out := make(chan delivery, 4)
	cc, err := c.Consume(func(m jetstream.Msg) {
		_ = m.Ack()
		select {
		case out <- delivery{data: m.Data(), headers: m.Headers()}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watch consume: %v", err)
	}
	t.Cleanup(cc.Stop)
	return out
}

func await(t *testing.T, ch <-chan delivery) delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for message")
		return delivery{}
	}
}

func TestQueuePropagatesRunContext(t *testing.T) {
	q := connectOrSkip(t)
	subject := testSubject(t)

	got := make(chan delivery, 1)
	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ string, data []byte) error {
		got <- delivery{data: data, requestID: logger.RequestID(ctx), runID: logger.RunID(ctx)}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRunID(logger.WithRequestID(context.Background(), "req-7"), "run-7")
	if err := q.Publish(ctx, subject, []byte(`{"strategy_id":"s1"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	d := await(t, got)
	if string(d.data) != `{"strategy_id":"s1"}` || d.requestID != "req-7" || d.runID != "run-7" {
		t.Errorf("delivery = %+v", d)
	}
}

func TestQueueInvalidPayloadToDLQ(t *testing.T) {
	q := connectOrSkip(t)
	subject := messagequeue.SubjectWidgetsRecompute
	dlq := watch(t, q, subject+dlqSuffix)

	stop, err := q.Subscribe(context.Background(), subject, func(context.Context, string, []byte) error { return nil })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	// strategy_id is required on recompute subjects.
	if err := q.Publish(context.Background(), subject, []byte(`{"trigger":"pipeline"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	d := await(t, dlq)
	if string(d.data) != `{"trigger":"pipeline"}` {
		t.Errorf("dlq data = %s", d.data)
	}
	if d.headers.Get(headerDLQReason) == "" {
		t.Error("dlq reason header missing")
	}
}

func TestQueueRetriesExhaustedToDLQ(t *testing.T) {
	q := connectOrSkip(t)
	subject := testSubject(t)
	dlq := watch(t, q, subject+dlqSuffix)

	stop, err := q.Subscribe(context.Background(), subject, func(context.Context, string, []byte) error {
		return errors.New("consumer down")
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	msg := &nats.Msg{Subject: subject, Data: []byte(`{"strategy_id":"s9"}`), Header: nats.Header{}}
	msg.Header.Set(headerRetryCount, "3")
	if _, err := q.js.PublishMsg(context.Background(), msg); err != nil {
		t.Fatalf("PublishMsg: %v", err)
	}

	d := await(t, dlq)
	if !strings.Contains(d.headers.Get(headerDLQReason), "consumer down") {
		t.Errorf("dlq reason = %q", d.headers.Get(headerDLQReason))
	}
}

func TestQueueKeyValueBucket(t *testing.T) {
	q := connectOrSkip(t)
	ctx := context.Background()

	kv, err := q.KeyValue(ctx, "STRATFORGE_KV_TEST", time.Minute)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}
	status, err := kv.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.TTL() != time.Minute {
		t.Errorf("bucket ttl = %v", status.TTL())
	}

	if _, err := kv.Put(ctx, "schema.current", []byte(`[]`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := kv.Get(ctx, "schema.current")
	if err != nil || string(entry.Value()) != `[]` {
		t.Fatalf("Get = %v, %v", entry, err)
	}
	if err := kv.Delete(ctx, "schema.current"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kv.Get(ctx, "schema.current"); !errors.Is(err, jetstream.ErrKeyNotFound) {
		t.Errorf("Get after delete = %v, want ErrKeyNotFound", err)
	}
}

func TestQueueDrain(t *testing.T) {
	q := connectOrSkip(t)
	if !q.IsConnected() {
		t.Fatal("not connected after Connect")
	}
	if err := q.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}
