// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/StratForge/internal/logger"
	"github.com/Strob0t/StratForge/internal/port/messagequeue"
)

const (
	streamName = "STRATFORGE"

	headerRequestID  = "X-Request-ID"
	headerRunID      = "X-Run-ID"
	headerRetryCount = "Retry-Count"
	headerDLQReason  = "DLQ-Reason"

	maxRetries = 3
	retryDelay = 2 * time.Second
	dlqSuffix  = ".dlq"
)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url,
		nats.Name("stratforge-core"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	// Ensure the stream exists with subjects matching our topic patterns.
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"strategy.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{nc: nc, js: js}, nil
}

// Publish sends a message to the given subject. Request and run IDs in ctx
// travel as message headers.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: traceHeaders(ctx)}
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject. Instances
// share one durable consumer per subject, so each message is handled once.
// Invalid payloads and messages that failed maxRetries times go to <subject>.dlq.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       durableName(subject),
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		q.handle(msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

func (q *Queue) handle(msg jetstream.Msg, handler messagequeue.Handler) {
	ctx := traceContext(msg.Headers())

	if err := messagequeue.Validate(msg.Subject(), msg.Data()); err != nil {
		slog.ErrorContext(ctx, "invalid message", "subject", msg.Subject(), "error", err)
		q.moveToDLQ(ctx, msg, err)
		return
	}

	if err := handler(ctx, msg.Subject(), msg.Data()); err != nil {
		attempts := retryCount(msg.Headers())
		if meta, metaErr := msg.Metadata(); metaErr == nil {
			attempts = max(attempts, int(meta.NumDelivered))
		}
		if attempts >= maxRetries {
			slog.ErrorContext(ctx, "message handler failed, retries exhausted", "subject", msg.Subject(), "attempts", attempts, "error", err)
			q.moveToDLQ(ctx, msg, err)
			return
		}
		slog.WarnContext(ctx, "message handler failed, retrying", "subject", msg.Subject(), "attempts", attempts, "error", err)
		if nakErr := msg.NakWithDelay(retryDelay); nakErr != nil {
			slog.Error("nats nak failed", "error", nakErr)
		}
		return
	}

	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("nats ack failed", "error", ackErr)
	}
}

// moveToDLQ republishes msg on <subject>.dlq and terminates the original.
func (q *Queue) moveToDLQ(ctx context.Context, msg jetstream.Msg, reason error) {
	dlq := &nats.Msg{Subject: msg.Subject() + dlqSuffix, Data: msg.Data(), Header: nats.Header{}}
	for k, v := range msg.Headers() {
		dlq.Header[k] = v
	}
	dlq.Header.Set(headerDLQReason, reason.Error())

	if _, err := q.js.PublishMsg(ctx, dlq); err != nil {
		slog.Error("dlq publish failed", "subject", dlq.Subject, "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			slog.Error("nats nak failed", "error", nakErr)
		}
		return
	}
	if err := msg.Term(); err != nil {
		slog.Error("nats term failed", "error", err)
	}
}

// KeyValue returns (creating if needed) a JetStream KV bucket with the given TTL.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("nats kv %s: %w", bucket, err)
	}
	return kv, nil
}

// Drain gracefully drains all subscriptions before closing.
func (q *Queue) Drain() error {
	if err := q.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the NATS connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}

func traceHeaders(ctx context.Context) nats.Header {
	h := nats.Header{}
	if id := logger.RequestID(ctx); id != "" {
		h.Set(headerRequestID, id)
	}
	if id := logger.RunID(ctx); id != "" {
		h.Set(headerRunID, id)
	}
	return h
}

func traceContext(h nats.Header) context.Context {
	ctx := context.Background()
	if id := h.Get(headerRequestID); id != "" {
		ctx = logger.WithRequestID(ctx, id)
	}
	if id := h.Get(headerRunID); id != "" {
		ctx = logger.WithRunID(ctx, id)
	}
	return ctx
}

func retryCount(h nats.Header) int {
	n, err := strconv.Atoi(h.Get(headerRetryCount))
	if err != nil {
		return 0
	}
	return n
}

// durableName turns a subject into a valid consumer name.
func durableName(subject string) string {
	r := strings.NewReplacer(".", "-", "*", "any", ">", "all")
	return "stratforge-" + r.Replace(subject)
}
