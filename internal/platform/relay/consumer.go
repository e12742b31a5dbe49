package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"auditflow/internal/platform/metrics"
)

// Message is one delivery from the relay channel.
type Message struct {
	Key   []byte
	Value []byte
}

// Handler processes one delivered message and reports its terminal outcome.
// The outcome is observational: the consumer commits the offset either way,
// so a message whose handler fails is permanently dropped.
type Handler interface {
	Handle(ctx context.Context, msg *Message) Outcome
}

// Consumer is the single group consumer draining the relay topic.
type Consumer struct {
	topic  string
	group  string
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	client *kgo.Client
}

// NewConsumer creates a disconnected consumer.
func NewConsumer(topic, group string, logger *slog.Logger) *Consumer {
	return &Consumer{
		topic:  topic,
		group:  group,
		logger: logger,
		state:  StateDisconnected,
	}
}

// Connect joins the consumer group and declares the topic.
func (c *Consumer) Connect(ctx context.Context, brokers []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return fmt.Errorf("relay consumer is closed")
	}
	c.state = StateConnecting

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(c.group),
		kgo.ConsumeTopics(c.topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		c.state = StateDisconnected
		return fmt.Errorf("connect relay consumer: %w", err)
	}

	if err := EnsureTopic(ctx, client, c.topic); err != nil {
		client.Close()
		c.state = StateDisconnected
		return err
	}

	c.client = client
	c.state = StateReady
	c.logger.Info("relay consumer ready", "topic", c.topic, "group", c.group)
	return nil
}

// State returns the current connection state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run polls the topic and dispatches every delivery to the handler until the
// context is cancelled. Offsets are committed after handling regardless of
// the handler's outcome: a failed message is dropped, never redelivered,
// even across consumer restarts.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	c.mu.Lock()
	client, state := c.client, c.state
	c.mu.Unlock()

	if state != StateReady {
		return fmt.Errorf("relay consumer not ready: %s", state)
	}

	for {
		fetches := client.PollFetches(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("relay fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var processed []*kgo.Record
		fetches.EachRecord(func(record *kgo.Record) {
			outcome := handler.Handle(ctx, &Message{Key: record.Key, Value: record.Value})
			metrics.RelayOutcomes.WithLabelValues(string(outcome)).Inc()
			if outcome != OutcomeDelivered {
				c.logger.Warn("relay message dropped",
					"outcome", string(outcome),
					"offset", record.Offset,
				)
			}
			processed = append(processed, record)
		})

		if len(processed) > 0 {
			if err := client.CommitRecords(ctx, processed...); err != nil {
				c.logger.Error("relay commit failed", "error", err)
			}
		}
	}
}

// Close leaves the group and releases the client.
func (c *Consumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	c.state = StateClosed
}
