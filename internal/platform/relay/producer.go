// Package relay is the durable message channel between the producing
// services and the central consumer. One topic, one fixed routing key,
// fire-and-forget publishes and drop-on-failure consumes: the channel is
// durable but the pipeline built on it is at-most-once by construction.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"auditflow/internal/platform/metrics"
)

// Producer publishes relay messages. Publish never returns an error to the
// caller: a broker outage after the local commit is invisible to the
// producing service, which only logs the loss.
type Producer struct {
	topic      string
	routingKey string
	logger     *slog.Logger

	mu     sync.Mutex
	state  State
	client *kgo.Client
}

// NewProducer creates a disconnected producer. Call Connect before Publish;
// a Publish against a non-ready producer is counted as lost.
func NewProducer(topic, routingKey string, logger *slog.Logger) *Producer {
	return &Producer{
		topic:      topic,
		routingKey: routingKey,
		logger:     logger,
		state:      StateDisconnected,
	}
}

// Connect dials the brokers and declares the topic.
func (p *Producer) Connect(ctx context.Context, brokers []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateClosed {
		return fmt.Errorf("relay producer is closed")
	}
	p.state = StateConnecting

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		p.state = StateDisconnected
		return fmt.Errorf("connect relay producer: %w", err)
	}

	if err := EnsureTopic(ctx, client, p.topic); err != nil {
		client.Close()
		p.state = StateDisconnected
		return err
	}

	p.client = client
	p.state = StateReady
	p.logger.Info("relay producer ready", "topic", p.topic, "routing_key", p.routingKey)
	return nil
}

// State returns the current connection state.
func (p *Producer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Publish hands a message to the broker and returns immediately. Delivery
// errors surface only in the async callback, where they are logged and
// counted as lost; the caller never observes them.
func (p *Producer) Publish(ctx context.Context, value []byte) {
	p.mu.Lock()
	client, state := p.client, p.state
	p.mu.Unlock()

	if state != StateReady {
		p.logger.Error("relay publish skipped, producer not ready", "state", state.String())
		metrics.RelayOutcomes.WithLabelValues(string(OutcomeLostAtPublish)).Inc()
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(p.routingKey),
		Value: value,
	}
	client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("relay publish failed", "topic", p.topic, "error", err)
			metrics.RelayOutcomes.WithLabelValues(string(OutcomeLostAtPublish)).Inc()
		}
	})
}

// Close flushes pending messages and releases the client.
func (p *Producer) Close(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		if err := p.client.Flush(ctx); err != nil {
			p.logger.Warn("relay flush on close", "error", err)
		}
		p.client.Close()
		p.client = nil
	}
	p.state = StateClosed
}
