package relay

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestPublishBeforeConnectIsLostNotFatal(t *testing.T) {
	p := NewProducer("audit-logs", "audit.log", slog.New(slog.DiscardHandler))
	assert.Equal(t, StateDisconnected, p.State())

	// Must not panic and must not block; the message is counted as lost.
	p.Publish(context.Background(), []byte(`{"event":"x"}`))
	assert.Equal(t, StateDisconnected, p.State())
}

func TestClosedProducerRefusesConnect(t *testing.T) {
	p := NewProducer("audit-logs", "audit.log", slog.New(slog.DiscardHandler))
	p.Close(context.Background())
	assert.Equal(t, StateClosed, p.State())

	err := p.Connect(context.Background(), []string{"localhost:9092"})
	assert.Error(t, err)
}
