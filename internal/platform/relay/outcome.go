package relay

// Outcome is the terminal delivery state of one relayed message. The
// pipeline is at-most-once: a message that is lost at publish or at consume
// is never retried, so every message ends in exactly one of these states.
type Outcome string

const (
	// OutcomeDelivered means the message reached the canonical store.
	OutcomeDelivered Outcome = "delivered"

	// OutcomeLostAtPublish means the broker never accepted the message.
	// The producer's local record still exists.
	OutcomeLostAtPublish Outcome = "lost_at_publish"

	// OutcomeLostAtConsume means the message was delivered but the
	// consumer dropped it (malformed payload or canonical insert failure).
	OutcomeLostAtConsume Outcome = "lost_at_consume"
)

// State tracks the lifecycle of a relay connection. It replaces the nullable
// channel handle the connection would otherwise hide behind: callers can ask
// where the connection is instead of probing for nil.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
