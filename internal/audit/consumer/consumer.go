// Package consumer materializes relayed audit events into the canonical
// store and re-enters them into the aggregator's fan-out and notification
// paths. It is the terminal end of the at-most-once pipeline: whatever goes
// wrong here, the message is gone afterwards.
package consumer

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"auditflow/internal/audit"
	"auditflow/internal/audit/recorder"
	"auditflow/internal/platform/relay"
)

var tracer = otel.Tracer("auditflow/consumer")

// Store persists canonical records. The canonical insert mints a new id; the
// producer-local audit_log_id travels only inside the payload metadata.
type Store interface {
	Insert(ctx context.Context, event audit.Event) (*audit.Record, error)
}

// Projector derives notifications from canonical records. Failures are the
// projector's to log; the consumer treats projection as best effort.
type Projector interface {
	Project(ctx context.Context, rec *audit.Record)
}

// Central handles every relay delivery for the aggregation service.
type Central struct {
	store     Store
	gateway   recorder.Gateway
	projector Projector
	logger    *slog.Logger
}

// New wires the central consumer. gateway and projector may be nil.
func New(store Store, gateway recorder.Gateway, projector Projector, logger *slog.Logger) *Central {
	return &Central{
		store:     store,
		gateway:   gateway,
		projector: projector,
		logger:    logger,
	}
}

// Handle decodes one relay delivery, inserts the canonical copy and fans it
// out. A malformed message or failed insert is dropped; the returned outcome
// only tags the loss, it does not trigger redelivery.
func (c *Central) Handle(ctx context.Context, msg *relay.Message) relay.Outcome {
	ctx, span := tracer.Start(ctx, "consumer.Handle")
	defer span.End()

	decoded, err := audit.DecodeRelayMessage(msg.Value)
	if err != nil {
		c.logger.Error("relay message undecodable, dropped", "error", err)
		span.RecordError(err)
		return relay.OutcomeLostAtConsume
	}
	if err := decoded.Validate(); err != nil {
		c.logger.Error("relay message invalid, dropped",
			"message_id", decoded.MessageID, "error", err)
		span.RecordError(err)
		return relay.OutcomeLostAtConsume
	}
	span.SetAttributes(
		attribute.String("audit.service", decoded.Service),
		attribute.Int64("audit.origin_id", decoded.AuditLogID),
	)

	event := audit.Event{
		App:          decoded.App,
		Service:      decoded.Service,
		Kind:         decoded.Kind,
		Payload:      withOrigin(decoded),
		TargetUserID: decoded.TargetUserID,
	}

	rec, err := c.store.Insert(ctx, event)
	if err != nil {
		c.logger.Error("canonical insert failed, message dropped",
			"message_id", decoded.MessageID,
			"audit_log_id", decoded.AuditLogID,
			"error", err)
		span.RecordError(err)
		return relay.OutcomeLostAtConsume
	}

	c.fanout(ctx, rec)
	return relay.OutcomeDelivered
}

// withOrigin copies the payload and tucks the producer-local id and message
// id into it. Correlation between the two copies of an event happens by
// reading this metadata, never by key.
func withOrigin(msg *audit.RelayMessage) map[string]any {
	payload := make(map[string]any, len(msg.Payload)+2)
	for k, v := range msg.Payload {
		payload[k] = v
	}
	payload["audit_log_id"] = msg.AuditLogID
	payload["relay_message_id"] = msg.MessageID.String()
	return payload
}

func (c *Central) fanout(ctx context.Context, rec *audit.Record) {
	if c.gateway != nil {
		c.gateway.EmitAuditEvent(rec)
		if rec.TargetUserID != nil {
			c.gateway.EmitToUser(*rec.TargetUserID, rec)
		}
		event := rec.Event()
		if event.IsAttendanceAction() {
			c.gateway.EmitAttendanceAction(rec)
		}
		if dep := event.Department(); dep != "" {
			c.gateway.EmitToDepartment(dep, rec)
		}
	}
	if c.projector != nil {
		c.projector.Project(ctx, rec)
	}
}

var _ relay.Handler = (*Central)(nil)
