// Package recorder implements the producer-side entry point of the audit
// pipeline. Record runs a fixed chain of steps over an event; every step is
// independent, failures are logged and swallowed, and the chain never rolls
// back. A partially distributed event (stored locally but lost on the relay,
// or relayed but never broadcast) is an accepted state.
package recorder

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"auditflow/internal/audit"
	"auditflow/internal/platform/metrics"
)

var tracer = otel.Tracer("auditflow/recorder")

// Store persists events in the producing service's local database.
type Store interface {
	Insert(ctx context.Context, event audit.Event) (*audit.Record, error)
}

// Publisher hands an encoded relay message to the broker without reporting
// delivery failures back.
type Publisher interface {
	Publish(ctx context.Context, value []byte)
}

// Gateway fans a stored record out to live observers. Implementations must
// not block; a slow session is the gateway's problem, not the recorder's.
type Gateway interface {
	EmitAuditEvent(rec *audit.Record)
	EmitToUser(userID uuid.UUID, rec *audit.Record)
	EmitAttendanceAction(rec *audit.Record)
	EmitToDepartment(department string, rec *audit.Record)
	EmitToEmployee(employeeID string, rec *audit.Record)
	EmitReportAccess(rec *audit.Record)
}

// Recorder records audit events for one producing service.
type Recorder struct {
	store     Store
	publisher Publisher
	gateway   Gateway
	logger    *slog.Logger
}

// New wires a recorder. Any of publisher and gateway may be nil for services
// that run without a relay or without live observers; the corresponding
// steps are skipped.
func New(store Store, publisher Publisher, gateway Gateway, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:     store,
		publisher: publisher,
		gateway:   gateway,
		logger:    logger,
	}
}

// Record persists, relays and fans out one event. It returns nothing: the
// caller's request must not fail because auditing did. Each step runs even
// when an earlier one failed, except that relay and fan-out need the stored
// record and are skipped when the insert fails.
func (r *Recorder) Record(ctx context.Context, event audit.Event) {
	ctx, span := tracer.Start(ctx, "recorder.Record",
		trace.WithAttributes(
			attribute.String("audit.service", event.Service),
			attribute.String("audit.kind", string(event.Kind)),
		))
	defer span.End()

	rec, err := r.store.Insert(ctx, event)
	if err != nil {
		r.logger.Error("audit local insert failed, event dropped",
			"service", event.Service, "kind", event.Kind, "error", err)
		span.RecordError(err)
		return
	}
	metrics.EventsRecorded.WithLabelValues(event.Service).Inc()

	r.relay(ctx, rec)
	r.fanout(rec)
}

func (r *Recorder) relay(ctx context.Context, rec *audit.Record) {
	if r.publisher == nil {
		return
	}
	msg := audit.NewRelayMessage(rec)
	value, err := msg.Encode()
	if err != nil {
		r.logger.Error("audit relay encode failed",
			"audit_log_id", rec.ID, "error", err)
		return
	}
	r.publisher.Publish(ctx, value)
}

func (r *Recorder) fanout(rec *audit.Record) {
	if r.gateway == nil {
		return
	}

	r.gateway.EmitAuditEvent(rec)

	if rec.TargetUserID != nil {
		r.gateway.EmitToUser(*rec.TargetUserID, rec)
	}

	event := rec.Event()
	if event.IsAttendanceAction() {
		r.gateway.EmitAttendanceAction(rec)
	}
	if dep := event.Department(); dep != "" {
		r.gateway.EmitToDepartment(dep, rec)
	}
	if emp := event.EmployeeID(); emp != "" {
		r.gateway.EmitToEmployee(emp, rec)
	}
	if event.ReportType() != "" {
		r.gateway.EmitReportAccess(rec)
	}
}
