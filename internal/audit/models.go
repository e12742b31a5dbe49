// Package audit defines the audit-event model shared by the producing
// services and the central aggregator. Every domain action that must be
// reviewable is captured as an Event, persisted as a Record in the
// originating service's store, relayed once to the canonical store, and
// fanned out to live observers.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an audit event by the mutation it records.
type Kind string

const (
	KindCreate Kind = "CREATE"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
)

// Valid reports whether the kind is one of the three known mutations.
func (k Kind) Valid() bool {
	switch k {
	case KindCreate, KindUpdate, KindDelete:
		return true
	}
	return false
}

// Payload actions that trigger escalation to the supervisors room.
const (
	ActionCheckIn  = "check-in"
	ActionCheckOut = "check-out"
)

// AlertTypeAttendance tags supervisor broadcasts for check-in/out actions.
const AlertTypeAttendance = "attendance-action"

// Event is what a recorder accepts from domain logic. Immutable once
// constructed; the recorder never mutates the payload.
type Event struct {
	App          string
	Service      string
	Kind         Kind
	Payload      map[string]any
	TargetUserID *uuid.UUID
}

// Action returns the payload "action" tag, if present.
func (e Event) Action() string {
	s, _ := e.Payload["action"].(string)
	return s
}

// Department returns the payload "department" tag, if present.
func (e Event) Department() string {
	s, _ := e.Payload["department"].(string)
	return s
}

// EmployeeID returns the payload "employee_id" tag, if present.
func (e Event) EmployeeID() string {
	s, _ := e.Payload["employee_id"].(string)
	return s
}

// ReportType returns the payload "report_type" tag, if present.
func (e Event) ReportType() string {
	s, _ := e.Payload["report_type"].(string)
	return s
}

// IsAttendanceAction reports whether the payload signals a check-in or
// check-out that supervisors must see.
func (e Event) IsAttendanceAction() bool {
	action := e.Action()
	return action == ActionCheckIn || action == ActionCheckOut
}

// Validate checks the fields a store insert requires.
func (e Event) Validate() error {
	if e.App == "" {
		return fmt.Errorf("audit event requires App")
	}
	if e.Service == "" {
		return fmt.Errorf("audit event requires Service")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if e.Payload == nil {
		return fmt.Errorf("audit event requires Payload")
	}
	return nil
}

// Record is the persisted form of an event. The producer's local store and
// the canonical store hold structurally identical but independently keyed
// records; the two copies are never reconciled by id.
type Record struct {
	ID           int64          `json:"id"`
	App          string         `json:"app"`
	Service      string         `json:"service_name"`
	Kind         Kind           `json:"event_kind"`
	Payload      map[string]any `json:"payload"`
	TargetUserID *uuid.UUID     `json:"target_user_id,omitempty"`
	IsRead       bool           `json:"is_read"`
	CreatedAt    time.Time      `json:"created_at"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
	ProcessedBy  string         `json:"processed_by,omitempty"`
}

// Event reconstructs the originating event from a record. Used by the
// aggregator to re-enter the fan-out and projection paths.
func (r Record) Event() Event {
	return Event{
		App:          r.App,
		Service:      r.Service,
		Kind:         r.Kind,
		Payload:      r.Payload,
		TargetUserID: r.TargetUserID,
	}
}

// RelayMessage is the wire form on the relay channel: the record fields plus
// the producer-local id (correlation only, never used to key the canonical
// copy) and a message id minted per publish attempt. A retried publish would
// carry a new message id, so duplicates are not detectable downstream.
type RelayMessage struct {
	App          string         `json:"app"`
	Service      string         `json:"service_name"`
	Kind         Kind           `json:"event_kind"`
	Payload      map[string]any `json:"payload"`
	TargetUserID *uuid.UUID     `json:"target_user_id,omitempty"`
	AuditLogID   int64          `json:"audit_log_id"`
	MessageID    uuid.UUID      `json:"message_id"`
	CreatedAt    time.Time      `json:"created_at"`
	RelayedAt    time.Time      `json:"relayed_at"`
}

// NewRelayMessage builds the wire message for a freshly inserted record.
func NewRelayMessage(rec *Record) RelayMessage {
	return RelayMessage{
		App:          rec.App,
		Service:      rec.Service,
		Kind:         rec.Kind,
		Payload:      rec.Payload,
		TargetUserID: rec.TargetUserID,
		AuditLogID:   rec.ID,
		MessageID:    uuid.New(),
		CreatedAt:    rec.CreatedAt,
		RelayedAt:    time.Now().UTC(),
	}
}

// Encode serializes the message for the relay channel.
func (m RelayMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeRelayMessage parses a relay delivery.
func DecodeRelayMessage(data []byte) (*RelayMessage, error) {
	var msg RelayMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode relay message: %w", err)
	}
	return &msg, nil
}

// Validate checks the fields the canonical insert requires.
func (m *RelayMessage) Validate() error {
	if m.Service == "" {
		return fmt.Errorf("relay message requires service_name")
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("relay message has unknown event kind %q", m.Kind)
	}
	if m.Payload == nil {
		return fmt.Errorf("relay message requires payload")
	}
	return nil
}

// Filter narrows canonical store queries on the aggregator's list endpoint.
type Filter struct {
	Service      string
	TargetUserID *uuid.UUID
	Kind         Kind
	Limit        int
}
