package recorder

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditflow/internal/audit"
	"auditflow/internal/audit/store/memory"
)

type capturedEmit struct {
	room   string
	record *audit.Record
}

type fakeGateway struct {
	emits []capturedEmit
}

func (g *fakeGateway) EmitAuditEvent(rec *audit.Record) {
	g.emits = append(g.emits, capturedEmit{"global", rec})
}

func (g *fakeGateway) EmitToUser(userID uuid.UUID, rec *audit.Record) {
	g.emits = append(g.emits, capturedEmit{"user-" + userID.String(), rec})
}

func (g *fakeGateway) EmitAttendanceAction(rec *audit.Record) {
	g.emits = append(g.emits, capturedEmit{"supervisors", rec})
}

func (g *fakeGateway) EmitToDepartment(department string, rec *audit.Record) {
	g.emits = append(g.emits, capturedEmit{"department-" + department, rec})
}

func (g *fakeGateway) EmitToEmployee(employeeID string, rec *audit.Record) {
	g.emits = append(g.emits, capturedEmit{"employee-" + employeeID, rec})
}

func (g *fakeGateway) EmitReportAccess(rec *audit.Record) {
	g.emits = append(g.emits, capturedEmit{"report-access", rec})
}

func (g *fakeGateway) rooms() []string {
	out := make([]string, 0, len(g.emits))
	for _, e := range g.emits {
		out = append(out, e.room)
	}
	return out
}

type fakePublisher struct {
	published [][]byte
}

func (p *fakePublisher) Publish(_ context.Context, value []byte) {
	p.published = append(p.published, value)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func baseEvent() audit.Event {
	return audit.Event{
		App:     "hrm",
		Service: "attendance-service",
		Kind:    audit.KindCreate,
		Payload: map[string]any{"action": "login"},
	}
}

func TestRecordPersistsPublishesAndBroadcasts(t *testing.T) {
	store := memory.New()
	pub := &fakePublisher{}
	gw := &fakeGateway{}
	rec := New(store, pub, gw, discardLogger())

	rec.Record(context.Background(), baseEvent())

	stored := store.All()
	require.Len(t, stored, 1)
	assert.Equal(t, "attendance-service", stored[0].Service)

	require.Len(t, pub.published, 1)
	msg, err := audit.DecodeRelayMessage(pub.published[0])
	require.NoError(t, err)
	assert.Equal(t, stored[0].ID, msg.AuditLogID)
	assert.NotEqual(t, uuid.Nil, msg.MessageID)

	assert.Equal(t, []string{"global"}, gw.rooms())
}

func TestRecordAttendanceActionFansOutToEveryMatchingRoom(t *testing.T) {
	store := memory.New()
	pub := &fakePublisher{}
	gw := &fakeGateway{}
	rec := New(store, pub, gw, discardLogger())

	userID := uuid.New()
	event := audit.Event{
		App:     "hrm",
		Service: "attendance-service",
		Kind:    audit.KindCreate,
		Payload: map[string]any{
			"action":     "check-in",
			"department": "eng",
		},
		TargetUserID: &userID,
	}
	rec.Record(context.Background(), event)

	require.Len(t, pub.published, 1)
	assert.Equal(t, []string{
		"global",
		"user-" + userID.String(),
		"supervisors",
		"department-eng",
	}, gw.rooms())
}

func TestRecordEmployeeAndReportBroadcasts(t *testing.T) {
	store := memory.New()
	gw := &fakeGateway{}
	rec := New(store, nil, gw, discardLogger())

	event := baseEvent()
	event.Payload = map[string]any{
		"employee_id": "E-42",
		"report_type": "attendance-summary",
	}
	rec.Record(context.Background(), event)

	assert.Equal(t, []string{"global", "employee-E-42", "report-access"}, gw.rooms())
}

func TestRecordInsertFailureSkipsRelayAndFanout(t *testing.T) {
	store := memory.New()
	store.FailInserts = true
	pub := &fakePublisher{}
	gw := &fakeGateway{}
	rec := New(store, pub, gw, discardLogger())

	rec.Record(context.Background(), baseEvent())

	assert.Empty(t, store.All())
	assert.Empty(t, pub.published)
	assert.Empty(t, gw.emits)
}

func TestRecordWithoutPublisherOrGateway(t *testing.T) {
	store := memory.New()
	rec := New(store, nil, nil, discardLogger())

	rec.Record(context.Background(), baseEvent())

	assert.Len(t, store.All(), 1)
}

func TestRecordEachMessageIDIsFresh(t *testing.T) {
	store := memory.New()
	pub := &fakePublisher{}
	rec := New(store, pub, nil, discardLogger())

	rec.Record(context.Background(), baseEvent())
	rec.Record(context.Background(), baseEvent())

	require.Len(t, pub.published, 2)
	first, err := audit.DecodeRelayMessage(pub.published[0])
	require.NoError(t, err)
	second, err := audit.DecodeRelayMessage(pub.published[1])
	require.NoError(t, err)
	assert.NotEqual(t, first.MessageID, second.MessageID)
	assert.NotEqual(t, first.AuditLogID, second.AuditLogID)
}
