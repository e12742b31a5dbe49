package consumer

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditflow/internal/audit"
	"auditflow/internal/audit/store/memory"
	"auditflow/internal/platform/relay"
)

type fakeGateway struct {
	rooms []string
}

func (g *fakeGateway) EmitAuditEvent(*audit.Record) { g.rooms = append(g.rooms, "global") }
func (g *fakeGateway) EmitToUser(userID uuid.UUID, _ *audit.Record) {
	g.rooms = append(g.rooms, "user-"+userID.String())
}
func (g *fakeGateway) EmitAttendanceAction(*audit.Record) { g.rooms = append(g.rooms, "supervisors") }
func (g *fakeGateway) EmitToDepartment(dep string, _ *audit.Record) {
	g.rooms = append(g.rooms, "department-"+dep)
}
func (g *fakeGateway) EmitToEmployee(id string, _ *audit.Record) {
	g.rooms = append(g.rooms, "employee-"+id)
}
func (g *fakeGateway) EmitReportAccess(*audit.Record) { g.rooms = append(g.rooms, "report-access") }

type fakeProjector struct {
	records []*audit.Record
}

func (p *fakeProjector) Project(_ context.Context, rec *audit.Record) {
	p.records = append(p.records, rec)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func encodedMessage(t *testing.T, rec *audit.Record) []byte {
	t.Helper()
	value, err := audit.NewRelayMessage(rec).Encode()
	require.NoError(t, err)
	return value
}

func sampleRecord(payload map[string]any, target *uuid.UUID) *audit.Record {
	return &audit.Record{
		ID:           7,
		App:          "hrm",
		Service:      "attendance-service",
		Kind:         audit.KindCreate,
		Payload:      payload,
		TargetUserID: target,
	}
}

func TestHandleInsertsCanonicalCopyWithNewID(t *testing.T) {
	store := memory.New()
	central := New(store, nil, nil, discardLogger())

	value := encodedMessage(t, sampleRecord(map[string]any{"action": "login"}, nil))
	outcome := central.Handle(context.Background(), &relay.Message{Value: value})

	assert.Equal(t, relay.OutcomeDelivered, outcome)
	stored := store.All()
	require.Len(t, stored, 1)
	// The canonical store keys independently; the origin id lives in the
	// payload only.
	assert.NotEqual(t, int64(7), stored[0].ID)
	assert.EqualValues(t, 7, stored[0].Payload["audit_log_id"])
	assert.NotEmpty(t, stored[0].Payload["relay_message_id"])
}

func TestHandleFansOutAndProjects(t *testing.T) {
	store := memory.New()
	gw := &fakeGateway{}
	proj := &fakeProjector{}
	central := New(store, gw, proj, discardLogger())

	userID := uuid.New()
	value := encodedMessage(t, sampleRecord(map[string]any{
		"action":     "check-in",
		"department": "eng",
	}, &userID))
	outcome := central.Handle(context.Background(), &relay.Message{Value: value})

	assert.Equal(t, relay.OutcomeDelivered, outcome)
	assert.Equal(t, []string{
		"global",
		"user-" + userID.String(),
		"supervisors",
		"department-eng",
	}, gw.rooms)
	require.Len(t, proj.records, 1)
	assert.Equal(t, "check-in", proj.records[0].Payload["action"])
}

func TestHandleMalformedMessageIsLost(t *testing.T) {
	store := memory.New()
	central := New(store, nil, nil, discardLogger())

	outcome := central.Handle(context.Background(), &relay.Message{Value: []byte("{not json")})

	assert.Equal(t, relay.OutcomeLostAtConsume, outcome)
	assert.Empty(t, store.All())
}

func TestHandleInvalidMessageIsLost(t *testing.T) {
	store := memory.New()
	central := New(store, nil, nil, discardLogger())

	outcome := central.Handle(context.Background(), &relay.Message{Value: []byte(`{"service_name":""}`)})

	assert.Equal(t, relay.OutcomeLostAtConsume, outcome)
	assert.Empty(t, store.All())
}

func TestHandleInsertFailureIsLostNotRetried(t *testing.T) {
	store := memory.New()
	store.FailInserts = true
	gw := &fakeGateway{}
	proj := &fakeProjector{}
	central := New(store, gw, proj, discardLogger())

	value := encodedMessage(t, sampleRecord(map[string]any{"action": "login"}, nil))
	outcome := central.Handle(context.Background(), &relay.Message{Value: value})

	assert.Equal(t, relay.OutcomeLostAtConsume, outcome)
	assert.Empty(t, gw.rooms)
	assert.Empty(t, proj.records)
}
