package fanout

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditflow/internal/audit"
)

func startGateway(t *testing.T) *Gateway {
	t.Helper()
	gw := NewGateway("attendance-service", discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go gw.hub.Run(ctx)
	t.Cleanup(cancel)
	return gw
}

func decodeEnvelope(t *testing.T, raw []byte) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func TestEmitAuditEventStampsEnvelope(t *testing.T) {
	gw := startGateway(t)
	session := newTestSession()
	gw.hub.Register(session)
	waitForCount(t, gw.hub, 1)

	before := time.Now().UnixMilli()
	gw.EmitAuditEvent(&audit.Record{ID: 1, Service: "attendance-service", Kind: audit.KindCreate})

	env := decodeEnvelope(t, receive(t, session))
	assert.Equal(t, EventAudit, env.Event)
	assert.Equal(t, "attendance-service", env.Service)
	assert.Empty(t, env.AlertType)
	assert.GreaterOrEqual(t, env.ServerTimestamp, before)

	parsed, err := time.Parse(time.RFC3339, env.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), parsed, 5*time.Second)
}

func TestEmitAttendanceActionTargetsSupervisors(t *testing.T) {
	gw := startGateway(t)
	supervisor := newTestSession()
	bystander := newTestSession()
	gw.hub.Register(supervisor)
	gw.hub.Register(bystander)
	waitForCount(t, gw.hub, 2)
	gw.hub.Join(supervisor, RoomSupervisors)
	settle()

	gw.EmitAttendanceAction(&audit.Record{
		ID:      2,
		Service: "attendance-service",
		Kind:    audit.KindCreate,
		Payload: map[string]any{"action": audit.ActionCheckIn},
	})

	env := decodeEnvelope(t, receive(t, supervisor))
	assert.Equal(t, EventSupervisorAlert, env.Event)
	assert.Equal(t, audit.AlertTypeAttendance, env.AlertType)

	select {
	case msg := <-bystander.send:
		t.Fatalf("non-supervisor received %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitToUserTargetsUserRoom(t *testing.T) {
	gw := startGateway(t)
	userID := uuid.New()
	watcher := newTestSession()
	gw.hub.Register(watcher)
	waitForCount(t, gw.hub, 1)
	gw.hub.Join(watcher, roomUser(userID.String()))
	settle()

	gw.EmitToUser(userID, &audit.Record{ID: 3, Service: "attendance-service", Kind: audit.KindUpdate})

	env := decodeEnvelope(t, receive(t, watcher))
	assert.Equal(t, EventUserAudit, env.Event)
}

func TestEmitNewNotificationReachesGlobalAndUserRoom(t *testing.T) {
	gw := startGateway(t)
	userID := uuid.New()
	global := newTestSession()
	gw.hub.Register(global)
	waitForCount(t, gw.hub, 1)

	gw.EmitNewNotification(userID, map[string]any{"title": "clock_in"})

	env := decodeEnvelope(t, receive(t, global))
	assert.Equal(t, EventNewNotification, env.Event)
}

func TestDecodeJoinCommand(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
		cmd  string
	}{
		{"join user", `{"command":"join-user","user_id":"8f14e45f-ceea-4e1b-8b2a-000000000001"}`, true, CommandJoinUser},
		{"join supervisors", `{"command":"join-supervisors"}`, true, CommandJoinSupervisors},
		{"missing command", `{"user_id":"abc"}`, false, ""},
		{"not json", `join please`, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, ok := decodeJoinCommand([]byte(tt.raw))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.cmd, cmd.Command)
			}
		})
	}
}

func TestSessionJoinCommands(t *testing.T) {
	hub := startHub(t)
	session := newTestSession()
	session.hub = hub
	session.logger = discardLogger()
	hub.Register(session)
	waitForCount(t, hub, 1)

	userID := uuid.NewString()
	session.handleCommand([]byte(`{"command":"join-user","user_id":"` + userID + `"}`))
	session.handleCommand([]byte(`{"command":"join-department","department":"eng"}`))
	session.handleCommand([]byte(`{"command":"join-user","user_id":"not-a-uuid"}`))
	settle()

	hub.Broadcast(roomUser(userID), []byte("u"))
	hub.Broadcast(roomDepartment("eng"), []byte("d"))

	assert.Equal(t, "u", string(receive(t, session)))
	assert.Equal(t, "d", string(receive(t, session)))

	hub.Broadcast(roomUser("not-a-uuid"), []byte("x"))
	select {
	case msg := <-session.send:
		t.Fatalf("invalid join produced delivery %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
