package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"auditflow/internal/audit"
)

// Gateway is one service's live distribution surface: an HTTP upgrade
// endpoint plus typed emit methods that wrap records in stamped envelopes.
type Gateway struct {
	service   string
	hub       *Hub
	logger    *slog.Logger
	startedAt time.Time
}

// NewGateway creates a gateway and its hub. Call Run before serving.
func NewGateway(service string, logger *slog.Logger) *Gateway {
	return &Gateway{
		service:   service,
		hub:       NewHub(service, logger),
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Run starts the hub loop and the periodic stats broadcast, blocking until
// the context is cancelled.
func (g *Gateway) Run(ctx context.Context, statsInterval time.Duration) {
	go g.statsLoop(ctx, statsInterval)
	g.hub.Run(ctx)
}

// Shutdown drains connected sessions.
func (g *Gateway) Shutdown() {
	g.hub.Shutdown()
}

// SessionCount returns the number of connected sessions.
func (g *Gateway) SessionCount() int {
	return g.hub.SessionCount()
}

// ServeWS upgrades the request and pumps the session until it disconnects.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin checks are the proxy's job
	})
	if err != nil {
		g.logger.Warn("websocket accept failed", "error", err)
		return
	}

	session := NewSession(g.hub, conn, g.logger)

	// The hub delivers the ack after registration; the handler never sends
	// on the session channel itself, since the hub may close it at any time.
	ack := newEnvelope(EventConnected, g.service, connectedAck{
		SessionID:  session.ID,
		ServerTime: time.Now().UTC().Format(time.RFC3339),
	})
	if msg, err := json.Marshal(ack); err == nil {
		session.ack = msg
	}
	g.hub.Register(session)

	go session.WritePump(r.Context())
	session.ReadPump(r.Context())
}

// EmitAuditEvent broadcasts a record to the gateway's global room.
func (g *Gateway) EmitAuditEvent(rec *audit.Record) {
	g.emit(RoomGlobal, EventAudit, rec, "")
}

// EmitToUser broadcasts a record to the target user's room.
func (g *Gateway) EmitToUser(userID uuid.UUID, rec *audit.Record) {
	g.emit(roomUser(userID.String()), EventUserAudit, rec, "")
}

// EmitAttendanceAction alerts the supervisors room about a check-in or
// check-out.
func (g *Gateway) EmitAttendanceAction(rec *audit.Record) {
	g.emit(RoomSupervisors, EventSupervisorAlert, rec, audit.AlertTypeAttendance)
}

// EmitToDepartment broadcasts a record to one department's room.
func (g *Gateway) EmitToDepartment(department string, rec *audit.Record) {
	g.emit(roomDepartment(department), EventDepartmentAudit, rec, "")
}

// EmitToEmployee broadcasts a record to one employee's room.
func (g *Gateway) EmitToEmployee(employeeID string, rec *audit.Record) {
	g.emit(roomEmployee(employeeID), EventEmployeeAudit, rec, "")
}

// EmitReportAccess announces a report access on the global room.
func (g *Gateway) EmitReportAccess(rec *audit.Record) {
	g.emit(RoomGlobal, EventReportAccess, rec, "")
}

// EmitNewNotification pushes a freshly created notification to the global
// room and to the owning user's room.
func (g *Gateway) EmitNewNotification(userID uuid.UUID, notification any) {
	g.emit(RoomGlobal, EventNewNotification, notification, "")
	g.emit(roomUser(userID.String()), EventNewNotification, notification, "")
}

// EmitNotificationRead tells the owning user's room that a notification was
// marked read.
func (g *Gateway) EmitNotificationRead(userID uuid.UUID, notification any) {
	g.emit(roomUser(userID.String()), EventNotificationRead, notification, "")
}

func (g *Gateway) emit(room, event string, data any, alertType string) {
	env := newEnvelope(event, g.service, data)
	env.AlertType = alertType
	msg, err := json.Marshal(env)
	if err != nil {
		g.logger.Error("envelope marshal failed", "event", event, "error", err)
		return
	}
	g.hub.Broadcast(room, msg)
}

func (g *Gateway) statsLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.emit(RoomGlobal, EventServerStats, serverStats{
				ConnectedClients: g.hub.SessionCount(),
				UptimeSeconds:    time.Since(g.startedAt).Seconds(),
			}, "")
		}
	}
}
