// Package fanout implements the room-based WebSocket distribution layer.
// Each service runs its own gateway; room membership is ephemeral state held
// only in the hub and rebuilt by explicit join commands after a reconnect.
// Nothing is persisted and nothing is replayed.
package fanout

import (
	"encoding/json"
	"time"
)

// Server-to-client event names.
const (
	EventConnected        = "connected"
	EventAudit            = "audit-event"
	EventUserAudit        = "user-audit-event"
	EventSupervisorAlert  = "supervisor-alert"
	EventDepartmentAudit  = "department-audit-event"
	EventEmployeeAudit    = "employee-audit-event"
	EventReportAccess     = "report-access"
	EventServerStats      = "server-stats"
	EventNewNotification  = "new-notification"
	EventNotificationRead = "notification-read"
)

// Client-to-server join commands.
const (
	CommandJoinUser        = "join-user"
	CommandJoinEmployee    = "join-employee"
	CommandJoinDepartment  = "join-department"
	CommandJoinSupervisors = "join-supervisors"
)

// RoomGlobal is joined implicitly on connect. The remaining rooms are
// derived from join commands: user-<uuid>, employee-<id>, department-<tag>
// and supervisors.
const (
	RoomGlobal      = "global"
	RoomSupervisors = "supervisors"
)

func roomUser(userID string) string           { return "user-" + userID }
func roomEmployee(employeeID string) string   { return "employee-" + employeeID }
func roomDepartment(department string) string { return "department-" + department }

// Envelope is the frame every broadcast is wrapped in. The service and both
// timestamps are stamped by the gateway at emission time.
type Envelope struct {
	Event           string `json:"event"`
	Service         string `json:"service"`
	Timestamp       string `json:"timestamp"`
	ServerTimestamp int64  `json:"server_timestamp"`
	AlertType       string `json:"alert_type,omitempty"`
	Data            any    `json:"data,omitempty"`
}

func newEnvelope(event, service string, data any) Envelope {
	now := time.Now()
	return Envelope{
		Event:           event,
		Service:         service,
		Timestamp:       now.UTC().Format(time.RFC3339),
		ServerTimestamp: now.UnixMilli(),
		Data:            data,
	}
}

// connectedAck is the payload of the connected event sent on every accept.
type connectedAck struct {
	SessionID  string `json:"session_id"`
	ServerTime string `json:"server_time"`
}

// serverStats is the payload of the periodic server-stats broadcast.
type serverStats struct {
	ConnectedClients int     `json:"connected_clients"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// joinCommand is what clients send to enter additional rooms.
type joinCommand struct {
	Command    string `json:"command"`
	UserID     string `json:"user_id,omitempty"`
	EmployeeID string `json:"employee_id,omitempty"`
	Department string `json:"department,omitempty"`
}

func decodeJoinCommand(data []byte) (*joinCommand, bool) {
	var cmd joinCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, false
	}
	if cmd.Command == "" {
		return nil, false
	}
	return &cmd, true
}
