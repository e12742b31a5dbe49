package fanout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"auditflow/pkg/domain"
)

const (
	writeTimeout      = 10 * time.Second
	readLimit         = 4096
	sessionSendBuffer = 256
	pingInterval      = 30 * time.Second
	pingTimeout       = 10 * time.Second
)

// Session wraps one WebSocket connection managed by a hub.
type Session struct {
	ID string

	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger

	// ack, when set before Register, is queued by the hub as the session's
	// first message. Only the hub goroutine ever sends on send; it also owns
	// closing it, so there is no send-on-closed race.
	ack []byte

	closeOnce sync.Once
}

// NewSession creates a session for an accepted connection.
func NewSession(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Session {
	return &Session{
		ID:     uuid.NewString(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sessionSendBuffer),
		logger: logger,
	}
}

func (s *Session) closeSend() {
	s.closeOnce.Do(func() { close(s.send) })
}

// ReadPump reads join commands until the connection closes. Any frame that
// is not a recognized command is ignored.
func (s *Session) ReadPump(ctx context.Context) {
	defer func() {
		s.hub.Unregister(s)
		s.conn.CloseNow()
	}()

	s.conn.SetReadLimit(readLimit)

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				s.logger.Debug("session disconnected", "session_id", s.ID, "status", int(status))
			}
			return
		}
		s.handleCommand(data)
	}
}

func (s *Session) handleCommand(data []byte) {
	cmd, ok := decodeJoinCommand(data)
	if !ok {
		return
	}
	switch cmd.Command {
	case CommandJoinUser:
		userID, err := domain.ParseUserID(cmd.UserID)
		if err != nil || userID.IsNil() {
			s.logger.Debug("join-user with invalid user id ignored", "session_id", s.ID)
			return
		}
		s.hub.Join(s, roomUser(userID.String()))
	case CommandJoinEmployee:
		if cmd.EmployeeID == "" {
			return
		}
		s.hub.Join(s, roomEmployee(cmd.EmployeeID))
	case CommandJoinDepartment:
		if cmd.Department == "" {
			return
		}
		s.hub.Join(s, roomDepartment(cmd.Department))
	case CommandJoinSupervisors:
		s.hub.Join(s, RoomSupervisors)
	}
}

// WritePump writes queued messages to the connection and keeps it alive
// with pings. Exits when the send channel closes or a write fails.
func (s *Session) WritePump(ctx context.Context) {
	defer s.conn.CloseNow()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-pingTicker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := s.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				s.logger.Debug("ping failed, closing session", "session_id", s.ID)
				return
			}
		case msg, ok := <-s.send:
			if !ok {
				s.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				s.logger.Debug("write failed, closing session", "session_id", s.ID, "error", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
