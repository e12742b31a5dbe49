package fanout

import (
	"context"
	"sync/atomic"
	"time"

	"log/slog"

	"auditflow/internal/platform/metrics"
)

const (
	broadcastBuffer = 256
	registerBuffer  = 64
	drainTimeout    = 3 * time.Second
)

type roomBroadcast struct {
	room string
	msg  []byte
}

type roomJoin struct {
	session *Session
	room    string
}

// Hub owns all session and room state for one gateway. Every map mutation
// happens in the Run goroutine; the exported methods only feed channels.
type Hub struct {
	name string

	sessions map[*Session]map[string]bool
	rooms    map[string]map[*Session]bool

	register   chan *Session
	unregister chan *Session
	join       chan roomJoin
	broadcast  chan roomBroadcast
	shutdown   chan struct{}
	done       chan struct{}

	count  atomic.Int64
	logger *slog.Logger
}

// NewHub creates a hub for the named gateway.
func NewHub(name string, logger *slog.Logger) *Hub {
	return &Hub{
		name:       name,
		sessions:   make(map[*Session]map[string]bool),
		rooms:      make(map[string]map[*Session]bool),
		register:   make(chan *Session, registerBuffer),
		unregister: make(chan *Session, registerBuffer),
		join:       make(chan roomJoin, registerBuffer),
		broadcast:  make(chan roomBroadcast, broadcastBuffer),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub event loop. It exits when Shutdown is called or the
// context is cancelled, draining connected sessions first.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.drain()
			return
		case <-h.shutdown:
			h.drain()
			return

		case session := <-h.register:
			h.sessions[session] = map[string]bool{RoomGlobal: true}
			h.addToRoom(session, RoomGlobal)
			if session.ack != nil {
				select {
				case session.send <- session.ack:
				default:
				}
			}
			h.count.Store(int64(len(h.sessions)))
			metrics.WSConnections.WithLabelValues(h.name).Set(float64(len(h.sessions)))
			h.logger.Info("session joined", "gateway", h.name, "session_id", session.ID, "total", len(h.sessions))

		case session := <-h.unregister:
			h.remove(session)
			h.count.Store(int64(len(h.sessions)))
			metrics.WSConnections.WithLabelValues(h.name).Set(float64(len(h.sessions)))
			h.logger.Info("session left", "gateway", h.name, "session_id", session.ID, "total", len(h.sessions))

		case j := <-h.join:
			if _, ok := h.sessions[j.session]; !ok {
				continue
			}
			h.sessions[j.session][j.room] = true
			h.addToRoom(j.session, j.room)
			h.logger.Debug("session joined room", "gateway", h.name, "session_id", j.session.ID, "room", j.room)

		case b := <-h.broadcast:
			for session := range h.rooms[b.room] {
				select {
				case session.send <- b.msg:
				default:
					// Slow consumer: drop the whole session rather than
					// block the loop or queue unbounded.
					h.remove(session)
					h.logger.Warn("session dropped, send buffer full", "gateway", h.name, "session_id", session.ID)
				}
			}
			h.count.Store(int64(len(h.sessions)))
			metrics.BroadcastsSent.WithLabelValues(h.name).Inc()
		}
	}
}

func (h *Hub) addToRoom(session *Session, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Session]bool)
	}
	h.rooms[room][session] = true
}

// remove deletes a session from every room it joined. Membership dies with
// the session; a reconnecting client starts over in the global room.
func (h *Hub) remove(session *Session) {
	roomSet, ok := h.sessions[session]
	if !ok {
		return
	}
	for room := range roomSet {
		delete(h.rooms[room], session)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.sessions, session)
	session.closeSend()
}

// Register adds a session to the hub and its global room.
func (h *Hub) Register(s *Session) {
	select {
	case h.register <- s:
	default:
		h.logger.Warn("register channel full, dropping session", "gateway", h.name)
		s.closeSend()
	}
}

// Unregister removes a session.
func (h *Hub) Unregister(s *Session) {
	select {
	case h.unregister <- s:
	default:
		// Run loop already exited; drain handled cleanup.
	}
}

// Join adds a session to a room.
func (h *Hub) Join(s *Session, room string) {
	select {
	case h.join <- roomJoin{session: s, room: room}:
	default:
		h.logger.Warn("join channel full, command dropped", "gateway", h.name, "room", room)
	}
}

// Broadcast queues a message for every session in a room. Dropped with a
// warning when the hub is saturated.
func (h *Hub) Broadcast(room string, msg []byte) {
	select {
	case h.broadcast <- roomBroadcast{room: room, msg: msg}:
	default:
		h.logger.Warn("broadcast channel full, message dropped", "gateway", h.name, "room", room)
	}
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	return int(h.count.Load())
}

// Shutdown drains and stops the Run loop. Blocks until done.
func (h *Hub) Shutdown() {
	close(h.shutdown)
	<-h.done
}

func (h *Hub) drain() {
	if len(h.sessions) == 0 {
		return
	}
	h.logger.Info("draining sessions", "gateway", h.name, "sessions", len(h.sessions))

	deadline := time.After(drainTimeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		flushed := true
		for session := range h.sessions {
			if len(session.send) > 0 {
				flushed = false
				break
			}
		}
		if flushed {
			break
		}
		select {
		case <-deadline:
			h.logger.Warn("drain timeout, closing remaining sessions", "gateway", h.name)
			goto closeAll
		case <-ticker.C:
		}
	}

closeAll:
	for session := range h.sessions {
		h.remove(session)
	}
	h.count.Store(0)
	metrics.WSConnections.WithLabelValues(h.name).Set(0)
}
