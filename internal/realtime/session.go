package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer
	maxFrameSize = 4096
)

// Identity carries who is behind a connection plus the diagnostic tags the
// client supplied at handshake. Tags never influence authorization.
type Identity struct {
	UserID     uint
	Username   string
	ClientType string // desktop || mobile || ""
	AppVersion string
}

// Session is one authenticated realtime connection. A user with two devices
// has two sessions; the user counts as online while any session lives.
type Session struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	identity Identity

	// rooms is this session's delivery subscription set. It mirrors
	// persisted membership at connect time and explicit join/leave after;
	// it never mutates membership itself.
	rooms map[uint]bool

	// Per-session interest in note and location pushes.
	notes    bool
	location bool

	mu sync.RWMutex

	// sendMu serializes writes to the send channel against its close, so a
	// broadcast racing a drop can never send on a closed channel.
	sendMu sync.RWMutex

	ctx        context.Context
	cancel     context.CancelFunc
	closed     int32
	sendClosed int32

	wg sync.WaitGroup
}

func newSession(hub *Hub, conn *websocket.Conn, identity Identity) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:       uuid.New().String(),
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, hub.sendBufferSize),
		identity: identity,
		rooms:    make(map[uint]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Session) ID() string         { return s.id }
func (s *Session) UserID() uint       { return s.identity.UserID }
func (s *Session) Username() string   { return s.identity.Username }
func (s *Session) Identity() Identity { return s.identity }

func (s *Session) Rooms() []uint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]uint, 0, len(s.rooms))
	for id := range s.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

func (s *Session) inRoom(roomID uint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[roomID]
}

func (s *Session) addRoom(roomID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = true
}

func (s *Session) removeRoom(roomID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

func (s *Session) setNotes(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = on
}

func (s *Session) wantsNotes() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notes
}

func (s *Session) setLocation(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = on
}

func (s *Session) wantsLocation() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.location
}

func (s *Session) isClosed() bool {
	return atomic.LoadInt32(&s.closed) == 1
}

func (s *Session) close() {
	if atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		s.cancel()
	}
}

func (s *Session) closeSendChannel() {
	if atomic.CompareAndSwapInt32(&s.sendClosed, 0, 1) {
		s.sendMu.Lock()
		close(s.send)
		s.sendMu.Unlock()
	}
}

// SendEvent queues an outbound frame. A session whose buffer is full is a
// slow consumer and gets dropped rather than blocking the sender; later
// sends to the dropped session fail with ErrSessionClosed instead of
// touching the closed channel.
func (s *Session) SendEvent(t EventType, data interface{}) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	frame, err := Marshal(t, data)
	if err != nil {
		return err
	}

	s.sendMu.RLock()
	if atomic.LoadInt32(&s.sendClosed) == 1 {
		s.sendMu.RUnlock()
		return ErrSessionClosed
	}
	select {
	case s.send <- frame:
		s.sendMu.RUnlock()
		return nil
	case <-s.ctx.Done():
		s.sendMu.RUnlock()
		return ErrSessionClosed
	default:
		s.sendMu.RUnlock()
		slog.Warn("Send buffer full, dropping session",
			"sessionID", s.id, "userID", s.identity.UserID)
		s.close()
		s.closeSendChannel()
		return ErrSessionClosed
	}
}

func (s *Session) sendError(code, message string) {
	_ = s.SendEvent(EventError, ErrorPayload{Code: code, Message: message})
}

func (s *Session) readPump() {
	s.wg.Add(1)
	defer func() {
		s.wg.Done()
		s.close()

		select {
		case s.hub.unregister <- s:
		case <-time.After(5 * time.Second):
			slog.Warn("Timeout sending unregister request",
				"sessionID", s.id, "userID", s.identity.UserID)
		}

		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		if s.isClosed() {
			return websocket.ErrCloseSent
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error",
					"sessionID", s.id, "userID", s.identity.UserID, "error", err)
			}
			break
		}

		var evt Event
		if err := json.Unmarshal(frame, &evt); err != nil {
			slog.Debug("Failed to unmarshal event",
				"sessionID", s.id, "userID", s.identity.UserID, "error", err)
			s.sendError(CodeInvalidEvent, "invalid event format")
			continue
		}

		select {
		case s.hub.inbound <- &sessionEvent{session: s, event: &evt}:
		case <-time.After(5 * time.Second):
			slog.Warn("Timeout sending event to hub",
				"sessionID", s.id, "userID", s.identity.UserID, "event", evt.Type)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) writePump() {
	s.wg.Add(1)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		s.wg.Done()
		ticker.Stop()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			if s.isClosed() {
				return
			}

			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Debug("Error writing frame",
					"sessionID", s.id, "userID", s.identity.UserID, "error", err)
				return
			}

		case <-ticker.C:
			if s.isClosed() {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.ctx.Done():
			return
		}
	}
}
