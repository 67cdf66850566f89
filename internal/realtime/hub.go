package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

type sessionEvent struct {
	session *Session
	event   *Event
}

// Hub owns all mutable realtime state: the session registry, the per-user
// presence sets and the per-room subscription index. Every mutation funnels
// through the Run goroutine; concurrent callers (HTTP handlers, timer
// callbacks) only read, under the lock. Everything here is a derived cache
// over persisted membership and is rebuilt from it at reconnect.
type Hub struct {
	mu sync.RWMutex

	sessions     map[*Session]bool
	userSessions map[uint]map[*Session]bool
	roomSessions map[uint]map[*Session]bool
	usernames    map[uint]string

	register   chan *Session
	unregister chan *Session
	inbound    chan *sessionEvent

	membership MembershipStore
	messages   MessageStore
	presence   PresenceStore

	typing *typingTracker
	relay  *Relay

	sendBufferSize int

	ctx    context.Context
	cancel context.CancelFunc

	log *slog.Logger
}

type HubOptions struct {
	TypingTimeout  time.Duration
	SendBufferSize int
}

func NewHub(membership MembershipStore, contacts ContactStore, messages MessageStore, presence PresenceStore, opts HubOptions, log *slog.Logger) *Hub {
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = 3 * time.Second
	}
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		sessions:       make(map[*Session]bool),
		userSessions:   make(map[uint]map[*Session]bool),
		roomSessions:   make(map[uint]map[*Session]bool),
		usernames:      make(map[uint]string),
		register:       make(chan *Session),
		unregister:     make(chan *Session),
		inbound:        make(chan *sessionEvent),
		membership:     membership,
		messages:       messages,
		presence:       presence,
		sendBufferSize: opts.SendBufferSize,
		ctx:            ctx,
		cancel:         cancel,
		log:            log,
	}
	h.typing = newTypingTracker(opts.TypingTimeout, h.typingExpired)
	h.relay = NewRelay(h, membership, contacts, log)
	return h
}

// Run is the hub's single serializing loop. Connect, disconnect and every
// inbound socket event are handled here one at a time, which is what keeps
// per-room delivery ordered and map mutation race-free.
func (h *Hub) Run() {
	for {
		select {
		case s := <-h.register:
			h.registerSession(s)
		case s := <-h.unregister:
			h.unregisterSession(s)
		case se := <-h.inbound:
			h.handleEvent(se.session, se.event)
		case <-h.ctx.Done():
			h.log.Info("Realtime hub shutting down")
			return
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		s.close()
		s.closeSendChannel()
	}
}

/** -------------------- connect / disconnect -------------------- */

func (h *Hub) registerSession(s *Session) {
	h.mu.Lock()
	h.sessions[s] = true
	if h.userSessions[s.UserID()] == nil {
		h.userSessions[s.UserID()] = make(map[*Session]bool)
	}
	h.userSessions[s.UserID()][s] = true
	h.usernames[s.UserID()] = s.Username()
	firstSession := len(h.userSessions[s.UserID()]) == 1
	h.mu.Unlock()

	h.log.Info("Session registered",
		"sessionID", s.ID(), "userID", s.UserID(), "clientType", s.Identity().ClientType)

	// Build the session's subscription set from persisted membership. A
	// failure here leaves the session connected with no subscriptions;
	// the next room:updated refresh or reconnect repairs it.
	rooms, err := h.membership.RoomsForUser(h.ctx, s.UserID())
	if err != nil {
		h.log.Error("Failed to load rooms for user", "userID", s.UserID(), "error", err)
		rooms = nil
	}

	h.mu.Lock()
	if !h.sessions[s] {
		// Disconnected while we were looking up membership.
		h.mu.Unlock()
		return
	}
	for _, roomID := range rooms {
		s.addRoom(roomID)
		if h.roomSessions[roomID] == nil {
			h.roomSessions[roomID] = make(map[*Session]bool)
		}
		h.roomSessions[roomID][s] = true
	}
	h.mu.Unlock()

	if err := h.presence.SetOnline(h.ctx, s.UserID(), s.Identity().ClientType, s.Identity().AppVersion); err != nil {
		h.log.Error("Failed to persist online transition", "userID", s.UserID(), "error", err)
	}

	if firstSession {
		h.broadcastExceptUser(s.UserID(), EventUserOnline, PresencePayload{
			UserID:     s.UserID(),
			Username:   s.Username(),
			Status:     "online",
			Muted:      h.mutedFor(s.UserID()),
			AppVersion: s.Identity().AppVersion,
		})
	}

	h.sendInitSnapshot(s, rooms)
}

// sendInitSnapshot pushes the current status of every co-member to the
// connecting session.
func (h *Hub) sendInitSnapshot(s *Session, rooms []uint) {
	peerSet := make(map[uint]bool)
	for _, roomID := range rooms {
		members, err := h.membership.MemberIDs(h.ctx, roomID)
		if err != nil {
			h.log.Error("Failed to load room members", "roomID", roomID, "error", err)
			continue
		}
		for _, id := range members {
			if id != s.UserID() {
				peerSet[id] = true
			}
		}
	}

	statuses, err := h.presence.GetStatuses(h.ctx, lo.Keys(peerSet))
	if err != nil {
		h.log.Error("Failed to load presence snapshot", "userID", s.UserID(), "error", err)
		return
	}
	_ = s.SendEvent(EventUsersInit, statuses)
}

func (h *Hub) unregisterSession(s *Session) {
	h.mu.Lock()
	if !h.sessions[s] {
		// Already gone; a handler resuming with a stale reference is a no-op.
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s)
	if set := h.userSessions[s.UserID()]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(h.userSessions, s.UserID())
		}
	}
	for _, roomID := range s.Rooms() {
		if set := h.roomSessions[roomID]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(h.roomSessions, roomID)
			}
		}
	}
	lastSession := h.userSessions[s.UserID()] == nil
	if lastSession {
		delete(h.usernames, s.UserID())
	}
	h.mu.Unlock()

	s.close()
	s.closeSendChannel()

	// Drop every typing timer for this user so none outlives the session.
	h.typing.CancelUser(s.UserID())

	h.log.Info("Session unregistered",
		"sessionID", s.ID(), "userID", s.UserID(), "lastSession", lastSession)

	if !lastSession {
		return
	}

	h.relay.ClearUser(s.UserID())

	if err := h.presence.SetOffline(h.ctx, s.UserID()); err != nil {
		h.log.Error("Failed to persist offline transition", "userID", s.UserID(), "error", err)
	}

	h.broadcastExceptUser(s.UserID(), EventUserOffline, PresencePayload{
		UserID:   s.UserID(),
		Username: s.Username(),
		Status:   "offline",
		Muted:    h.mutedFor(s.UserID()),
		LastSeen: time.Now().Unix(),
	})
}

/** -------------------- inbound events -------------------- */

func (h *Hub) handleEvent(s *Session, evt *Event) {
	h.mu.RLock()
	live := h.sessions[s]
	h.mu.RUnlock()
	if !live {
		return
	}

	switch evt.Type {
	case EventRoomJoin:
		h.handleRoomJoin(s, evt)
	case EventRoomLeave:
		h.handleRoomLeave(s, evt)
	case EventTypingStart:
		h.handleTypingStart(s, evt)
	case EventTypingStop:
		h.handleTypingStop(s, evt)
	case EventMessageRead:
		h.handleMessageRead(s, evt)
	case EventMessageDelete:
		h.handleMessageDelete(s, evt)
	case EventMessageReact:
		h.handleMessageReact(s, evt)
	case EventNoteSubscribe:
		s.setNotes(true)
	case EventNoteUnsubscribe:
		s.setNotes(false)
	case EventLocationSubscribe:
		s.setLocation(true)
	case EventLocationUnsubscribe:
		s.setLocation(false)
	case EventWebRTCOffer, EventWebRTCAnswer, EventWebRTCCandidate, EventWebRTCClose,
		EventCallRequest, EventCallAccept, EventCallReject, EventCallEnd,
		EventCallToggleCamera, EventCallScreenShare:
		h.relay.HandleSignal(s, evt)
	default:
		s.sendError(CodeInvalidEvent, "unknown event type: "+evt.Type.String())
	}
}

func (h *Hub) handleRoomJoin(s *Session, evt *Event) {
	var p RoomPayload
	if err := evt.Bind(&p); err != nil {
		s.sendError(CodeInvalidEvent, err.Error())
		return
	}

	h.mu.Lock()
	s.addRoom(p.RoomID)
	if h.roomSessions[p.RoomID] == nil {
		h.roomSessions[p.RoomID] = make(map[*Session]bool)
	}
	h.roomSessions[p.RoomID][s] = true
	h.mu.Unlock()

	h.broadcastRoom(p.RoomID, EventUserJoinedRoom, RoomMemberPayload{
		RoomID:   p.RoomID,
		UserID:   s.UserID(),
		Username: s.Username(),
	}, s.UserID())
}

func (h *Hub) handleRoomLeave(s *Session, evt *Event) {
	var p RoomPayload
	if err := evt.Bind(&p); err != nil {
		s.sendError(CodeInvalidEvent, err.Error())
		return
	}

	h.mu.Lock()
	s.removeRoom(p.RoomID)
	if set := h.roomSessions[p.RoomID]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(h.roomSessions, p.RoomID)
		}
	}
	h.mu.Unlock()

	h.broadcastRoom(p.RoomID, EventUserLeftRoom, RoomMemberPayload{
		RoomID:   p.RoomID,
		UserID:   s.UserID(),
		Username: s.Username(),
	}, s.UserID())
}

func (h *Hub) handleTypingStart(s *Session, evt *Event) {
	var p RoomPayload
	if err := evt.Bind(&p); err != nil {
		s.sendError(CodeInvalidEvent, err.Error())
		return
	}

	h.typing.Start(s.UserID(), p.RoomID)
	h.broadcastRoom(p.RoomID, EventTypingStart, TypingPayload{
		RoomID:   p.RoomID,
		UserID:   s.UserID(),
		Username: s.Username(),
	}, s.UserID())
}

func (h *Hub) handleTypingStop(s *Session, evt *Event) {
	var p RoomPayload
	if err := evt.Bind(&p); err != nil {
		s.sendError(CodeInvalidEvent, err.Error())
		return
	}

	// Only emit a stop when a matching start is still pending, so a start
	// never yields more than one stop.
	if h.typing.Stop(s.UserID(), p.RoomID) {
		h.broadcastRoom(p.RoomID, EventTypingStop, TypingPayload{
			RoomID:   p.RoomID,
			UserID:   s.UserID(),
			Username: s.Username(),
		}, s.UserID())
	}
}

// typingExpired runs on the timer goroutine when 3s pass without activity.
func (h *Hub) typingExpired(userID, roomID uint) {
	h.mu.RLock()
	username := h.usernames[userID]
	h.mu.RUnlock()

	h.broadcastRoom(roomID, EventTypingStop, TypingPayload{
		RoomID:   roomID,
		UserID:   userID,
		Username: username,
	}, userID)
}

func (h *Hub) handleMessageRead(s *Session, evt *Event) {
	var p ReadPayload
	if err := evt.Bind(&p); err != nil {
		s.sendError(CodeInvalidEvent, err.Error())
		return
	}
	if !h.isMember(p.RoomID, s.UserID()) {
		s.sendError(CodeUnauthorized, "not a member of this room")
		return
	}

	if err := h.messages.MarkRead(h.ctx, s.UserID(), p.MessageIDs); err != nil {
		h.log.Error("Failed to mark messages read",
			"userID", s.UserID(), "roomID", p.RoomID, "error", err)
		return
	}

	h.broadcastRoom(p.RoomID, EventMessageRead, ReadReceiptPayload{
		RoomID:     p.RoomID,
		UserID:     s.UserID(),
		MessageIDs: p.MessageIDs,
	}, 0)

	h.pushUnread(p.RoomID, s.UserID())
}

func (h *Hub) handleMessageDelete(s *Session, evt *Event) {
	var p DeletePayload
	if err := evt.Bind(&p); err != nil {
		s.sendError(CodeInvalidEvent, err.Error())
		return
	}
	if !h.isMember(p.RoomID, s.UserID()) {
		s.sendError(CodeUnauthorized, "not a member of this room")
		return
	}

	if err := h.messages.Delete(h.ctx, p.RoomID, p.MessageID); err != nil {
		h.log.Error("Failed to delete message",
			"userID", s.UserID(), "messageID", p.MessageID, "error", err)
		return
	}

	h.broadcastRoom(p.RoomID, EventMessageDeleted, MessageDeletedPayload{
		RoomID:    p.RoomID,
		MessageID: p.MessageID,
	}, 0)

	// The deleted message may have been someone's only unread one.
	h.pushUnreadToMembers(p.RoomID, 0)
}

func (h *Hub) handleMessageReact(s *Session, evt *Event) {
	var p ReactPayload
	if err := evt.Bind(&p); err != nil {
		s.sendError(CodeInvalidEvent, err.Error())
		return
	}
	if !h.isMember(p.RoomID, s.UserID()) {
		s.sendError(CodeUnauthorized, "not a member of this room")
		return
	}

	outcome, err := h.messages.ToggleReaction(h.ctx, p.MessageID, s.UserID(), p.Emoji)
	if err != nil {
		h.log.Error("Failed to toggle reaction",
			"userID", s.UserID(), "messageID", p.MessageID, "error", err)
		return
	}

	h.broadcastRoom(p.RoomID, EventMessageReacted, ReactionPayload{
		RoomID:    p.RoomID,
		MessageID: p.MessageID,
		UserID:    s.UserID(),
		Emoji:     p.Emoji,
		Action:    string(outcome),
	}, 0)
}

/** -------------------- delivery helpers -------------------- */

// broadcastRoom delivers an event to every session subscribed to the room,
// skipping all sessions of exceptUser (0 = deliver to everyone).
func (h *Hub) broadcastRoom(roomID uint, t EventType, data interface{}, exceptUser uint) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.roomSessions[roomID]))
	for s := range h.roomSessions[roomID] {
		if exceptUser != 0 && s.UserID() == exceptUser {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		_ = s.SendEvent(t, data)
	}
}

func (h *Hub) broadcastExceptUser(exceptUser uint, t EventType, data interface{}) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		if s.UserID() == exceptUser {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		_ = s.SendEvent(t, data)
	}
}

// sendToUser delivers to every session of one user (multi-device).
func (h *Hub) sendToUser(userID uint, t EventType, data interface{}) bool {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.userSessions[userID]))
	for s := range h.userSessions[userID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		_ = s.SendEvent(t, data)
	}
	return len(targets) > 0
}

// sendToOtherSessions delivers to the user's sessions other than the given
// one, e.g. dismissing ringing UIs after an accept elsewhere.
func (h *Hub) sendToOtherSessions(s *Session, t EventType, data interface{}) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.userSessions[s.UserID()]))
	for other := range h.userSessions[s.UserID()] {
		if other != s {
			targets = append(targets, other)
		}
	}
	h.mu.RUnlock()

	for _, other := range targets {
		_ = other.SendEvent(t, data)
	}
}

// mutedFor reads the persisted mute flag for a presence broadcast. A failed
// lookup defaults to unmuted.
func (h *Hub) mutedFor(userID uint) bool {
	status, err := h.presence.GetStatus(h.ctx, userID)
	if err != nil {
		h.log.Error("Failed to load user status", "userID", userID, "error", err)
		return false
	}
	return status.Muted
}

// isMember checks persisted membership before a socket-driven mutation; a
// failed lookup denies, matching the REST handlers.
func (h *Hub) isMember(roomID, userID uint) bool {
	ok, err := h.membership.IsMember(h.ctx, roomID, userID)
	if err != nil {
		h.log.Error("Failed to check room membership",
			"roomID", roomID, "userID", userID, "error", err)
		return false
	}
	return ok
}

func (h *Hub) usernameFor(userID uint) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.usernames[userID]
}

func (h *Hub) sessionsFor(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userSessions[userID])
}

// pushUnread recomputes one member's unread counter for a room and pushes it
// to all their sessions.
func (h *Hub) pushUnread(roomID, userID uint) {
	count, err := h.messages.UnreadCount(h.ctx, roomID, userID)
	if err != nil {
		h.log.Error("Failed to recompute unread count",
			"roomID", roomID, "userID", userID, "error", err)
		return
	}
	h.sendToUser(userID, EventUnreadUpdated, UnreadPayload{
		RoomID:      roomID,
		UnreadCount: count,
	})
}

// pushUnreadToMembers recomputes for every persisted member of the room,
// skipping exceptUser (0 = nobody skipped). Offline members are skipped
// implicitly: sendToUser finds no sessions.
func (h *Hub) pushUnreadToMembers(roomID, exceptUser uint) {
	members, err := h.membership.MemberIDs(h.ctx, roomID)
	if err != nil {
		h.log.Error("Failed to load members for unread push", "roomID", roomID, "error", err)
		return
	}
	for _, id := range members {
		if exceptUser != 0 && id == exceptUser {
			continue
		}
		if h.sessionsFor(id) == 0 {
			continue
		}
		h.pushUnread(roomID, id)
	}
}

/** -------------------- membership refresh -------------------- */

// RefreshRoom re-syncs connected members' subscriptions with persisted
// membership after the REST layer changed it, then is followed by the
// dispatcher's room:updated broadcast.
func (h *Hub) RefreshRoom(ctx context.Context, roomID uint) {
	members, err := h.membership.MemberIDs(ctx, roomID)
	if err != nil {
		h.log.Error("Failed to refresh room membership", "roomID", roomID, "error", err)
		return
	}
	memberSet := lo.SliceToMap(members, func(id uint) (uint, bool) { return id, true })

	h.mu.Lock()
	defer h.mu.Unlock()

	// Unsubscribe sessions of users removed from the room.
	for s := range h.roomSessions[roomID] {
		if !memberSet[s.UserID()] {
			s.removeRoom(roomID)
			delete(h.roomSessions[roomID], s)
		}
	}

	// Subscribe connected sessions of users added to the room.
	for id := range memberSet {
		for s := range h.userSessions[id] {
			if !s.inRoom(roomID) {
				s.addRoom(roomID)
				if h.roomSessions[roomID] == nil {
					h.roomSessions[roomID] = make(map[*Session]bool)
				}
				h.roomSessions[roomID][s] = true
			}
		}
	}
}

// DropRoom unsubscribes every session from a deleted room.
func (h *Hub) DropRoom(roomID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.roomSessions[roomID] {
		s.removeRoom(roomID)
	}
	delete(h.roomSessions, roomID)
}
