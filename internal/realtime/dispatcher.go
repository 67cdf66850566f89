package realtime

import (
	"context"
	"log/slog"

	"homechat/internal/models"
)

// Dispatcher is the fan-out surface the REST layer invokes after it has
// persisted a message, reaction, deletion or room change. It receives the
// finalized entity and never computes business data itself. Within one room,
// events go out in the order calls arrive here; nothing is guaranteed across
// rooms or across the HTTP/realtime boundary.
type Dispatcher struct {
	hub *Hub
	log *slog.Logger
}

func NewDispatcher(hub *Hub, log *slog.Logger) *Dispatcher {
	return &Dispatcher{hub: hub, log: log}
}

// NotifyNewMessage fans a persisted message out to the room, skipping the
// author's sessions (the author already has it from the HTTP response that
// created it), then pushes refreshed unread counters to every other member.
func (d *Dispatcher) NotifyNewMessage(ctx context.Context, msg *models.Message) {
	d.hub.broadcastRoom(msg.RoomID, EventMessageNew, msg, msg.SenderID)
	d.hub.pushUnreadToMembers(msg.RoomID, msg.SenderID)
}

// NotifyRead broadcasts a read receipt and refreshes the reader's own
// counter. The read records are already persisted by the caller.
func (d *Dispatcher) NotifyRead(ctx context.Context, roomID, readerID uint, messageIDs []string) {
	d.hub.broadcastRoom(roomID, EventMessageRead, ReadReceiptPayload{
		RoomID:     roomID,
		UserID:     readerID,
		MessageIDs: messageIDs,
	}, 0)
	d.hub.pushUnread(roomID, readerID)
}

// NotifyDeleted broadcasts a deletion and recounts for every member: the
// deleted message may have been someone's only unread one.
func (d *Dispatcher) NotifyDeleted(ctx context.Context, roomID uint, messageID string) {
	d.hub.broadcastRoom(roomID, EventMessageDeleted, MessageDeletedPayload{
		RoomID:    roomID,
		MessageID: messageID,
	}, 0)
	d.hub.pushUnreadToMembers(roomID, 0)
}

// NotifyReaction broadcasts which of the three toggle outcomes happened so
// clients can update without a reload.
func (d *Dispatcher) NotifyReaction(ctx context.Context, roomID uint, messageID string, userID uint, emoji string, outcome models.ReactionOutcome) {
	d.hub.broadcastRoom(roomID, EventMessageReacted, ReactionPayload{
		RoomID:    roomID,
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		Action:    string(outcome),
	}, 0)
}

/** -------------------- room lifecycle -------------------- */

func (d *Dispatcher) NotifyRoomCreated(ctx context.Context, room *models.Room) {
	d.hub.RefreshRoom(ctx, room.ID)
	d.hub.broadcastRoom(room.ID, EventRoomCreated, room, 0)
}

// NotifyRoomUpdated re-syncs connected members' subscriptions with the new
// persisted membership, then announces the change to current subscribers.
func (d *Dispatcher) NotifyRoomUpdated(ctx context.Context, room *models.Room) {
	d.hub.RefreshRoom(ctx, room.ID)
	d.hub.broadcastRoom(room.ID, EventRoomUpdated, room, 0)
}

func (d *Dispatcher) NotifyRoomDeleted(ctx context.Context, roomID uint) {
	d.hub.broadcastRoom(roomID, EventRoomDeleted, RoomPayload{RoomID: roomID}, 0)
	d.hub.DropRoom(roomID)
}

/** -------------------- notes / labels / files / location -------------------- */

// notifySubscribers delivers to sessions that opted in via note:subscribe.
func (d *Dispatcher) NotifyNote(t EventType, note interface{}) {
	d.hub.mu.RLock()
	targets := make([]*Session, 0)
	for s := range d.hub.sessions {
		if s.wantsNotes() {
			targets = append(targets, s)
		}
	}
	d.hub.mu.RUnlock()

	for _, s := range targets {
		_ = s.SendEvent(t, note)
	}
}

// Labels belong to the notes domain and go to the same subscribers.
func (d *Dispatcher) NotifyLabel(t EventType, label interface{}) {
	d.NotifyNote(t, label)
}

func (d *Dispatcher) NotifyFileDeleted(roomID uint, url string) {
	d.hub.broadcastRoom(roomID, EventFileDeleted, FileDeletedPayload{
		RoomID: roomID,
		URL:    url,
	}, 0)
}

// NotifyLocation pushes a location update to sessions that subscribed,
// except the reporter's own.
func (d *Dispatcher) NotifyLocation(userID uint, payload interface{}) {
	d.hub.mu.RLock()
	targets := make([]*Session, 0)
	for s := range d.hub.sessions {
		if s.UserID() != userID && s.wantsLocation() {
			targets = append(targets, s)
		}
	}
	d.hub.mu.RUnlock()

	for _, s := range targets {
		_ = s.SendEvent(EventLocationUpdate, payload)
	}
}
