package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// EventType tags every frame on the socket. Payloads are typed per event and
// validated at the boundary before any handler runs.
type EventType string

const (
	// Client -> server
	EventRoomJoin            EventType = "room:join"
	EventRoomLeave           EventType = "room:leave"
	EventTypingStart         EventType = "typing:start"
	EventTypingStop          EventType = "typing:stop"
	EventMessageRead         EventType = "message:read"
	EventMessageDelete       EventType = "message:delete"
	EventMessageReact        EventType = "message:react"
	EventNoteSubscribe       EventType = "note:subscribe"
	EventNoteUnsubscribe     EventType = "note:unsubscribe"
	EventLocationSubscribe   EventType = "location:subscribe"
	EventLocationUnsubscribe EventType = "location:unsubscribe"

	// Signaling, both directions
	EventWebRTCOffer      EventType = "webrtc:offer"
	EventWebRTCAnswer     EventType = "webrtc:answer"
	EventWebRTCCandidate  EventType = "webrtc:ice-candidate"
	EventWebRTCClose      EventType = "webrtc:close"
	EventWebRTCError      EventType = "webrtc:error"
	EventCallRequest      EventType = "call:request"
	EventCallAccept       EventType = "call:accept"
	EventCallReject       EventType = "call:reject"
	EventCallEnd          EventType = "call:end"
	EventCallToggleCamera EventType = "call:toggle-camera"
	EventCallScreenShare  EventType = "call:screen-share"
	EventCallError        EventType = "call:error"
	EventCallAnsweredElsewhere EventType = "call:answered-elsewhere"

	// Server -> client
	EventUserOnline     EventType = "user:online"
	EventUserOffline    EventType = "user:offline"
	EventUsersInit      EventType = "users:init"
	EventUserJoinedRoom EventType = "user:joined-room"
	EventUserLeftRoom   EventType = "user:left-room"
	EventMessageNew     EventType = "message:new"
	EventMessageDeleted EventType = "message:deleted"
	EventMessageReacted EventType = "message:reacted"
	EventUnreadUpdated  EventType = "unread:updated"
	EventRoomCreated    EventType = "room:created"
	EventRoomUpdated    EventType = "room:updated"
	EventRoomDeleted    EventType = "room:deleted"
	EventNoteCreated    EventType = "note:created"
	EventNoteUpdated    EventType = "note:updated"
	EventNoteDeleted    EventType = "note:deleted"
	EventLabelCreated   EventType = "label:created"
	EventLabelUpdated   EventType = "label:updated"
	EventLabelDeleted   EventType = "label:deleted"
	EventFileDeleted    EventType = "file:deleted"
	EventLocationUpdate EventType = "location:update"
	EventError          EventType = "error"
)

func (t EventType) String() string { return string(t) }

// Event is the wire envelope. Inbound data stays raw until the handler binds
// it to the payload struct for its type.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

var validate = validator.New()

// Bind unmarshals the event data into a typed payload and validates it.
func (e *Event) Bind(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s: missing payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("event %s: %w", e.Type, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("event %s: %w", e.Type, err)
	}
	return nil
}

// Marshal builds an outbound frame.
func Marshal(t EventType, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Type: t, Data: raw})
}

/** -------------------- inbound payloads -------------------- */

type RoomPayload struct {
	RoomID uint `json:"roomId" validate:"required"`
}

type ReadPayload struct {
	RoomID     uint     `json:"roomId" validate:"required"`
	MessageIDs []string `json:"messageIds" validate:"required,min=1"`
}

type DeletePayload struct {
	RoomID    uint   `json:"roomId" validate:"required"`
	MessageID string `json:"messageId" validate:"required"`
}

type ReactPayload struct {
	RoomID    uint   `json:"roomId" validate:"required"`
	MessageID string `json:"messageId" validate:"required"`
	Emoji     string `json:"emoji" validate:"required"`
}

// SignalPayload addresses a peer. Everything else in the frame is opaque to
// the relay and forwarded untouched.
type SignalPayload struct {
	To      uint            `json:"to" validate:"required"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

/** -------------------- outbound payloads -------------------- */

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PresencePayload struct {
	UserID     uint   `json:"userId"`
	Username   string `json:"username"`
	Status     string `json:"status"`
	Muted      bool   `json:"muted,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
	LastSeen   int64  `json:"lastSeen,omitempty"`
}

type RoomMemberPayload struct {
	RoomID   uint   `json:"roomId"`
	UserID   uint   `json:"userId"`
	Username string `json:"username"`
}

type TypingPayload struct {
	RoomID   uint   `json:"roomId"`
	UserID   uint   `json:"userId"`
	Username string `json:"username"`
}

type UnreadPayload struct {
	RoomID      uint  `json:"roomId"`
	UnreadCount int64 `json:"unreadCount"`
}

type ReadReceiptPayload struct {
	RoomID     uint     `json:"roomId"`
	UserID     uint     `json:"userId"`
	MessageIDs []string `json:"messageIds"`
}

type MessageDeletedPayload struct {
	RoomID    uint   `json:"roomId"`
	MessageID string `json:"messageId"`
}

type ReactionPayload struct {
	RoomID    uint   `json:"roomId"`
	MessageID string `json:"messageId"`
	UserID    uint   `json:"userId"`
	Emoji     string `json:"emoji"`
	Action    string `json:"action"` // added || replaced || removed
}

type SignalForward struct {
	From         uint            `json:"from"`
	FromUsername string          `json:"fromUsername"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

type FileDeletedPayload struct {
	RoomID uint   `json:"roomId"`
	URL    string `json:"url"`
}
