package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// pairKey identifies a caller/callee pairing independent of direction.
type pairKey struct {
	low  uint
	high uint
}

func newPairKey(a, b uint) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{low: a, high: b}
}

// Relay forwards call-setup payloads between two peers without interpreting
// them. The only business rule: setup signals are gated on the two users
// sharing a room or a contact relation. Once a pair passes the gate, later
// candidates and control messages skip the lookup; the entry is dropped when
// the call ends or either party fully disconnects.
type Relay struct {
	hub        *Hub
	membership MembershipStore
	contacts   ContactStore

	mu         sync.Mutex
	authorized map[pairKey]bool

	log *slog.Logger
}

func NewRelay(hub *Hub, membership MembershipStore, contacts ContactStore, log *slog.Logger) *Relay {
	return &Relay{
		hub:        hub,
		membership: membership,
		contacts:   contacts,
		authorized: make(map[pairKey]bool),
		log:        log,
	}
}

// CanCommunicate is the authorization gate: true iff the users share at
// least one room or one added the other as a contact.
func (r *Relay) CanCommunicate(ctx context.Context, userA, userB uint) (bool, error) {
	if contact, err := r.contacts.IsContact(ctx, userA, userB); err != nil {
		return false, err
	} else if contact {
		return true, nil
	}
	return r.membership.ShareRoom(ctx, userA, userB)
}

func (r *Relay) isAuthorized(a, b uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authorized[newPairKey(a, b)]
}

func (r *Relay) markAuthorized(a, b uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authorized[newPairKey(a, b)] = true
}

func (r *Relay) clearPair(a, b uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.authorized, newPairKey(a, b))
}

// ClearUser forgets every authorized pairing involving the user. Called when
// their last session closes.
func (r *Relay) ClearUser(userID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.authorized {
		if key.low == userID || key.high == userID {
			delete(r.authorized, key)
		}
	}
}

// gatedEvents must pass the authorization gate before first contact between
// a pair. Control messages are not here: once a call exists, reject/end/
// toggle-camera/screen-share/close flow unconditionally.
var gatedEvents = map[EventType]bool{
	EventCallRequest:     true,
	EventCallAccept:      true,
	EventWebRTCOffer:     true,
	EventWebRTCAnswer:    true,
	EventWebRTCCandidate: true,
}

// HandleSignal relays one signaling event from sender to addressee.
func (r *Relay) HandleSignal(s *Session, evt *Event) {
	var p SignalPayload
	if err := evt.Bind(&p); err != nil {
		s.sendError(CodeInvalidEvent, err.Error())
		return
	}

	if gatedEvents[evt.Type] && !r.isAuthorized(s.UserID(), p.To) {
		ok, err := r.CanCommunicate(r.hub.ctx, s.UserID(), p.To)
		if err != nil {
			r.log.Error("Authorization lookup failed",
				"from", s.UserID(), "to", p.To, "event", evt.Type, "error", err)
			r.sendDenied(s, evt.Type)
			return
		}
		if !ok {
			r.log.Info("Call signal denied",
				"from", s.UserID(), "to", p.To, "event", evt.Type)
			r.sendDenied(s, evt.Type)
			return
		}
		r.markAuthorized(s.UserID(), p.To)
	}

	// Forward the frame as-is, minus the address, plus who it came from.
	// Call frames may carry fields beyond {to, payload}; those stay opaque.
	forward := make(map[string]interface{})
	_ = json.Unmarshal(evt.Data, &forward)
	delete(forward, "to")
	forward["from"] = s.UserID()
	forward["fromUsername"] = s.Username()
	delivered := r.hub.sendToUser(p.To, evt.Type, forward)

	if evt.Type == EventCallRequest && !delivered {
		_ = s.SendEvent(EventCallError, ErrorPayload{
			Code:    CodePeerOffline,
			Message: "callee has no connected session",
		})
	}

	switch evt.Type {
	case EventCallAccept:
		// Dismiss ringing on the callee's other devices without those
		// devices reading it as a rejection.
		r.hub.sendToOtherSessions(s, EventCallAnsweredElsewhere, SignalForward{
			From:         p.To,
			FromUsername: r.hub.usernameFor(p.To),
		})
	case EventCallEnd, EventCallReject, EventWebRTCClose:
		r.clearPair(s.UserID(), p.To)
	}
}

// sendDenied reports an authorization failure to the sender only; the
// addressee never sees the attempt.
func (r *Relay) sendDenied(s *Session, t EventType) {
	errEvent := EventCallError
	switch t {
	case EventWebRTCOffer, EventWebRTCAnswer, EventWebRTCCandidate:
		errEvent = EventWebRTCError
	}
	_ = s.SendEvent(errEvent, ErrorPayload{
		Code:    CodeUnauthorized,
		Message: "not allowed to signal this user",
	})
}
