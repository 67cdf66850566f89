package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"homechat/internal/models"
)

// fakeStore is an in-memory stand-in for the persisted layer: room
// membership, contacts, unread counts, reactions and presence transitions.
type fakeStore struct {
	mu sync.Mutex

	members   map[uint][]uint // roomID -> member user ids
	contacts  map[[2]uint]bool
	unread    map[string]int64          // "room:user" -> count
	reactions map[string]map[uint]string // messageID -> userID -> emoji
	deleted   map[string]bool
	readBy    map[string]map[uint]bool

	online map[uint]bool
	muted  map[uint]bool

	lookupErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		members:   make(map[uint][]uint),
		contacts:  make(map[[2]uint]bool),
		unread:    make(map[string]int64),
		reactions: make(map[string]map[uint]string),
		deleted:   make(map[string]bool),
		readBy:    make(map[string]map[uint]bool),
		online:    make(map[uint]bool),
		muted:     make(map[uint]bool),
	}
}

var errTransient = errors.New("store temporarily unavailable")

func unreadKey(roomID, userID uint) string {
	return fmt.Sprintf("%d:%d", roomID, userID)
}

func (f *fakeStore) addMember(roomID, userID uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[roomID] = append(f.members[roomID], userID)
}

func (f *fakeStore) setMembers(roomID uint, userIDs ...uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[roomID] = userIDs
}

func (f *fakeStore) addContact(a, b uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a > b {
		a, b = b, a
	}
	f.contacts[[2]uint{a, b}] = true
}

func (f *fakeStore) setMuted(userID uint, muted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted[userID] = muted
}

func (f *fakeStore) setUnread(roomID, userID uint, count int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unread[unreadKey(roomID, userID)] = count
}

/** ---------------- MembershipStore ---------------- */

func (f *fakeStore) RoomsForUser(ctx context.Context, userID uint) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	var rooms []uint
	for roomID, members := range f.members {
		for _, id := range members {
			if id == userID {
				rooms = append(rooms, roomID)
				break
			}
		}
	}
	return rooms, nil
}

func (f *fakeStore) MemberIDs(ctx context.Context, roomID uint) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return append([]uint(nil), f.members[roomID]...), nil
}

func (f *fakeStore) IsMember(ctx context.Context, roomID, userID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	for _, id := range f.members[roomID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ShareRoom(ctx context.Context, userA, userB uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	for _, members := range f.members {
		var hasA, hasB bool
		for _, id := range members {
			hasA = hasA || id == userA
			hasB = hasB || id == userB
		}
		if hasA && hasB {
			return true, nil
		}
	}
	return false, nil
}

/** ---------------- ContactStore ---------------- */

func (f *fakeStore) IsContact(ctx context.Context, userA, userB uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	if userA > userB {
		userA, userB = userB, userA
	}
	return f.contacts[[2]uint{userA, userB}], nil
}

/** ---------------- MessageStore ---------------- */

func (f *fakeStore) MarkRead(ctx context.Context, userID uint, messageIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range messageIDs {
		if f.readBy[id] == nil {
			f.readBy[id] = make(map[uint]bool)
		}
		f.readBy[id][userID] = true
	}
	return nil
}

func (f *fakeStore) UnreadCount(ctx context.Context, roomID, userID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return 0, f.lookupErr
	}
	return f.unread[unreadKey(roomID, userID)], nil
}

func (f *fakeStore) Delete(ctx context.Context, roomID uint, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleted[messageID] {
		return errors.New("message not found")
	}
	f.deleted[messageID] = true
	return nil
}

func (f *fakeStore) ToggleReaction(ctx context.Context, messageID string, userID uint, emoji string) (models.ReactionOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reactions[messageID] == nil {
		f.reactions[messageID] = make(map[uint]string)
	}
	current, ok := f.reactions[messageID][userID]
	switch {
	case !ok:
		f.reactions[messageID][userID] = emoji
		return models.ReactionAdded, nil
	case current == emoji:
		delete(f.reactions[messageID], userID)
		return models.ReactionRemoved, nil
	default:
		f.reactions[messageID][userID] = emoji
		return models.ReactionReplaced, nil
	}
}

func (f *fakeStore) reactionFor(messageID string, userID uint) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	emoji, ok := f.reactions[messageID][userID]
	return emoji, ok
}

/** ---------------- PresenceStore ---------------- */

func (f *fakeStore) SetOnline(ctx context.Context, userID uint, clientType, appVersion string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[userID] = true
	return nil
}

func (f *fakeStore) SetOffline(ctx context.Context, userID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[userID] = false
	return nil
}

func (f *fakeStore) GetStatus(ctx context.Context, userID uint) (*models.UserStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusLocked(userID), nil
}

func (f *fakeStore) GetStatuses(ctx context.Context, userIDs []uint) ([]models.UserStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	statuses := make([]models.UserStatus, 0, len(userIDs))
	for _, id := range userIDs {
		statuses = append(statuses, *f.statusLocked(id))
	}
	return statuses, nil
}

func (f *fakeStore) statusLocked(userID uint) *models.UserStatus {
	status := "offline"
	if f.online[userID] {
		status = "online"
	}
	return &models.UserStatus{UserID: userID, Status: status, Muted: f.muted[userID]}
}

func (f *fakeStore) isOnline(userID uint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[userID]
}

/** ---------------- harness ---------------- */

func newTestHub(t *testing.T, store *fakeStore, opts HubOptions) *Hub {
	t.Helper()
	hub := NewHub(store, store, store, store, opts, slog.Default())
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

// connect registers a session without a real websocket connection. Outbound
// frames accumulate in s.send; the returned session is registered once its
// users:init snapshot arrives.
func connect(t *testing.T, hub *Hub, userID uint, username string) *Session {
	t.Helper()
	s := newSession(hub, nil, Identity{UserID: userID, Username: username})

	select {
	case hub.register <- s:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout registering session")
	}

	evt := recvEvent(t, s)
	require.Equal(t, EventUsersInit, evt.Type)
	return s
}

func disconnect(t *testing.T, hub *Hub, s *Session) {
	t.Helper()
	select {
	case hub.unregister <- s:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout unregistering session")
	}
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return !hub.sessions[s]
	}, 2*time.Second, 5*time.Millisecond)
}

func send(t *testing.T, hub *Hub, s *Session, eventType EventType, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	select {
	case hub.inbound <- &sessionEvent{session: s, event: &Event{Type: eventType, Data: raw}}:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout sending event to hub")
	}
}

func recvEvent(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case frame, ok := <-s.send:
		require.True(t, ok, "send channel closed")
		var evt Event
		require.NoError(t, json.Unmarshal(frame, &evt))
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

// recvEventOfType drains frames until one of the wanted type arrives.
func recvEventOfType(t *testing.T, s *Session, want EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case frame, ok := <-s.send:
			require.True(t, ok, "send channel closed")
			var evt Event
			require.NoError(t, json.Unmarshal(frame, &evt))
			if evt.Type == want {
				return evt
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s", want)
			return Event{}
		}
	}
}

// requireNoEvent asserts nothing arrives within the window.
func requireNoEvent(t *testing.T, s *Session, window time.Duration) {
	t.Helper()
	select {
	case frame, ok := <-s.send:
		if !ok {
			return
		}
		var evt Event
		_ = json.Unmarshal(frame, &evt)
		t.Fatalf("unexpected event %s: %s", evt.Type, string(frame))
	case <-time.After(window):
	}
}

// requireNoEventOfType drains the window and fails if an event of the given
// type shows up.
func requireNoEventOfType(t *testing.T, s *Session, banned EventType, window time.Duration) {
	t.Helper()
	deadline := time.After(window)
	for {
		select {
		case frame, ok := <-s.send:
			if !ok {
				return
			}
			var evt Event
			_ = json.Unmarshal(frame, &evt)
			if evt.Type == banned {
				t.Fatalf("unexpected event %s: %s", banned, string(frame))
			}
		case <-deadline:
			return
		}
	}
}

func bindData(t *testing.T, evt Event, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(evt.Data, v))
}
