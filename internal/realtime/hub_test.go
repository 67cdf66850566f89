package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"homechat/internal/models"
)

func TestOnlineBroadcastOnlyForFirstSession(t *testing.T) {
	store := newFakeStore()
	store.setMuted(2, true)
	hub := newTestHub(t, store, HubOptions{})

	alice := connect(t, hub, 1, "alice")

	connect(t, hub, 2, "bob")
	evt := recvEventOfType(t, alice, EventUserOnline)
	var p PresencePayload
	bindData(t, evt, &p)
	require.Equal(t, uint(2), p.UserID)
	require.Equal(t, "bob", p.Username)
	require.Equal(t, "online", p.Status)
	require.True(t, p.Muted)

	// Second device of the same user is invisible to everyone else.
	connect(t, hub, 2, "bob")
	requireNoEventOfType(t, alice, EventUserOnline, 150*time.Millisecond)
}

func TestOfflineBroadcastOnlyAfterLastSessionCloses(t *testing.T) {
	store := newFakeStore()
	store.setMuted(2, true)
	hub := newTestHub(t, store, HubOptions{})

	alice := connect(t, hub, 1, "alice")
	bob1 := connect(t, hub, 2, "bob")
	bob2 := connect(t, hub, 2, "bob")
	recvEventOfType(t, alice, EventUserOnline)

	disconnect(t, hub, bob1)
	requireNoEventOfType(t, alice, EventUserOffline, 150*time.Millisecond)
	require.True(t, store.isOnline(2))

	disconnect(t, hub, bob2)
	evt := recvEventOfType(t, alice, EventUserOffline)
	var p PresencePayload
	bindData(t, evt, &p)
	require.Equal(t, uint(2), p.UserID)
	require.Equal(t, "offline", p.Status)
	require.True(t, p.Muted)
	require.NotZero(t, p.LastSeen)
	require.False(t, store.isOnline(2))
}

func TestInitSnapshotCoversRoomPeers(t *testing.T) {
	store := newFakeStore()
	store.setMembers(10, 1, 2, 3)
	hub := newTestHub(t, store, HubOptions{})

	connect(t, hub, 2, "bob")

	s := newSession(hub, nil, Identity{UserID: 1, Username: "alice"})
	hub.register <- s
	evt := recvEventOfType(t, s, EventUsersInit)

	var statuses []models.UserStatus
	bindData(t, evt, &statuses)
	byUser := make(map[uint]string)
	for _, st := range statuses {
		byUser[st.UserID] = st.Status
	}
	require.Equal(t, "online", byUser[2])
	require.Equal(t, "offline", byUser[3])
	_, self := byUser[1]
	require.False(t, self)
}

func TestConnectSubscribesPersistedRooms(t *testing.T) {
	store := newFakeStore()
	store.setMembers(10, 1, 2)
	hub := newTestHub(t, store, HubOptions{})

	alice := connect(t, hub, 1, "alice")
	bob := connect(t, hub, 2, "bob")
	recvEventOfType(t, alice, EventUserOnline)

	// A room broadcast reaches both without an explicit room:join.
	hub.broadcastRoom(10, EventRoomUpdated, RoomPayload{RoomID: 10}, 0)
	require.Equal(t, EventRoomUpdated, recvEventOfType(t, alice, EventRoomUpdated).Type)
	require.Equal(t, EventRoomUpdated, recvEventOfType(t, bob, EventRoomUpdated).Type)
}

func TestRoomJoinAndLeaveNotifyOtherMembers(t *testing.T) {
	store := newFakeStore()
	store.setMembers(10, 1, 2)
	hub := newTestHub(t, store, HubOptions{})

	alice := connect(t, hub, 1, "alice")
	bob := connect(t, hub, 2, "bob")
	carol := connect(t, hub, 3, "carol")
	recvEventOfType(t, alice, EventUserOnline)
	recvEventOfType(t, alice, EventUserOnline)
	recvEventOfType(t, bob, EventUserOnline)

	send(t, hub, carol, EventRoomJoin, RoomPayload{RoomID: 10})

	for _, s := range []*Session{alice, bob} {
		evt := recvEventOfType(t, s, EventUserJoinedRoom)
		var p RoomMemberPayload
		bindData(t, evt, &p)
		require.Equal(t, uint(10), p.RoomID)
		require.Equal(t, uint(3), p.UserID)
		require.Equal(t, "carol", p.Username)
	}
	requireNoEventOfType(t, carol, EventUserJoinedRoom, 100*time.Millisecond)

	send(t, hub, carol, EventRoomLeave, RoomPayload{RoomID: 10})
	for _, s := range []*Session{alice, bob} {
		evt := recvEventOfType(t, s, EventUserLeftRoom)
		var p RoomMemberPayload
		bindData(t, evt, &p)
		require.Equal(t, uint(3), p.UserID)
	}

	// Once left, room traffic no longer reaches carol.
	hub.broadcastRoom(10, EventRoomUpdated, RoomPayload{RoomID: 10}, 0)
	requireNoEventOfType(t, carol, EventRoomUpdated, 100*time.Millisecond)
}

func TestUnknownEventTypeRepliesWithError(t *testing.T) {
	store := newFakeStore()
	hub := newTestHub(t, store, HubOptions{})

	alice := connect(t, hub, 1, "alice")
	send(t, hub, alice, EventType("bogus:event"), map[string]int{"x": 1})

	evt := recvEventOfType(t, alice, EventError)
	var p ErrorPayload
	bindData(t, evt, &p)
	require.Equal(t, CodeInvalidEvent, p.Code)
}

func TestInvalidPayloadRepliesWithErrorToSenderOnly(t *testing.T) {
	store := newFakeStore()
	store.setMembers(10, 1, 2)
	hub := newTestHub(t, store, HubOptions{})

	alice := connect(t, hub, 1, "alice")
	bob := connect(t, hub, 2, "bob")
	recvEventOfType(t, alice, EventUserOnline)

	// roomId missing fails validation before any broadcast.
	send(t, hub, alice, EventTypingStart, map[string]string{"oops": "yes"})

	evt := recvEventOfType(t, alice, EventError)
	var p ErrorPayload
	bindData(t, evt, &p)
	require.Equal(t, CodeInvalidEvent, p.Code)
	requireNoEventOfType(t, bob, EventTypingStart, 100*time.Millisecond)
}

func TestMessageReadBroadcastsReceiptAndRefreshesReader(t *testing.T) {
	store := newFakeStore()
	store.setMembers(10, 1, 2)
	store.setUnread(10, 2, 0)
	hub := newTestHub(t, store, HubOptions{})

	alice := connect(t, hub, 1, "alice")
	bob := connect(t, hub, 2, "bob")
	recvEventOfType(t, alice, EventUserOnline)

	send(t, hub, bob, EventMessageRead, ReadPayload{RoomID: 10, MessageIDs: []string{"m1", "m2"}})

	for _, s := range []*Session{alice, bob} {
		evt := recvEventOfType(t, s, EventMessageRead)
		var p ReadReceiptPayload
		bindData(t, evt, &p)
		require.Equal(t, uint(2), p.UserID)
		require.ElementsMatch(t, []string{"m1", "m2"}, p.MessageIDs)
	}

	evt := recvEventOfType(t, bob, EventUnreadUpdated)
	var u UnreadPayload
	bindData(t, evt, &u)
	require.Equal(t, uint(10), u.RoomID)
	require.Equal(t, int64(0), u.UnreadCount)

	store.mu.Lock()
	readers := store.readBy["m1"]
	store.mu.Unlock()
	require.True(t, readers[2])
}

func TestMessageDeleteFailureIsSilentAndKeepsSession(t *testing.T) {
	store := newFakeStore()
	store.setMembers(10, 1, 2)
	store.deleted["gone"] = true
	hub := newTestHub(t, store, HubOptions{})

	alice := connect(t, hub, 1, "alice")
	bob := connect(t, hub, 2, "bob")
	recvEventOfType(t, alice, EventUserOnline)

	send(t, hub, alice, EventMessageDelete, DeletePayload{RoomID: 10, MessageID: "gone"})

	requireNoEventOfType(t, bob, EventMessageDeleted, 150*time.Millisecond)

	// The failed mutation never tears the session down.
	send(t, hub, alice, EventMessageDelete, DeletePayload{RoomID: 10, MessageID: "fresh"})
	evt := recvEventOfType(t, bob, EventMessageDeleted)
	var p MessageDeletedPayload
	bindData(t, evt, &p)
	require.Equal(t, "fresh", p.MessageID)
}

func TestSocketMutationsRequireMembership(t *testing.T) {
	store := newFakeStore()
	store.setMembers(10, 1, 2)
	hub := newTestHub(t, store, HubOptions{})

	alice := connect(t, hub, 1, "alice")
	mallory := connect(t, hub, 3, "mallory")
	recvEventOfType(t, alice, EventUserOnline)

	requireDenied := func(eventType EventType, payload interface{}) {
		t.Helper()
		send(t, hub, mallory, eventType, payload)
		evt := recvEventOfType(t, mallory, EventError)
		var p ErrorPayload
		bindData(t, evt, &p)
		require.Equal(t, CodeUnauthorized, p.Code)
	}

	requireDenied(EventMessageRead, ReadPayload{RoomID: 10, MessageIDs: []string{"m1"}})
	requireDenied(EventMessageDelete, DeletePayload{RoomID: 10, MessageID: "m1"})
	requireDenied(EventMessageReact, ReactPayload{RoomID: 10, MessageID: "m1", Emoji: "👍"})

	// Nothing persisted and nothing broadcast to the room.
	store.mu.Lock()
	readBy, deleted, reactions := store.readBy["m1"], store.deleted["m1"], store.reactions["m1"]
	store.mu.Unlock()
	require.Empty(t, readBy)
	require.False(t, deleted)
	require.Empty(t, reactions)
	requireNoEvent(t, alice, 150*time.Millisecond)

	// A member issuing the same events still goes through.
	bob := connect(t, hub, 2, "bob")
	recvEventOfType(t, alice, EventUserOnline)
	send(t, hub, bob, EventMessageRead, ReadPayload{RoomID: 10, MessageIDs: []string{"m1"}})
	recvEventOfType(t, alice, EventMessageRead)
}

func TestReactionToggleCycle(t *testing.T) {
	store := newFakeStore()
	store.setMembers(10, 1, 2)
	hub := newTestHub(t, store, HubOptions{})

	alice := connect(t, hub, 1, "alice")
	bob := connect(t, hub, 2, "bob")
	recvEventOfType(t, alice, EventUserOnline)

	react := func(emoji, wantAction string) {
		t.Helper()
		send(t, hub, alice, EventMessageReact, ReactPayload{RoomID: 10, MessageID: "m1", Emoji: emoji})
		evt := recvEventOfType(t, bob, EventMessageReacted)
		var p ReactionPayload
		bindData(t, evt, &p)
		require.Equal(t, wantAction, p.Action)
		require.Equal(t, emoji, p.Emoji)
		require.Equal(t, uint(1), p.UserID)
	}

	react("👍", "added")
	react("❤️", "replaced")
	react("❤️", "removed")

	_, exists := store.reactionFor("m1", 1)
	require.False(t, exists)
}

func TestRefreshRoomTracksMembershipChanges(t *testing.T) {
	store := newFakeStore()
	store.setMembers(10, 1, 2)
	hub := newTestHub(t, store, HubOptions{})

	alice := connect(t, hub, 1, "alice")
	bob := connect(t, hub, 2, "bob")
	carol := connect(t, hub, 3, "carol")
	recvEventOfType(t, alice, EventUserOnline)
	recvEventOfType(t, alice, EventUserOnline)
	recvEventOfType(t, bob, EventUserOnline)

	// bob out, carol in.
	store.setMembers(10, 1, 3)
	hub.RefreshRoom(hub.ctx, 10)

	hub.broadcastRoom(10, EventRoomUpdated, RoomPayload{RoomID: 10}, 0)
	recvEventOfType(t, alice, EventRoomUpdated)
	recvEventOfType(t, carol, EventRoomUpdated)
	requireNoEventOfType(t, bob, EventRoomUpdated, 100*time.Millisecond)
}

func TestDropRoomStopsDelivery(t *testing.T) {
	store := newFakeStore()
	store.setMembers(10, 1, 2)
	hub := newTestHub(t, store, HubOptions{})

	alice := connect(t, hub, 1, "alice")
	bob := connect(t, hub, 2, "bob")
	recvEventOfType(t, alice, EventUserOnline)

	hub.DropRoom(10)
	hub.broadcastRoom(10, EventRoomUpdated, RoomPayload{RoomID: 10}, 0)
	requireNoEventOfType(t, alice, EventRoomUpdated, 100*time.Millisecond)
	requireNoEventOfType(t, bob, EventRoomUpdated, 100*time.Millisecond)
}

func TestStaleUnregisterIsNoOp(t *testing.T) {
	store := newFakeStore()
	hub := newTestHub(t, store, HubOptions{})

	alice := connect(t, hub, 1, "alice")
	bob := connect(t, hub, 2, "bob")
	recvEventOfType(t, alice, EventUserOnline)

	disconnect(t, hub, bob)
	recvEventOfType(t, alice, EventUserOffline)

	// A handler resuming with a dead reference must not fire a second
	// offline transition.
	disconnect(t, hub, bob)
	requireNoEventOfType(t, alice, EventUserOffline, 150*time.Millisecond)
}

func TestSlowConsumerIsDroppedWithoutBlocking(t *testing.T) {
	store := newFakeStore()
	hub := newTestHub(t, store, HubOptions{SendBufferSize: 1})

	alice := connect(t, hub, 1, "alice")

	require.NoError(t, alice.SendEvent(EventRoomUpdated, RoomPayload{RoomID: 1}))
	err := alice.SendEvent(EventRoomUpdated, RoomPayload{RoomID: 2})
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestSendAfterSlowConsumerDropFailsSoftly(t *testing.T) {
	store := newFakeStore()
	store.setMembers(10, 1, 2)
	hub := newTestHub(t, store, HubOptions{SendBufferSize: 1})

	alice := connect(t, hub, 1, "alice")
	bob := connect(t, hub, 2, "bob")
	recvEventOfType(t, alice, EventUserOnline)

	// Fill bob's buffer and trigger the drop.
	require.NoError(t, bob.SendEvent(EventRoomUpdated, RoomPayload{RoomID: 10}))
	require.ErrorIs(t, bob.SendEvent(EventRoomUpdated, RoomPayload{RoomID: 10}), ErrSessionClosed)

	// Further sends to the dropped session, direct or via broadcast, must
	// fail with the sentinel rather than taking the process down.
	require.ErrorIs(t, bob.SendEvent(EventRoomUpdated, RoomPayload{RoomID: 10}), ErrSessionClosed)
	require.NotPanics(t, func() {
		hub.broadcastRoom(10, EventRoomUpdated, RoomPayload{RoomID: 10}, 0)
	})
	recvEventOfType(t, alice, EventRoomUpdated)
}
