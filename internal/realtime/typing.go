package realtime

import (
	"sync"
	"time"
)

type typingKey struct {
	userID uint
	roomID uint
}

// typingTracker holds at most one live timer per (user, room). A fresh start
// replaces the pending timer, so exactly one stop fires per quiescence
// period: from the timeout, or earlier from an explicit stop.
type typingTracker struct {
	mu      sync.Mutex
	timeout time.Duration
	timers  map[typingKey]*time.Timer

	// expire is invoked from the timer goroutine when a typing indicator
	// ages out without an explicit stop.
	expire func(userID, roomID uint)
}

func newTypingTracker(timeout time.Duration, expire func(userID, roomID uint)) *typingTracker {
	return &typingTracker{
		timeout: timeout,
		timers:  make(map[typingKey]*time.Timer),
		expire:  expire,
	}
}

// Start arms (or re-arms) the auto-stop timer for the key.
func (t *typingTracker) Start(userID, roomID uint) {
	key := typingKey{userID: userID, roomID: roomID}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[key]; ok {
		existing.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(t.timeout, func() {
		t.fire(key, timer)
	})
	t.timers[key] = timer
}

// Stop cancels the pending timer. It reports whether a timer was live, so
// the caller only emits typing:stop when a matching start exists.
func (t *typingTracker) Stop(userID, roomID uint) bool {
	key := typingKey{userID: userID, roomID: roomID}

	t.mu.Lock()
	defer t.mu.Unlock()

	timer, ok := t.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(t.timers, key)
	return true
}

// CancelUser silently drops every timer for the user, regardless of room.
// Used on disconnect so no timer outlives its owning session and no stale
// stop fires for a user no longer connected.
func (t *typingTracker) CancelUser(userID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, timer := range t.timers {
		if key.userID == userID {
			timer.Stop()
			delete(t.timers, key)
		}
	}
}

func (t *typingTracker) fire(key typingKey, timer *time.Timer) {
	t.mu.Lock()
	current, ok := t.timers[key]
	if !ok || current != timer {
		// Replaced or cancelled between firing and acquiring the lock.
		t.mu.Unlock()
		return
	}
	delete(t.timers, key)
	t.mu.Unlock()

	t.expire(key.userID, key.roomID)
}
