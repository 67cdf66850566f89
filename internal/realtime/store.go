package realtime

import (
	"context"

	"homechat/internal/models"
)

// The realtime layer never owns business data. It consumes the persisted
// store through these narrow views so the hub can be exercised against
// in-memory fakes.

// MembershipStore answers room membership questions from persisted data.
type MembershipStore interface {
	RoomsForUser(ctx context.Context, userID uint) ([]uint, error)
	MemberIDs(ctx context.Context, roomID uint) ([]uint, error)
	IsMember(ctx context.Context, roomID, userID uint) (bool, error)
	ShareRoom(ctx context.Context, userA, userB uint) (bool, error)
}

// ContactStore answers whether two users added each other.
type ContactStore interface {
	IsContact(ctx context.Context, userA, userB uint) (bool, error)
}

// MessageStore covers the message mutations reachable from socket events
// plus the unread recomputation the dispatcher pushes after every change.
type MessageStore interface {
	MarkRead(ctx context.Context, userID uint, messageIDs []string) error
	UnreadCount(ctx context.Context, roomID, userID uint) (int64, error)
	Delete(ctx context.Context, roomID uint, messageID string) error
	ToggleReaction(ctx context.Context, messageID string, userID uint, emoji string) (models.ReactionOutcome, error)
}

// PresenceStore persists online/offline transitions and serves the status
// snapshot for users:init and the per-user record for presence broadcasts.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID uint, clientType, appVersion string) error
	SetOffline(ctx context.Context, userID uint) error
	GetStatus(ctx context.Context, userID uint) (*models.UserStatus, error)
	GetStatuses(ctx context.Context, userIDs []uint) ([]models.UserStatus, error)
}
