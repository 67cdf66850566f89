package models

import (
	"time"

	"gorm.io/gorm"
)

/** --------------------ENTITIES-------------------- */

// Message is a persisted chat message. The realtime layer never creates
// these; the REST layer persists first and hands the finalized entity to
// the fan-out dispatcher.
type Message struct {
	ID        string         `gorm:"primaryKey;type:char(36)" json:"id"`
	RoomID    uint           `gorm:"not null;index" json:"roomId"`
	SenderID  uint           `gorm:"not null;index" json:"senderId"`
	Provider  string         `gorm:"not null;default:text" json:"provider"` // text || image || file
	Text      string         `json:"text,omitempty"`
	URL       string         `json:"url,omitempty"`
	FileName  string         `json:"fileName,omitempty"`
	SentAt    time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"sentAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Room      Room        `gorm:"foreignKey:RoomID" json:"-"`
	Sender    User        `gorm:"foreignKey:SenderID" json:"-"`
	ReadBy    []MessageRead `gorm:"foreignKey:MessageID" json:"readBy,omitempty"`
	Reactions []Reaction    `gorm:"foreignKey:MessageID" json:"reactions,omitempty"`
}

// MessageRead records that a user has read a message. The unread counter for
// (room, user) is the count of that room's messages with no such record and
// a different sender; it is recomputed, never cached.
type MessageRead struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID string    `gorm:"type:char(36);not null;index:idx_message_reader,unique" json:"messageId"`
	UserID    uint      `gorm:"not null;index:idx_message_reader,unique" json:"userId"`
	ReadAt    time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"readAt"`
}

// Reaction holds at most one emoji per user per message. Setting the same
// emoji again removes the row; a different emoji replaces it.
type Reaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID string    `gorm:"type:char(36);not null;index:idx_message_reactor,unique" json:"messageId"`
	UserID    uint      `gorm:"not null;index:idx_message_reactor,unique" json:"userId"`
	Emoji     string    `gorm:"not null" json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

/** -------------------- DTOs -------------------- */

type CreateMessageRequest struct {
	Provider string `json:"provider" binding:"omitempty,oneof=text image file"`
	Text     string `json:"text"`
	URL      string `json:"url"`
	FileName string `json:"fileName"`
}

type ReactRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

type MarkReadRequest struct {
	MessageIDs []string `json:"messageIds" binding:"required,min=1"`
}

// ReactionOutcome tells clients which of the three toggle cases happened so
// they can update optimistically without a reload.
type ReactionOutcome string

const (
	ReactionAdded    ReactionOutcome = "added"
	ReactionReplaced ReactionOutcome = "replaced"
	ReactionRemoved  ReactionOutcome = "removed"
)
